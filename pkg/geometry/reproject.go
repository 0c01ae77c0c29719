// Copyright 2025 Certen Protocol
//
// Reprojection step (C4.1). WGS84 sources pass through as identity; Web
// Mercator (EPSG:3857), the other CRS acquisition sources commonly declare,
// is transformed analytically. Any other declared CRS the pipeline cannot
// transform is rejected per spec.md §4.3 step 1 ("If CRS is unknown,
// reject"). This keeps the normalizer free of a full projection library —
// none exists in the retrieved example corpus — while still enforcing the
// contract that output is always WGS84.

package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownCRS is returned when the declared CRS cannot be reprojected to
// WGS84 by this pipeline.
var ErrUnknownCRS = errors.New("geometry: unknown or unsupported CRS")

// wgs84CRS are the declared_crs values this pipeline treats as already
// WGS84. EPSG:4326 and its common aliases are identity transforms.
var wgs84CRS = map[string]bool{
	"EPSG:4326":                     true,
	"epsg:4326":                     true,
	"CRS84":                         true,
	"urn:ogc:def:crs:OGC:1.3:CRS84": true,
	"WGS84":                         true,
	"":                              true, // absent CRS is treated as WGS84 per common geojson convention
}

// webMercatorCRS are the declared_crs values this pipeline recognizes as Web
// Mercator and reprojects to WGS84 analytically.
var webMercatorCRS = map[string]bool{
	"EPSG:3857": true,
	"epsg:3857": true,
	"EPSG:900913": true,
	"EPSG:3785": true,
}

// webMercatorRadius is the sphere radius (meters) the Web Mercator
// projection is defined against (WGS84's semi-major axis, treated as a
// sphere — the same simplification every EPSG:3857 implementation makes).
const webMercatorRadius = 6378137.0

// ReprojectToWGS84 validates the declared CRS and reprojects to WGS84 when
// the CRS is a transform this pipeline knows. A declared CRS this pipeline
// does not recognize is a reject-the-dataset condition, never a
// best-effort guess.
func ReprojectToWGS84(mp MultiPolygon, declaredCRS string) (MultiPolygon, error) {
	switch {
	case wgs84CRS[declaredCRS]:
		return mp, nil
	case webMercatorCRS[declaredCRS]:
		return reprojectWebMercator(mp), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCRS, declaredCRS)
	}
}

func reprojectWebMercator(mp MultiPolygon) MultiPolygon {
	out := make(MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = Polygon{
			Exterior: reprojectRingWebMercator(poly.Exterior),
			Holes:    make([]Ring, len(poly.Holes)),
		}
		for j, h := range poly.Holes {
			out[i].Holes[j] = reprojectRingWebMercator(h)
		}
	}
	return out
}

func reprojectRingWebMercator(r Ring) Ring {
	out := make(Ring, len(r))
	for i, p := range r {
		out[i] = webMercatorToWGS84(p)
	}
	return out
}

// webMercatorToWGS84 inverts the spherical Web Mercator projection: x/y in
// meters to lon/lat in degrees.
func webMercatorToWGS84(p Point) Point {
	lon := p.Lon / webMercatorRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p.Lat/webMercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return Point{Lon: lon, Lat: lat}
}
