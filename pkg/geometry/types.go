// Copyright 2025 Certen Protocol
//
// Geometry types shared across the normalizer, spatial index, and identity
// builder. There is no third-party geometry/GIS library anywhere in the
// retrieved example corpus (checked: paulmach/orb, twpayne/go-geom,
// tidwall/geojson, go-spatial, s2 are all absent), so these primitives and
// the algorithms in this package are hand-written pure Go.

package geometry

import "fmt"

// Point is a longitude/latitude pair in WGS84 degrees.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Ring is a closed sequence of points: Ring[0] == Ring[len-1] once validated.
type Ring []Point

// Polygon is one exterior ring plus zero or more interior (hole) rings.
type Polygon struct {
	Exterior Ring   `json:"exterior"`
	Holes    []Ring `json:"holes,omitempty"`
}

// MultiPolygon is an ordered set of polygons. Order is preserved through
// normalization since it is part of what gets hashed into the district ID.
type MultiPolygon []Polygon

// BBox is an axis-aligned bounding box in WGS84 degrees.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether p lies within b (inclusive of the boundary).
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// ContainsBBox reports whether b fully contains other, optionally with a
// tolerance in degrees applied to the containing box.
func (b BBox) ContainsBBox(other BBox, toleranceDeg float64) bool {
	return other.MinLon >= b.MinLon-toleranceDeg &&
		other.MinLat >= b.MinLat-toleranceDeg &&
		other.MaxLon <= b.MaxLon+toleranceDeg &&
		other.MaxLat <= b.MaxLat+toleranceDeg
}

// Union returns the smallest bbox containing both b and other.
func (b BBox) Union(other BBox) BBox {
	return BBox{
		MinLon: min(b.MinLon, other.MinLon),
		MinLat: min(b.MinLat, other.MinLat),
		MaxLon: max(b.MaxLon, other.MaxLon),
		MaxLat: max(b.MaxLat, other.MaxLat),
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// BoundingBox computes the bbox of a multipolygon from its exterior rings
// (holes never extend the bbox).
func (mp MultiPolygon) BoundingBox() (BBox, error) {
	if len(mp) == 0 {
		return BBox{}, fmt.Errorf("geometry: multipolygon has no polygons")
	}
	first := true
	var bbox BBox
	for _, poly := range mp {
		for _, p := range poly.Exterior {
			if first {
				bbox = BBox{MinLon: p.Lon, MinLat: p.Lat, MaxLon: p.Lon, MaxLat: p.Lat}
				first = false
				continue
			}
			bbox.MinLon = min(bbox.MinLon, p.Lon)
			bbox.MinLat = min(bbox.MinLat, p.Lat)
			bbox.MaxLon = max(bbox.MaxLon, p.Lon)
			bbox.MaxLat = max(bbox.MaxLat, p.Lat)
		}
	}
	if first {
		return BBox{}, fmt.Errorf("geometry: multipolygon has no exterior points")
	}
	return bbox, nil
}

// Centroid computes the area-weighted centroid of the largest polygon's
// exterior ring, used by the geographic validator's centroid-containment
// check. It is not a true multi-polygon centroid, but the spec only needs a
// representative interior point for the containment heuristic.
func (mp MultiPolygon) Centroid() (Point, error) {
	var best Ring
	bestArea := -1.0
	for _, poly := range mp {
		a := ringArea(poly.Exterior)
		if a < 0 {
			a = -a
		}
		if a > bestArea {
			bestArea = a
			best = poly.Exterior
		}
	}
	if best == nil {
		return Point{}, fmt.Errorf("geometry: no exterior ring to compute centroid from")
	}
	return ringCentroid(best), nil
}

func ringCentroid(r Ring) Point {
	var cx, cy, area float64
	n := len(r)
	for i := 0; i < n-1; i++ {
		cross := r[i].Lon*r[i+1].Lat - r[i+1].Lon*r[i].Lat
		area += cross
		cx += (r[i].Lon + r[i+1].Lon) * cross
		cy += (r[i].Lat + r[i+1].Lat) * cross
	}
	area /= 2
	if area == 0 {
		// Degenerate ring: fall back to the arithmetic mean.
		var sx, sy float64
		for _, p := range r {
			sx += p.Lon
			sy += p.Lat
		}
		return Point{Lon: sx / float64(n), Lat: sy / float64(n)}
	}
	cx /= 6 * area
	cy /= 6 * area
	return Point{Lon: cx, Lat: cy}
}
