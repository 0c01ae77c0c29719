// Copyright 2025 Certen Protocol

package pipeline

import (
	"testing"
	"time"

	"github.com/geomesh/boundary-commit/pkg/geometry"
	"github.com/geomesh/boundary-commit/pkg/provenance"
	"github.com/geomesh/boundary-commit/pkg/reference"
	"github.com/geomesh/boundary-commit/pkg/spatialindex"
	"github.com/geomesh/boundary-commit/pkg/taxonomy"
)

func squarePolygon(minLon, minLat, maxLon, maxLat float64) geometry.MultiPolygon {
	ring := geometry.Ring{
		{Lon: minLon, Lat: minLat},
		{Lon: maxLon, Lat: minLat},
		{Lon: maxLon, Lat: maxLat},
		{Lon: minLon, Lat: maxLat},
		{Lon: minLon, Lat: minLat},
	}
	return geometry.MultiPolygon{{Exterior: ring}}
}

func testTables(t *testing.T) *reference.Tables {
	t.Helper()
	yamlData := []byte(`
countries:
  - id: US
    min_lon: -179.0
    min_lat: 18.0
    max_lon: -66.0
    max_lat: 72.0
subdivisions:
  - id: US-HI
    min_lon: -160.5
    min_lat: 18.8
    max_lon: -154.7
    max_lat: 22.3
`)
	tables, err := reference.Load(yamlData)
	if err != nil {
		t.Fatalf("load test tables: %v", err)
	}
	return tables
}

func testTaxonomy(t *testing.T) *taxonomy.Mapping {
	t.Helper()
	m, err := taxonomy.NewMapping([]taxonomy.Rule{
		{CountryCode: "US", LocalType: "council_district", Universal: taxonomy.CityCouncil},
	})
	if err != nil {
		t.Fatalf("build taxonomy: %v", err)
	}
	return m
}

// memStore is a plain in-memory map satisfying the ShardStore contract.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(key []byte) ([]byte, error) { return m.data[string(key)], nil }
func (m *memStore) Set(key, value []byte) error    { m.data[string(key)] = value; return nil }
func (m *memStore) Has(key []byte) (bool, error)    { _, ok := m.data[string(key)]; return ok, nil }
func (m *memStore) Delete(key []byte) error         { delete(m.data, string(key)); return nil }
func (m *memStore) Iterate(start, end []byte, fn func(key, value []byte) bool) error {
	for k, v := range m.data {
		if !fn([]byte(k), v) {
			break
		}
	}
	return nil
}

func testShardStore() ShardStore {
	stores := make(map[string]*memStore)
	return func(cc string) (interface {
		Get(key []byte) ([]byte, error)
		Set(key, value []byte) error
		Has(key []byte) (bool, error)
		Delete(key []byte) error
		Iterate(start, end []byte, fn func(key, value []byte) bool) error
	}, error) {
		s, ok := stores[cc]
		if !ok {
			s = newMemStore()
			stores[cc] = s
		}
		return s, nil
	}
}

func goodFeature(id, name string) RawFeature {
	return RawFeature{
		FeatureID:        id,
		LocalName:        name,
		LocalType:        "council_district",
		JurisdictionID:   "US-HI",
		CountryCode:      "US",
		SubdivisionID:    "US-HI",
		JurisdictionPath: []string{"US", "HI", "Honolulu"},
		Geometry:         squarePolygon(-158.0, 21.0, -157.8, 21.4),
		DeclaredCRS:      "EPSG:4326",
	}
}

func testProvenance() provenance.Record {
	return provenance.Record{
		SourceURL:            "https://example.gov/districts",
		AuthorityTier:        provenance.TierMunicipal,
		JurisdictionID:       "US-HI",
		ObservationTimestamp: time.Now(),
		AcquisitionMethod:    provenance.AcquisitionHTTPDownload,
		ResponseHash:         "deadbeef",
		HTTPStatus:           200,
		DeclaredFeatureCount: 1,
		DeclaredGeometryType: "MultiPolygon",
		DeclaredCRS:          "EPSG:4326",
	}
}

func TestRun_AcceptsValidDatasetAndProducesManifest(t *testing.T) {
	cfg := DefaultConfig(testTables(t), testTaxonomy(t))

	datasets := []RawDataset{
		{
			DatasetID:  "ds1",
			Title:      "Honolulu City Council Districts",
			Features:   []RawFeature{goodFeature("f1", "District 1"), goodFeature("f2", "District 2")},
			Provenance: testProvenance(),
		},
	}

	report, err := Run("2026Q3", datasets, cfg, testShardStore())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.DistrictCount != 2 {
		t.Errorf("expected 2 districts, got %d", report.DistrictCount)
	}
	if report.CountryCount != 1 {
		t.Errorf("expected 1 country, got %d", report.CountryCount)
	}
	if report.ManifestCID == "" {
		t.Error("expected non-empty manifest CID")
	}
	if report.Manifest.GlobalRoot == "" {
		t.Error("expected non-empty global root")
	}
}

func TestRun_RejectsDatasetBelowSemanticThreshold(t *testing.T) {
	cfg := DefaultConfig(testTables(t), testTaxonomy(t))

	datasets := []RawDataset{
		{
			DatasetID:  "ds-bad",
			Title:      "Urban Tree Canopy Zones",
			Features:   []RawFeature{goodFeature("f1", "Zone 1")},
			Provenance: testProvenance(),
		},
	}

	_, err := Run("2026Q3", datasets, cfg, testShardStore())
	if err == nil {
		t.Fatal("expected fatal error when every dataset is rejected")
	}
	var fatalErr *FatalError
	if fe, ok := err.(*FatalError); ok {
		fatalErr = fe
	}
	if fatalErr == nil {
		t.Fatalf("expected *FatalError, got %T", err)
	}
	if fatalErr.Code != ExitValidationFatal {
		t.Errorf("expected ExitValidationFatal, got %d", fatalErr.Code)
	}
}

func TestRun_GeographicallyInvalidFeatureExcludedButDatasetSurvives(t *testing.T) {
	cfg := DefaultConfig(testTables(t), testTaxonomy(t))

	outside := goodFeature("f-outside", "District X")
	outside.Geometry = squarePolygon(10.0, 45.0, 10.5, 45.5) // Europe, far outside US bbox

	datasets := []RawDataset{
		{
			DatasetID:  "ds2",
			Title:      "Honolulu City Council Districts",
			Features:   []RawFeature{goodFeature("f1", "District 1"), outside},
			Provenance: testProvenance(),
		},
	}

	report, err := Run("2026Q3", datasets, cfg, testShardStore())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.DistrictCount != 1 {
		t.Errorf("expected 1 surviving district, got %d", report.DistrictCount)
	}
	if report.Summary.FeaturesRejected != 1 {
		t.Errorf("expected 1 rejected feature recorded, got %d", report.Summary.FeaturesRejected)
	}
}

func TestProcessDataset_UtilityTypeExcludedFromAccepted(t *testing.T) {
	cfg := DefaultConfig(testTables(t), testTaxonomy(t))

	utility := goodFeature("f-utility", "Storm Drain Overlay")
	utility.LocalType = "storm_drain_overlay" // not in testTaxonomy's rules -> resolves to Other

	ds := RawDataset{
		DatasetID:  "ds-utility",
		Title:      "Honolulu City Council Districts",
		Features:   []RawFeature{goodFeature("f1", "District 1"), utility},
		Provenance: testProvenance(),
	}

	outcomes, accepted := processDataset(ds, cfg)
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted district (utility-tier excluded), got %d", len(accepted))
	}
	if accepted[0].entry.DistrictID == "" || accepted[0].entry.QualityTier == "" {
		t.Fatal("expected surviving district to carry a quality tier")
	}

	foundExclusion := false
	for _, o := range outcomes {
		if o.FeatureID == "f-utility" && o.Code == provenance.RejectionUtilityTierExcluded {
			foundExclusion = true
		}
	}
	if !foundExclusion {
		t.Errorf("expected utility_tier_excluded outcome for f-utility, got %+v", outcomes)
	}
}

func TestResolveConflicts_HigherAuthorityTierWins(t *testing.T) {
	path := []string{"US", "HI", "Honolulu"}

	federal := acceptedDistrict{
		entry:         spatialindex.DistrictEntry{DistrictID: "federal-id", CountryCode: "US", JurisdictionPath: path},
		authorityTier: provenance.TierFederal,
	}
	municipal := acceptedDistrict{
		entry:         spatialindex.DistrictEntry{DistrictID: "municipal-id", CountryCode: "US", JurisdictionPath: path},
		authorityTier: provenance.TierMunicipal,
	}

	byCountry := map[string][]acceptedDistrict{"US": {municipal, federal}}
	outcomes := resolveConflicts(byCountry, Config{})

	kept := byCountry["US"]
	if len(kept) != 1 {
		t.Fatalf("expected conflict resolution to keep exactly 1 district, got %d", len(kept))
	}
	if kept[0].entry.DistrictID != "federal-id" {
		t.Errorf("expected federal-tier source to win over municipal, got %q", kept[0].entry.DistrictID)
	}

	foundSuperseded := false
	for _, o := range outcomes {
		if o.FeatureID == "municipal-id" && o.Code == provenance.RejectionLowerAuthoritySuperseded {
			foundSuperseded = true
		}
	}
	if !foundSuperseded {
		t.Errorf("expected lower_authority_superseded outcome for municipal-id, got %+v", outcomes)
	}
}

func TestResolveConflicts_SameTierNewerObservationWins(t *testing.T) {
	path := []string{"US", "HI", "Honolulu"}
	older := acceptedDistrict{
		entry:                spatialindex.DistrictEntry{DistrictID: "older-id", CountryCode: "US", JurisdictionPath: path},
		authorityTier:        provenance.TierState,
		observationTimestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := acceptedDistrict{
		entry:                spatialindex.DistrictEntry{DistrictID: "newer-id", CountryCode: "US", JurisdictionPath: path},
		authorityTier:        provenance.TierState,
		observationTimestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	byCountry := map[string][]acceptedDistrict{"US": {older, newer}}
	resolveConflicts(byCountry, Config{})

	kept := byCountry["US"]
	if len(kept) != 1 || kept[0].entry.DistrictID != "newer-id" {
		t.Errorf("expected newer observation to win, kept %+v", kept)
	}
}

func TestRun_MultipleCountriesProduceIndependentShards(t *testing.T) {
	yamlData := []byte(`
countries:
  - id: US
    min_lon: -179.0
    min_lat: 18.0
    max_lon: -66.0
    max_lat: 72.0
  - id: CA
    min_lon: -141.0
    min_lat: 41.0
    max_lon: -52.0
    max_lat: 83.0
subdivisions:
  - id: US-HI
    min_lon: -160.5
    min_lat: 18.8
    max_lon: -154.7
    max_lat: 22.3
  - id: CA-ON
    min_lon: -95.0
    min_lat: 41.0
    max_lon: -74.0
    max_lat: 57.0
`)
	tables, err := reference.Load(yamlData)
	if err != nil {
		t.Fatalf("load tables: %v", err)
	}
	taxo, err := taxonomy.NewMapping([]taxonomy.Rule{
		{CountryCode: "US", LocalType: "council_district", Universal: taxonomy.CityCouncil},
		{CountryCode: "CA", LocalType: "council_district", Universal: taxonomy.CityCouncil},
	})
	if err != nil {
		t.Fatalf("build taxonomy: %v", err)
	}
	cfg := DefaultConfig(tables, taxo)

	caFeature := RawFeature{
		FeatureID:        "ca1",
		LocalName:        "Ward 1",
		LocalType:        "council_district",
		JurisdictionID:   "CA-ON",
		CountryCode:      "CA",
		SubdivisionID:    "CA-ON",
		JurisdictionPath: []string{"CA", "ON", "Toronto"},
		Geometry:         squarePolygon(-80.0, 43.0, -79.0, 44.0),
		DeclaredCRS:      "EPSG:4326",
	}

	datasets := []RawDataset{
		{DatasetID: "us-ds", Title: "Honolulu City Council Districts", Features: []RawFeature{goodFeature("f1", "District 1")}, Provenance: testProvenance()},
		{DatasetID: "ca-ds", Title: "Toronto City Council Wards", Features: []RawFeature{caFeature}, Provenance: testProvenance()},
	}

	report, err := Run("2026Q3", datasets, cfg, testShardStore())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.CountryCount != 2 {
		t.Errorf("expected 2 country shards, got %d", report.CountryCount)
	}
	if len(report.Manifest.PerCountry) != 2 {
		t.Errorf("expected manifest to list 2 countries, got %d", len(report.Manifest.PerCountry))
	}
}
