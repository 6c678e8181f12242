package sidecar

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestNormalizeCoordinate(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		expected float64
	}{
		{name: "scaled latitude", in: 377749230, expected: 37.774923},
		{name: "decimal latitude unchanged", in: 37.774923, expected: 37.774923},
		{name: "negative scaled longitude", in: -1224194155, expected: -122.4194155},
		{name: "negative decimal unchanged", in: -122.4194155, expected: -122.4194155},
		{name: "zero", in: 0, expected: 0},
		{name: "threshold is not scaled", in: 1000, expected: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeCoordinate(tt.in)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("NormalizeCoordinate(%v) = %v, want %v", tt.in, got, tt.expected)
			}
		})
	}
}

func TestParse_TakeoutSidecar(t *testing.T) {
	doc := []byte(`{
		"title": "IMG_0001.jpg",
		"description": "Golden Gate",
		"photoTakenTime": {"timestamp": "1431346216", "formatted": "May 11, 2015"},
		"geoData": {"latitude": 0.0, "longitude": 0.0, "latitudeE7": 377749230, "longitudeE7": -1224194155},
		"labels": ["Bridge", "bridge ", {"name": "Fog"}],
		"keywords": ["Vacation"]
	}`)

	meta, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if meta.Title != "IMG_0001.jpg" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Description != "Golden Gate" {
		t.Errorf("Description = %q", meta.Description)
	}
	wantTime := time.Unix(1431346216, 0).UTC()
	if meta.TakenAt == nil || !meta.TakenAt.Equal(wantTime) {
		t.Errorf("TakenAt = %v, want %v", meta.TakenAt, wantTime)
	}
	if meta.TakenAt != nil && meta.TakenAt.Location() != time.UTC {
		t.Errorf("TakenAt location = %v, want UTC", meta.TakenAt.Location())
	}
	if !meta.HasLocation() {
		t.Fatalf("expected location")
	}
	if math.Abs(*meta.Latitude-37.774923) > 1e-9 || math.Abs(*meta.Longitude+122.4194155) > 1e-9 {
		t.Errorf("location = %v,%v", *meta.Latitude, *meta.Longitude)
	}
	wantKeywords := []string{"Bridge", "Fog", "Vacation"}
	if !reflect.DeepEqual(meta.Keywords, wantKeywords) {
		t.Errorf("Keywords = %v, want %v", meta.Keywords, wantKeywords)
	}
}

func TestParse_PartialAndMalformedFields(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		wantTime     bool
		wantLocation bool
		wantDesc     string
	}{
		{
			name: "empty object",
			doc:  `{}`,
		},
		{
			name:     "bad timestamp kept partial",
			doc:      `{"photoTakenTime": {"timestamp": "yesterday"}, "caption": "hi"}`,
			wantDesc: "hi",
		},
		{
			name:     "creation time fallback",
			doc:      `{"creationTime": {"timestamp": 1500000000}}`,
			wantTime: true,
		},
		{
			name: "zero location means unknown",
			doc:  `{"geoData": {"latitude": 0, "longitude": 0}}`,
		},
		{
			name:         "decimal location",
			doc:          `{"location": {"latitude": 48.1, "longitude": 11.5}}`,
			wantLocation: true,
		},
		{
			name: "geo wrong type ignored",
			doc:  `{"geoData": "somewhere", "labels": "not-a-list"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if (meta.TakenAt != nil) != tt.wantTime {
				t.Errorf("TakenAt = %v, wantTime %v", meta.TakenAt, tt.wantTime)
			}
			if meta.HasLocation() != tt.wantLocation {
				t.Errorf("HasLocation = %v, want %v", meta.HasLocation(), tt.wantLocation)
			}
			if meta.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", meta.Description, tt.wantDesc)
			}
		})
	}
}

func TestParse_UnparseableFails(t *testing.T) {
	for _, doc := range []string{``, `not json`, `[1,2,3]`, `null`} {
		_, err := Parse([]byte(doc))
		var pe *MetadataParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q) error = %v, want *MetadataParseError", doc, err)
		}
	}
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "IMG_0002.jpg")
	if err := os.WriteFile(img, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := Locate(img); ok {
		t.Fatalf("Locate found a sidecar that does not exist")
	}

	side := filepath.Join(dir, "IMG_0002.jpg.json")
	if err := os.WriteFile(side, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, ok := Locate(img)
	if !ok || got != side {
		t.Errorf("Locate = %q, %v; want %q", got, ok, side)
	}

	base := filepath.Join(dir, "IMG_0002.json")
	if err := os.WriteFile(base, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, _ = Locate(img)
	if got != base {
		t.Errorf("Locate prefers %q, want base name sidecar %q", got, base)
	}
}

func TestMerge(t *testing.T) {
	lat, lon := 1.5, 2.5
	when := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	primary := &Metadata{Description: "from sidecar"}
	fallback := &Metadata{Description: "from exif", TakenAt: &when, Latitude: &lat, Longitude: &lon}

	got := Merge(primary, fallback)
	if got.Description != "from sidecar" {
		t.Errorf("Description = %q, sidecar must win", got.Description)
	}
	if got.TakenAt == nil || !got.TakenAt.Equal(when) {
		t.Errorf("TakenAt = %v, want %v", got.TakenAt, when)
	}
	if !got.HasLocation() {
		t.Errorf("expected location from fallback")
	}
	if primary.TakenAt != nil {
		t.Errorf("Merge mutated primary")
	}
}

func TestNormalizeKeywords(t *testing.T) {
	got := NormalizeKeywords([]string{" Straße ", "STRASSE", "", "Café", "Café"})
	want := []string{"Café", "Straße"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeKeywords = %q, want %q", got, want)
	}
	if NormalizeKeywords(nil) != nil {
		t.Errorf("expected nil for empty input")
	}
}
