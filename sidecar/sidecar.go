// Package sidecar parses the per-photo JSON metadata records that accompany
// a bulk photo export.
package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ScaledCoordinateThreshold separates plain decimal degrees from degrees
// scaled by 10^7 ("E7" fields). No valid decimal degree exceeds it.
const ScaledCoordinateThreshold = 1000

const e7Scale = 1e7

// Metadata is the normalized content of a sidecar record. Every field is
// optional.
type Metadata struct {
	TakenAt     *time.Time
	Title       string
	Description string
	Keywords    []string
	Latitude    *float64
	Longitude   *float64

	// Raw is the sidecar document as read, for archival in the record store.
	Raw json.RawMessage
}

// HasLocation reports whether both coordinates are known.
func (m *Metadata) HasLocation() bool {
	return m != nil && m.Latitude != nil && m.Longitude != nil
}

// MetadataParseError is returned when a sidecar cannot be interpreted at all.
type MetadataParseError struct {
	Path string
	Err  error
}

func (e *MetadataParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unparseable sidecar: %v", e.Err)
	}
	return fmt.Sprintf("unparseable sidecar %s: %v", e.Path, e.Err)
}

func (e *MetadataParseError) Unwrap() error { return e.Err }

// NormalizeCoordinate converts an E7-scaled value to decimal degrees and
// leaves decimal degrees unchanged, deciding by magnitude.
func NormalizeCoordinate(v float64) float64 {
	if math.Abs(v) > ScaledCoordinateThreshold {
		return v / e7Scale
	}
	return v
}

// Locate returns the sidecar path for an image, trying the naming schemes
// exports use: "IMG.json", "IMG.jpg.json" and "IMG.jpg.supplemental-metadata.json".
func Locate(imagePath string) (string, bool) {
	dir := filepath.Dir(imagePath)
	name := filepath.Base(imagePath)
	base := strings.TrimSuffix(name, filepath.Ext(name))

	candidates := []string{
		filepath.Join(dir, base+".json"),
		filepath.Join(dir, name+".json"),
		filepath.Join(dir, name+".supplemental-metadata.json"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// ParseFile reads and parses the sidecar at path.
func ParseFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MetadataParseError{Path: path, Err: err}
	}
	meta, err := Parse(data)
	if err != nil {
		if pe, ok := err.(*MetadataParseError); ok {
			pe.Path = path
		}
		return nil, err
	}
	return meta, nil
}

// Parse extracts what it can from a sidecar document. Malformed individual
// fields are skipped; only a document that is not a JSON object fails.
func Parse(data []byte) (*Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, &MetadataParseError{Err: err}
	}
	if doc == nil {
		return nil, &MetadataParseError{Err: fmt.Errorf("sidecar is not a JSON object")}
	}

	meta := &Metadata{Raw: json.RawMessage(append([]byte(nil), data...))}

	meta.TakenAt = timestampField(doc, "photoTakenTime")
	if meta.TakenAt == nil {
		meta.TakenAt = timestampField(doc, "creationTime")
	}

	meta.Title = stringField(doc, "title")
	meta.Description = stringField(doc, "description")
	if meta.Description == "" {
		meta.Description = stringField(doc, "caption")
	}

	var keywords []string
	for _, key := range []string{"labels", "keywords", "photoTags"} {
		keywords = append(keywords, stringList(doc[key])...)
	}
	meta.Keywords = NormalizeKeywords(keywords)

	for _, key := range []string{"geoData", "geoDataExif", "location"} {
		geo, ok := doc[key].(map[string]any)
		if !ok {
			continue
		}
		lat, latOK := coordinate(geo, "latitude")
		lon, lonOK := coordinate(geo, "longitude")
		// exports write 0,0 when the location is unknown
		if latOK && lonOK && !(lat == 0 && lon == 0) {
			meta.Latitude = &lat
			meta.Longitude = &lon
			break
		}
	}

	return meta, nil
}

// NormalizeKeywords trims, NFC-normalizes, drops empties and removes
// case-insensitive duplicates (first spelling wins). The result is sorted.
func NormalizeKeywords(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	folder := cases.Fold()
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = norm.NFC.String(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		key := folder.String(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return strings.TrimSpace(s)
}

// stringList accepts ["a", "b"] as well as [{"name": "a"}, {"label": "b"}].
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		switch t := item.(type) {
		case string:
			out = append(out, t)
		case map[string]any:
			for _, k := range []string{"name", "label", "description"} {
				if s, ok := t[k].(string); ok && s != "" {
					out = append(out, s)
					break
				}
			}
		}
	}
	return out
}

func timestampField(doc map[string]any, key string) *time.Time {
	obj, ok := doc[key].(map[string]any)
	if !ok {
		return nil
	}
	secs, ok := toInt64(obj["timestamp"])
	if !ok {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

// coordinate reads "<axis>" and falls back to "<axis>E7" when the plain
// field is missing or zero.
func coordinate(geo map[string]any, axis string) (float64, bool) {
	if v, ok := toFloat64(geo[axis]); ok && v != 0 {
		return NormalizeCoordinate(v), true
	}
	if v, ok := toFloat64(geo[axis+"E7"]); ok {
		return NormalizeCoordinate(v), true
	}
	if v, ok := toFloat64(geo[axis]); ok {
		return v, true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	var f float64
	var err error
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
