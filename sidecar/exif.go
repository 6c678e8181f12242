package sidecar

import (
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return ""
	}
	val, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(val, "\x00"))
}

// EmbeddedMetadata reads capture time, GPS position and the image
// description from the file's own EXIF block. A file without EXIF yields an
// error; callers treat that as "nothing to add".
func EmbeddedMetadata(path string) (*Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exif: failed to open file %s: %w", path, err)
	}
	defer file.Close()

	exifData, err := exif.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("exif: no EXIF data in %s: %w", path, err)
	}

	meta := &Metadata{
		Description: getString(exifData, exif.ImageDescription),
	}
	if dt, err := exifData.DateTime(); err == nil {
		t := dt.UTC()
		meta.TakenAt = &t
	}
	if lat, lon, err := exifData.LatLong(); err == nil && !(lat == 0 && lon == 0) {
		meta.Latitude = &lat
		meta.Longitude = &lon
	}
	return meta, nil
}

// Merge fills fields missing from primary with values from fallback. The
// sidecar is authoritative; embedded EXIF only completes it.
func Merge(primary, fallback *Metadata) *Metadata {
	if primary == nil {
		if fallback == nil {
			return &Metadata{}
		}
		cp := *fallback
		return &cp
	}
	if fallback == nil {
		return primary
	}
	out := *primary
	if out.TakenAt == nil {
		out.TakenAt = fallback.TakenAt
	}
	if out.Description == "" {
		out.Description = fallback.Description
	}
	if !out.HasLocation() && fallback.HasLocation() {
		out.Latitude = fallback.Latitude
		out.Longitude = fallback.Longitude
	}
	if len(out.Keywords) == 0 {
		out.Keywords = fallback.Keywords
	}
	return &out
}
