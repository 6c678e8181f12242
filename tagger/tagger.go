// Package tagger writes names and sidecar metadata into image files through
// exiftool.
package tagger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/barasher/go-exiftool"

	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/sidecar"
)

const exifDateLayout = "2006:01:02 15:04:05"

// Writer wraps one long-running exiftool process. Not safe for concurrent use.
type Writer struct {
	et     *exiftool.Exiftool
	dryRun bool
	log    *logger.Logger
}

// New starts exiftool. In dry run files are read but never written.
func New(dryRun bool, log *logger.Logger) (*Writer, error) {
	et, err := exiftool.NewExiftool(exiftool.Charset("filename=utf8"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ExifTool: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Writer{et: et, dryRun: dryRun, log: log}, nil
}

func (w *Writer) Close() error {
	return w.et.Close()
}

// AddKeywords adds keywords to the file's Keywords tag, keeping the ones it
// already has. It returns the keywords that were not present before.
func (w *Writer) AddKeywords(path string, keywords []string) ([]string, error) {
	existing, err := w.read(path)
	if err != nil {
		return nil, err
	}

	current, err := existing.GetStrings("Keywords")
	if err != nil && !errors.Is(err, exiftool.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to read keywords of %s: %w", path, err)
	}
	merged, added := MergeKeywords(current, keywords)
	if len(added) == 0 {
		return nil, nil
	}

	if w.dryRun {
		w.log.Info("tagger: would add keywords", "path", path, "keywords", added)
		return added, nil
	}

	fm := exiftool.EmptyFileMetadata()
	fm.File = path
	fm.SetStrings("Keywords", merged)
	if err := w.write(fm); err != nil {
		return nil, err
	}
	w.log.Debug("tagger: added keywords", "path", path, "keywords", added)
	return added, nil
}

// WriteMetadata writes capture time, description, keywords and GPS position
// from a sidecar into the file. It reports false when the sidecar carried
// nothing to write.
func (w *Writer) WriteMetadata(path string, md *sidecar.Metadata) (bool, error) {
	fm := MetadataFields(path, md)
	if len(fm.Fields) == 0 {
		return false, nil
	}
	if w.dryRun {
		w.log.Info("tagger: would write metadata", "path", path, "tags", len(fm.Fields))
		return true, nil
	}
	if err := w.write(fm); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Writer) read(path string) (exiftool.FileMetadata, error) {
	results := w.et.ExtractMetadata(path)
	if len(results) != 1 {
		return exiftool.FileMetadata{}, fmt.Errorf("exiftool returned %d results for %s", len(results), path)
	}
	if results[0].Err != nil {
		return exiftool.FileMetadata{}, fmt.Errorf("failed to read metadata of %s: %w", path, results[0].Err)
	}
	return results[0], nil
}

func (w *Writer) write(fm exiftool.FileMetadata) error {
	batch := []exiftool.FileMetadata{fm}
	w.et.WriteMetadata(batch)
	if batch[0].Err != nil {
		return fmt.Errorf("failed to write metadata to %s: %w", fm.File, batch[0].Err)
	}
	return nil
}

// MergeKeywords returns the union of current and extra, keeping the order of
// current and appending new keywords sorted. Comparison ignores case. added
// lists the keywords that were not already present.
func MergeKeywords(current, extra []string) (merged, added []string) {
	seen := make(map[string]bool, len(current)+len(extra))
	for _, k := range current {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		merged = append(merged, k)
	}
	for _, k := range extra {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		added = append(added, k)
	}
	sort.Strings(added)
	return append(merged, added...), added
}

// MetadataFields maps a sidecar onto exiftool tags for path. The result has
// no fields when the sidecar carries nothing worth writing.
func MetadataFields(path string, md *sidecar.Metadata) exiftool.FileMetadata {
	fm := exiftool.EmptyFileMetadata()
	fm.File = path
	if md == nil {
		return fm
	}

	if md.TakenAt != nil {
		ts := md.TakenAt.UTC().Format(exifDateLayout)
		fm.SetString("DateTimeOriginal", ts)
		fm.SetString("CreateDate", ts)
		fm.SetString("ModifyDate", ts)
	}

	desc := md.Description
	if desc == "" {
		desc = md.Title
	}
	if desc != "" {
		fm.SetString("Caption-Abstract", desc)
		fm.SetString("ImageDescription", desc)
		fm.SetString("Description", desc)
	}

	if len(md.Keywords) > 0 {
		fm.SetStrings("Keywords", md.Keywords)
	}

	if md.HasLocation() {
		lat, lon := *md.Latitude, *md.Longitude
		latRef, lonRef := "N", "E"
		if lat < 0 {
			latRef = "S"
		}
		if lon < 0 {
			lonRef = "W"
		}
		fm.SetFloat("GPSLatitude", math.Abs(lat))
		fm.SetFloat("GPSLongitude", math.Abs(lon))
		fm.SetString("GPSLatitudeRef", latRef)
		fm.SetString("GPSLongitudeRef", lonRef)
	}
	return fm
}
