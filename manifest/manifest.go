// Package manifest reads and writes the cluster manifest handed to human
// reviewers and the cluster -> person naming mapping they hand back.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ap0ught/familyman/cluster"
	"github.com/ap0ught/familyman/face"
)

// Header is the manifest's column row.
var Header = []string{"cluster_id", "filename", "face_index", "top", "right", "bottom", "left"}

// Row is one face of the manifest. FaceIndex is the face's index within its
// photo.
type Row struct {
	ClusterID cluster.Label
	Filename  string
	FaceIndex int
	Box       face.Box
}

// SortRows orders rows by cluster label with noise last, then filename and
// face index.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ClusterID != b.ClusterID {
			if a.ClusterID == cluster.Noise {
				return false
			}
			if b.ClusterID == cluster.Noise {
				return true
			}
			return a.ClusterID < b.ClusterID
		}
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.FaceIndex < b.FaceIndex
	})
}

// Write writes the header and rows as CSV.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write manifest header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			strconv.Itoa(int(r.ClusterID)),
			r.Filename,
			strconv.Itoa(r.FaceIndex),
			strconv.Itoa(r.Box.Top),
			strconv.Itoa(r.Box.Right),
			strconv.Itoa(r.Box.Bottom),
			strconv.Itoa(r.Box.Left),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write manifest row for %s: %w", r.Filename, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the manifest to path, replacing any existing file.
func WriteFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest %s: %w", path, err)
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read parses a manifest. Columns are located by header name; rows whose
// cluster_id or filename cannot be read are skipped, and missing box or
// index columns read as zero.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := cols["cluster_id"]; !ok {
		return nil, fmt.Errorf("manifest has no cluster_id column")
	}
	if _, ok := cols["filename"]; !ok {
		return nil, fmt.Errorf("manifest has no filename column")
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	intField := func(record []string, name string) int {
		n, _ := strconv.Atoi(field(record, name))
		return n
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		id, err := strconv.Atoi(field(record, "cluster_id"))
		filename := field(record, "filename")
		if err != nil || filename == "" {
			continue
		}
		rows = append(rows, Row{
			ClusterID: cluster.Label(id),
			Filename:  filename,
			FaceIndex: intField(record, "face_index"),
			Box: face.Box{
				Top:    intField(record, "top"),
				Right:  intField(record, "right"),
				Bottom: intField(record, "bottom"),
				Left:   intField(record, "left"),
			},
		})
	}
	return rows, nil
}

// ReadFile reads the manifest at path.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// ReadMapping parses "cluster_id,person_name" lines. A header line, blank
// lines, rows with a non-numeric id and rows with an empty name are skipped.
// A later row for the same cluster wins.
func ReadMapping(r io.Reader) (map[cluster.Label]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	mapping := make(map[cluster.Label]string)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mapping: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(record[0], "\ufeff")))
		name := strings.TrimSpace(record[1])
		if err != nil || name == "" {
			continue
		}
		mapping[cluster.Label(id)] = name
	}
	return mapping, nil
}

// ReadMappingFile reads the naming mapping at path.
func ReadMappingFile(path string) (map[cluster.Label]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping %s: %w", path, err)
	}
	defer f.Close()
	return ReadMapping(f)
}
