package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Area names one of the review holding directories.
type Area string

const (
	AreaIntake        Area = "intake"
	AreaProcessed     Area = "processed"
	AreaToBeProcessed Area = "to_be_processed"
)

// ReviewStore resolves the review areas to directories and places files in
// them by relative path, refusing paths that escape the area.
type ReviewStore struct {
	areas map[Area]string // maps Area to its absolute directory
}

// NewReviewStore creates a store over the given area directories.
func NewReviewStore(dirs map[Area]string) (*ReviewStore, error) {
	areas := make(map[Area]string, len(dirs))
	for area, dir := range dirs {
		if dir == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid %s directory '%s': %w", area, dir, err)
		}
		areas[area] = abs
	}
	return &ReviewStore{areas: areas}, nil
}

// Dir returns the absolute directory of an area.
func (s *ReviewStore) Dir(area Area) (string, error) {
	dir, ok := s.areas[area]
	if !ok {
		return "", fmt.Errorf("review area '%s' is not configured", area)
	}
	return dir, nil
}

// EnsureDir creates the directory for the area if it doesn't exist
func (s *ReviewStore) EnsureDir(area Area) (string, error) {
	dir, err := s.Dir(area)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dir, err)
	}
	return dir, nil
}

// GetFullPath calculates the absolute path of relativePath inside the area
// and performs the containment check.
func (s *ReviewStore) GetFullPath(area Area, relativePath string) (string, error) {
	dir, err := s.Dir(area)
	if err != nil {
		return "", err
	}
	full := filepath.Join(dir, filepath.Clean(filepath.FromSlash(relativePath)))
	if full != dir && !strings.HasPrefix(full, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid path: '%s' resolves outside %s", relativePath, dir)
	}
	return full, nil
}

// Move moves src to relativePath inside the area.
func (s *ReviewStore) Move(area Area, src, relativePath string) (string, error) {
	dst, err := s.GetFullPath(area, relativePath)
	if err != nil {
		return "", err
	}
	if err := MoveFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// List returns the files directly inside an area, sorted by name.
func (s *ReviewStore) List(area Area) ([]string, error) {
	dir, err := s.Dir(area)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s directory %s: %w", area, dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
