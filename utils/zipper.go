package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractZip unpacks the image members of a zip archive into destDir and
// returns their extracted paths in archive order. Members that would land
// outside destDir are rejected; directories and non-image members are skipped.
func ExtractZip(archivePath, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip %s: %w", archivePath, err)
	}
	defer reader.Close()

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("invalid extraction directory '%s': %w", destDir, err)
	}
	if err := os.MkdirAll(absDest, 0755); err != nil {
		return nil, fmt.Errorf("failed to create extraction directory %s: %w", absDest, err)
	}

	var extracted []string
	for _, member := range reader.File {
		if member.FileInfo().IsDir() || !IsImage(member.Name) && !isSidecar(member.Name) {
			continue
		}

		target := filepath.Join(absDest, filepath.FromSlash(member.Name))
		if !strings.HasPrefix(filepath.Clean(target), absDest+string(os.PathSeparator)) {
			return nil, fmt.Errorf("zip member '%s' resolves outside %s", member.Name, absDest)
		}

		if err := extractMember(member, target); err != nil {
			return nil, err
		}
		if IsImage(member.Name) {
			extracted = append(extracted, target)
		}
	}
	return extracted, nil
}

func isSidecar(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}

func extractMember(member *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("failed to open zip member %s: %w", member.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", member.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finish writing %s: %w", target, err)
	}
	if member.Modified.IsZero() {
		return nil
	}
	return os.Chtimes(target, member.Modified, member.Modified)
}
