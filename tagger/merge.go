package tagger

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/facette/natsort"

	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/sidecar"
	"github.com/ap0ught/familyman/utils"
)

// MetadataWriter writes sidecar metadata into an image file.
type MetadataWriter interface {
	WriteMetadata(path string, md *sidecar.Metadata) (bool, error)
}

// MergeReport sums up one merge pass.
type MergeReport struct {
	Scanned   int
	Written   int
	NoSidecar int
	Errors    []error
}

// MergeSidecars walks root and writes each image's sidecar metadata into the
// image itself. Images without a sidecar are counted and left alone. A
// sidecar that cannot be parsed or written is recorded and the walk goes on.
func MergeSidecars(ctx context.Context, root string, w MetadataWriter, log *logger.Logger) (MergeReport, error) {
	if log == nil {
		log = logger.NewNop()
	}

	var images []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && utils.IsImage(d.Name()) {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return MergeReport{}, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	natsort.Sort(images)

	var report MergeReport
	for _, path := range images {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		sc, ok := sidecar.Locate(path)
		if !ok {
			report.NoSidecar++
			continue
		}
		md, err := sidecar.ParseFile(sc)
		if err != nil {
			log.Warn("tagger: skipping unreadable sidecar", "path", sc, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}
		written, err := w.WriteMetadata(path, md)
		if err != nil {
			log.Error("tagger: failed to write metadata", "path", path, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}
		if written {
			report.Written++
			log.Debug("tagger: merged sidecar", "path", path)
		}
	}
	return report, nil
}
