package tagger

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/ap0ught/familyman/cluster"
	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/manifest"
	"github.com/ap0ught/familyman/models"
	"github.com/ap0ught/familyman/repository"
)

// KeywordWriter adds keywords to an image file.
type KeywordWriter interface {
	AddKeywords(path string, keywords []string) ([]string, error)
}

// PersonStore resolves a name to a stored person.
type PersonStore interface {
	FindOrCreate(name string) (*models.Person, error)
}

// FaceTagger finds stored faces by photo path and index and assigns them to
// a person.
type FaceTagger interface {
	FindByPhotoPathAndIndex(originalPath string, faceIndex int) (*models.Face, error)
	TagFace(faceID uint, personID uint) error
}

// Namer applies reviewer-chosen names to the faces of a cluster manifest:
// each name becomes a keyword on the image file and, when a store is
// configured, the person assigned to the stored face.
type Namer struct {
	Keywords KeywordWriter
	People   PersonStore
	Faces    FaceTagger
	DryRun   bool
	Logger   *logger.Logger
}

// NameReport sums up one naming pass.
type NameReport struct {
	Named         int // manifest rows whose cluster has a name
	FilesTagged   int
	KeywordsAdded int
	FacesTagged   int
	Missing       []string // files named in the manifest that no longer exist
	Errors        []error
}

// Apply writes names for every manifest row whose cluster appears in mapping.
// Per-file failures are collected in the report; the pass continues.
func (n *Namer) Apply(rows []manifest.Row, mapping map[cluster.Label]string) NameReport {
	log := n.Logger
	if log == nil {
		log = logger.NewNop()
	}

	var report NameReport
	names := make(map[string][]string)
	for _, row := range rows {
		name, ok := mapping[row.ClusterID]
		if !ok {
			continue
		}
		report.Named++
		names[row.Filename] = append(names[row.Filename], name)
		n.tagFace(row, name, &report, log)
	}

	files := make([]string, 0, len(names))
	for f := range names {
		files = append(files, f)
	}
	sort.Strings(files)

	if n.Keywords == nil {
		return report
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			log.Warn("tagger: file not found, skipping keywords", "path", file)
			report.Missing = append(report.Missing, file)
			continue
		}
		added, err := n.Keywords.AddKeywords(file, names[file])
		if err != nil {
			report.Errors = append(report.Errors, err)
			log.Error("tagger: failed to add keywords", "path", file, "error", err)
			continue
		}
		if len(added) > 0 {
			report.FilesTagged++
			report.KeywordsAdded += len(added)
			log.Info("tagger: tagged file", "path", file, "keywords", added)
		}
	}
	return report
}

func (n *Namer) tagFace(row manifest.Row, name string, report *NameReport, log *logger.Logger) {
	if n.People == nil || n.Faces == nil || n.DryRun {
		return
	}
	f, err := n.Faces.FindByPhotoPathAndIndex(row.Filename, row.FaceIndex)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Debug("tagger: face not in store", "path", row.Filename, "face", row.FaceIndex)
			return
		}
		report.Errors = append(report.Errors, err)
		return
	}
	person, err := n.People.FindOrCreate(name)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	if err := n.Faces.TagFace(f.ID, person.ID); err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("failed to tag face %d of %s as %s: %w", row.FaceIndex, row.Filename, name, err))
		return
	}
	report.FacesTagged++
}
