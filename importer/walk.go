package importer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"

	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/utils"
	"github.com/ap0ught/familyman/workers"
)

// archive is a zip found in the source or the intake directory whose members
// were queued as jobs.
type archive struct {
	Path    string
	Rel     string
	Members int
}

// plan is the ordered work of one run.
type plan struct {
	Jobs     []workers.Job
	Archives []*archive
	// Failures are the directories and archives that could not be read.
	// Each one counts as an errored file.
	Failures []FileError
	// jobArchive maps a job's original path to the archive it came from.
	jobArchive map[string]*archive
}

// enumerator builds a plan. Archive members are unpacked for keeps under the
// processed area so the recorded path stays readable after the run. Dry runs
// unpack into staging instead and record the same paths.
type enumerator struct {
	review  *utils.ReviewStore
	staging string
	dryRun  bool
	skip    map[string]bool
	log     *logger.Logger
	plan    *plan
	unpacks int
}

func newEnumerator(review *utils.ReviewStore, staging string, dryRun bool, skipDirs []string, log *logger.Logger) *enumerator {
	skip := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		if d == "" {
			continue
		}
		if abs, err := filepath.Abs(d); err == nil {
			skip[abs] = true
		}
	}
	return &enumerator{
		review:  review,
		staging: staging,
		dryRun:  dryRun,
		skip:    skip,
		log:     log,
		plan:    &plan{jobArchive: make(map[string]*archive)},
	}
}

func (e *enumerator) fail(path string, stage Stage, err error) {
	e.log.Warn("Skipping unreadable source entry", "path", path, "stage", stage, "error", err)
	e.plan.Failures = append(e.plan.Failures, FileError{Path: path, Stage: stage, Err: err})
}

// walk lists the images under source in natural order and unpacks any zip
// archive found. source may itself be an image or an archive. The review
// directories are skipped when they live inside source. Only an unreadable
// source is fatal; a subdirectory or archive that cannot be read is recorded
// as a failure and the walk goes on.
func (e *enumerator) walk(source string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("cannot read source %s: %w", source, err)
	}

	if !info.IsDir() {
		switch {
		case utils.IsZip(source):
			e.addArchive(source, filepath.Base(source))
		case utils.IsImage(source):
			e.plan.Jobs = append(e.plan.Jobs, workers.Job{
				ReadPath:     source,
				OriginalPath: source,
				RelPath:      filepath.Base(source),
			})
		default:
			return fmt.Errorf("source %s is neither a directory, an image nor a zip archive", source)
		}
		return nil
	}

	var images, zips []string
	err = filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == source {
				return err
			}
			e.fail(path, StageWalk, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == source {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil && e.skip[abs] {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case utils.IsImage(d.Name()):
			images = append(images, path)
		case utils.IsZip(d.Name()):
			zips = append(zips, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk source %s: %w", source, err)
	}

	natsort.Sort(images)
	natsort.Sort(zips)

	for _, path := range images {
		rel, err := filepath.Rel(source, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		e.plan.Jobs = append(e.plan.Jobs, workers.Job{ReadPath: path, OriginalPath: path, RelPath: rel})
	}
	for _, path := range zips {
		rel, err := filepath.Rel(source, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		e.addArchive(path, rel)
	}
	return nil
}

// addArchive unpacks archivePath and queues its images. Members are kept at
// "<processed>/<archive without extension>/<member>", which is also the path
// they are recorded and routed under. An archive that cannot be unpacked is
// recorded as a failure.
func (e *enumerator) addArchive(archivePath, rel string) {
	prefix := strings.TrimSuffix(rel, filepath.Ext(rel))
	keep, err := e.review.GetFullPath(utils.AreaProcessed, prefix)
	if err != nil {
		e.fail(archivePath, StageArchive, fmt.Errorf("no place to unpack archive: %w", err))
		return
	}
	dest := keep
	if e.dryRun {
		dest = filepath.Join(e.staging, fmt.Sprintf("%03d", e.unpacks))
	}
	e.unpacks++

	members, err := utils.ExtractZip(archivePath, dest)
	if err != nil {
		e.fail(archivePath, StageArchive, err)
		return
	}
	natsort.Sort(members)

	a := &archive{Path: archivePath, Rel: rel}
	for _, m := range members {
		memberRel, err := filepath.Rel(dest, m)
		if err != nil {
			e.fail(m, StageArchive, err)
			continue
		}
		original := filepath.Join(keep, memberRel)
		e.plan.Jobs = append(e.plan.Jobs, workers.Job{
			ReadPath:     m,
			OriginalPath: original,
			RelPath:      filepath.Join(prefix, memberRel),
		})
		e.plan.jobArchive[original] = a
		a.Members++
	}
	e.plan.Archives = append(e.plan.Archives, a)
}

// addIntake queues the zip archives sitting directly in the intake directory
// that were not already found in the source. An unreadable intake directory is
// recorded as a failure.
func (e *enumerator) addIntake(intakeDir string) {
	if intakeDir == "" {
		return
	}
	entries, err := os.ReadDir(intakeDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.fail(intakeDir, StageWalk, err)
		}
		return
	}

	seen := make(map[string]bool, len(e.plan.Archives)+len(e.plan.Failures))
	for _, a := range e.plan.Archives {
		if abs, err := filepath.Abs(a.Path); err == nil {
			seen[abs] = true
		}
	}
	for _, f := range e.plan.Failures {
		if abs, err := filepath.Abs(f.Path); err == nil {
			seen[abs] = true
		}
	}

	var zips []string
	for _, entry := range entries {
		if entry.IsDir() || !utils.IsZip(entry.Name()) {
			continue
		}
		path := filepath.Join(intakeDir, entry.Name())
		if abs, err := filepath.Abs(path); err == nil && seen[abs] {
			continue
		}
		zips = append(zips, path)
	}
	natsort.Sort(zips)

	for _, path := range zips {
		e.addArchive(path, filepath.Base(path))
	}
}
