// Package importer runs the photo import pipeline: enumerate a source, hash
// every image, resolve duplicates, detect faces, route face-less photos to
// review, persist the rest and cluster the faces found in the run.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ap0ught/familyman/cluster"
	"github.com/ap0ught/familyman/dedup"
	"github.com/ap0ught/familyman/face"
	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/models"
	"github.com/ap0ught/familyman/sidecar"
	"github.com/ap0ught/familyman/utils"
	"github.com/ap0ught/familyman/workers"
)

// PhotoStore is the part of the record store the importer writes to.
type PhotoStore interface {
	dedup.PhotoStore
	CreateWithFaces(photo *models.Photo, faces []models.Face) error
	ReplaceImport(photo *models.Photo, faces []models.Face) error
}

// FaceStore lists stored faces for offline clustering.
type FaceStore interface {
	ListWithEmbeddings() ([]models.Face, error)
}

// Hasher fingerprints file content.
type Hasher interface {
	HashFile(path string) (string, error)
}

// Deps are the collaborators of an Importer.
type Deps struct {
	Photos       PhotoStore
	Hasher       Hasher
	NewExtractor func() (face.Extractor, error)
	Logger       *logger.Logger
	// Planned, when set, is called once with the number of files enumerated.
	Planned func(files int)
	// Progress, when set, is called once per file as it reaches its outcome.
	// It may be called from several goroutines.
	Progress func(path string, outcome Outcome)
}

// Options configure one run.
type Options struct {
	Source          string
	DryRun          bool
	PeopleOnly      bool
	DuplicatePolicy dedup.Policy
	HaltOnError     bool

	Workers     int
	QueueSize   int
	FileTimeout time.Duration

	// IntakeDir holds archives waiting to be imported. Zip files directly
	// inside it are imported along with the source.
	IntakeDir        string
	ProcessedDir     string
	ToBeProcessedDir string
	// StagingDir holds unpacked archive members during a dry run. Empty
	// means the system temporary directory. Real runs unpack archives under
	// ProcessedDir.
	StagingDir string

	ManifestPath string
	MontageDir   string

	Cluster        cluster.Params
	EmbeddingModel string
}

// Importer runs imports. One Importer may run several times, one at a time.
type Importer struct {
	deps   Deps
	opts   Options
	engine *cluster.Engine
	review *utils.ReviewStore
	log    *logger.Logger
}

// New validates the options and builds an Importer. Invalid clustering
// parameters are reported here, before any file is read.
func New(deps Deps, opts Options) (*Importer, error) {
	engine, err := cluster.NewEngine(opts.Cluster)
	if err != nil {
		return nil, err
	}
	if deps.Photos == nil {
		return nil, errors.New("importer needs a photo store")
	}
	if deps.Hasher == nil {
		return nil, errors.New("importer needs a hasher")
	}
	if deps.NewExtractor == nil {
		return nil, errors.New("importer needs a face extractor factory")
	}
	if opts.Source == "" {
		return nil, errors.New("importer needs a source path")
	}
	if opts.PeopleOnly && opts.ToBeProcessedDir == "" {
		return nil, errors.New("people-only imports need a to-be-processed directory")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	review, err := utils.NewReviewStore(map[utils.Area]string{
		utils.AreaProcessed:     opts.ProcessedDir,
		utils.AreaToBeProcessed: opts.ToBeProcessedDir,
	})
	if err != nil {
		return nil, err
	}

	return &Importer{
		deps:   deps,
		opts:   opts,
		engine: engine,
		review: review,
		log:    deps.Logger,
	}, nil
}

// run is the state of one Run call.
type run struct {
	*Importer
	id      string
	ctx     context.Context
	index   *dedup.Index
	halted  atomic.Bool
	mu      sync.Mutex
	summary Summary
	// faces holds the faces of each fingerprint's current copy.
	faces map[string][]runFace
	done  map[*archive]int
	plan    *plan
}

// runFace is a face found during the run, kept for clustering and montages.
type runFace struct {
	OriginalPath string
	ReadPath     string
	FaceIndex    int
	Box          face.Box
	Embedding    []float32
}

// Run imports the source. Every enumerated file reaches exactly one outcome
// unless the run is halted or cancelled, in which case files not yet started
// are left alone. Clustering runs once all workers have finished.
//
// The returned error is ErrHalted when halt-on-error stopped the run, the
// context's error when it was cancelled, and a setup or export error
// otherwise. The summary is valid in every case.
func (im *Importer) Run(ctx context.Context) (Summary, error) {
	r := &run{
		Importer: im,
		id:       uuid.NewString(),
		ctx:      ctx,
		index:    dedup.NewIndex(im.deps.Photos),
		faces:    make(map[string][]runFace),
		done:     make(map[*archive]int),
	}
	r.summary = newSummary(r.id, im.opts.DryRun)
	log := im.log.With("run", r.id, "source", im.opts.Source, "dryRun", im.opts.DryRun)

	staging, err := os.MkdirTemp(im.opts.StagingDir, "familyman-staging-")
	if err != nil {
		return r.summary, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	e := newEnumerator(im.review, staging, im.opts.DryRun, []string{im.opts.ProcessedDir, im.opts.ToBeProcessedDir}, log)
	if err := e.walk(im.opts.Source); err != nil {
		return r.summary, err
	}
	e.addIntake(im.opts.IntakeDir)
	r.plan = e.plan

	log.Info("Import started", "files", len(r.plan.Jobs), "archives", len(r.plan.Archives), "unreadable", len(r.plan.Failures))
	if im.deps.Planned != nil {
		im.deps.Planned(len(r.plan.Jobs) + len(r.plan.Failures))
	}
	for _, f := range r.plan.Failures {
		ferr := f
		r.record(workers.Job{OriginalPath: f.Path}, OutcomeErrored, &ferr)
	}

	if len(r.plan.Jobs) > 0 && !r.halted.Load() {
		if err := r.process(ctx); err != nil {
			return r.summary, err
		}
	}

	r.summary.Halted = r.halted.Load()
	r.summary.sortErrors()

	if err := r.clusterRun(log); err != nil {
		return r.summary, err
	}
	r.archiveSources(log)

	log.Info("Import finished",
		"imported", r.summary.Counts[OutcomeImported],
		"skipped", r.summary.Counts[OutcomeDuplicateSkipped],
		"replaced", r.summary.Counts[OutcomeDuplicateReplaced],
		"routed", r.summary.Counts[OutcomeRoutedToReview],
		"errored", r.summary.Counts[OutcomeErrored],
		"faces", r.summary.Faces,
		"clusters", r.summary.Clusters,
	)

	if r.summary.Halted {
		return r.summary, ErrHalted
	}
	if err := ctx.Err(); err != nil {
		return r.summary, err
	}
	return r.summary, nil
}

// process feeds every job to the worker pool and waits for the pool to drain.
func (r *run) process(ctx context.Context) error {
	pool, err := workers.NewPool(ctx, workers.PoolConfig{
		Workers:      r.opts.Workers,
		QueueSize:    r.opts.QueueSize,
		FileTimeout:  r.opts.FileTimeout,
		NewExtractor: r.deps.NewExtractor,
		Logger:       r.log,
	}, r.handle)
	if err != nil {
		return err
	}

	for _, job := range r.plan.Jobs {
		if r.halted.Load() {
			break
		}
		if err := pool.Submit(ctx, job); err != nil {
			r.log.Warn("Stopped enqueuing files", "error", err)
			break
		}
	}
	pool.Wait()
	return nil
}

// handle runs one file through the pipeline. Files still queued when the run
// halts or is cancelled are not started.
func (r *run) handle(ctx context.Context, w *workers.Worker, job workers.Job) {
	if r.halted.Load() || r.ctx.Err() != nil {
		return
	}
	outcome, ferr := r.importFile(ctx, w, job)
	r.record(job, outcome, ferr)
}

func (r *run) record(job workers.Job, outcome Outcome, ferr *FileError) {
	r.mu.Lock()
	r.summary.Counts[outcome]++
	if ferr != nil {
		r.summary.Errors = append(r.summary.Errors, *ferr)
	}
	if a, ok := r.plan.jobArchive[job.OriginalPath]; ok {
		r.done[a]++
	}
	r.mu.Unlock()

	if ferr != nil {
		r.log.Error("File errored", "path", job.OriginalPath, "stage", ferr.Stage, "error", ferr.Err)
		if r.opts.HaltOnError {
			r.halted.Store(true)
		}
	} else {
		r.log.Debug("File done", "path", job.OriginalPath, "outcome", outcome)
	}
	if r.deps.Progress != nil {
		r.deps.Progress(job.OriginalPath, outcome)
	}
}

func fileError(job workers.Job, stage Stage, err error) (Outcome, *FileError) {
	return OutcomeErrored, &FileError{Path: job.OriginalPath, Stage: stage, Err: err}
}

// importFile decides the outcome of one file. All store writes happen inside
// the duplicate index's lock for the file's fingerprint.
func (r *run) importFile(ctx context.Context, w *workers.Worker, job workers.Job) (Outcome, *FileError) {
	digest, err := r.deps.Hasher.HashFile(job.ReadPath)
	if err != nil {
		return fileError(job, StageHash, err)
	}
	if err := ctx.Err(); err != nil {
		return fileError(job, StageHash, err)
	}

	meta := r.readMetadata(job)

	var (
		outcome Outcome
		ferr    *FileError
	)
	decision, err := r.index.Resolve(ctx, digest, job.OriginalPath, r.opts.DuplicatePolicy,
		func(decision dedup.Decision, existing *models.Photo) error {
			outcome, ferr = r.apply(ctx, w, job, digest, meta, decision, existing)
			if ferr != nil {
				return ferr
			}
			return nil
		})

	switch {
	case ferr != nil:
		return OutcomeErrored, ferr
	case err != nil:
		return fileError(job, StageDedup, err)
	case decision == dedup.DecisionSkip:
		return OutcomeDuplicateSkipped, nil
	default:
		return outcome, nil
	}
}

// readMetadata combines the sidecar with the file's embedded EXIF. A missing
// or unreadable sidecar leaves the photo with whatever EXIF provides.
func (r *run) readMetadata(job workers.Job) *sidecar.Metadata {
	var meta *sidecar.Metadata
	if path, ok := sidecar.Locate(job.ReadPath); ok {
		m, err := sidecar.ParseFile(path)
		if err != nil {
			r.log.Warn("Ignoring unreadable sidecar", "path", job.OriginalPath, "error", err)
		} else {
			meta = m
		}
	}
	embedded, err := sidecar.EmbeddedMetadata(job.ReadPath)
	if err != nil {
		r.log.Debug("No embedded metadata", "path", job.OriginalPath, "error", err)
	}
	return sidecar.Merge(meta, embedded)
}

// apply carries out a New or Replace decision: extract faces, route a
// face-less photo in people-only mode, otherwise persist the photo and its
// faces. A returned FileError releases the fingerprint for later copies.
func (r *run) apply(ctx context.Context, w *workers.Worker, job workers.Job, digest string, meta *sidecar.Metadata, decision dedup.Decision, existing *models.Photo) (Outcome, *FileError) {
	data, err := os.ReadFile(job.ReadPath)
	if err != nil {
		o, fe := fileError(job, StageRead, err)
		return o, fe
	}

	results, err := w.Extract(ctx, data)
	if err != nil {
		return fileError(job, StageExtract, err)
	}

	if r.opts.PeopleOnly && len(results) == 0 {
		if err := r.route(job); err != nil {
			return fileError(job, StageRoute, err)
		}
		return OutcomeRoutedToReview, nil
	}

	if err := ctx.Err(); err != nil {
		return fileError(job, StageStore, err)
	}

	outcome := OutcomeImported
	if decision == dedup.DecisionReplace {
		outcome = OutcomeDuplicateReplaced
	}

	photo := r.buildPhoto(job, digest, meta, len(results) > 0, outcome)
	faces := r.buildFaces(results)

	if !r.opts.DryRun {
		if decision == dedup.DecisionReplace && existing != nil {
			photo.ID = existing.ID
			err = r.deps.Photos.ReplaceImport(photo, faces)
		} else {
			err = r.deps.Photos.CreateWithFaces(photo, faces)
		}
		if err != nil {
			return fileError(job, StageStore, err)
		}
	}

	r.collectFaces(digest, job, results)
	return outcome, nil
}

// route moves a face-less photo, and its sidecar, out of the source into the
// to-be-processed area under its source-relative path.
func (r *run) route(job workers.Job) error {
	if r.opts.DryRun {
		return nil
	}
	sc, hasSidecar := sidecar.Locate(job.ReadPath)
	if _, err := r.review.Move(utils.AreaToBeProcessed, job.ReadPath, job.RelPath); err != nil {
		return err
	}
	if hasSidecar {
		rel := filepath.Join(filepath.Dir(job.RelPath), filepath.Base(sc))
		if _, err := r.review.Move(utils.AreaToBeProcessed, sc, rel); err != nil {
			r.log.Warn("Failed to move sidecar for review", "path", sc, "error", err)
		}
	}
	return nil
}

func (r *run) buildPhoto(job workers.Job, digest string, meta *sidecar.Metadata, hasFaces bool, outcome Outcome) *models.Photo {
	photo := &models.Photo{
		FileHash:     digest,
		OriginalPath: job.OriginalPath,
		HasFaces:     hasFaces,
		ImportStatus: string(outcome),
		ImportRunID:  r.id,
	}
	if meta == nil {
		return photo
	}
	photo.Title = meta.Title
	if photo.Title == "" {
		photo.Title = meta.Description
	}
	photo.Description = meta.Description
	if meta.TakenAt != nil {
		ts := meta.TakenAt.Unix()
		photo.TakenAt = &ts
	}
	if meta.HasLocation() {
		photo.Latitude = meta.Latitude
		photo.Longitude = meta.Longitude
	}
	photo.SetKeywords(meta.Keywords)
	if len(meta.Raw) > 0 {
		photo.JSONMetadata = string(meta.Raw)
	}
	return photo
}

func (r *run) buildFaces(results []face.Result) []models.Face {
	faces := make([]models.Face, 0, len(results))
	for i, res := range results {
		f := models.Face{
			FaceIndex:      i,
			Top:            res.Box.Top,
			Right:          res.Box.Right,
			Bottom:         res.Box.Bottom,
			Left:           res.Box.Left,
			Confidence:     res.Confidence,
			EmbeddingModel: r.opts.EmbeddingModel,
		}
		f.SetEmbedding(res.Embedding)
		faces = append(faces, f)
	}
	return faces
}

// collectFaces keeps the faces of the copy just stored for digest. A
// replacing copy overwrites the faces of the copy it replaced.
func (r *run) collectFaces(digest string, job workers.Job, results []face.Result) {
	var faces []runFace
	for i, res := range results {
		if len(res.Embedding) == 0 {
			continue
		}
		faces = append(faces, runFace{
			OriginalPath: job.OriginalPath,
			ReadPath:     job.ReadPath,
			FaceIndex:    i,
			Box:          res.Box,
			Embedding:    res.Embedding,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(faces) == 0 {
		delete(r.faces, digest)
		return
	}
	r.faces[digest] = faces
}

// runFaces returns the collected faces ordered by fingerprint.
func (r *run) runFaces() []runFace {
	r.mu.Lock()
	defer r.mu.Unlock()
	digests := make([]string, 0, len(r.faces))
	for d := range r.faces {
		digests = append(digests, d)
	}
	sort.Strings(digests)
	var faces []runFace
	for _, d := range digests {
		faces = append(faces, r.faces[d]...)
	}
	return faces
}

// archiveSources moves every archive whose members all reached an outcome
// into the processed area.
func (r *run) archiveSources(log *logger.Logger) {
	if r.opts.DryRun || r.opts.ProcessedDir == "" {
		return
	}
	for _, a := range r.plan.Archives {
		if r.done[a] < a.Members {
			log.Info("Leaving partially imported archive in place", "archive", a.Path, "done", r.done[a], "members", a.Members)
			continue
		}
		dst, err := r.review.Move(utils.AreaProcessed, a.Path, a.Rel)
		if err != nil {
			log.Warn("Failed to move archive to processed", "archive", a.Path, "error", err)
			continue
		}
		log.Info("Archive processed", "archive", a.Path, "movedTo", dst)
	}
}
