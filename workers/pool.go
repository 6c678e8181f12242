package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ap0ught/familyman/face"
	"github.com/ap0ught/familyman/logger"
)

// ErrExtractionTimeout is returned by Worker.Extract when the job's budget
// ran out while the extractor was still busy.
var ErrExtractionTimeout = errors.New("face extraction exceeded the file time budget")

// Job is one source file handed to a worker.
type Job struct {
	// ReadPath is where the bytes are read from. It differs from
	// OriginalPath only for zip members unpacked by a dry run.
	ReadPath string
	// OriginalPath is the path recorded for the photo.
	OriginalPath string
	// RelPath is the path relative to the source root, used for review routing.
	RelPath string
}

// Handler processes one job. ctx carries the per-file deadline.
type Handler func(ctx context.Context, w *Worker, job Job)

type PoolConfig struct {
	Workers      int
	QueueSize    int
	FileTimeout  time.Duration
	NewExtractor func() (face.Extractor, error)
	Logger       *logger.Logger
}

// Worker owns one extractor for its whole life. When an extraction times out
// the extractor is abandoned and a fresh one is built for the next job.
type Worker struct {
	ID int

	newExtractor func() (face.Extractor, error)
	extractor    face.Extractor
	log          *logger.Logger
}

// Pool runs jobs on a fixed number of workers fed from a bounded queue.
type Pool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	workers []*Worker
	cfg     PoolConfig
	handler Handler
	baseCtx context.Context
	closed  bool
	mu      sync.Mutex
}

// NewPool builds every worker's extractor up front, so a model that fails to
// load stops the run before any file is touched, then starts the workers.
func NewPool(ctx context.Context, cfg PoolConfig, handler Handler) (*Pool, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.NewExtractor == nil {
		return nil, fmt.Errorf("worker pool needs an extractor factory")
	}

	p := &Pool{
		jobs:    make(chan Job, cfg.QueueSize),
		cfg:     cfg,
		handler: handler,
		baseCtx: context.WithoutCancel(ctx),
	}

	for i := 0; i < cfg.Workers; i++ {
		ext, err := cfg.NewExtractor()
		if err != nil {
			for _, w := range p.workers {
				w.closeExtractor()
			}
			return nil, fmt.Errorf("failed to create extractor for worker %d: %w", i, err)
		}
		p.workers = append(p.workers, &Worker{
			ID:           i,
			newExtractor: cfg.NewExtractor,
			extractor:    ext,
			log:          cfg.Logger.With("worker", i),
		})
	}

	p.wg.Add(len(p.workers))
	for _, w := range p.workers {
		go p.run(w)
	}
	cfg.Logger.Debug("workers: started pool", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return p, nil
}

func (p *Pool) run(w *Worker) {
	defer p.wg.Done()
	defer w.closeExtractor()

	for job := range p.jobs {
		ctx, cancel := p.jobContext()
		p.handler(ctx, w, job)
		cancel()
	}
}

func (p *Pool) jobContext() (context.Context, context.CancelFunc) {
	if p.cfg.FileTimeout <= 0 {
		return context.WithCancel(p.baseCtx)
	}
	return context.WithTimeout(p.baseCtx, p.cfg.FileTimeout)
}

// Submit queues a job, blocking while the queue is full. It returns ctx's
// error if ctx is cancelled first.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait stops accepting jobs and blocks until every queued and in-flight job
// has finished.
func (p *Pool) Wait() {
	p.mu.Lock()
	if !p.closed {
		close(p.jobs)
		p.closed = true
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Extract runs the worker's extractor on data within ctx's deadline. On
// timeout the busy extractor is left to finish in the background and is
// closed when it returns.
func (w *Worker) Extract(ctx context.Context, data []byte) ([]face.Result, error) {
	if w.extractor == nil {
		ext, err := w.newExtractor()
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild extractor: %w", err)
		}
		w.extractor = ext
	}

	type result struct {
		faces []face.Result
		err   error
	}
	ext := w.extractor
	done := make(chan result, 1)
	go func() {
		faces, err := ext.Extract(data)
		done <- result{faces: faces, err: err}
	}()

	select {
	case r := <-done:
		return r.faces, r.err
	case <-ctx.Done():
		w.extractor = nil
		go func() {
			<-done
			ext.Close()
		}()
		w.log.Warn("workers: abandoned busy extractor", "error", ctx.Err())
		return nil, fmt.Errorf("%w: %v", ErrExtractionTimeout, ctx.Err())
	}
}

func (w *Worker) closeExtractor() {
	if w.extractor != nil {
		w.extractor.Close()
		w.extractor = nil
	}
}
