package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ap0ught/familyman/face"
)

type fakeExtractor struct {
	block  chan struct{}
	closed atomic.Bool
}

func (f *fakeExtractor) Extract(data []byte) ([]face.Result, error) {
	if f.block != nil && string(data) == "slow" {
		<-f.block
	}
	return []face.Result{{Box: face.Box{Right: len(data), Bottom: 1}}}, nil
}

func (f *fakeExtractor) Close() error {
	f.closed.Store(true)
	return nil
}

type factory struct {
	mu    sync.Mutex
	made  []*fakeExtractor
	block chan struct{}
	fail  error
}

func (f *factory) New() (face.Extractor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil && len(f.made) > 0 {
		return nil, f.fail
	}
	ext := &fakeExtractor{block: f.block}
	f.made = append(f.made, ext)
	return ext, nil
}

func (f *factory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

func TestPool_ProcessesAllJobsWithOneExtractorPerWorker(t *testing.T) {
	f := &factory{}
	var processed atomic.Int32
	pool, err := NewPool(context.Background(), PoolConfig{Workers: 3, QueueSize: 2, NewExtractor: f.New},
		func(ctx context.Context, w *Worker, job Job) {
			if _, err := w.Extract(ctx, []byte(job.ReadPath)); err != nil {
				t.Errorf("Extract() error = %v", err)
			}
			processed.Add(1)
		})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	for i := 0; i < 25; i++ {
		if err := pool.Submit(context.Background(), Job{ReadPath: "x"}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	pool.Wait()

	if processed.Load() != 25 {
		t.Errorf("processed = %d, want 25", processed.Load())
	}
	if f.count() != 3 {
		t.Errorf("extractors created = %d, want 3", f.count())
	}
	for i, ext := range f.made {
		if !ext.closed.Load() {
			t.Errorf("extractor %d not closed after Wait()", i)
		}
	}
}

func TestPool_TimeoutAbandonsExtractor(t *testing.T) {
	f := &factory{block: make(chan struct{})}
	var errs []error
	var mu sync.Mutex

	pool, err := NewPool(context.Background(), PoolConfig{Workers: 1, FileTimeout: 50 * time.Millisecond, NewExtractor: f.New},
		func(ctx context.Context, w *Worker, job Job) {
			_, err := w.Extract(ctx, []byte(job.ReadPath))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	pool.Submit(context.Background(), Job{ReadPath: "slow"})
	pool.Submit(context.Background(), Job{ReadPath: "fast"})
	pool.Wait()

	if len(errs) != 2 {
		t.Fatalf("handled %d jobs, want 2", len(errs))
	}
	if !errors.Is(errs[0], ErrExtractionTimeout) {
		t.Errorf("slow job error = %v, want ErrExtractionTimeout", errs[0])
	}
	if errs[1] != nil {
		t.Errorf("job after timeout error = %v, want nil", errs[1])
	}
	if f.count() != 2 {
		t.Fatalf("extractors created = %d, want a replacement after the timeout", f.count())
	}

	stuck := f.made[0]
	if stuck.closed.Load() {
		t.Error("abandoned extractor closed while still busy")
	}
	close(f.block)
	deadline := time.Now().Add(2 * time.Second)
	for !stuck.closed.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !stuck.closed.Load() {
		t.Error("abandoned extractor not closed after its call returned")
	}
}

func TestNewPool_ExtractorFailure(t *testing.T) {
	f := &factory{fail: errors.New("model missing")}
	_, err := NewPool(context.Background(), PoolConfig{Workers: 2, NewExtractor: f.New}, func(context.Context, *Worker, Job) {})
	if err == nil {
		t.Fatal("NewPool() expected error when an extractor fails to load")
	}
	if f.count() != 1 || !f.made[0].closed.Load() {
		t.Error("extractor built before the failure was not closed")
	}
}

func TestPool_SubmitCancelled(t *testing.T) {
	release := make(chan struct{})
	f := &factory{}
	pool, err := NewPool(context.Background(), PoolConfig{Workers: 1, QueueSize: 1, NewExtractor: f.New},
		func(context.Context, *Worker, Job) { <-release })
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Submit(ctx, Job{}) // taken by the worker
	pool.Submit(ctx, Job{}) // fills the queue, or is taken if the worker was slow to start

	submitted := make(chan error, 1)
	go func() {
		var err error
		for err == nil {
			err = pool.Submit(ctx, Job{})
		}
		submitted <- err
	}()
	cancel()

	select {
	case err := <-submitted:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Submit() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit() did not return after cancellation")
	}
	close(release)
	pool.Wait()
}
