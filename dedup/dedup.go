// Package dedup decides what happens to a file whose fingerprint is already
// known, and cleans up duplicate records left in the store.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/ap0ught/familyman/models"
	"github.com/ap0ught/familyman/repository"
)

// Policy selects how a duplicate fingerprint is handled.
type Policy string

const (
	PolicySkip    Policy = "skip"
	PolicyReplace Policy = "replace"
	PolicyError   Policy = "error"
)

// ParsePolicy validates a policy name. Empty selects PolicySkip.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyReplace:
		return PolicyReplace, nil
	case PolicyError:
		return PolicyError, nil
	default:
		return "", fmt.Errorf("unknown duplicate action '%s': must be skip, replace or error", name)
	}
}

// Decision is the outcome of resolving one fingerprint.
type Decision int

const (
	DecisionNew Decision = iota
	DecisionSkip
	DecisionReplace
)

func (d Decision) String() string {
	switch d {
	case DecisionNew:
		return "new"
	case DecisionSkip:
		return "skip"
	case DecisionReplace:
		return "replace"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// DuplicateConflictError is returned under PolicyError when the fingerprint
// is already known. ExistingID is zero when the other copy was seen earlier
// in the same run and has no stored record.
type DuplicateConflictError struct {
	Fingerprint  string
	ExistingID   uint
	Path         string
	ExistingPath string
}

func (e *DuplicateConflictError) Error() string {
	if e.ExistingID != 0 {
		return fmt.Sprintf("duplicate of photo %d (%s): fingerprint %s", e.ExistingID, e.ExistingPath, e.Fingerprint)
	}
	return fmt.Sprintf("duplicate of %s: fingerprint %s", e.ExistingPath, e.Fingerprint)
}

// PhotoStore is the lookup the index needs from the record store.
type PhotoStore interface {
	GetByFingerprint(fileHash string) (*models.Photo, error)
}

// ApplyFunc performs the store side of a New or Replace decision. existing
// is nil for DecisionNew, and may be nil for DecisionReplace when the first
// copy was only seen in this run.
type ApplyFunc func(decision Decision, existing *models.Photo) error

const lockStripes = 64

// Index serializes decisions per fingerprint and remembers fingerprints
// claimed earlier in the same run, so identical files within one source
// resolve against each other even when nothing was written yet.
type Index struct {
	store PhotoStore
	locks [lockStripes]sync.Mutex

	mu      sync.Mutex
	claimed map[string]string // fingerprint -> path of first copy this run
}

// NewIndex creates an Index backed by store.
func NewIndex(store PhotoStore) *Index {
	return &Index{
		store:   store,
		claimed: make(map[string]string),
	}
}

func (ix *Index) stripe(fingerprint string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return &ix.locks[h.Sum32()%lockStripes]
}

func (ix *Index) claim(fingerprint, path string) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if first, ok := ix.claimed[fingerprint]; ok {
		return first, false
	}
	ix.claimed[fingerprint] = path
	return path, true
}

func (ix *Index) release(fingerprint string) {
	ix.mu.Lock()
	delete(ix.claimed, fingerprint)
	ix.mu.Unlock()
}

// Resolve decides what to do with the file at path whose content has the
// given fingerprint, and runs apply for New and Replace decisions while the
// fingerprint's lock is held. Under PolicyError a known fingerprint yields a
// *DuplicateConflictError and apply is not called.
func (ix *Index) Resolve(ctx context.Context, fingerprint, path string, policy Policy, apply ApplyFunc) (Decision, error) {
	lock := ix.stripe(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return DecisionSkip, err
	}

	existing, err := ix.store.GetByFingerprint(fingerprint)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return DecisionSkip, fmt.Errorf("failed to look up fingerprint %s: %w", fingerprint, err)
	}

	firstPath, fresh := ix.claim(fingerprint, path)
	if existing == nil && fresh {
		if apply != nil {
			if err := apply(DecisionNew, nil); err != nil {
				ix.release(fingerprint)
				return DecisionNew, err
			}
		}
		return DecisionNew, nil
	}

	existingPath := firstPath
	if existing != nil {
		existingPath = existing.OriginalPath
	}

	switch policy {
	case PolicyError:
		conflict := &DuplicateConflictError{Fingerprint: fingerprint, Path: path, ExistingPath: existingPath}
		if existing != nil {
			conflict.ExistingID = existing.ID
		}
		return DecisionSkip, conflict
	case PolicyReplace:
		if apply != nil {
			if err := apply(DecisionReplace, existing); err != nil {
				return DecisionReplace, err
			}
		}
		return DecisionReplace, nil
	default:
		return DecisionSkip, nil
	}
}
