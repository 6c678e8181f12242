package dedup

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ap0ught/familyman/database"
	"github.com/ap0ught/familyman/fingerprint"
	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/models"
)

// Action selects what Cleanup does with duplicate groups.
type Action string

const (
	ActionReport Action = "report"
	ActionDelete Action = "delete"
)

// ParseAction validates an action name. Empty selects ActionReport.
func ParseAction(name string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(name))) {
	case "", ActionReport:
		return ActionReport, nil
	case ActionDelete:
		return ActionDelete, nil
	default:
		return "", fmt.Errorf("unknown cleanup action '%s': must be report or delete", name)
	}
}

// CleanupStore is the part of the record store Cleanup works on.
type CleanupStore interface {
	ListMissingFingerprint() ([]models.Photo, error)
	UpdateFingerprint(id uint, fileHash string) error
	ListByFingerprint(fileHash string) ([]models.Photo, error)
	DeleteMany(ids []uint) (int64, error)
}

type CleanupOptions struct {
	ComputeHashes bool
	Action        Action
	DryRun        bool
	Workers       int
	// Progress is called once per record hashed, successful or not.
	Progress func()
}

// Group is a fingerprint held by more than one record. Records are ordered
// by CreatedAt then ID; the first one is the copy that is kept.
type Group struct {
	Fingerprint string
	Records     []models.Photo
}

func (g Group) Keep() models.Photo { return g.Records[0] }

func (g Group) Remove() []models.Photo { return g.Records[1:] }

// HashFailure is a record whose file could not be hashed.
type HashFailure struct {
	PhotoID uint
	Path    string
	Err     error
}

type CleanupReport struct {
	Computed     int
	HashFailures []HashFailure
	Groups       []Group
	Deleted      int64
}

// Cleaner fingerprints legacy records and reports or deletes duplicates.
type Cleaner struct {
	Store  CleanupStore
	DB     database.Querier
	Hasher *fingerprint.Hasher
	Logger *logger.Logger
}

// Cleanup runs the retroactive hashing pass (when requested) and then
// collects duplicate groups. In dry run nothing is written.
func (c *Cleaner) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupReport, error) {
	var report CleanupReport

	var pending map[uint]string
	if opts.ComputeHashes {
		computed, failures, err := c.computeMissing(ctx, opts)
		if err != nil {
			return report, err
		}
		report.Computed = len(computed)
		report.HashFailures = failures
		if opts.DryRun {
			pending = computed
		}
	}

	groups, err := c.collectGroups(pending)
	if err != nil {
		return report, err
	}
	report.Groups = groups

	if opts.Action != ActionDelete || opts.DryRun {
		return report, nil
	}

	var ids []uint
	for _, g := range groups {
		for _, p := range g.Remove() {
			ids = append(ids, p.ID)
		}
	}
	deleted, err := c.Store.DeleteMany(ids)
	if err != nil {
		return report, fmt.Errorf("failed to delete duplicate records: %w", err)
	}
	report.Deleted = deleted
	c.Logger.Info("cleanup: deleted duplicate records", "deleted", deleted, "groups", len(groups))
	return report, nil
}

// computeMissing hashes every record without a fingerprint. The returned map
// holds the digests that were computed.
func (c *Cleaner) computeMissing(ctx context.Context, opts CleanupOptions) (map[uint]string, []HashFailure, error) {
	photos, err := c.Store.ListMissingFingerprint()
	if err != nil {
		return nil, nil, err
	}
	if len(photos) == 0 {
		return nil, nil, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu       sync.Mutex
		computed = make(map[uint]string, len(photos))
		failures []HashFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range photos {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if opts.Progress != nil {
				defer opts.Progress()
			}
			digest, err := c.Hasher.HashFile(p.OriginalPath)
			if err != nil {
				c.Logger.Warn("cleanup: could not hash file", "photo_id", p.ID, "path", p.OriginalPath, "error", err)
				mu.Lock()
				failures = append(failures, HashFailure{PhotoID: p.ID, Path: p.OriginalPath, Err: err})
				mu.Unlock()
				return nil
			}
			if !opts.DryRun {
				if err := c.Store.UpdateFingerprint(p.ID, digest); err != nil {
					return err
				}
			}
			mu.Lock()
			computed[p.ID] = digest
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to store computed fingerprints: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	c.Logger.Info("cleanup: computed fingerprints", "computed", len(computed), "failed", len(failures))
	return computed, failures, nil
}

// collectGroups builds the duplicate groups from the store. pending carries
// digests computed in dry run that were never persisted, so the report
// matches what a real run would find.
func (c *Cleaner) collectGroups(pending map[uint]string) ([]Group, error) {
	hashes, err := database.DuplicateHashes(c.DB)
	if err != nil {
		return nil, err
	}

	pendingByHash := make(map[string][]uint)
	for id, digest := range pending {
		pendingByHash[digest] = append(pendingByHash[digest], id)
	}

	seen := make(map[string]bool, len(hashes))
	candidates := make([]string, 0, len(hashes)+len(pendingByHash))
	for _, hc := range hashes {
		seen[hc.FileHash] = true
		candidates = append(candidates, hc.FileHash)
	}
	for digest := range pendingByHash {
		if !seen[digest] {
			candidates = append(candidates, digest)
		}
	}

	missingByID := make(map[uint]models.Photo)
	if len(pending) > 0 {
		missing, err := c.Store.ListMissingFingerprint()
		if err != nil {
			return nil, err
		}
		for _, p := range missing {
			missingByID[p.ID] = p
		}
	}

	var groups []Group
	for _, digest := range candidates {
		records, err := c.Store.ListByFingerprint(digest)
		if err != nil {
			return nil, err
		}
		for _, id := range pendingByHash[digest] {
			if p, ok := missingByID[id]; ok {
				p.FileHash = digest
				records = append(records, p)
			}
		}
		if len(records) < 2 {
			continue
		}
		sort.SliceStable(records, func(i, j int) bool {
			if records[i].CreatedAt != records[j].CreatedAt {
				return records[i].CreatedAt < records[j].CreatedAt
			}
			return records[i].ID < records[j].ID
		})
		groups = append(groups, Group{Fingerprint: digest, Records: records})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Records) != len(groups[j].Records) {
			return len(groups[i].Records) > len(groups[j].Records)
		}
		return groups[i].Fingerprint < groups[j].Fingerprint
	})
	return groups, nil
}
