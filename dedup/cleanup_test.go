package dedup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ap0ught/familyman/database"
	"github.com/ap0ught/familyman/fingerprint"
	"github.com/ap0ught/familyman/logger"
	"github.com/ap0ught/familyman/models"
	"github.com/ap0ught/familyman/repository"
)

type cleanupFixture struct {
	cleaner *Cleaner
	photos  *repository.PhotoRepository
	dir     string
}

func newCleanupFixture(t *testing.T) *cleanupFixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"), 1, logger.NewNop())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	hasher, err := fingerprint.New(fingerprint.SHA256)
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	photos := repository.NewPhotoRepository(db)
	return &cleanupFixture{
		cleaner: &Cleaner{Store: photos, DB: sqlDB, Hasher: hasher, Logger: logger.NewNop()},
		photos:  photos,
		dir:     dir,
	}
}

// legacy writes a file and a record for it without a fingerprint.
func (f *cleanupFixture) legacy(t *testing.T, name, content string, createdAt int64) *models.Photo {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	p := &models.Photo{OriginalPath: path, CreatedAt: createdAt}
	if err := f.photos.CreateWithFaces(p, []models.Face{{FaceIndex: 0}}); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCleanup_ComputeAndReport(t *testing.T) {
	f := newCleanupFixture(t)
	first := f.legacy(t, "a.jpg", "same bytes", 1000)
	f.legacy(t, "b.jpg", "same bytes", 2000)
	f.legacy(t, "c.jpg", "other bytes", 3000)
	missing := &models.Photo{OriginalPath: filepath.Join(f.dir, "gone.jpg"), CreatedAt: 4000}
	if err := f.photos.CreateWithFaces(missing, nil); err != nil {
		t.Fatal(err)
	}

	report, err := f.cleaner.Cleanup(context.Background(), CleanupOptions{ComputeHashes: true, Action: ActionReport, Workers: 2})
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if report.Computed != 3 {
		t.Errorf("Computed = %d, want 3", report.Computed)
	}
	if len(report.HashFailures) != 1 || report.HashFailures[0].PhotoID != missing.ID {
		t.Errorf("HashFailures = %+v, want the missing file", report.HashFailures)
	}
	if len(report.Groups) != 1 {
		t.Fatalf("Groups = %d, want 1", len(report.Groups))
	}
	g := report.Groups[0]
	if g.Keep().ID != first.ID || len(g.Remove()) != 1 {
		t.Errorf("group keeps %d and removes %d, want keep %d and remove 1", g.Keep().ID, len(g.Remove()), first.ID)
	}
	if report.Deleted != 0 {
		t.Errorf("Deleted = %d under report action", report.Deleted)
	}
	if n, _ := f.photos.Count(); n != 4 {
		t.Errorf("records after report = %d, want 4", n)
	}
}

func TestCleanup_DryRunWritesNothing(t *testing.T) {
	f := newCleanupFixture(t)
	f.legacy(t, "a.jpg", "dup", 1000)
	f.legacy(t, "b.jpg", "dup", 2000)

	report, err := f.cleaner.Cleanup(context.Background(), CleanupOptions{ComputeHashes: true, Action: ActionDelete, DryRun: true})
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if report.Computed != 2 || len(report.Groups) != 1 || report.Deleted != 0 {
		t.Errorf("report = %+v, want 2 computed, 1 group, 0 deleted", report)
	}
	left, _ := f.photos.ListMissingFingerprint()
	if len(left) != 2 {
		t.Errorf("records without fingerprint after dry run = %d, want 2", len(left))
	}
}

func TestCleanup_DeleteKeepsOldest(t *testing.T) {
	f := newCleanupFixture(t)
	newest := f.legacy(t, "new.jpg", "dup", 5000)
	oldest := f.legacy(t, "old.jpg", "dup", 1000)
	middle := f.legacy(t, "mid.jpg", "dup", 3000)

	report, err := f.cleaner.Cleanup(context.Background(), CleanupOptions{ComputeHashes: true, Action: ActionDelete})
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if report.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", report.Deleted)
	}
	if _, err := f.photos.GetByID(oldest.ID); err != nil {
		t.Errorf("oldest record was removed: %v", err)
	}
	for _, p := range []*models.Photo{newest, middle} {
		if _, err := f.photos.GetByID(p.ID); err == nil {
			t.Errorf("record %d still present", p.ID)
		}
	}

	again, err := f.cleaner.Cleanup(context.Background(), CleanupOptions{Action: ActionDelete})
	if err != nil {
		t.Fatalf("second Cleanup() error = %v", err)
	}
	if len(again.Groups) != 0 || again.Deleted != 0 {
		t.Errorf("second Cleanup() = %+v, want nothing left to do", again)
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		input   string
		want    Action
		wantErr bool
	}{
		{"", ActionReport, false},
		{"report", ActionReport, false},
		{"DELETE", ActionDelete, false},
		{"purge", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAction(%q) = %q, %v; want %q, wantErr %v", tt.input, got, err, tt.want, tt.wantErr)
		}
	}
}
