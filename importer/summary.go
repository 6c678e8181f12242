package importer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ap0ught/familyman/models"
)

// Outcome is the terminal state of one source file.
type Outcome string

const (
	OutcomeImported          Outcome = models.ImportStatusImported
	OutcomeDuplicateSkipped  Outcome = models.ImportStatusDuplicateSkipped
	OutcomeDuplicateReplaced Outcome = models.ImportStatusDuplicateReplaced
	OutcomeRoutedToReview    Outcome = models.ImportStatusRoutedToReview
	OutcomeErrored           Outcome = models.ImportStatusErrored
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{
	OutcomeImported,
	OutcomeDuplicateSkipped,
	OutcomeDuplicateReplaced,
	OutcomeRoutedToReview,
	OutcomeErrored,
}

// ErrHalted is returned by Run when halt-on-error stopped the run early.
var ErrHalted = errors.New("import halted after a file errored")

// Stage names where in the pipeline a file failed.
type Stage string

const (
	StageWalk    Stage = "walk"
	StageArchive Stage = "archive"
	StageHash    Stage = "hash"
	StageDedup   Stage = "duplicate"
	StageRead    Stage = "read"
	StageExtract Stage = "extract"
	StageRoute   Stage = "route"
	StageStore   Stage = "store"
)

// FileError is one errored file with its reason.
type FileError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// Summary reports a run: counts per outcome, errored files and the
// clustering result over the run's faces.
type Summary struct {
	RunID  string
	DryRun bool
	Counts map[Outcome]int
	Errors []FileError

	Faces    int
	Clusters int
	Noise    int

	ManifestPath string
	Halted       bool
}

func newSummary(runID string, dryRun bool) Summary {
	counts := make(map[Outcome]int, len(Outcomes))
	for _, o := range Outcomes {
		counts[o] = 0
	}
	return Summary{RunID: runID, DryRun: dryRun, Counts: counts}
}

// Total is the number of files that reached a terminal state.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// HasErrors reports whether any file errored.
func (s Summary) HasErrors() bool {
	return s.Counts[OutcomeErrored] > 0
}

func (s *Summary) sortErrors() {
	sort.SliceStable(s.Errors, func(i, j int) bool {
		return s.Errors[i].Path < s.Errors[j].Path
	})
}
