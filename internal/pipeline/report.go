package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"stemprep/internal/metadata"
)

// FatalError aborts the whole run: unreadable input, no eligible files,
// unusable output directory or a configuration that cannot work.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// FileReport is the outcome of one input file.
type FileReport struct {
	Source   string                `json:"source"`
	Output   string                `json:"output,omitempty"`
	Outcome  metadata.Outcome      `json:"outcome"`
	Errors   []metadata.StageError `json:"errors"`
	Skipped  bool                  `json:"skipped,omitempty"`
	Matched  bool                  `json:"matched"`
	Bytes    int64                 `json:"bytes"`
	Duration time.Duration         `json:"duration"`

	index int
}

// BatchReport aggregates every file of a run. It is always produced, even
// when the run is interrupted.
type BatchReport struct {
	RunID   string        `json:"run_id"`
	Total   int           `json:"total"`
	Files   []FileReport  `json:"files"`
	Success int           `json:"success"`
	Partial int           `json:"partial"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	DryRun  bool          `json:"dry_run"`
	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`

	mu sync.Mutex
}

func newBatchReport(runID string, total int, dryRun bool) *BatchReport {
	return &BatchReport{RunID: runID, Total: total, DryRun: dryRun, Started: time.Now()}
}

// add records one file outcome. Safe for concurrent use.
func (r *BatchReport) add(f FileReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Files = append(r.Files, f)
	switch f.Outcome {
	case metadata.Success:
		r.Success++
	case metadata.Partial:
		r.Partial++
	default:
		r.Failed++
	}
	if f.Skipped {
		r.Skipped++
	}
}

// finish orders files by input position and stamps the elapsed time.
func (r *BatchReport) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	sort.SliceStable(r.Files, func(i, j int) bool { return r.Files[i].index < r.Files[j].index })
	r.Elapsed = time.Since(r.Started)
}

// Snapshot returns a copy safe to read while the run continues.
func (r *BatchReport) Snapshot() *BatchReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	return &BatchReport{
		RunID:   r.RunID,
		Total:   r.Total,
		Files:   append([]FileReport(nil), r.Files...),
		Success: r.Success,
		Partial: r.Partial,
		Failed:  r.Failed,
		Skipped: r.Skipped,
		DryRun:  r.DryRun,
		Started: r.Started,
		Elapsed: time.Since(r.Started),
	}
}

// Matched counts files that were identified.
func (r *BatchReport) Matched() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, f := range r.Files {
		if f.Matched {
			n++
		}
	}
	return n
}
