package ledger

import "time"

// Status is the outcome recorded for one tomogram in one run.
type Status string

const (
	// StatusGenerated means side files and script were written but nothing was
	// submitted (dry run).
	StatusGenerated Status = "generated"
	StatusSubmitted Status = "submitted"
	StatusFailed    Status = "failed"
	// StatusSkipped means the tomogram's inputs could not be resolved or read.
	StatusSkipped Status = "skipped"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusGenerated, StatusSubmitted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Entry is one ledger row.
type Entry struct {
	ID         int64
	RunID      string
	TomogramID string
	Status     Status
	Step       string
	ScriptPath string
	JobID      string
	Message    string
	DryRun     bool
	CreatedAt  time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	RunID      string
	TomogramID string
	Statuses   []Status
	Limit      int
}

// RunSummary aggregates the entries of one run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Generated int
	Submitted int
	Failed    int
	Skipped   int
}

// Total returns the number of tomograms the run touched.
func (r RunSummary) Total() int {
	return r.Generated + r.Submitted + r.Failed + r.Skipped
}
