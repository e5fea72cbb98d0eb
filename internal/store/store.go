package store

import (
	"github.com/pseur/menagerie/internal/runlog"
)

// Store defines the interface for run persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return a *NotFoundError if a run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically persists a run record. An existing record with the
	// same run ID is overwritten.
	SaveRun(runID string, record *RunRecord) error

	// LoadRun retrieves the record for the given run.
	// Returns a *NotFoundError if no record exists.
	LoadRun(runID string) (*RunRecord, error)

	// ListRuns returns metadata for all saved runs. The slice may be empty.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run and all associated artifacts, including the
	// cycle trace. Returns a *NotFoundError if no record exists.
	DeleteRun(runID string) error

	// SaveLog persists the full run log alongside the run record.
	SaveLog(runID string, log *runlog.Log) error

	// LoadLog retrieves the full run log for the given run.
	// Returns a *NotFoundError if no log was saved.
	LoadLog(runID string) (*runlog.Log, error)
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run record.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
