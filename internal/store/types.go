package store

import (
	"time"
)

// RunSpec holds the settings an ensemble run was started with. A copy is
// persisted with every run record so saved results stay interpretable.
type RunSpec struct {
	Mode        string   `json:"mode"`
	Objective   string   `json:"objective,omitempty"`
	Dim         int      `json:"dim"`
	Cycles      int      `json:"cycles"`
	GenPerCycle int      `json:"genPerCycle"`
	Seed        int64    `json:"seed"`
	Strategies  []string `json:"strategies"`
	Wt          string   `json:"wt,omitempty"`
	Ret         bool     `json:"ret"`
}

// RunRecord is a persisted ensemble run: its identity, spec, outcome, and
// how far it got.
type RunRecord struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"runId"`

	// Spec is the configuration the run was started with.
	Spec RunSpec `json:"spec"`

	// BestX is the best individual found, in bound order.
	BestX []float64 `json:"bestX"`

	// BestFitness is the fitness achieved by BestX.
	BestFitness float64 `json:"bestFitness"`

	// Completed is the number of cycles the run finished; less than
	// Spec.Cycles when a stop condition fired early.
	Completed int `json:"completed"`

	// Timestamp records when the run finished.
	Timestamp time.Time `json:"timestamp"`
}

// RunInfo is run metadata without the result payload, used for listing.
type RunInfo struct {
	RunID       string    `json:"runId"`
	Mode        string    `json:"mode"`
	Objective   string    `json:"objective,omitempty"`
	Strategies  []string  `json:"strategies"`
	BestFitness float64   `json:"bestFitness"`
	Completed   int       `json:"completed"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunRecord creates a record from run results.
func NewRunRecord(runID string, spec RunSpec, bestX []float64, bestFitness float64, completed int) *RunRecord {
	return &RunRecord{
		RunID:       runID,
		Spec:        spec,
		BestX:       bestX,
		BestFitness: bestFitness,
		Completed:   completed,
		Timestamp:   time.Now(),
	}
}

// ToInfo converts a full record to its listing metadata.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:       r.RunID,
		Mode:        r.Spec.Mode,
		Objective:   r.Spec.Objective,
		Strategies:  r.Spec.Strategies,
		BestFitness: r.BestFitness,
		Completed:   r.Completed,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks that the record has valid data.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.BestX) == 0 {
		return &ValidationError{Field: "BestX", Reason: "cannot be empty"}
	}
	if r.Spec.Dim > 0 && len(r.BestX) != r.Spec.Dim {
		return &ValidationError{Field: "BestX", Reason: "length does not match spec dimensionality"}
	}
	if r.Spec.Mode != "min" && r.Spec.Mode != "max" {
		return &ValidationError{Field: "Spec.Mode", Reason: "must be min or max"}
	}
	if r.Spec.Cycles <= 0 {
		return &ValidationError{Field: "Spec.Cycles", Reason: "must be positive"}
	}
	if r.Spec.GenPerCycle <= 0 {
		return &ValidationError{Field: "Spec.GenPerCycle", Reason: "must be positive"}
	}
	if len(r.Spec.Strategies) == 0 {
		return &ValidationError{Field: "Spec.Strategies", Reason: "cannot be empty"}
	}
	if r.Completed < 0 {
		return &ValidationError{Field: "Completed", Reason: "cannot be negative"}
	}
	if r.Completed > r.Spec.Cycles {
		return &ValidationError{Field: "Completed", Reason: "cannot exceed requested cycles"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
