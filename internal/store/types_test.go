package store

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRunRecord_JSONSerialization(t *testing.T) {
	original := testRunRecord("test-run-123")
	original.Timestamp = time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal record: %v", err)
	}

	var restored RunRecord
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal record: %v", err)
	}

	if restored.RunID != original.RunID {
		t.Errorf("RunID mismatch: got %q, want %q", restored.RunID, original.RunID)
	}
	if restored.BestFitness != original.BestFitness {
		t.Errorf("BestFitness mismatch: got %v, want %v", restored.BestFitness, original.BestFitness)
	}
	if !restored.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp mismatch: got %v, want %v", restored.Timestamp, original.Timestamp)
	}
	if len(restored.Spec.Strategies) != 2 {
		t.Errorf("Spec strategies not round-tripped: %v", restored.Spec.Strategies)
	}
}

func TestRunRecord_ToInfo(t *testing.T) {
	record := testRunRecord("run-1")
	info := record.ToInfo()

	if info.RunID != record.RunID {
		t.Errorf("RunID mismatch")
	}
	if info.Mode != record.Spec.Mode {
		t.Errorf("Mode mismatch")
	}
	if info.BestFitness != record.BestFitness {
		t.Errorf("BestFitness mismatch")
	}
	if info.Completed != record.Completed {
		t.Errorf("Completed mismatch")
	}
}

func TestRunRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunRecord)
		wantErr bool
	}{
		{"valid", func(r *RunRecord) {}, false},
		{"empty run id", func(r *RunRecord) { r.RunID = "" }, true},
		{"empty best", func(r *RunRecord) { r.BestX = nil }, true},
		{"dim mismatch", func(r *RunRecord) { r.BestX = []float64{1} }, true},
		{"bad mode", func(r *RunRecord) { r.Spec.Mode = "sideways" }, true},
		{"zero cycles", func(r *RunRecord) { r.Spec.Cycles = 0 }, true},
		{"zero gens", func(r *RunRecord) { r.Spec.GenPerCycle = 0 }, true},
		{"no strategies", func(r *RunRecord) { r.Spec.Strategies = nil }, true},
		{"negative completed", func(r *RunRecord) { r.Completed = -1 }, true},
		{"completed overshoot", func(r *RunRecord) { r.Completed = 99 }, true},
		{"zero timestamp", func(r *RunRecord) { r.Timestamp = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := testRunRecord("run-1")
			tt.mutate(record)

			err := record.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	want := "validation error: RunID cannot be empty"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
