package ensemble

import (
	"testing"
)

func TestStallTracker_DetectsStall(t *testing.T) {
	tracker := NewStallTracker(ModeMin, 3, 0.01)

	if tracker.Update(100) {
		t.Fatal("First observation can never stall")
	}

	// three cycles with sub-threshold improvement trip the patience limit
	for i, best := range []float64{99.9, 99.8, 99.7} {
		stalled := tracker.Update(best)
		if i < 2 && stalled {
			t.Fatalf("Stalled after %d stale cycles, patience is 3", i+1)
		}
		if i == 2 && !stalled {
			t.Fatal("Expected a stall after 3 stale cycles")
		}
	}
}

func TestStallTracker_ImprovementResets(t *testing.T) {
	tracker := NewStallTracker(ModeMin, 2, 0.01)

	tracker.Update(100)
	tracker.Update(99.95) // stale
	if tracker.StaleCount() != 1 {
		t.Fatalf("Stale count = %d, want 1", tracker.StaleCount())
	}

	tracker.Update(50) // significant improvement
	if tracker.StaleCount() != 0 {
		t.Errorf("Improvement should reset the stale count, got %d", tracker.StaleCount())
	}

	if tracker.Update(49.99) {
		t.Error("One stale cycle after a reset should not stall")
	}
	if !tracker.Update(49.98) {
		t.Error("Patience of 2 should stall on the second stale cycle")
	}
}

func TestStallTracker_MaxMode(t *testing.T) {
	tracker := NewStallTracker(ModeMax, 2, 0.01)

	tracker.Update(10)
	tracker.Update(20)
	if tracker.StaleCount() != 0 {
		t.Errorf("Doubling should count as progress, stale count %d", tracker.StaleCount())
	}

	tracker.Update(20.05)
	if !tracker.Update(20.06) {
		t.Error("Expected a stall after two sub-threshold cycles")
	}
	if tracker.Best() != 20.06 {
		t.Errorf("Best = %v, want 20.06", tracker.Best())
	}
}

func TestStallTracker_TracksBest(t *testing.T) {
	tracker := NewStallTracker(ModeMin, 10, 0.001)

	for _, v := range []float64{5, 3, 4, 2, 6} {
		tracker.Update(v)
	}
	if tracker.Best() != 2 {
		t.Errorf("Best = %v, want 2", tracker.Best())
	}
}
