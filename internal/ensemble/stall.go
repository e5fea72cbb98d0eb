package ensemble

import (
	"log/slog"
	"math"
)

// StallTracker detects when the ensemble-best fitness has stopped improving.
// Feed it the best fitness after every cycle; it reports true once patience
// cycles pass without the relative improvement reaching the threshold.
type StallTracker struct {
	mode            string
	patience        int
	threshold       float64
	best            float64
	lastSignificant float64
	staleCount      int
	seen            int
}

// NewStallTracker creates a tracker. patience is the number of cycles without
// significant improvement before stopping; threshold is the minimum relative
// improvement that counts as progress (0.001 = 0.1%).
func NewStallTracker(mode string, patience int, threshold float64) *StallTracker {
	worst := math.Inf(-1)
	if mode == ModeMin {
		worst = math.Inf(1)
	}
	return &StallTracker{
		mode:            mode,
		patience:        patience,
		threshold:       threshold,
		best:            worst,
		lastSignificant: worst,
	}
}

// Update records the best fitness after a cycle and returns true if the run
// has stalled.
func (s *StallTracker) Update(best float64) bool {
	if s.mode == ModeMax && best > s.best {
		s.best = best
	}
	if s.mode == ModeMin && best < s.best {
		s.best = best
	}

	s.seen++
	if s.seen == 1 {
		s.lastSignificant = best
		return false
	}

	improvement := best - s.lastSignificant
	if s.mode == ModeMin {
		improvement = s.lastSignificant - best
	}
	relative := improvement / math.Abs(s.lastSignificant)

	if relative >= s.threshold {
		s.lastSignificant = best
		s.staleCount = 0
		slog.Debug("fitness improvement detected",
			"best", best,
			"relative_improvement", relative,
		)
		return false
	}

	s.staleCount++
	slog.Debug("no significant fitness improvement",
		"best", best,
		"last_significant", s.lastSignificant,
		"stale_count", s.staleCount,
		"patience", s.patience,
	)

	if s.staleCount >= s.patience {
		slog.Info("run stalled, stopping early",
			"stale_count", s.staleCount,
			"patience", s.patience,
			"best", s.best,
		)
		return true
	}
	return false
}

// Best returns the best fitness seen so far.
func (s *StallTracker) Best() float64 { return s.best }

// StaleCount returns the number of cycles since the last significant
// improvement.
func (s *StallTracker) StaleCount() int { return s.staleCount }
