package ensemble

import (
	"math"
)

// Weighting schemes for member selection during export.
const (
	WtLog = "log"
	WtLin = "lin"
	WtExp = "exp"
	WtUni = "uni"
)

// Member orderings applied before rank weighting. The annealed variants start
// in the named direction and flip halfway through the run.
const (
	OrderWB  = "wb"  // worst to best
	OrderBW  = "bw"  // best to worst
	OrderAWB = "awb" // annealed, worst to best first
	OrderABW = "abw" // annealed, best to worst first
)

// rajLogFact is Ramanujan's closed-form approximation of ln(n!). Used in the
// log weighting scheme instead of an exact factorial, which overflows for
// moderate n.
func rajLogFact(n float64) float64 {
	return n*math.Log(n) - n + math.Log(n*(1+4*n*(1+2*n)))/6 + math.Log(math.Pi)/2
}

// rankWeights assigns a selection weight to each rank r in 1..n under the
// given scheme and kf variant. The closed forms are normalized so the weights
// sum to roughly 1; callers renormalize before sampling to correct floating
// point drift.
func rankWeights(scheme string, n, kf int) []float64 {
	wts := make([]float64, n)
	fn := float64(n)
	fkf := float64(kf)
	switch scheme {
	case WtLog:
		denom := fn*fkf + rajLogFact(fn)
		for r := 1; r <= n; r++ {
			wts[r-1] = (math.Log(float64(r)) + fkf) / denom
		}
	case WtLin:
		denom := fn*(fkf-0.5) + 0.5*fn*fn
		for r := 1; r <= n; r++ {
			wts[r-1] = (float64(r) - 1 + fkf) / denom
		}
	case WtExp:
		denom := (fkf-1)*fn + (1-math.Exp(fn))/(1-math.E)
		for r := 1; r <= n; r++ {
			wts[r-1] = (math.Exp(float64(r)-1) - 1 + fkf) / denom
		}
	default: // uniform
		for r := range wts {
			wts[r] = 1 / fn
		}
	}
	return wts
}

// Schedule is an ensemble parameter that is either a fixed literal or
// linearly annealed across the cycle range.
type Schedule struct {
	Value  float64 // literal value when Anneal is empty
	Anneal string  // "", "up", or "down"
}

// Fixed returns a schedule holding a constant value.
func Fixed(v float64) Schedule { return Schedule{Value: v} }

// Up returns a schedule annealed from the low endpoint to the high one.
func Up() Schedule { return Schedule{Anneal: "up"} }

// Down returns a schedule annealed from the high endpoint to the low one.
func Down() Schedule { return Schedule{Anneal: "down"} }

// alphaBeta evaluates an exponent schedule at 1-based cycle cyc of ncyc.
// "up" anneals 0 to 1, "down" the complement.
func alphaBeta(s Schedule, cyc, ncyc int) float64 {
	switch s.Anneal {
	case "up":
		if ncyc <= 1 {
			return 0
		}
		return float64(cyc-1) / float64(ncyc-1)
	case "down":
		if ncyc <= 1 {
			return 1
		}
		return 1 - float64(cyc-1)/float64(ncyc-1)
	default:
		return s.Value
	}
}

// qValue evaluates the export-count skew schedule at 1-based cycle cyc of
// ncyc. "up" anneals -1 to 1, "down" the reverse.
func qValue(s Schedule, cyc, ncyc int) float64 {
	switch s.Anneal {
	case "up":
		if ncyc <= 1 {
			return -1
		}
		return 2/(1-float64(ncyc))*(1-float64(cyc)) - 1
	case "down":
		if ncyc <= 1 {
			return 1
		}
		return 2/(1-float64(ncyc))*(float64(cyc)-1) + 1
	default:
		return s.Value
	}
}
