package ensemble

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pseur/menagerie/internal/param"
	"github.com/pseur/menagerie/internal/runlog"
	"github.com/pseur/menagerie/internal/strategy"
)

// Strength roles: a population's strength is computed once for deciding how
// many members it exports and once for deciding how attractive it is as a
// migration destination.
const (
	roleExport      = "export"
	roleDestination = "destination"
)

// Population wraps one strategy instance and its current member set. The
// strategy is exclusively owned: it is replaced by a resized clone on every
// evolution phase as migration grows and shrinks the member set.
//
// Invariant outside an in-flight Evolve call: len(members) == len(fits) == n.
// Immigrant members carry a NaN fitness sentinel until the next evolution
// phase evaluates them.
type Population struct {
	strat    strategy.Strategy
	members  []param.Individual
	fits     []float64
	n        int
	mode     string
	name     string
	flipSign bool // strategy's internal direction disagrees with the mode
	fitlog   []float64
	lastNgen int
	rng      *rand.Rand
}

// newPopulation wraps a strategy template around an initial member split. The
// template itself is never evolved; every cycle clones it at the current size.
func newPopulation(strat strategy.Strategy, initial []param.Individual, mode, name string, rng *rand.Rand) *Population {
	members := make([]param.Individual, len(initial))
	for i, x := range initial {
		members[i] = x.Clone()
	}
	fits := make([]float64, len(members))
	for i := range fits {
		fits[i] = math.NaN()
	}
	return &Population{
		strat:    strat,
		members:  members,
		fits:     fits,
		n:        len(members),
		mode:     mode,
		name:     name,
		flipSign: (mode == ModeMax) != strat.Maximizing(),
		fitlog:   []float64{},
		rng:      rng,
	}
}

// Name returns the population's log name.
func (p *Population) Name() string { return p.name }

// Size returns the current member count.
func (p *Population) Size() int { return p.n }

// Fitness returns the best fitness recorded at the end of the most recent
// evolution phase.
func (p *Population) Fitness() float64 {
	return p.fitlog[len(p.fitlog)-1]
}

// Members returns the current member set. Callers must not mutate it.
func (p *Population) Members() []param.Individual { return p.members }

// Fits returns the fitness values aligned with Members. Immigrants hold NaN.
func (p *Population) Fits() []float64 { return p.fits }

// Evolve runs one evolution phase of ngen generations. A population too
// small for its strategy is skipped and reports its last recorded fitness;
// skipping with no history is fatal because there is nothing to report.
func (p *Population) Evolve(ngen int, fit strategy.Func, bounds param.Bounds, rec *runlog.PopCycle) (float64, error) {
	var fitness float64

	if !p.strat.MinRunnable(len(p.members)) {
		if len(p.fitlog) == 0 {
			return 0, fmt.Errorf("starting population %s too small to evolve: %d members", p.name, len(p.members))
		}
		fitness = p.Fitness()
	} else {
		rec.Evolved = true

		inner := fit
		if p.flipSign {
			inner = func(x param.Individual) float64 { return -fit(x) }
		}

		clone, err := p.strat.CloneResized(len(p.members), inner, bounds)
		if err != nil {
			return 0, fmt.Errorf("failed to resize strategy for %s: %w", p.name, err)
		}
		p.strat = clone
		p.lastNgen = ngen

		res, err := p.strat.Evolve(ngen, p.members)
		if err != nil {
			return 0, fmt.Errorf("failed to evolve %s: %w", p.name, err)
		}

		p.members = res.Members
		p.fits = res.Fits
		if p.flipSign {
			for i := range p.fits {
				p.fits[i] = -p.fits[i]
			}
		}
		p.n = len(p.members)

		best := p.fits[0]
		for _, f := range p.fits[1:] {
			if (p.mode == ModeMax && f > best) || (p.mode == ModeMin && f < best) {
				best = f
			}
		}
		p.fitlog = append(p.fitlog, best)
		fitness = best
	}

	if p.n != 0 {
		rec.Members = cloneMembers(p.members)
		rec.Fits = sanitizeFits(p.fits)
		rec.N = p.n
		rec.Fitness = p.Fitness()
		if len(p.fitlog) > 1 {
			rec.DeltaF = p.fitlog[len(p.fitlog)-1] - p.fitlog[len(p.fitlog)-2]
			rec.HasDelta = true
		}
	}

	return fitness, nil
}

// Strength computes the population's normalized strength for the given role.
// measure is "fitness" (current best) or "improve" (positive part of the
// fitness delta, falling back to fitness on the first cycle). fmax and fmin
// are the cycle's global extrema; the caller must not call this when they are
// equal. When burdened, the strength is divided by 1 plus the number of
// fitness evaluations spent this cycle.
func (p *Population) Strength(measure string, burdened bool, fmax, fmin float64, rec *runlog.PopCycle, role string) float64 {
	fbest, fworst := fmax, fmin
	if p.mode == ModeMin {
		fbest, fworst = fmin, fmax
	}

	var raw float64
	if measure == MeasureImprove && len(p.fitlog) > 1 {
		// clamp at zero: the delta can go negative when an elite member was
		// exported between cycles
		raw = math.Max(p.fitlog[len(p.fitlog)-1]-p.fitlog[len(p.fitlog)-2], 0)
	} else {
		raw = p.Fitness()
	}

	normed := (raw - fworst) / (fbest - fworst)

	switch role {
	case roleExport:
		rec.UnburdenedG = normed
	case roleDestination:
		rec.UnburdenedB = normed
	}

	cost := p.strat.EvalsPerCycle(p.lastNgen, p.n)
	if burdened {
		normed /= float64(1 + cost)
		rec.EvalCost = cost
		rec.HasEvalCost = true
	}

	switch role {
	case roleExport:
		rec.G = normed
	case roleDestination:
		rec.B = normed
	}
	return normed
}

// Export removes count members chosen by the weighting scheme and returns
// them. count = 0 is a no-op. For ranked schemes the members are first sorted
// worst-to-best or best-to-worst per the order spec (annealed variants flip
// direction at cycle fraction 0.5), then rank weights are assigned and count
// distinct members are drawn without replacement.
func (p *Population) Export(count int, scheme, order string, kf int, cycleFrac float64, rec *runlog.PopCycle) []param.Individual {
	if count <= 0 || p.n == 0 {
		return nil
	}
	if count > p.n {
		count = p.n
	}

	// slots maps post-sort position back to the pre-sort member slot for
	// logging
	slots := make([]int, p.n)
	for i := range slots {
		slots[i] = i
	}

	var wts []float64
	if scheme == WtUni {
		wts = rankWeights(WtUni, p.n, kf)
		rec.WorstFirst = false
	} else {
		o := order
		if len(order) == 3 && order[0] == 'a' {
			if cycleFrac < 0.5 {
				o = order[1:]
			} else {
				o = string(order[2]) + string(order[1])
			}
		}

		ascending := (o == OrderWB && p.mode == ModeMax) || (o == OrderBW && p.mode == ModeMin)
		p.sortMembers(slots, ascending)

		wts = rankWeights(scheme, p.n, kf)
		rec.WorstFirst = o == OrderWB
	}

	rec.ExportWts = make([]float64, p.n)
	for i, w := range wts {
		rec.ExportWts[slots[i]] = w
	}

	removed := sampleNoReplace(p.rng, wts, count)

	if rec.Exported == nil {
		rec.Exported = make([]bool, p.n)
	}
	for _, idx := range removed {
		rec.Exported[slots[idx]] = true
	}

	sort.Sort(sort.Reverse(sort.IntSlice(removed)))
	out := make([]param.Individual, 0, len(removed))
	for _, idx := range removed {
		out = append(out, p.members[idx])
		p.members = append(p.members[:idx], p.members[idx+1:]...)
		p.fits = append(p.fits[:idx], p.fits[idx+1:]...)
	}
	p.n = len(p.members)
	return out
}

// Receive appends immigrants with unknown fitness; their NaN sentinels are
// replaced when the next evolution phase evaluates them. Receiving nothing
// is a no-op.
func (p *Population) Receive(individuals []param.Individual) {
	for _, x := range individuals {
		p.members = append(p.members, x)
		p.fits = append(p.fits, math.NaN())
	}
	p.n = len(p.members)
}

// sortMembers orders members and fits by fitness, keeping slots aligned so
// pre-sort positions can be recovered. NaN sentinels rank as worst for the
// mode, so unevaluated immigrants sort deterministically to the weak end.
func (p *Population) sortMembers(slots []int, ascending bool) {
	keys := make([]float64, p.n)
	for i, f := range p.fits {
		if math.IsNaN(f) {
			if p.mode == ModeMax {
				keys[i] = math.Inf(-1)
			} else {
				keys[i] = math.Inf(1)
			}
		} else {
			keys[i] = f
		}
	}

	idx := make([]int, p.n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if ascending {
			return keys[idx[a]] < keys[idx[b]]
		}
		return keys[idx[a]] > keys[idx[b]]
	})

	members := make([]param.Individual, p.n)
	fits := make([]float64, p.n)
	newSlots := make([]int, p.n)
	for i, j := range idx {
		members[i] = p.members[j]
		fits[i] = p.fits[j]
		newSlots[i] = slots[j]
	}
	copy(p.members, members)
	copy(p.fits, fits)
	copy(slots, newSlots)
}

func cloneMembers(xs []param.Individual) []param.Individual {
	out := make([]param.Individual, len(xs))
	for i, x := range xs {
		out[i] = x.Clone()
	}
	return out
}

// sanitizeFits copies fitness values for logging, zeroing NaN sentinels so
// the log stays serializable. Unknown immigrant fitness is logged as 0.
func sanitizeFits(fits []float64) []float64 {
	out := make([]float64, len(fits))
	for i, f := range fits {
		if math.IsNaN(f) {
			out[i] = 0
			continue
		}
		out[i] = f
	}
	return out
}
