package strategy

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pseur/menagerie/internal/param"
)

// WOAConfig holds whale optimization hyperparameters.
type WOAConfig struct {
	NWhales int
	Spiral  float64 // logarithmic spiral shape constant
	Cores   int
	Seed    int64
}

// DefaultWOAConfig returns the standard whale search parameters.
func DefaultWOAConfig() WOAConfig {
	return WOAConfig{NWhales: 30, Spiral: 1, Cores: 1}
}

// WOA is whale optimization: encircling, spiral bubble-net, and random search
// phases with the exploration coefficient annealed from 2 to 0 over the run.
// It internally minimizes, exercising the ensemble's fitness sign flip for
// maximization problems.
type WOA struct {
	nwhales int
	spiral  float64
	cores   int
	fit     Func
	bounds  param.Bounds
	rng     *rand.Rand
}

// NewWOA creates a whale optimization strategy.
func NewWOA(cfg WOAConfig) (*WOA, error) {
	if cfg.NWhales < 2 {
		return nil, fmt.Errorf("woa: at least 2 whales required, got %d", cfg.NWhales)
	}
	spiral := cfg.Spiral
	if spiral == 0 {
		spiral = 1
	}
	cores := cfg.Cores
	if cores < 1 {
		cores = 1
	}
	return &WOA{
		nwhales: cfg.NWhales,
		spiral:  spiral,
		cores:   cores,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (w *WOA) Name() string           { return "WOA" }
func (w *WOA) PopSize() int           { return w.nwhales }
func (w *WOA) Maximizing() bool       { return false }
func (w *WOA) MinRunnable(n int) bool { return n >= 5 }

func (w *WOA) EvalsPerCycle(ngen, popsize int) int {
	return ngen * popsize
}

func (w *WOA) CloneResized(n int, fit Func, bounds param.Bounds) (Strategy, error) {
	if n < 2 {
		return nil, fmt.Errorf("woa: at least 2 whales required, got %d", n)
	}
	return &WOA{
		nwhales: n,
		spiral:  w.spiral,
		cores:   w.cores,
		fit:     fit,
		bounds:  bounds,
		rng:     rand.New(rand.NewSource(w.rng.Int63())),
	}, nil
}

func (w *WOA) Evolve(ngen int, initial []param.Individual) (*Result, error) {
	if w.fit == nil || w.bounds == nil {
		return nil, fmt.Errorf("woa: fitness function and bounds not bound, clone before evolving")
	}

	pop := make([]param.Individual, w.nwhales)
	if initial != nil {
		if len(initial) != w.nwhales {
			return nil, fmt.Errorf("woa: initial population size %d does not match configured size %d", len(initial), w.nwhales)
		}
		for i, x := range initial {
			pop[i] = x.Clone()
		}
	} else {
		for i := range pop {
			pop[i] = w.bounds.Sample(w.rng)
		}
	}

	dim := w.bounds.Dim()
	fits := evalAll(w.fit, pop, w.cores)

	best := 0
	for i := 1; i < w.nwhales; i++ {
		if fits[i] < fits[best] {
			best = i
		}
	}
	bestX := pop[best].Clone()
	bestFit := fits[best]

	for gen := 0; gen < ngen; gen++ {
		// exploration coefficient annealed 2 -> 0
		a := 2 - 2*float64(gen)/float64(ngen)

		for i := 0; i < w.nwhales; i++ {
			next := make(param.Individual, dim)
			if w.rng.Float64() < 0.5 {
				A := 2*a*w.rng.Float64() - a
				C := 2 * w.rng.Float64()
				if math.Abs(A) < 1 {
					// encircle the best whale
					for k := 0; k < dim; k++ {
						d := math.Abs(C*bestX[k] - pop[i][k])
						next[k] = bestX[k] - A*d
					}
				} else {
					// search relative to a random whale
					r := w.rng.Intn(w.nwhales)
					for k := 0; k < dim; k++ {
						d := math.Abs(C*pop[r][k] - pop[i][k])
						next[k] = pop[r][k] - A*d
					}
				}
			} else {
				// spiral bubble-net attack
				l := 2*w.rng.Float64() - 1
				for k := 0; k < dim; k++ {
					d := math.Abs(bestX[k] - pop[i][k])
					next[k] = d*math.Exp(w.spiral*l)*math.Cos(2*math.Pi*l) + bestX[k]
				}
			}
			w.bounds.Clip(next)
			pop[i] = next
		}

		fits = evalAll(w.fit, pop, w.cores)
		for i := 0; i < w.nwhales; i++ {
			if fits[i] < bestFit {
				bestFit = fits[i]
				bestX = pop[i].Clone()
			}
		}
	}

	return &Result{
		Best:    bestX,
		BestFit: bestFit,
		Members: pop,
		Fits:    fits,
	}, nil
}
