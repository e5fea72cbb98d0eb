package strategy

import (
	"fmt"
	"math/rand"

	"github.com/pseur/menagerie/internal/param"
)

// DEConfig holds differential evolution hyperparameters.
type DEConfig struct {
	NPop  int     // population size, must exceed 3
	F     float64 // differential weight in [0, 2]
	CR    float64 // crossover probability in [0, 1]
	Cores int     // parallel fitness workers, 1 = sequential
	Seed  int64
}

// DE is rand/1/bin differential evolution. It internally maximizes; the
// ensemble flips the fitness sign for minimization problems. Mutated vectors
// are clipped back into bounds component-wise, so a donor vector always keeps
// its full length, and integer variables are re-discretized to the nearest
// valid value.
type DE struct {
	npop   int
	f      float64
	cr     float64
	cores  int
	fit    Func
	bounds param.Bounds
	rng    *rand.Rand
}

// NewDE creates a differential evolution strategy. The fitness function and
// bounds are bound later via CloneResized; the ensemble always clones before
// evolving.
func NewDE(cfg DEConfig) (*DE, error) {
	if cfg.NPop <= 3 {
		return nil, fmt.Errorf("de: population size must exceed 3, got %d", cfg.NPop)
	}
	if cfg.F < 0 || cfg.F > 2 {
		return nil, fmt.Errorf("de: differential weight must be in [0, 2], got %v", cfg.F)
	}
	if cfg.CR < 0 || cfg.CR > 1 {
		return nil, fmt.Errorf("de: crossover probability must be in [0, 1], got %v", cfg.CR)
	}
	cores := cfg.Cores
	if cores < 1 {
		cores = 1
	}
	return &DE{
		npop:  cfg.NPop,
		f:     cfg.F,
		cr:    cfg.CR,
		cores: cores,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (d *DE) Name() string           { return "DE" }
func (d *DE) PopSize() int           { return d.npop }
func (d *DE) Maximizing() bool       { return true }
func (d *DE) MinRunnable(n int) bool { return n >= 5 }

// EvalsPerCycle counts trial and target evaluations per generation.
func (d *DE) EvalsPerCycle(ngen, popsize int) int {
	return 2 * ngen * popsize
}

func (d *DE) CloneResized(n int, fit Func, bounds param.Bounds) (Strategy, error) {
	if n <= 3 {
		return nil, fmt.Errorf("de: population size must exceed 3, got %d", n)
	}
	return &DE{
		npop:   n,
		f:      d.f,
		cr:     d.cr,
		cores:  d.cores,
		fit:    fit,
		bounds: bounds,
		rng:    rand.New(rand.NewSource(d.rng.Int63())),
	}, nil
}

func (d *DE) Evolve(ngen int, initial []param.Individual) (*Result, error) {
	if d.fit == nil || d.bounds == nil {
		return nil, fmt.Errorf("de: fitness function and bounds not bound, clone before evolving")
	}

	pop := make([]param.Individual, d.npop)
	if initial != nil {
		if len(initial) != d.npop {
			return nil, fmt.Errorf("de: initial population size %d does not match configured size %d", len(initial), d.npop)
		}
		for i, x := range initial {
			pop[i] = x.Clone()
		}
	} else {
		for i := range pop {
			pop[i] = d.bounds.Sample(d.rng)
		}
	}

	fits := evalAll(d.fit, pop, d.cores)
	dim := d.bounds.Dim()

	for gen := 0; gen < ngen; gen++ {
		trials := make([]param.Individual, d.npop)
		for j := 0; j < d.npop; j++ {
			r1, r2, r3 := d.pickThree(j)
			x1, x2, x3 := pop[r1], pop[r2], pop[r3]

			donor := make(param.Individual, dim)
			for k := 0; k < dim; k++ {
				donor[k] = x1[k] + d.f*(x2[k]-x3[k])
			}
			d.bounds.Clip(donor)

			trial := make(param.Individual, dim)
			for k := 0; k < dim; k++ {
				if d.rng.Float64() <= d.cr {
					trial[k] = donor[k]
				} else {
					trial[k] = pop[j][k]
				}
			}
			trials[j] = trial
		}

		trialFits := evalAll(d.fit, trials, d.cores)
		for j := 0; j < d.npop; j++ {
			if trialFits[j] > fits[j] {
				pop[j] = trials[j]
				fits[j] = trialFits[j]
			}
		}
	}

	best := 0
	for j := 1; j < d.npop; j++ {
		if fits[j] > fits[best] {
			best = j
		}
	}

	return &Result{
		Best:    pop[best].Clone(),
		BestFit: fits[best],
		Members: pop,
		Fits:    fits,
	}, nil
}

// pickThree draws three distinct population indices, none equal to j.
func (d *DE) pickThree(j int) (int, int, int) {
	idx := [3]int{}
	for i := 0; i < 3; {
		c := d.rng.Intn(d.npop)
		if c == j {
			continue
		}
		dup := false
		for k := 0; k < i; k++ {
			if idx[k] == c {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		idx[i] = c
		i++
	}
	return idx[0], idx[1], idx[2]
}
