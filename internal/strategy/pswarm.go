package strategy

import (
	"fmt"
	"math/rand"

	"github.com/pseur/menagerie/internal/param"
)

// PSOConfig holds particle swarm hyperparameters.
type PSOConfig struct {
	NPar    int     // number of particles
	Inertia float64 // velocity inertia weight
	C1      float64 // cognitive coefficient
	C2      float64 // social coefficient
	VClamp  float64 // velocity limit as a fraction of each variable's range
	Cores   int
	Seed    int64
}

// DefaultPSOConfig returns the usual global-best swarm coefficients.
func DefaultPSOConfig() PSOConfig {
	return PSOConfig{
		NPar:    30,
		Inertia: 0.7,
		C1:      1.5,
		C2:      1.5,
		VClamp:  0.2,
		Cores:   1,
	}
}

// PSO is a global-best particle swarm. It internally maximizes.
type PSO struct {
	npar    int
	inertia float64
	c1, c2  float64
	vclamp  float64
	cores   int
	fit     Func
	bounds  param.Bounds
	rng     *rand.Rand
}

// NewPSO creates a particle swarm strategy.
func NewPSO(cfg PSOConfig) (*PSO, error) {
	if cfg.NPar < 2 {
		return nil, fmt.Errorf("pso: at least 2 particles required, got %d", cfg.NPar)
	}
	if cfg.VClamp <= 0 || cfg.VClamp > 1 {
		return nil, fmt.Errorf("pso: velocity clamp must be in (0, 1], got %v", cfg.VClamp)
	}
	cores := cfg.Cores
	if cores < 1 {
		cores = 1
	}
	return &PSO{
		npar:    cfg.NPar,
		inertia: cfg.Inertia,
		c1:      cfg.C1,
		c2:      cfg.C2,
		vclamp:  cfg.VClamp,
		cores:   cores,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (p *PSO) Name() string           { return "PSO" }
func (p *PSO) PopSize() int           { return p.npar }
func (p *PSO) Maximizing() bool       { return true }
func (p *PSO) MinRunnable(n int) bool { return n >= 5 }

// EvalsPerCycle counts the initial swarm evaluation plus one per particle per
// generation.
func (p *PSO) EvalsPerCycle(ngen, popsize int) int {
	return (ngen + 1) * popsize
}

func (p *PSO) CloneResized(n int, fit Func, bounds param.Bounds) (Strategy, error) {
	if n < 2 {
		return nil, fmt.Errorf("pso: at least 2 particles required, got %d", n)
	}
	return &PSO{
		npar:    n,
		inertia: p.inertia,
		c1:      p.c1,
		c2:      p.c2,
		vclamp:  p.vclamp,
		cores:   p.cores,
		fit:     fit,
		bounds:  bounds,
		rng:     rand.New(rand.NewSource(p.rng.Int63())),
	}, nil
}

func (p *PSO) Evolve(ngen int, initial []param.Individual) (*Result, error) {
	if p.fit == nil || p.bounds == nil {
		return nil, fmt.Errorf("pso: fitness function and bounds not bound, clone before evolving")
	}

	pos := make([]param.Individual, p.npar)
	if initial != nil {
		if len(initial) != p.npar {
			return nil, fmt.Errorf("pso: initial population size %d does not match configured size %d", len(initial), p.npar)
		}
		for i, x := range initial {
			pos[i] = x.Clone()
		}
	} else {
		for i := range pos {
			pos[i] = p.bounds.Sample(p.rng)
		}
	}

	dim := p.bounds.Dim()
	lower, upper := p.bounds.Lower(), p.bounds.Upper()

	vmax := make([]float64, dim)
	for k := 0; k < dim; k++ {
		vmax[k] = p.vclamp * (upper[k] - lower[k])
	}

	vel := make([][]float64, p.npar)
	for i := range vel {
		vel[i] = make([]float64, dim)
		for k := 0; k < dim; k++ {
			vel[i][k] = (2*p.rng.Float64() - 1) * vmax[k]
		}
	}

	fits := evalAll(p.fit, pos, p.cores)

	pbest := make([]param.Individual, p.npar)
	pbestFit := make([]float64, p.npar)
	gbest := 0
	for i := range pos {
		pbest[i] = pos[i].Clone()
		pbestFit[i] = fits[i]
		if fits[i] > fits[gbest] {
			gbest = i
		}
	}
	gbestX := pbest[gbest].Clone()
	gbestFit := pbestFit[gbest]

	for gen := 0; gen < ngen; gen++ {
		for i := 0; i < p.npar; i++ {
			for k := 0; k < dim; k++ {
				r1, r2 := p.rng.Float64(), p.rng.Float64()
				v := p.inertia*vel[i][k] +
					p.c1*r1*(pbest[i][k]-pos[i][k]) +
					p.c2*r2*(gbestX[k]-pos[i][k])
				if v > vmax[k] {
					v = vmax[k]
				}
				if v < -vmax[k] {
					v = -vmax[k]
				}
				vel[i][k] = v
				pos[i][k] += v
			}
			p.bounds.Clip(pos[i])
		}

		fits = evalAll(p.fit, pos, p.cores)
		for i := 0; i < p.npar; i++ {
			if fits[i] > pbestFit[i] {
				pbestFit[i] = fits[i]
				pbest[i] = pos[i].Clone()
			}
			if fits[i] > gbestFit {
				gbestFit = fits[i]
				gbestX = pos[i].Clone()
			}
		}
	}

	return &Result{
		Best:    gbestX,
		BestFit: gbestFit,
		Members: pos,
		Fits:    fits,
	}, nil
}
