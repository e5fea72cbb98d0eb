package strategy

import (
	"github.com/pseur/menagerie/internal/param"
	"github.com/sourcegraph/conc/pool"
)

// Func is a fitness function: a pure mapping from an individual to a scalar.
// It must be safe to call concurrently.
type Func func(param.Individual) float64

// Result holds the outcome of one evolution phase.
type Result struct {
	Best    param.Individual
	BestFit float64
	Members []param.Individual // final population
	Fits    []float64          // index-aligned with Members
}

// Strategy is the contract every pluggable search algorithm satisfies.
// A strategy is constructed with a fixed population size; the ensemble
// resizes it between cycles via CloneResized because migration changes
// population sizes every cycle.
type Strategy interface {
	// Name identifies the strategy family, used for population naming in logs.
	Name() string

	// PopSize returns the population size the strategy was configured with.
	PopSize() int

	// MinRunnable reports whether a population of size n is large enough to
	// run one evolution phase.
	MinRunnable(n int) bool

	// CloneResized returns a fresh strategy with identical hyperparameters
	// except population size set to n, bound to the given fitness function
	// and bounds. The clone's random stream is derived from the parent's so
	// resized clones stay reproducible.
	CloneResized(n int, fit Func, bounds param.Bounds) (Strategy, error)

	// Evolve runs ngen generations starting from the given individuals and
	// returns the best individual, its fitness, and the full final
	// population. Deterministic given the strategy's seed state.
	Evolve(ngen int, initial []param.Individual) (*Result, error)

	// EvalsPerCycle returns the expected number of fitness evaluations spent
	// by ngen generations on a population of the given size. Bookkeeping
	// only, it never alters Evolve's behavior.
	EvalsPerCycle(ngen, popsize int) int

	// Maximizing reports the strategy's internal sign convention. The
	// ensemble flips the fitness sign when handing the function to a family
	// whose direction disagrees with the ensemble mode.
	Maximizing() bool
}

// evalAll evaluates fit over every individual, fanning out across at most
// cores goroutines when cores > 1.
func evalAll(fit Func, xs []param.Individual, cores int) []float64 {
	out := make([]float64, len(xs))
	if cores <= 1 || len(xs) < 2 {
		for i, x := range xs {
			out[i] = fit(x)
		}
		return out
	}

	p := pool.New().WithMaxGoroutines(cores)
	for i, x := range xs {
		p.Go(func() {
			out[i] = fit(x)
		})
	}
	p.Wait()
	return out
}
