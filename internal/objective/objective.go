// Package objective ships classic continuous benchmark functions for
// exercising and testing the ensemble.
package objective

import (
	"fmt"
	"math"
	"sort"

	"github.com/pseur/menagerie/internal/param"
	"github.com/pseur/menagerie/internal/strategy"
)

// Benchmark pairs a fitness function with a sensible default search range.
// All benchmarks are minimization problems with optimum 0 at the origin
// except Rosenbrock, whose optimum sits at (1, ..., 1).
type Benchmark struct {
	Name string
	Fn   strategy.Func
	Low  float64
	High float64
}

var registry = map[string]Benchmark{
	"sphere":     {Name: "sphere", Fn: Sphere, Low: -5.12, High: 5.12},
	"ackley":     {Name: "ackley", Fn: Ackley, Low: -32.768, High: 32.768},
	"rastrigin":  {Name: "rastrigin", Fn: Rastrigin, Low: -5.12, High: 5.12},
	"rosenbrock": {Name: "rosenbrock", Fn: Rosenbrock, Low: -2.048, High: 2.048},
	"griewank":   {Name: "griewank", Fn: Griewank, Low: -600, High: 600},
}

// Lookup returns the named benchmark.
func Lookup(name string) (Benchmark, error) {
	b, ok := registry[name]
	if !ok {
		return Benchmark{}, fmt.Errorf("unknown objective %q, available: %v", name, Names())
	}
	return b, nil
}

// Names lists the registered benchmarks in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultBounds builds dim float variables spanning the benchmark's range,
// named x1..xN.
func (b Benchmark) DefaultBounds(dim int) param.Bounds {
	bounds := make(param.Bounds, dim)
	for i := range bounds {
		bounds[i] = param.Var{
			Name: fmt.Sprintf("x%d", i+1),
			Kind: param.Float,
			Low:  b.Low,
			High: b.High,
		}
	}
	return bounds
}

// Sphere is the sum of squares.
func Sphere(x param.Individual) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// Ackley is a nearly flat outer region with a deep central funnel.
func Ackley(x param.Individual) float64 {
	n := float64(len(x))
	var sq, cs float64
	for _, v := range x {
		sq += v * v
		cs += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sq/n)) - math.Exp(cs/n) + 20 + math.E
}

// Rastrigin is highly multimodal with regularly distributed local minima.
func Rastrigin(x param.Individual) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// Rosenbrock is the banana valley; the optimum at (1, ..., 1) lies in a flat
// curved trough.
func Rosenbrock(x param.Individual) float64 {
	var sum float64
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Griewank combines a quadratic bowl with an oscillating product term.
func Griewank(x param.Individual) float64 {
	var sum float64
	prod := 1.0
	for i, v := range x {
		sum += v * v / 4000
		prod *= math.Cos(v / math.Sqrt(float64(i+1)))
	}
	return sum - prod + 1
}
