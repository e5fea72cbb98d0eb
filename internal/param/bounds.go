package param

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// Kind identifies the type of a bound variable.
type Kind string

const (
	Int   Kind = "int"   // inclusive integer range
	Float Kind = "float" // inclusive real range
	Cat   Kind = "cat"   // discrete category set
)

// Var declares one search-space variable: a name, a kind, and either a
// numeric range (Int, Float) or a category set (Cat).
type Var struct {
	Name string
	Kind Kind
	Low  float64
	High float64
	Cats []string
}

// Bounds is an ordered list of variables. The order defines the layout of
// every Individual vector: component i of an individual belongs to Bounds[i].
type Bounds []Var

// Individual is one candidate solution: a numeric vector with one component
// per bound variable, in bound order. Categorical components hold the index
// of the selected category.
type Individual []float64

// Clone returns an independent copy of the individual.
func (x Individual) Clone() Individual {
	out := make(Individual, len(x))
	copy(out, x)
	return out
}

// Dim returns the search-space dimensionality.
func (b Bounds) Dim() int {
	return len(b)
}

// Names returns the variable names in bound order.
func (b Bounds) Names() []string {
	names := make([]string, len(b))
	for i, v := range b {
		names[i] = v.Name
	}
	return names
}

// Validate checks that every variable is well-formed.
func (b Bounds) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("bounds cannot be empty")
	}
	for i, v := range b {
		if v.Name == "" {
			return fmt.Errorf("bounds[%d]: name cannot be empty", i)
		}
		switch v.Kind {
		case Int, Float:
			if v.Low > v.High {
				return fmt.Errorf("bounds[%d] (%s): low %v exceeds high %v", i, v.Name, v.Low, v.High)
			}
		case Cat:
			if len(v.Cats) == 0 {
				return fmt.Errorf("bounds[%d] (%s): category set cannot be empty", i, v.Name)
			}
		default:
			return fmt.Errorf("bounds[%d] (%s): unknown kind %q, use int, float, or cat", i, v.Name, v.Kind)
		}
	}
	return nil
}

// Sample draws one individual uniformly at random within the bounds.
func (b Bounds) Sample(rng *rand.Rand) Individual {
	x := make(Individual, len(b))
	for i, v := range b {
		switch v.Kind {
		case Int:
			lo, hi := int64(v.Low), int64(v.High)
			x[i] = float64(lo + rng.Int63n(hi-lo+1))
		case Float:
			x[i] = v.Low + rng.Float64()*(v.High-v.Low)
		case Cat:
			x[i] = float64(rng.Intn(len(v.Cats)))
		}
	}
	return x
}

// SampleN draws n independent individuals.
func (b Bounds) SampleN(rng *rand.Rand, n int) []Individual {
	out := make([]Individual, n)
	for i := range out {
		out[i] = b.Sample(rng)
	}
	return out
}

// Clip repairs x in place: every component is clamped into its variable's
// range, and Int/Cat components are rounded to the nearest valid value. The
// vector always keeps its full length.
func (b Bounds) Clip(x Individual) {
	for i, v := range b {
		if i >= len(x) {
			return
		}
		lo, hi := v.Low, v.High
		if v.Kind == Cat {
			lo, hi = 0, float64(len(v.Cats)-1)
		}
		val := x[i]
		if v.Kind == Int || v.Kind == Cat {
			val = math.Round(val)
		}
		if val < lo {
			val = lo
		}
		if val > hi {
			val = hi
		}
		x[i] = val
	}
}

// Lower returns the lower bound of every variable (0 for categorical).
func (b Bounds) Lower() []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		if v.Kind == Cat {
			out[i] = 0
			continue
		}
		out[i] = v.Low
	}
	return out
}

// Upper returns the upper bound of every variable (last category index for
// categorical).
func (b Bounds) Upper() []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		if v.Kind == Cat {
			out[i] = float64(len(v.Cats) - 1)
			continue
		}
		out[i] = v.High
	}
	return out
}

// EncodeGrid returns a copy of the bounds with every categorical variable
// replaced by an inclusive integer index range, plus a map from variable
// position to its category set for decoding. Strategies operate on the
// encoded bounds; presentation code decodes indices back to category values.
func (b Bounds) EncodeGrid() (Bounds, map[int][]string) {
	enc := make(Bounds, len(b))
	grid := make(map[int][]string)
	for i, v := range b {
		if v.Kind == Cat {
			enc[i] = Var{Name: v.Name, Kind: Int, Low: 0, High: float64(len(v.Cats) - 1)}
			grid[i] = v.Cats
			continue
		}
		enc[i] = v
	}
	return enc, grid
}

// Format renders an individual as one string per variable, decoding
// categorical indices back to their category values.
func (b Bounds) Format(x Individual) []string {
	out := make([]string, 0, len(b))
	for i, v := range b {
		if i >= len(x) {
			break
		}
		switch v.Kind {
		case Int:
			out = append(out, strconv.FormatInt(int64(math.Round(x[i])), 10))
		case Cat:
			idx := int(math.Round(x[i]))
			if idx < 0 {
				idx = 0
			}
			if idx >= len(v.Cats) {
				idx = len(v.Cats) - 1
			}
			out = append(out, v.Cats[idx])
		default:
			out = append(out, strconv.FormatFloat(x[i], 'g', -1, 64))
		}
	}
	return out
}
