// Package config loads YAML run specifications and turns them into the
// pieces an ensemble run needs: bounds, strategy instances, and the driver
// configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pseur/menagerie/internal/ensemble"
	"github.com/pseur/menagerie/internal/objective"
	"github.com/pseur/menagerie/internal/param"
	"github.com/pseur/menagerie/internal/strategy"
	"gopkg.in/yaml.v3"
)

// VarSpec declares one search-space variable in a run spec.
type VarSpec struct {
	Name string   `yaml:"name" json:"name" validate:"required"`
	Kind string   `yaml:"kind" json:"kind" validate:"required,oneof=int float cat"`
	Low  float64  `yaml:"low" json:"low"`
	High float64  `yaml:"high" json:"high"`
	Cats []string `yaml:"cats,omitempty" json:"cats,omitempty"`
}

// StrategySpec selects one strategy family and its hyperparameters. Zero
// values fall back to the family's defaults.
type StrategySpec struct {
	Family string `yaml:"family" json:"family" validate:"required,oneof=de pso woa"`
	Size   int    `yaml:"size,omitempty" json:"size,omitempty" validate:"omitempty,min=4"`

	// DE.
	F  float64 `yaml:"f,omitempty" json:"f,omitempty"`
	CR float64 `yaml:"cr,omitempty" json:"cr,omitempty"`

	// PSO.
	Inertia float64 `yaml:"inertia,omitempty" json:"inertia,omitempty"`
	C1      float64 `yaml:"c1,omitempty" json:"c1,omitempty"`
	C2      float64 `yaml:"c2,omitempty" json:"c2,omitempty"`
	VClamp  float64 `yaml:"vclamp,omitempty" json:"vclamp,omitempty"`

	// WOA.
	Spiral float64 `yaml:"spiral,omitempty" json:"spiral,omitempty"`
}

// EnsembleSpec holds the migration parameters. Alpha, Beta and Q accept a
// literal number or the annealing keywords "up" and "down".
type EnsembleSpec struct {
	Alpha   string `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	G       string `yaml:"g,omitempty" json:"g,omitempty" validate:"omitempty,oneof=fitness improve"`
	GBurden bool   `yaml:"g_burden,omitempty" json:"gBurden,omitempty"`
	Q       string `yaml:"q,omitempty" json:"q,omitempty"`
	Wt      string `yaml:"wt,omitempty" json:"wt,omitempty" validate:"omitempty,oneof=log lin exp uni"`
	Order   string `yaml:"order,omitempty" json:"order,omitempty" validate:"omitempty,oneof=wb bw awb abw"`
	KF      int    `yaml:"kf,omitempty" json:"kf,omitempty" validate:"omitempty,oneof=0 1"`
	Beta    string `yaml:"beta,omitempty" json:"beta,omitempty"`
	B       string `yaml:"b,omitempty" json:"b,omitempty" validate:"omitempty,oneof=fitness improve"`
	BBurden bool   `yaml:"b_burden,omitempty" json:"bBurden,omitempty"`
	Ret     *bool  `yaml:"ret,omitempty" json:"ret,omitempty"`
}

// Spec is a complete run specification.
type Spec struct {
	Mode        string         `yaml:"mode" json:"mode" validate:"required,oneof=min max"`
	Objective   string         `yaml:"objective,omitempty" json:"objective,omitempty"`
	Dim         int            `yaml:"dim,omitempty" json:"dim,omitempty" validate:"omitempty,min=1"`
	Cycles      int            `yaml:"cycles" json:"cycles" validate:"required,min=1"`
	GenPerCycle int            `yaml:"gen_per_cycle" json:"genPerCycle" validate:"required,min=1"`
	Seed        int64          `yaml:"seed,omitempty" json:"seed,omitempty"`
	Cores       int            `yaml:"cores,omitempty" json:"cores,omitempty" validate:"omitempty,min=1"`
	Bounds      []VarSpec      `yaml:"bounds,omitempty" json:"bounds,omitempty" validate:"omitempty,dive"`
	Ensemble    EnsembleSpec   `yaml:"ensemble,omitempty" json:"ensemble,omitempty"`
	Strategies  []StrategySpec `yaml:"strategies" json:"strategies" validate:"required,min=1,dive"`
}

// Load reads and validates a YAML run spec from the given path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	return Parse(data)
}

// Parse validates a YAML run spec from raw bytes.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec yaml: %w", err)
	}
	if err := spec.Finalize(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Finalize fills unset fields with defaults and validates the spec. Callers
// assembling a Spec in code use this in place of Load/Parse.
func (s *Spec) Finalize() error {
	s.applyDefaults()
	return s.Validate()
}

func (s *Spec) applyDefaults() {
	if s.Cores == 0 {
		s.Cores = 1
	}
	e := &s.Ensemble
	if e.Alpha == "" {
		e.Alpha = "1"
	}
	if e.G == "" {
		e.G = ensemble.MeasureFitness
	}
	if e.Q == "" {
		e.Q = "1"
	}
	if e.Wt == "" {
		e.Wt = ensemble.WtLog
	}
	if e.Wt != ensemble.WtUni && e.Order == "" {
		e.Order = ensemble.OrderAWB
	}
	if e.Beta == "" {
		e.Beta = "1"
	}
	if e.B == "" {
		e.B = ensemble.MeasureFitness
	}
	if e.Ret == nil {
		ret := true
		e.Ret = &ret
	}
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func (s *Spec) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid run spec: %w", err)
	}

	if s.Objective == "" && len(s.Bounds) == 0 {
		return fmt.Errorf("invalid run spec: either objective or bounds must be given")
	}
	if s.Objective != "" {
		if _, err := objective.Lookup(s.Objective); err != nil {
			return fmt.Errorf("invalid run spec: %w", err)
		}
		if len(s.Bounds) == 0 && s.Dim == 0 {
			return fmt.Errorf("invalid run spec: dim is required when the objective uses default bounds")
		}
	}

	for _, v := range s.Bounds {
		if v.Kind == "cat" && len(v.Cats) == 0 {
			return fmt.Errorf("invalid run spec: categorical variable %q has no categories", v.Name)
		}
	}

	for _, name := range []string{"alpha", "beta"} {
		if err := validateSchedule(name, s.scheduleText(name), false); err != nil {
			return err
		}
	}
	if err := validateSchedule("q", s.Ensemble.Q, true); err != nil {
		return err
	}

	if !*s.Ensemble.Ret && len(s.Strategies) < 2 {
		return fmt.Errorf("invalid run spec: ret=false requires at least two strategies")
	}
	return nil
}

func (s *Spec) scheduleText(name string) string {
	if name == "alpha" {
		return s.Ensemble.Alpha
	}
	return s.Ensemble.Beta
}

func validateSchedule(name, text string, signed bool) error {
	if text == "up" || text == "down" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid run spec: %s must be a number, up, or down, got %q", name, text)
	}
	if !signed && v < 0 {
		return fmt.Errorf("invalid run spec: %s must not be negative, got %v", name, v)
	}
	return nil
}

func parseSchedule(text string) ensemble.Schedule {
	switch text {
	case "up":
		return ensemble.Up()
	case "down":
		return ensemble.Down()
	}
	v, _ := strconv.ParseFloat(text, 64)
	return ensemble.Fixed(v)
}

// BuildBounds resolves the search space: explicit bounds win, otherwise the
// objective's default range over Dim float variables.
func (s *Spec) BuildBounds() (param.Bounds, error) {
	if len(s.Bounds) > 0 {
		bounds := make(param.Bounds, len(s.Bounds))
		for i, v := range s.Bounds {
			bounds[i] = param.Var{
				Name: v.Name,
				Kind: param.Kind(v.Kind),
				Low:  v.Low,
				High: v.High,
				Cats: v.Cats,
			}
		}
		if err := bounds.Validate(); err != nil {
			return nil, fmt.Errorf("invalid bounds: %w", err)
		}
		return bounds, nil
	}

	bench, err := objective.Lookup(s.Objective)
	if err != nil {
		return nil, err
	}
	return bench.DefaultBounds(s.Dim), nil
}

// BuildFitness resolves the named objective function. Callers with a custom
// fitness skip this and supply their own.
func (s *Spec) BuildFitness() (strategy.Func, error) {
	if s.Objective == "" {
		return nil, fmt.Errorf("run spec names no objective")
	}
	bench, err := objective.Lookup(s.Objective)
	if err != nil {
		return nil, err
	}
	return bench.Fn, nil
}

// BuildStrategies instantiates the configured strategy families. Each gets a
// seed derived from the spec seed by position, so runs stay reproducible.
func (s *Spec) BuildStrategies() ([]strategy.Strategy, error) {
	strats := make([]strategy.Strategy, 0, len(s.Strategies))
	for i, ss := range s.Strategies {
		seed := s.Seed + int64(i) + 1
		strat, err := buildStrategy(ss, s.Cores, seed)
		if err != nil {
			return nil, fmt.Errorf("failed to build strategy %d (%s): %w", i+1, ss.Family, err)
		}
		strats = append(strats, strat)
	}
	return strats, nil
}

func buildStrategy(ss StrategySpec, cores int, seed int64) (strategy.Strategy, error) {
	switch strings.ToLower(ss.Family) {
	case "de":
		cfg := strategy.DEConfig{NPop: 30, F: 0.5, CR: 0.7, Cores: cores, Seed: seed}
		if ss.Size > 0 {
			cfg.NPop = ss.Size
		}
		if ss.F > 0 {
			cfg.F = ss.F
		}
		if ss.CR > 0 {
			cfg.CR = ss.CR
		}
		return strategy.NewDE(cfg)
	case "pso":
		cfg := strategy.DefaultPSOConfig()
		cfg.Cores = cores
		cfg.Seed = seed
		if ss.Size > 0 {
			cfg.NPar = ss.Size
		}
		if ss.Inertia > 0 {
			cfg.Inertia = ss.Inertia
		}
		if ss.C1 > 0 {
			cfg.C1 = ss.C1
		}
		if ss.C2 > 0 {
			cfg.C2 = ss.C2
		}
		if ss.VClamp > 0 {
			cfg.VClamp = ss.VClamp
		}
		return strategy.NewPSO(cfg)
	case "woa":
		cfg := strategy.DefaultWOAConfig()
		cfg.Cores = cores
		cfg.Seed = seed
		if ss.Size > 0 {
			cfg.NWhales = ss.Size
		}
		if ss.Spiral > 0 {
			cfg.Spiral = ss.Spiral
		}
		return strategy.NewWOA(cfg)
	default:
		return nil, fmt.Errorf("unknown strategy family %q", ss.Family)
	}
}

// StrategyNames lists the configured family names in spec order.
func (s *Spec) StrategyNames() []string {
	names := make([]string, len(s.Strategies))
	for i, ss := range s.Strategies {
		names[i] = strings.ToUpper(ss.Family)
	}
	return names
}

// BuildEnsemble assembles the driver configuration around the given bounds
// and fitness function.
func (s *Spec) BuildEnsemble(bounds param.Bounds, fit strategy.Func) (ensemble.Config, error) {
	strats, err := s.BuildStrategies()
	if err != nil {
		return ensemble.Config{}, err
	}
	return ensemble.Config{
		Mode:        s.Mode,
		Bounds:      bounds,
		Fit:         fit,
		Strategies:  strats,
		GenPerCycle: s.GenPerCycle,
		Alpha:       parseSchedule(s.Ensemble.Alpha),
		G:           s.Ensemble.G,
		GBurden:     s.Ensemble.GBurden,
		Q:           parseSchedule(s.Ensemble.Q),
		Wt:          s.Ensemble.Wt,
		Order:       s.Ensemble.Order,
		KF:          s.Ensemble.KF,
		Beta:        parseSchedule(s.Ensemble.Beta),
		B:           s.Ensemble.B,
		BBurden:     s.Ensemble.BBurden,
		Ret:         *s.Ensemble.Ret,
		Cores:       s.Cores,
		Seed:        s.Seed,
	}, nil
}
