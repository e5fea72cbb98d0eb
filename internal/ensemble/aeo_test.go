package ensemble

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pseur/menagerie/internal/param"
	"github.com/pseur/menagerie/internal/strategy"
)

// randomSearch is a minimal maximizing strategy for exercising the driver
// with populations smaller than the real families can run.
type randomSearch struct {
	size   int
	fit    strategy.Func
	bounds param.Bounds
	rng    *rand.Rand
}

func newRandomSearch(size int, seed int64) *randomSearch {
	return &randomSearch{size: size, rng: rand.New(rand.NewSource(seed))}
}

func (r *randomSearch) Name() string                  { return "RS" }
func (r *randomSearch) PopSize() int                  { return r.size }
func (r *randomSearch) MinRunnable(n int) bool        { return n >= 1 }
func (r *randomSearch) Maximizing() bool              { return true }
func (r *randomSearch) EvalsPerCycle(ngen, n int) int { return ngen * n }

func (r *randomSearch) CloneResized(n int, fit strategy.Func, bounds param.Bounds) (strategy.Strategy, error) {
	return &randomSearch{
		size:   n,
		fit:    fit,
		bounds: bounds,
		rng:    rand.New(rand.NewSource(r.rng.Int63())),
	}, nil
}

func (r *randomSearch) Evolve(ngen int, initial []param.Individual) (*strategy.Result, error) {
	var members []param.Individual
	if initial == nil {
		members = r.bounds.SampleN(r.rng, r.size)
	} else {
		if len(initial) != r.size {
			return nil, fmt.Errorf("rs: initial population size %d does not match %d", len(initial), r.size)
		}
		members = make([]param.Individual, r.size)
		for i, x := range initial {
			members[i] = x.Clone()
			r.bounds.Clip(members[i])
		}
	}

	fits := make([]float64, len(members))
	for i, x := range members {
		fits[i] = r.fit(x)
	}
	for g := 0; g < ngen; g++ {
		for i := range members {
			cand := r.bounds.Sample(r.rng)
			if f := r.fit(cand); f > fits[i] {
				members[i], fits[i] = cand, f
			}
		}
	}

	bi := 0
	for i, f := range fits {
		if f > fits[bi] {
			bi = i
		}
	}
	return &strategy.Result{
		Best:    members[bi].Clone(),
		BestFit: fits[bi],
		Members: members,
		Fits:    fits,
	}, nil
}

func testStrategies(t *testing.T) []strategy.Strategy {
	t.Helper()

	de, err := strategy.NewDE(strategy.DEConfig{NPop: 10, F: 0.5, CR: 0.7, Seed: 1})
	if err != nil {
		t.Fatalf("NewDE failed: %v", err)
	}
	psoCfg := strategy.DefaultPSOConfig()
	psoCfg.NPar = 8
	psoCfg.Seed = 2
	pso, err := strategy.NewPSO(psoCfg)
	if err != nil {
		t.Fatalf("NewPSO failed: %v", err)
	}
	return []strategy.Strategy{de, pso}
}

func testConfig(t *testing.T) Config {
	t.Helper()

	return Config{
		Mode:        ModeMin,
		Bounds:      testPopBounds(t),
		Fit:         sphereFit,
		Strategies:  testStrategies(t),
		GenPerCycle: 3,
		Alpha:       Fixed(1),
		G:           MeasureFitness,
		Q:           Fixed(1),
		Wt:          WtUni,
		Beta:        Fixed(1),
		B:           MeasureFitness,
		Ret:         true,
		Seed:        42,
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "sideways" }},
		{"nil fitness", func(c *Config) { c.Fit = nil }},
		{"empty bounds", func(c *Config) { c.Bounds = param.Bounds{} }},
		{"no strategies", func(c *Config) { c.Strategies = nil }},
		{"zero generations", func(c *Config) { c.GenPerCycle = 0 }},
		{"negative alpha", func(c *Config) { c.Alpha = Fixed(-1) }},
		{"bad alpha anneal", func(c *Config) { c.Alpha = Schedule{Anneal: "sideways"} }},
		{"negative beta", func(c *Config) { c.Beta = Fixed(-0.5) }},
		{"bad q anneal", func(c *Config) { c.Q = Schedule{Anneal: "sideways"} }},
		{"bad export measure", func(c *Config) { c.G = "luck" }},
		{"bad destination measure", func(c *Config) { c.B = "luck" }},
		{"bad weighting scheme", func(c *Config) { c.Wt = "quadratic" }},
		{"bad order", func(c *Config) { c.Wt = WtLog; c.Order = "zigzag" }},
		{"bad kf", func(c *Config) { c.Wt = WtLog; c.Order = OrderAWB; c.KF = 2 }},
		{"no-return single population", func(c *Config) {
			c.Ret = false
			c.Strategies = c.Strategies[:1]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("Expected a configuration error, got nil")
			}
		})
	}

	if _, err := New(testConfig(t)); err != nil {
		t.Errorf("Valid configuration rejected: %v", err)
	}
}

func TestEvolute_InvalidCycleCount(t *testing.T) {
	driver, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := driver.Evolute(0, nil); err == nil {
		t.Error("Zero cycles should fail")
	}
}

func TestEvolute_RunsFullScenario(t *testing.T) {
	cfg := testConfig(t)
	driver, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const ncyc = 4
	log, err := driver.Evolute(ncyc, &RunOptions{NPop0: []int{6, 5}})
	if err != nil {
		t.Fatalf("Evolute failed: %v", err)
	}

	if log.Completed != ncyc {
		t.Errorf("Completed = %d, want %d", log.Completed, ncyc)
	}
	if len(log.PopNames) != 2 || log.PopNames[0] != "DE" || log.PopNames[1] != "PSO" {
		t.Errorf("Population names = %v", log.PopNames)
	}
	if len(log.Initial[0]) != 6 || len(log.Initial[1]) != 5 {
		t.Errorf("Initial split %d/%d, want 6/5", len(log.Initial[0]), len(log.Initial[1]))
	}

	if len(log.BestX) != 2 {
		t.Fatalf("BestX has %d variables, want 2", len(log.BestX))
	}
	if math.IsInf(log.BestFit, 0) || math.IsNaN(log.BestFit) {
		t.Fatalf("BestFit not finite: %v", log.BestFit)
	}
	if got := sphereFit(log.BestX); math.Abs(got-log.BestFit) > 1e-9 {
		t.Errorf("BestFit %v does not match f(BestX) = %v", log.BestFit, got)
	}

	for cyc := 1; cyc <= ncyc; cyc++ {
		rec := log.CycleAt(cyc)
		if rec.FMin > rec.FMax {
			t.Errorf("Cycle %d: fmin %v exceeds fmax %v", cyc, rec.FMin, rec.FMax)
		}
		if !rec.Migration && rec.FMin != rec.FMax {
			t.Errorf("Cycle %d: migration disabled despite a diversity signal", cyc)
		}

		// total membership is conserved across migration
		total := 0
		for p := 0; p < 2; p++ {
			pc := log.At(p, cyc)
			total += pc.N
			if pc.NExport < 0 || pc.NExport > pc.N {
				t.Errorf("Cycle %d pop %d: export count %d outside [0, %d]", cyc, p, pc.NExport, pc.N)
			}
			if !rec.Migration && pc.NExport != 0 {
				t.Errorf("Cycle %d pop %d: exported %d members on a no-migration cycle", cyc, p, pc.NExport)
			}
		}
		if total != 11 {
			t.Errorf("Cycle %d: population sizes sum to %d, want 11", cyc, total)
		}

		exported := log.At(0, cyc).NExport + log.At(1, cyc).NExport
		allotted := log.At(0, cyc).Allot + log.At(1, cyc).Allot
		if exported != allotted {
			t.Errorf("Cycle %d: %d exported but %d allotted", cyc, exported, allotted)
		}
	}
}

func TestEvolute_Deterministic(t *testing.T) {
	run := func() float64 {
		driver, err := New(testConfig(t))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		log, err := driver.Evolute(3, nil)
		if err != nil {
			t.Fatalf("Evolute failed: %v", err)
		}
		return log.BestFit
	}

	if a, b := run(), run(); a != b {
		t.Errorf("Same seed produced different best fitness: %v vs %v", a, b)
	}
}

func TestEvolute_RankedWeighting(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wt = WtLog
	cfg.Order = OrderAWB
	cfg.KF = 1
	cfg.Alpha = Up()
	cfg.Beta = Down()
	cfg.Q = Up()

	driver, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const ncyc = 4
	log, err := driver.Evolute(ncyc, nil)
	if err != nil {
		t.Fatalf("Evolute failed: %v", err)
	}

	first, last := log.CycleAt(1), log.CycleAt(ncyc)
	if first.Alpha != 0 || last.Alpha != 1 {
		t.Errorf("Annealed alpha endpoints %v..%v, want 0..1", first.Alpha, last.Alpha)
	}
	if first.Beta != 1 || last.Beta != 0 {
		t.Errorf("Annealed beta endpoints %v..%v, want 1..0", first.Beta, last.Beta)
	}
	if first.Q != -1 || last.Q != 1 {
		t.Errorf("Annealed q endpoints %v..%v, want -1..1", first.Q, last.Q)
	}
}

func TestEvolute_NoReturnRouting(t *testing.T) {
	// with exactly two populations, no-return routing forces every export
	// into the opposite population
	cfg := testConfig(t)
	cfg.Ret = false

	driver, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const ncyc = 3
	log, err := driver.Evolute(ncyc, &RunOptions{NPop0: []int{8, 8}})
	if err != nil {
		t.Fatalf("Evolute failed: %v", err)
	}

	for cyc := 1; cyc <= ncyc; cyc++ {
		a, b := log.At(0, cyc), log.At(1, cyc)
		if a.N+b.N != 16 {
			t.Errorf("Cycle %d: sizes sum to %d, want 16", cyc, a.N+b.N)
		}
		if a.Allot != b.NExport || b.Allot != a.NExport {
			t.Errorf("Cycle %d: exports not cross-routed: nexport %d/%d, allot %d/%d",
				cyc, a.NExport, b.NExport, a.Allot, b.Allot)
		}
	}
}

func TestEvolute_SmallMixedBoundsScenario(t *testing.T) {
	bounds := param.Bounds{
		{Name: "x1", Kind: param.Float, Low: 0, High: 1},
		{Name: "x2", Kind: param.Int, Low: 0, High: 10},
	}
	cfg := Config{
		Mode:        ModeMax,
		Bounds:      bounds,
		Fit:         func(x param.Individual) float64 { return x[0] + x[1] },
		Strategies:  []strategy.Strategy{newRandomSearch(6, 1), newRandomSearch(4, 2)},
		GenPerCycle: 5,
		Alpha:       Fixed(1),
		G:           MeasureFitness,
		Q:           Fixed(1),
		Wt:          WtUni,
		Beta:        Fixed(1),
		B:           MeasureFitness,
		Ret:         true,
		Seed:        9,
	}

	driver, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	const ncyc = 3
	log, err := driver.Evolute(ncyc, nil)
	if err != nil {
		t.Fatalf("Evolute failed: %v", err)
	}
	if log.Completed != ncyc {
		t.Fatalf("Completed = %d, want %d", log.Completed, ncyc)
	}

	for cyc := 1; cyc <= ncyc; cyc++ {
		total := 0
		for p := 0; p < 2; p++ {
			pc := log.At(p, cyc)
			total += pc.N
			if pc.NExport < 0 || pc.NExport > pc.N {
				t.Errorf("Cycle %d pop %d: export count %d outside [0, %d]", cyc, p, pc.NExport, pc.N)
			}
		}
		if total != 10 {
			t.Errorf("Cycle %d: sizes sum to %d, want 10", cyc, total)
		}

		rec := log.CycleAt(cyc)
		if !rec.Migration && rec.FMin != rec.FMax {
			t.Errorf("Cycle %d: migration false despite distinct extrema", cyc)
		}
		if rec.Migration && rec.FMin == rec.FMax {
			t.Errorf("Cycle %d: migration true despite identical extrema", cyc)
		}
	}
}

func TestEvolute_MaxMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = ModeMax
	cfg.Fit = func(x param.Individual) float64 { return -sphereFit(x) }

	driver, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log, err := driver.Evolute(3, nil)
	if err != nil {
		t.Fatalf("Evolute failed: %v", err)
	}

	if log.BestFit > 0 {
		t.Errorf("Negated sphere maximum cannot exceed 0, got %v", log.BestFit)
	}
	if log.BestFit < -50 {
		t.Errorf("Best fitness %v shows no progress toward the optimum", log.BestFit)
	}
}

func TestEvolute_ObserverAndStop(t *testing.T) {
	cfg := testConfig(t)

	var events []CycleEvent
	cfg.Observer = func(e CycleEvent) { events = append(events, e) }
	cfg.Stop = func() bool { return len(events) >= 2 }

	driver, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log, err := driver.Evolute(50, nil)
	if err != nil {
		t.Fatalf("Evolute failed: %v", err)
	}

	if log.Completed != 2 {
		t.Errorf("Stop after 2 cycles left Completed = %d", log.Completed)
	}
	if len(events) != 2 {
		t.Fatalf("Observer received %d events, want 2", len(events))
	}
	for i, e := range events {
		if e.Cycle != i+1 {
			t.Errorf("Event %d has cycle %d", i, e.Cycle)
		}
		if len(e.Sizes) != 2 || len(e.Fits) != 2 {
			t.Errorf("Event %d sizes/fits %d/%d, want 2/2", i, len(e.Sizes), len(e.Fits))
		}
	}
}

func TestEvolute_ExplicitInitialMembers(t *testing.T) {
	cfg := testConfig(t)
	driver, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	x0 := make([]param.Individual, 12)
	pop0 := make([]int, 12)
	for i := range x0 {
		x0[i] = param.Individual{float64(i%5) - 2, 1}
		pop0[i] = i % 2
	}

	log, err := driver.Evolute(2, &RunOptions{X0: x0, Pop0: pop0})
	if err != nil {
		t.Fatalf("Evolute failed: %v", err)
	}
	if len(log.Initial[0]) != 6 || len(log.Initial[1]) != 6 {
		t.Errorf("Explicit split %d/%d, want 6/6", len(log.Initial[0]), len(log.Initial[1]))
	}
}

func TestEvolute_RunOptionErrors(t *testing.T) {
	tests := []struct {
		name string
		opts *RunOptions
	}{
		{"x0 pop0 length mismatch", &RunOptions{X0: make([]param.Individual, 3), Pop0: []int{0}}},
		{"pop0 out of range", &RunOptions{X0: make([]param.Individual, 1), Pop0: []int{7}}},
		{"npop0 length mismatch", &RunOptions{NPop0: []int{5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, err := New(testConfig(t))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if _, err := driver.Evolute(2, tt.opts); err == nil {
				t.Error("Expected an error, got nil")
			}
		})
	}
}

func TestPopNames_DuplicateFamilies(t *testing.T) {
	de1, _ := strategy.NewDE(strategy.DEConfig{NPop: 10, F: 0.5, CR: 0.7})
	de2, _ := strategy.NewDE(strategy.DEConfig{NPop: 10, F: 0.8, CR: 0.9})
	de3, _ := strategy.NewDE(strategy.DEConfig{NPop: 10, F: 0.3, CR: 0.5})

	names := popNames([]strategy.Strategy{de1, de2, de3})
	want := []string{"DE", "DE002", "DE003"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
