package ensemble

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/pseur/menagerie/internal/param"
	"github.com/pseur/menagerie/internal/runlog"
	"github.com/pseur/menagerie/internal/strategy"
	"github.com/sourcegraph/conc/pool"
)

// Optimization modes shared by every population in the ensemble.
const (
	ModeMin = "min"
	ModeMax = "max"
)

// Strength measures for the export-count and destination-selection phases.
const (
	MeasureFitness = "fitness"
	MeasureImprove = "improve"
)

// CycleEvent is delivered to the optional observer after every completed
// cycle.
type CycleEvent struct {
	Cycle     int
	Sizes     []int
	Fits      []float64
	FMin      float64
	FMax      float64
	Migration bool
	Best      float64
}

// Config holds the ensemble parameters. See New for validation rules.
type Config struct {
	Mode       string
	Bounds     param.Bounds
	Fit        strategy.Func
	Strategies []strategy.Strategy

	// GenPerCycle is the number of generations each population evolves per
	// cycle.
	GenPerCycle int

	// Export-count phase: strength measure G (optionally cost-burdened),
	// raised to the annealed exponent Alpha, skewed into a binomial
	// probability by Q.
	Alpha   Schedule
	G       string
	GBurden bool
	Q       Schedule

	// Member-selection phase: weighting scheme, ordering, and kf variant.
	Wt    string
	Order string
	KF    int

	// Destination-selection phase: strength measure B (optionally
	// cost-burdened) raised to the annealed exponent Beta. Ret allows an
	// exported individual to return to its origin population.
	Beta    Schedule
	B       string
	BBurden bool
	Ret     bool

	// Cores > 1 evolves populations in parallel. Each population draws from
	// its own sub-seeded random stream, so results stay reproducible.
	Cores int
	Seed  int64

	// Observer, if set, receives a CycleEvent after every completed cycle.
	Observer func(CycleEvent)

	// Stop, if set, is checked at the end of every cycle; returning true
	// terminates the run early with the log consistent up to that cycle.
	Stop func() bool
}

// RunOptions selects how the initial members are split across populations.
// At most one of NPop0 or X0/Pop0 may be set; with neither, each strategy's
// configured population size is used.
type RunOptions struct {
	// NPop0 gives an explicit initial member count per population.
	NPop0 []int

	// X0 gives explicit initial individuals and Pop0 assigns each one to a
	// population index. The two must have equal length.
	X0   []param.Individual
	Pop0 []int
}

// AEO coordinates several independent search strategies, periodically
// migrating members between their populations using strength-weighted
// stochastic rules.
type AEO struct {
	cfg  Config
	rng  *rand.Rand
	pops []*Population
}

// New validates the configuration and creates an ensemble driver.
func New(cfg Config) (*AEO, error) {
	if cfg.Mode != ModeMin && cfg.Mode != ModeMax {
		return nil, fmt.Errorf("unsupported mode %q, use min or max", cfg.Mode)
	}
	if cfg.Fit == nil {
		return nil, fmt.Errorf("fitness function is required")
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bounds: %w", err)
	}
	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("at least one strategy is required")
	}
	if cfg.GenPerCycle < 1 {
		return nil, fmt.Errorf("generations per cycle must be positive, got %d", cfg.GenPerCycle)
	}

	if err := validateExponent("alpha", cfg.Alpha); err != nil {
		return nil, err
	}
	if err := validateExponent("beta", cfg.Beta); err != nil {
		return nil, err
	}
	if cfg.Q.Anneal != "" && cfg.Q.Anneal != "up" && cfg.Q.Anneal != "down" {
		return nil, fmt.Errorf("unsupported q annealing %q, use up or down", cfg.Q.Anneal)
	}

	if cfg.G != MeasureFitness && cfg.G != MeasureImprove {
		return nil, fmt.Errorf("unsupported export strength measure %q, use fitness or improve", cfg.G)
	}
	if cfg.B != MeasureFitness && cfg.B != MeasureImprove {
		return nil, fmt.Errorf("unsupported destination strength measure %q, use fitness or improve", cfg.B)
	}

	switch cfg.Wt {
	case WtLog, WtLin, WtExp, WtUni:
	default:
		return nil, fmt.Errorf("unsupported weighting scheme %q, use log, lin, exp, or uni", cfg.Wt)
	}

	if cfg.Wt == WtUni {
		if cfg.Order != "" {
			slog.Warn("order option ignored for uniform weighting", "order", cfg.Order)
		}
	} else {
		switch cfg.Order {
		case OrderWB, OrderBW, OrderAWB, OrderABW:
		default:
			return nil, fmt.Errorf("unsupported member ordering %q, use wb, bw, awb, or abw", cfg.Order)
		}
		if cfg.KF != 0 && cfg.KF != 1 {
			return nil, fmt.Errorf("unsupported kf variant %d, use 0 or 1", cfg.KF)
		}
	}

	if !cfg.Ret && len(cfg.Strategies) < 2 {
		return nil, fmt.Errorf("no-return routing requires at least two populations")
	}

	if cfg.Cores < 1 {
		cfg.Cores = 1
	}

	return &AEO{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func validateExponent(name string, s Schedule) error {
	switch s.Anneal {
	case "":
		if s.Value < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, s.Value)
		}
	case "up", "down":
	default:
		return fmt.Errorf("unsupported %s annealing %q, use up or down", name, s.Anneal)
	}
	return nil
}

// Evolute runs the ensemble for up to ncyc cycles and returns the populated
// run log.
func (a *AEO) Evolute(ncyc int, opts *RunOptions) (*runlog.Log, error) {
	if ncyc < 1 {
		return nil, fmt.Errorf("number of cycles must be positive, got %d", ncyc)
	}
	if opts == nil {
		opts = &RunOptions{}
	}

	x0, pop0, err := a.initialSplit(opts)
	if err != nil {
		return nil, err
	}

	names := popNames(a.cfg.Strategies)
	a.pops = make([]*Population, len(a.cfg.Strategies))
	for i, strat := range a.cfg.Strategies {
		var xs []param.Individual
		for j, x := range x0 {
			if pop0[j] == i {
				xs = append(xs, x)
			}
		}
		prng := rand.New(rand.NewSource(a.rng.Int63()))
		a.pops[i] = newPopulation(strat, xs, a.cfg.Mode, names[i], prng)
	}

	log := runlog.New(a.cfg.Mode, a.cfg.Bounds.Names(), names, ncyc)
	for i, p := range a.pops {
		log.Initial[i] = cloneMembers(p.Members())
	}
	if a.cfg.Mode == ModeMax {
		log.BestFit = math.Inf(-1)
	} else {
		log.BestFit = math.Inf(1)
	}

	slog.Info("starting ensemble run",
		"mode", a.cfg.Mode,
		"populations", len(a.pops),
		"cycles", ncyc,
		"gen_per_cycle", a.cfg.GenPerCycle,
	)

	for cyc := 1; cyc <= ncyc; cyc++ {
		if err := a.runCycle(cyc, ncyc, log); err != nil {
			return nil, err
		}

		log.Completed = cyc

		if a.cfg.Observer != nil {
			a.cfg.Observer(a.cycleEvent(cyc, log))
		}
		if a.cfg.Stop != nil && a.cfg.Stop() {
			slog.Info("stop condition met, ending run early", "cycle", cyc)
			break
		}
	}

	return log, nil
}

// runCycle performs one evolve -> export -> route iteration.
func (a *AEO) runCycle(cyc, ncyc int, log *runlog.Log) error {
	// Evolution phase. Populations are independent until the strength
	// computation below needs the global extrema, so they may evolve in
	// parallel; each owns a derived random stream.
	popFits := make([]float64, len(a.pops))
	if a.cfg.Cores > 1 {
		errs := make([]error, len(a.pops))
		pl := pool.New().WithMaxGoroutines(a.cfg.Cores)
		for i, p := range a.pops {
			pl.Go(func() {
				popFits[i], errs[i] = p.Evolve(a.cfg.GenPerCycle, a.cfg.Fit, a.cfg.Bounds, log.At(i, cyc))
			})
		}
		pl.Wait()
		for _, err := range errs {
			if err != nil {
				return err
			}
		}
	} else {
		for i, p := range a.pops {
			fit, err := p.Evolve(a.cfg.GenPerCycle, a.cfg.Fit, a.cfg.Bounds, log.At(i, cyc))
			if err != nil {
				return err
			}
			popFits[i] = fit
		}
	}

	a.trackBest(log)

	fmax, fmin := popFits[0], popFits[0]
	for _, f := range popFits[1:] {
		if f > fmax {
			fmax = f
		}
		if f < fmin {
			fmin = f
		}
	}

	cycRec := log.CycleAt(cyc)
	cycRec.FMax = fmax
	cycRec.FMin = fmin
	cycRec.Alpha = alphaBeta(a.cfg.Alpha, cyc, ncyc)
	cycRec.Beta = alphaBeta(a.cfg.Beta, cyc, ncyc)
	cycRec.Q = qValue(a.cfg.Q, cyc, ncyc)

	// Export-count phase. Identical fitness across all populations means no
	// diversity signal: migration is disabled for the cycle, not an error.
	eis := make([]int, len(a.pops))
	if fmax == fmin {
		cycRec.Migration = false
	} else {
		cycRec.Migration = true

		strengths := make([]float64, len(a.pops))
		var sum float64
		for i, p := range a.pops {
			s := math.Pow(p.Strength(a.cfg.G, a.cfg.GBurden, fmax, fmin, log.At(i, cyc), roleExport), cycRec.Alpha)
			strengths[i] = s
			sum += s
		}

		for i, p := range a.pops {
			scaled := strengths[i] / sum
			// clamp so an out-of-range literal q degrades instead of failing
			pw := math.Min(math.Max((0.5-scaled)*cycRec.Q+0.5, 0), 1)

			rec := log.At(i, cyc)
			rec.ExportStr = scaled
			rec.BinomialW = pw
			eis[i] = binomial(a.rng, p.Size(), pw)
		}
	}

	for i := range a.pops {
		log.At(i, cyc).NExport = eis[i]
	}

	// Member-selection phase.
	exported := make([][]param.Individual, len(a.pops))
	cycleFrac := float64(cyc) / float64(ncyc)
	for i, p := range a.pops {
		exported[i] = p.Export(eis[i], a.cfg.Wt, a.cfg.Order, a.cfg.KF, cycleFrac, log.At(i, cyc))
	}

	// Destination-selection phase. On no-migration cycles every export group
	// is empty and the strengths are never used.
	dest := make([]float64, len(a.pops))
	if fmax == fmin {
		for i := range dest {
			dest[i] = 1
		}
	} else {
		for i, p := range a.pops {
			dest[i] = math.Pow(p.Strength(a.cfg.B, a.cfg.BBurden, fmax, fmin, log.At(i, cyc), roleDestination), cycRec.Beta)
		}
	}

	if a.cfg.Ret {
		a.routePooled(exported, dest, cyc, log)
	} else {
		a.routeNoReturn(exported, dest, cyc, log)
	}

	slog.Debug("cycle complete",
		"cycle", cyc,
		"fmin", fmin,
		"fmax", fmax,
		"migration", cycRec.Migration,
	)
	return nil
}

// routePooled pools all exported individuals, shuffles them, and distributes
// contiguous slices by a single multinomial draw over the destination
// strengths. An exported member may land back in its origin population.
func (a *AEO) routePooled(exported [][]param.Individual, dest []float64, cyc int, log *runlog.Log) {
	var pooled []param.Individual
	for _, group := range exported {
		pooled = append(pooled, group...)
	}
	a.rng.Shuffle(len(pooled), func(i, j int) {
		pooled[i], pooled[j] = pooled[j], pooled[i]
	})

	var sum float64
	for _, s := range dest {
		sum += s
	}
	scaled := make([]float64, len(dest))
	for i, s := range dest {
		scaled[i] = s / sum
	}

	allot := multinomial(a.rng, len(pooled), scaled)
	for i, p := range a.pops {
		log.At(i, cyc).Allot = allot[i]
		p.Receive(pooled[:allot[i]])
		pooled = pooled[allot[i]:]
	}
}

// routeNoReturn routes each origin's export group independently over the
// other populations, renormalizing the destination strengths with the origin
// excluded. Groups are routed in origin order; the sequential conditioning is
// part of the algorithm's definition.
func (a *AEO) routeNoReturn(exported [][]param.Individual, dest []float64, cyc int, log *runlog.Log) {
	total := make([]int, len(a.pops))

	for j, group := range exported {
		var sum float64
		for i, s := range dest {
			if i != j {
				sum += s
			}
		}

		others := make([]int, 0, len(a.pops)-1)
		scaled := make([]float64, 0, len(a.pops)-1)
		for i, s := range dest {
			if i == j {
				continue
			}
			others = append(others, i)
			scaled = append(scaled, s/sum)
		}

		a.rng.Shuffle(len(group), func(x, y int) {
			group[x], group[y] = group[y], group[x]
		})

		allot := multinomial(a.rng, len(group), scaled)
		for k, pi := range others {
			a.pops[pi].Receive(group[:allot[k]])
			group = group[allot[k]:]
			total[pi] += allot[k]
		}
	}

	for i := range a.pops {
		log.At(i, cyc).Allot = total[i]
	}
}

// trackBest scans every population for the best evaluated member this cycle
// and updates the run-level best.
func (a *AEO) trackBest(log *runlog.Log) {
	for _, p := range a.pops {
		for i, f := range p.Fits() {
			if math.IsNaN(f) {
				continue
			}
			better := f > log.BestFit
			if a.cfg.Mode == ModeMin {
				better = f < log.BestFit
			}
			if better {
				log.BestFit = f
				log.BestX = p.Members()[i].Clone()
			}
		}
	}
}

func (a *AEO) cycleEvent(cyc int, log *runlog.Log) CycleEvent {
	sizes := make([]int, len(a.pops))
	fits := make([]float64, len(a.pops))
	for i, p := range a.pops {
		sizes[i] = p.Size()
		fits[i] = log.At(i, cyc).Fitness
	}
	rec := log.CycleAt(cyc)
	return CycleEvent{
		Cycle:     cyc,
		Sizes:     sizes,
		Fits:      fits,
		FMin:      rec.FMin,
		FMax:      rec.FMax,
		Migration: rec.Migration,
		Best:      log.BestFit,
	}
}

// initialSplit resolves the run options into explicit individuals and
// population assignments, sampling uniformly within bounds where counts are
// given.
func (a *AEO) initialSplit(opts *RunOptions) ([]param.Individual, []int, error) {
	if opts.X0 != nil {
		if opts.NPop0 != nil {
			slog.Warn("both x0 and npop0 given, ignoring npop0")
		}
		if len(opts.X0) != len(opts.Pop0) {
			return nil, nil, fmt.Errorf("initial individuals and population assignments differ in length: %d vs %d", len(opts.X0), len(opts.Pop0))
		}
		for _, pi := range opts.Pop0 {
			if pi < 0 || pi >= len(a.cfg.Strategies) {
				return nil, nil, fmt.Errorf("population assignment %d out of range", pi)
			}
		}
		return opts.X0, opts.Pop0, nil
	}

	counts := opts.NPop0
	if counts == nil {
		counts = make([]int, len(a.cfg.Strategies))
		for i, s := range a.cfg.Strategies {
			counts[i] = s.PopSize()
		}
	}
	if len(counts) != len(a.cfg.Strategies) {
		return nil, nil, fmt.Errorf("npop0 length %d does not match number of strategies %d", len(counts), len(a.cfg.Strategies))
	}

	var x0 []param.Individual
	var pop0 []int
	for i, n := range counts {
		for j := 0; j < n; j++ {
			x0 = append(x0, a.cfg.Bounds.Sample(a.rng))
			pop0 = append(pop0, i)
		}
	}
	return x0, pop0, nil
}

// popNames assigns log names by strategy family, suffixing duplicates with a
// zero-padded counter.
func popNames(strats []strategy.Strategy) []string {
	names := make([]string, 0, len(strats))
	taken := make(map[string]bool)
	for _, s := range strats {
		name := s.Name()
		if taken[name] {
			i := 2
			for taken[fmt.Sprintf("%s%03d", s.Name(), i)] {
				i++
			}
			name = fmt.Sprintf("%s%03d", s.Name(), i)
		}
		taken[name] = true
		names = append(names, name)
	}
	return names
}
