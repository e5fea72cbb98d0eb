package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pseur/menagerie/internal/config"
	"github.com/pseur/menagerie/internal/ensemble"
	"github.com/pseur/menagerie/internal/store"
	"github.com/spf13/cobra"
)

var (
	specPath   string
	objName    string
	dim        int
	optMode    string
	cycles     int
	gens       int
	seed       int64
	cores      int
	strategies string
	wtScheme   string
	ordering   string
	noReturn   bool
	patience   int
	saveRun    bool
	dataDir    string
	traceRun   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an ensemble optimization",
	Long: `Runs the ensemble for the configured number of cycles and prints a
summary. The run is described either by a YAML spec file (--spec) or by the
command-line flags.`,
	RunE: runEnsemble,
}

func init() {
	runCmd.Flags().StringVar(&specPath, "spec", "", "YAML run spec file (overrides the other run flags)")
	runCmd.Flags().StringVar(&objName, "objective", "sphere", "Benchmark objective name")
	runCmd.Flags().IntVar(&dim, "dim", 5, "Search-space dimensionality")
	runCmd.Flags().StringVar(&optMode, "mode", "min", "Optimization mode: min or max")
	runCmd.Flags().IntVar(&cycles, "cycles", 20, "Number of ensemble cycles")
	runCmd.Flags().IntVar(&gens, "gens", 10, "Generations per cycle")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().IntVar(&cores, "cores", 1, "Parallel workers for evolution and fitness")
	runCmd.Flags().StringVar(&strategies, "strategies", "de,pso,woa", "Comma-separated strategy families")
	runCmd.Flags().StringVar(&wtScheme, "wt", "log", "Export weighting scheme: log, lin, exp, uni")
	runCmd.Flags().StringVar(&ordering, "order", "awb", "Member ordering: wb, bw, awb, abw")
	runCmd.Flags().BoolVar(&noReturn, "no-return", false, "Forbid exported members returning to their origin")
	runCmd.Flags().IntVar(&patience, "patience", 0, "Stop after N cycles without improvement (0 = run all cycles)")
	runCmd.Flags().BoolVar(&saveRun, "save", false, "Persist the run record and log to the data directory")
	runCmd.Flags().StringVar(&dataDir, "data", "./data", "Base directory for run storage")
	runCmd.Flags().BoolVar(&traceRun, "trace", false, "Write a per-cycle trace.jsonl (implies --save)")

	rootCmd.AddCommand(runCmd)
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	spec, err := resolveSpec()
	if err != nil {
		return err
	}

	bounds, err := spec.BuildBounds()
	if err != nil {
		return err
	}
	fit, err := spec.BuildFitness()
	if err != nil {
		return err
	}
	cfg, err := spec.BuildEnsemble(bounds, fit)
	if err != nil {
		return err
	}

	runID := uuid.New().String()

	var runStore *store.FSStore
	var trace *store.TraceWriter
	if saveRun || traceRun {
		runStore, err = store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
	}
	if traceRun {
		trace, err = store.NewTraceWriter(runStore.BaseDir(), runID, false)
		if err != nil {
			return fmt.Errorf("failed to create trace writer: %w", err)
		}
		defer trace.Close()
	}

	cfg.Observer = func(ev ensemble.CycleEvent) {
		slog.Info("cycle",
			"cycle", ev.Cycle,
			"best", ev.Best,
			"fmin", ev.FMin,
			"fmax", ev.FMax,
			"migration", ev.Migration,
			"sizes", ev.Sizes,
		)
		if trace != nil {
			entry := store.TraceEntry{
				Cycle:     ev.Cycle,
				Best:      ev.Best,
				FMin:      ev.FMin,
				FMax:      ev.FMax,
				Migration: ev.Migration,
				Sizes:     ev.Sizes,
				Timestamp: time.Now(),
			}
			if err := trace.Write(entry); err != nil {
				slog.Warn("failed to write trace entry", "error", err)
			}
		}
	}

	if patience > 0 {
		tracker := ensemble.NewStallTracker(spec.Mode, patience, 1e-6)
		inner := cfg.Observer
		var best float64
		cfg.Observer = func(ev ensemble.CycleEvent) {
			inner(ev)
			best = ev.Best
		}
		cfg.Stop = func() bool { return tracker.Update(best) }
	}

	driver, err := ensemble.New(cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	log, err := driver.Evolute(spec.Cycles, nil)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	slog.Info("Run complete",
		"run_id", runID,
		"elapsed", elapsed,
		"cycles", log.Completed,
		"best_fitness", log.BestFit,
	)

	fmt.Printf("Best fitness: %g after %d cycle(s) in %s\n", log.BestFit, log.Completed, elapsed.Round(time.Millisecond))
	for i, v := range bounds.Format(log.BestX) {
		fmt.Printf("  %s = %s\n", bounds[i].Name, v)
	}

	if runStore != nil {
		record := store.NewRunRecord(runID, store.RunSpec{
			Mode:        spec.Mode,
			Objective:   spec.Objective,
			Dim:         bounds.Dim(),
			Cycles:      spec.Cycles,
			GenPerCycle: spec.GenPerCycle,
			Seed:        spec.Seed,
			Strategies:  spec.StrategyNames(),
			Wt:          spec.Ensemble.Wt,
			Ret:         *spec.Ensemble.Ret,
		}, log.BestX, log.BestFit, log.Completed)

		if err := runStore.SaveRun(runID, record); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		if err := runStore.SaveLog(runID, log); err != nil {
			return fmt.Errorf("failed to save run log: %w", err)
		}
		fmt.Printf("Saved run %s\n", runID)
	}

	return nil
}

// resolveSpec loads the YAML spec when given, otherwise assembles one from
// the command-line flags.
func resolveSpec() (*config.Spec, error) {
	if specPath != "" {
		return config.Load(specPath)
	}

	ret := !noReturn
	spec := &config.Spec{
		Mode:        optMode,
		Objective:   objName,
		Dim:         dim,
		Cycles:      cycles,
		GenPerCycle: gens,
		Seed:        seed,
		Cores:       cores,
		Ensemble: config.EnsembleSpec{
			Wt:    wtScheme,
			Order: ordering,
			Ret:   &ret,
		},
	}
	for _, family := range strings.Split(strategies, ",") {
		family = strings.TrimSpace(family)
		if family == "" {
			continue
		}
		spec.Strategies = append(spec.Strategies, config.StrategySpec{Family: family})
	}

	if err := spec.Finalize(); err != nil {
		return nil, err
	}
	return spec, nil
}
