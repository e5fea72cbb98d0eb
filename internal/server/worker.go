package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pseur/menagerie/internal/ensemble"
	"github.com/pseur/menagerie/internal/runlog"
	"github.com/pseur/menagerie/internal/store"
)

// runJob executes an ensemble optimization job in the background.
// If runStore is not nil, the completed run is persisted under the job ID.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, jobID string) error {
	// Get the job
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Update state to running
	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "mode", job.Config.Mode, "cycles", job.Config.Cycles)

	bounds, err := job.Config.BuildBounds()
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to resolve bounds: %w", err))
		return err
	}

	fit, err := job.Config.BuildFitness()
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to resolve objective: %w", err))
		return err
	}

	cfg, err := job.Config.BuildEnsemble(bounds, fit)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	// Observer feeds the SSE broadcaster and keeps the job record current.
	cfg.Observer = func(ev ensemble.CycleEvent) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Cycles = ev.Cycle
			j.BestFitness = ev.Best
		})
		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:     jobID,
			State:     StateRunning,
			Cycle:     ev.Cycle,
			Best:      ev.Best,
			FMin:      ev.FMin,
			FMax:      ev.FMax,
			Migration: ev.Migration,
			Sizes:     ev.Sizes,
			Timestamp: time.Now(),
		})
	}

	// Cancellation is checked at cycle boundaries; a cancelled run keeps the
	// log consistent up to its last completed cycle.
	cfg.Stop = func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	driver, err := ensemble.New(cfg)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	start := time.Now()
	log, err := driver.Evolute(job.Config.Cycles, nil)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	elapsed := time.Since(start)

	jm.SetLog(jobID, log)

	if ctx.Err() != nil {
		markJobCancelled(jm, jobID, log)
		return ctx.Err()
	}

	// Update job with results
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestX = log.BestX
		j.BestFitness = log.BestFit
		j.Cycles = log.Completed
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	if runStore != nil {
		if err := saveRun(runStore, jobID, job, log); err != nil {
			slog.Warn("Failed to persist run", "job_id", jobID, "error", err)
		}
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"best_fitness", log.BestFit,
		"cycles", log.Completed,
	)

	// Broadcast final completion event
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Cycle:     log.Completed,
		Best:      log.BestFit,
		Timestamp: time.Now(),
	})

	return nil
}

// saveRun persists the finished run record under the job's ID.
func saveRun(runStore store.Store, jobID string, job *Job, log *runlog.Log) error {
	spec := store.RunSpec{
		Mode:        job.Config.Mode,
		Objective:   job.Config.Objective,
		Dim:         len(log.Vars),
		Cycles:      job.Config.Cycles,
		GenPerCycle: job.Config.GenPerCycle,
		Seed:        job.Config.Seed,
		Strategies:  job.Config.StrategyNames(),
		Wt:          job.Config.Ensemble.Wt,
		Ret:         *job.Config.Ensemble.Ret,
	}

	record := store.NewRunRecord(jobID, spec, log.BestX, log.BestFit, log.Completed)
	if err := runStore.SaveRun(jobID, record); err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	if err := runStore.SaveLog(jobID, log); err != nil {
		return fmt.Errorf("failed to save run log: %w", err)
	}

	slog.Info("Run saved", "run_id", jobID, "best_fitness", log.BestFit)
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled, keeping any partial results
func markJobCancelled(jm *JobManager, jobID string, log *runlog.Log) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		if log != nil {
			j.BestX = log.BestX
			j.BestFitness = log.BestFit
			j.Cycles = log.Completed
		}
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}
