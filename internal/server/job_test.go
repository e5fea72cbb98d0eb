package server

import (
	"testing"
	"time"

	"github.com/pseur/menagerie/internal/config"
)

func testJobConfig(t *testing.T) JobConfig {
	t.Helper()

	ret := true
	return JobConfig{
		Mode:        "min",
		Objective:   "sphere",
		Dim:         3,
		Cycles:      2,
		GenPerCycle: 2,
		Seed:        42,
		Cores:       1,
		Ensemble:    testEnsembleSpec(ret),
		Strategies: []config.StrategySpec{
			{Family: "de", Size: 8},
			{Family: "pso", Size: 8},
		},
	}
}

// testEnsembleSpec builds a fully defaulted migration spec.
func testEnsembleSpec(ret bool) config.EnsembleSpec {
	return config.EnsembleSpec{
		Alpha: "1",
		G:     "fitness",
		Q:     "1",
		Wt:    "uni",
		Beta:  "1",
		B:     "fitness",
		Ret:   &ret,
	}
}

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(testJobConfig(t))

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}

	if job.Config.Objective != "sphere" {
		t.Errorf("Config not set correctly")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(testJobConfig(t))

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should exist")
	}

	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	jm.CreateJob(testJobConfig(t))
	jm.CreateJob(testJobConfig(t))

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(testJobConfig(t))

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Cycles = 3
		j.BestFitness = 123.45
	})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning {
		t.Errorf("State should be running, got %s", updated.State)
	}
	if updated.Cycles != 3 {
		t.Errorf("Cycles should be 3, got %d", updated.Cycles)
	}
	if updated.BestFitness != 123.45 {
		t.Errorf("BestFitness should be 123.45, got %v", updated.BestFitness)
	}

	if err := jm.UpdateJob("nonexistent", func(j *Job) {}); err == nil {
		t.Error("Updating a nonexistent job should fail")
	}
}

func TestJobManager_GetRunningJobs(t *testing.T) {
	jm := NewJobManager()

	a := jm.CreateJob(testJobConfig(t))
	jm.CreateJob(testJobConfig(t))

	jm.UpdateJob(a.ID, func(j *Job) { j.State = StateRunning })

	running := jm.GetRunningJobs()
	if len(running) != 1 {
		t.Fatalf("Expected 1 running job, got %d", len(running))
	}
	if running[0].ID != a.ID {
		t.Error("Wrong job reported as running")
	}
}

func TestEventBroadcaster_SubscribeBroadcast(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job-1")
	defer eb.Unsubscribe("job-1", ch)

	event := ProgressEvent{
		JobID:     "job-1",
		State:     StateRunning,
		Cycle:     2,
		Best:      0.5,
		Timestamp: time.Now(),
	}
	eb.Broadcast(event)

	select {
	case got := <-ch:
		if got.Cycle != 2 {
			t.Errorf("Expected cycle 2, got %d", got.Cycle)
		}
		if got.Best != 0.5 {
			t.Errorf("Expected best 0.5, got %v", got.Best)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for broadcast event")
	}
}

func TestEventBroadcaster_LastEventReplay(t *testing.T) {
	eb := NewEventBroadcaster()

	eb.Broadcast(ProgressEvent{JobID: "job-1", Cycle: 5})

	// A late subscriber gets the last event immediately.
	ch := eb.Subscribe("job-1")
	defer eb.Unsubscribe("job-1", ch)

	select {
	case got := <-ch:
		if got.Cycle != 5 {
			t.Errorf("Expected replayed cycle 5, got %d", got.Cycle)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for replayed event")
	}
}
