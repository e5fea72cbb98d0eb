package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pseur/menagerie/internal/runlog"
)

// FSStore implements the Store interface on the filesystem. Runs live in a
// directory structure: <baseDir>/runs/<runID>/
//
// Thread-safety: atomic temp-file + rename writes, no locks required.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem-based store, creating baseDir if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the store's root directory.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) runDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

func (fs *FSStore) recordPath(runID string) string {
	return filepath.Join(fs.runDir(runID), "run.json")
}

// SaveRun atomically persists a run record using temp file + rename.
func (fs *FSStore) SaveRun(runID string, record *RunRecord) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	runDir := fs.runDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}

	tempPath := fs.recordPath(runID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp run file: %w", err)
	}

	finalPath := fs.recordPath(runID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename run file: %w", err)
	}

	slog.Debug("run saved", "run_id", runID, "path", finalPath)
	return nil
}

// LoadRun retrieves the record for the given run.
func (fs *FSStore) LoadRun(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := fs.recordPath(runID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat run file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize run record: %w", err)
	}

	slog.Debug("run loaded", "run_id", runID, "path", path)
	return &record, nil
}

// SaveLog atomically persists the full run log next to the run record.
func (fs *FSStore) SaveLog(runID string, log *runlog.Log) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if log == nil {
		return fmt.Errorf("log cannot be nil")
	}

	runDir := fs.runDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to serialize run log: %w", err)
	}

	finalPath := filepath.Join(runDir, "log.json")
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp log file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	slog.Debug("run log saved", "run_id", runID, "path", finalPath)
	return nil
}

// LoadLog retrieves the full run log for the given run.
func (fs *FSStore) LoadLog(runID string) (*runlog.Log, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := filepath.Join(fs.runDir(runID), "log.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var log runlog.Log
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("failed to deserialize run log: %w", err)
	}

	slog.Debug("run log loaded", "run_id", runID, "path", path)
	return &log, nil
}

// ListRuns returns metadata for all saved runs.
func (fs *FSStore) ListRuns() ([]RunInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		return []RunInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat runs directory: %w", err)
	}

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var infos []RunInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		runID := entry.Name()
		if _, err := os.Stat(fs.recordPath(runID)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadRun(runID)
		if err != nil {
			slog.Warn("failed to load run for listing", "run_id", runID, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	slog.Debug("listed runs", "count", len(infos))
	return infos, nil
}

// DeleteRun removes the run directory and everything in it.
func (fs *FSStore) DeleteRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	runDir := fs.runDir(runID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("run deleted", "run_id", runID, "path", runDir)
	return nil
}
