package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-123"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Cycle: 1, Best: 1.0, FMin: 0.5, FMax: 1.5, Migration: true, Sizes: []int{6, 4}, Timestamp: time.Now()},
		{Cycle: 2, Best: 0.8, FMin: 0.4, FMax: 1.2, Migration: true, Sizes: []int{7, 3}, Timestamp: time.Now()},
		{Cycle: 3, Best: 0.6, FMin: 0.6, FMax: 0.6, Migration: false, Sizes: []int{7, 3}, Timestamp: time.Now()},
	}

	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}

	for i, entry := range got {
		if entry.Cycle != entries[i].Cycle {
			t.Errorf("Entry %d: cycle mismatch, got %d want %d", i, entry.Cycle, entries[i].Cycle)
		}
		if entry.Best != entries[i].Best {
			t.Errorf("Entry %d: best mismatch, got %v want %v", i, entry.Best, entries[i].Best)
		}
		if entry.Migration != entries[i].Migration {
			t.Errorf("Entry %d: migration mismatch", i)
		}
		if len(entry.Sizes) != len(entries[i].Sizes) {
			t.Errorf("Entry %d: sizes length mismatch", i)
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "append-run"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	if err := writer.Write(TraceEntry{Cycle: 1, Best: 1.0}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen in append mode and add another entry.
	writer, err = NewTraceWriter(tmpDir, runID, true)
	if err != nil {
		t.Fatalf("Failed to reopen trace writer: %v", err)
	}
	if err := writer.Write(TraceEntry{Cycle: 2, Best: 0.5}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries after append, got %d", len(got))
	}
	if got[1].Cycle != 2 {
		t.Errorf("Expected appended cycle 2, got %d", got[1].Cycle)
	}
}

func TestTraceWriter_TruncateOnFreshOpen(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "truncate-run"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(TraceEntry{Cycle: 1})
	writer.Write(TraceEntry{Cycle: 2})
	writer.Close()

	// Non-append open starts over.
	writer, err = NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to reopen trace writer: %v", err)
	}
	writer.Write(TraceEntry{Cycle: 1})
	writer.Close()

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 entry after truncating open, got %d", len(got))
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "flush-run"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(TraceEntry{Cycle: 1, Best: 1.0}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Entry must be readable before Close.
	data, err := os.ReadFile(filepath.Join(tmpDir, "runs", runID, "trace.jsonl"))
	if err != nil {
		t.Fatalf("Failed to read trace file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Flushed trace file should not be empty")
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if err == nil {
		t.Fatal("NewTraceReader should fail for a missing trace")
	}
}

func TestTraceReader_ReadSequential(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "seq-run"

	writer, err := NewTraceWriter(tmpDir, runID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(TraceEntry{Cycle: 1})
	writer.Write(TraceEntry{Cycle: 2})
	writer.Close()

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	first, err := reader.Read()
	if err != nil {
		t.Fatalf("First read failed: %v", err)
	}
	if first.Cycle != 1 {
		t.Errorf("Expected cycle 1, got %d", first.Cycle)
	}

	second, err := reader.Read()
	if err != nil {
		t.Fatalf("Second read failed: %v", err)
	}
	if second.Cycle != 2 {
		t.Errorf("Expected cycle 2, got %d", second.Cycle)
	}

	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF at end of trace, got %v", err)
	}
}
