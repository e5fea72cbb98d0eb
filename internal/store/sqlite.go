package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pseur/menagerie/internal/runlog"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id       TEXT PRIMARY KEY,
    mode         TEXT NOT NULL,
    cycles       INTEGER NOT NULL,
    completed    INTEGER NOT NULL,
    best_fitness REAL
);

CREATE TABLE IF NOT EXISTS cycles (
    run_id    TEXT NOT NULL,
    cycle     INTEGER NOT NULL,
    alpha     REAL,
    beta      REAL,
    q         REAL,
    fmin      REAL,
    fmax      REAL,
    migration INTEGER NOT NULL,
    PRIMARY KEY (run_id, cycle)
);

CREATE TABLE IF NOT EXISTS pop_cycles (
    run_id       TEXT NOT NULL,
    pop          TEXT NOT NULL,
    cycle        INTEGER NOT NULL,
    n            INTEGER NOT NULL,
    fitness      REAL,
    delta_f      REAL,
    evolved      INTEGER NOT NULL,
    nexport      INTEGER NOT NULL,
    export_str   REAL,
    binomial_w   REAL,
    g            REAL,
    unburdened_g REAL,
    b            REAL,
    unburdened_b REAL,
    eval_cost    INTEGER,
    worst_first  INTEGER NOT NULL,
    allot        INTEGER NOT NULL,
    PRIMARY KEY (run_id, pop, cycle)
);

CREATE TABLE IF NOT EXISTS members (
    run_id    TEXT NOT NULL,
    pop       TEXT NOT NULL,
    cycle     INTEGER NOT NULL,
    member    INTEGER NOT NULL,
    var       TEXT NOT NULL,
    value     REAL NOT NULL,
    fitness   REAL,
    export_wt REAL,
    exported  INTEGER NOT NULL,
    PRIMARY KEY (run_id, pop, cycle, member, var)
);

CREATE INDEX IF NOT EXISTS idx_members_pop_cycle
ON members(run_id, pop, cycle);
`

// ExportSQLite materializes a run log into a SQLite database at the given
// path, creating the schema if needed. Rows for the run are replaced on
// re-export.
func ExportSQLite(path, runID string, log *runlog.Log) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"runs", "cycles", "pop_cycles", "members"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("failed to clear %s rows: %w", table, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO runs (run_id, mode, cycles, completed, best_fitness) VALUES (?, ?, ?, ?, ?)",
		runID, log.Mode, log.Ncyc, log.Completed, log.BestFit,
	); err != nil {
		return fmt.Errorf("failed to insert run row: %w", err)
	}

	cycStmt, err := tx.Prepare(
		"INSERT INTO cycles (run_id, cycle, alpha, beta, q, fmin, fmax, migration) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare cycle insert: %w", err)
	}
	defer cycStmt.Close()

	for _, c := range log.Cycles[:log.Completed] {
		if _, err := cycStmt.Exec(runID, c.Cycle, c.Alpha, c.Beta, c.Q, c.FMin, c.FMax, c.Migration); err != nil {
			return fmt.Errorf("failed to insert cycle %d: %w", c.Cycle, err)
		}
	}

	popStmt, err := tx.Prepare(`INSERT INTO pop_cycles
		(run_id, pop, cycle, n, fitness, delta_f, evolved, nexport, export_str,
		 binomial_w, g, unburdened_g, b, unburdened_b, eval_cost, worst_first, allot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare pop_cycles insert: %w", err)
	}
	defer popStmt.Close()

	memStmt, err := tx.Prepare(`INSERT INTO members
		(run_id, pop, cycle, member, var, value, fitness, export_wt, exported)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare members insert: %w", err)
	}
	defer memStmt.Close()

	for _, row := range log.Rows() {
		if _, err := popStmt.Exec(
			runID, row.Pop, row.Cycle, row.N, row.Fitness, row.DeltaF, row.Evolved,
			row.NExport, row.ExportStr, row.BinomialW, row.G, row.UnburdenedG,
			row.B, row.UnburdenedB, row.EvalCost, row.WorstFirst, row.Allot,
		); err != nil {
			return fmt.Errorf("failed to insert pop_cycles row (%s, %d): %w", row.Pop, row.Cycle, err)
		}

		for m, x := range row.Members {
			var fit, wt any
			if m < len(row.Fits) {
				fit = row.Fits[m]
			}
			if m < len(row.ExportWts) {
				wt = row.ExportWts[m]
			}
			exported := m < len(row.Exported) && row.Exported[m]
			for v, name := range log.Vars {
				if _, err := memStmt.Exec(runID, row.Pop, row.Cycle, m, name, x[v], fit, wt, exported); err != nil {
					return fmt.Errorf("failed to insert member row (%s, %d, %d): %w", row.Pop, row.Cycle, m, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}

	slog.Info("run log exported to sqlite", "run_id", runID, "path", path)
	return nil
}
