package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sdslc/internal/diag"
	"sdslc/internal/model"
	"sdslc/internal/ref"
)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			created_at TEXT,
			source TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS deps (
			run_id TEXT,
			idx INTEGER,
			dep_id TEXT,
			bind TEXT,
			from_ref TEXT,
			to_ref TEXT,
			ssot JSON,
			PRIMARY KEY (run_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS cycles (
			run_id TEXT,
			idx INTEGER,
			nodes JSON,
			PRIMARY KEY (run_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS diagnostics (
			run_id TEXT,
			idx INTEGER,
			code TEXT,
			severity TEXT,
			message TEXT,
			expected TEXT,
			got TEXT,
			path TEXT,
			PRIMARY KEY (run_id, idx)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deps_dep_id ON deps(dep_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot replaces the stored contents for the snapshot's run id.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"deps", "cycles", "diagnostics", "runs"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", snap.RunID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs (run_id, created_at, source) VALUES (?, ?, ?)",
		snap.RunID, snap.CreatedAt.UTC().Format(time.RFC3339Nano), snap.Source); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	depStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deps (run_id, idx, dep_id, bind, from_ref, to_ref, ssot)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer depStmt.Close()

	for i, d := range snap.Deps {
		ssot, _ := json.Marshal(ssotStrings(d.SSOT))
		if _, err := depStmt.Exec(snap.RunID, i, d.DepID, d.Bind.String(), d.From.String(), d.To.String(), ssot); err != nil {
			return fmt.Errorf("failed to insert dep %s: %w", d.DepID, err)
		}
	}

	for i, cycle := range snap.Cycles {
		nodes, _ := json.Marshal(cycle)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO cycles (run_id, idx, nodes) VALUES (?, ?, ?)",
			snap.RunID, i, nodes); err != nil {
			return fmt.Errorf("failed to insert cycle: %w", err)
		}
	}

	diagStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO diagnostics (run_id, idx, code, severity, message, expected, got, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer diagStmt.Close()

	for i, r := range snap.Records {
		if _, err := diagStmt.Exec(snap.RunID, i, string(r.Code), string(r.Severity), r.Message, r.Expected, r.Got, r.Path); err != nil {
			return fmt.Errorf("failed to insert diagnostic: %w", err)
		}
	}

	return tx.Commit()
}

// LoadSnapshot retrieves one run by id.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, runID string) (*Snapshot, error) {
	snap := &Snapshot{RunID: runID}

	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT created_at, source FROM runs WHERE run_id = ?", runID).Scan(&createdAt, &snap.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for run %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT dep_id, bind, from_ref, to_ref, ssot FROM deps WHERE run_id = ? ORDER BY idx", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var depID, bind, from, to string
		var ssot []byte
		if err := rows.Scan(&depID, &bind, &from, &to, &ssot); err != nil {
			return nil, fmt.Errorf("failed to scan dep: %w", err)
		}
		dep, err := rebuildDep(depID, bind, from, to, ssot)
		if err != nil {
			return nil, err
		}
		snap.Deps = append(snap.Deps, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cycleRows, err := s.db.QueryContext(ctx,
		"SELECT nodes FROM cycles WHERE run_id = ? ORDER BY idx", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer cycleRows.Close()

	for cycleRows.Next() {
		var nodes []byte
		if err := cycleRows.Scan(&nodes); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		var cycle []string
		if err := json.Unmarshal(nodes, &cycle); err != nil {
			return nil, fmt.Errorf("failed to decode cycle: %w", err)
		}
		snap.Cycles = append(snap.Cycles, cycle)
	}
	if err := cycleRows.Err(); err != nil {
		return nil, err
	}

	diagRows, err := s.db.QueryContext(ctx,
		"SELECT code, severity, message, expected, got, path FROM diagnostics WHERE run_id = ? ORDER BY idx", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer diagRows.Close()

	for diagRows.Next() {
		var r diag.Record
		var code, severity string
		if err := diagRows.Scan(&code, &severity, &r.Message, &r.Expected, &r.Got, &r.Path); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		r.Code = diag.Code(code)
		r.Severity = diag.Severity(severity)
		snap.Records = append(snap.Records, r)
	}
	if err := diagRows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

// ListRuns returns stored runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.created_at, r.source, COUNT(d.dep_id)
		FROM runs r LEFT JOIN deps d ON d.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var createdAt string
		if err := rows.Scan(&info.RunID, &createdAt, &info.Source, &info.DepCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if info.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

func rebuildDep(depID, bind, from, to string, ssot []byte) (model.Dep, error) {
	bindRef, ok := ref.ParseInternalRef(bind)
	if !ok {
		return model.Dep{}, fmt.Errorf("stored dep %s has malformed bind %q", depID, bind)
	}
	fromRef, ok := ref.ParseInternalRef(from)
	if !ok {
		return model.Dep{}, fmt.Errorf("stored dep %s has malformed from %q", depID, from)
	}

	var target model.DepTarget
	if strings.HasPrefix(to, "@") {
		r, ok := ref.ParseInternalRef(to)
		if !ok {
			return model.Dep{}, fmt.Errorf("stored dep %s has malformed to %q", depID, to)
		}
		target = model.TargetInternal(r)
	} else {
		c, ok := ref.ParseContractRef(to)
		if !ok {
			return model.Dep{}, fmt.Errorf("stored dep %s has malformed to %q", depID, to)
		}
		target = model.TargetContract(c)
	}

	var tokens []string
	if len(ssot) > 0 {
		if err := json.Unmarshal(ssot, &tokens); err != nil {
			return model.Dep{}, fmt.Errorf("stored dep %s has malformed ssot: %w", depID, err)
		}
	}
	var ssotRefs []ref.SSOTRef
	for _, tok := range tokens {
		ssotRefs = append(ssotRefs, ref.SSOTRef(tok))
	}

	return model.Dep{DepID: depID, Bind: bindRef, From: fromRef, To: target, SSOT: ssotRefs}, nil
}

func ssotStrings(refs []ref.SSOTRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = string(r)
	}
	return out
}
