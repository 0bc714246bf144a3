// Package storage persists per-run snapshots of the dependency build:
// emitted deps, detected cycles and every diagnostic, keyed by run id.
package storage

import (
	"context"
	"time"

	"sdslc/internal/diag"
	"sdslc/internal/model"
)

// Snapshot is the durable record of one dependency build run.
type Snapshot struct {
	RunID     string
	CreatedAt time.Time
	Source    string
	Deps      []model.Dep
	Cycles    [][]string
	Records   []diag.Record
}

// RunInfo summarizes one stored run.
type RunInfo struct {
	RunID     string
	CreatedAt time.Time
	Source    string
	DepCount  int
}

// Store defines snapshot persistence.
type Store interface {
	// SaveSnapshot persists one run. Saving the same run id again
	// replaces its contents.
	SaveSnapshot(ctx context.Context, snap *Snapshot) error

	// LoadSnapshot retrieves one run by id.
	LoadSnapshot(ctx context.Context, runID string) (*Snapshot, error)

	// ListRuns returns stored runs, newest first.
	ListRuns(ctx context.Context) ([]RunInfo, error)

	Close() error
}
