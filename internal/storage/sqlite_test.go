package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdslc/internal/diag"
	"sdslc/internal/model"
	"sdslc/internal/ref"
)

func testSnapshot(runID string) *Snapshot {
	orderRef := ref.InternalRef{Kind: ref.KindStructure, RelID: "ORDER"}
	placeRef := ref.InternalRef{Kind: ref.KindFunction, RelID: "PLACE_ORDER"}
	rec := diag.Warnf(diag.CodeCycle, "/deps", "cycle detected")
	return &Snapshot{
		RunID:     runID,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Source:    "internal/shop",
		Deps: []model.Dep{
			{
				DepID: model.DepID(placeRef.String(), orderRef.String()),
				Bind:  placeRef,
				From:  placeRef,
				To:    model.TargetInternal(orderRef),
				SSOT:  []ref.SSOTRef{"SSOT.orders"},
			},
			{
				DepID: model.DepID(orderRef.String(), "CONTRACT.orders.v1"),
				Bind:  orderRef,
				From:  orderRef,
				To:    model.TargetContract("CONTRACT.orders.v1"),
			},
		},
		Cycles:  [][]string{{"Structure.ORDER", "Function.PLACE_ORDER", "Structure.ORDER"}},
		Records: []diag.Record{rec},
	}
}

func TestSQLiteStore_SaveLoadSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sdslc.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	snap := testSnapshot("run-1")
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	loaded, err := store.LoadSnapshot(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestSQLiteStore_SaveSnapshot_ReplacesRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sdslc.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveSnapshot(ctx, testSnapshot("run-1")))

	smaller := testSnapshot("run-1")
	smaller.Deps = smaller.Deps[:1]
	smaller.Cycles = nil
	smaller.Records = nil
	require.NoError(t, store.SaveSnapshot(ctx, smaller))

	loaded, err := store.LoadSnapshot(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Deps, 1)
	assert.Empty(t, loaded.Cycles)
	assert.Empty(t, loaded.Records)
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sdslc.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	older := testSnapshot("run-old")
	older.CreatedAt = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSnapshot(ctx, older))
	require.NoError(t, store.SaveSnapshot(ctx, testSnapshot("run-new")))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, 2, runs[0].DepCount)
	assert.Equal(t, "run-old", runs[1].RunID)
}

func TestSQLiteStore_LoadMissingRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sdslc.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.LoadSnapshot(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSQLiteStore_UnreachablePath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "sdslc.db")
	store, err := NewSQLiteStore(dbPath)
	assert.Error(t, err)
	assert.Nil(t, store)
}
