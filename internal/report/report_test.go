package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdslc/internal/diag"
)

func TestRunReport(t *testing.T) {
	t.Run("stages and summary", func(t *testing.T) {
		r := NewRunReport("depsgen", "gen")
		_, err := uuid.Parse(r.RunID)
		require.NoError(t, err)

		h := r.BeginStage("harvest")
		r.EndStage(h, map[string]int{"sites": 4}, nil)
		h = r.BeginStage("emit")
		r.EndStage(h, nil, errors.New("disk full"))

		r.AddDiagnostics([]diag.Record{
			diag.Warnf(diag.CodeCycle, "/deps", "cycle detected"),
		})
		r.Finalize()

		assert.Equal(t, 2, r.Summary.StageCount)
		assert.Equal(t, 1, r.Summary.FailedStages)
		assert.Equal(t, map[string]int{"warn": 1}, r.Summary.Diagnostics)
		assert.False(t, r.Summary.Clean)

		require.Len(t, r.Stages, 2)
		assert.Equal(t, "ok", r.Stages[0].Status)
		assert.Equal(t, 4, r.Stages[0].Counters["sites"])
		assert.Equal(t, "error", r.Stages[1].Status)
		assert.Equal(t, "disk full", r.Stages[1].Error)
	})

	t.Run("warnings alone leave a run clean", func(t *testing.T) {
		r := NewRunReport("check", "gen")
		h := r.BeginStage("load")
		r.EndStage(h, nil, nil)
		r.AddDiagnostics([]diag.Record{
			diag.Warnf(diag.CodeCycle, "/deps", "cycle detected"),
		})
		r.Finalize()
		assert.True(t, r.Summary.Clean)
	})

	t.Run("errors make a run dirty", func(t *testing.T) {
		r := NewRunReport("check", "gen")
		r.AddDiagnostics([]diag.Record{
			diag.Errorf(diag.CodeSchema, "/nodes/0", "", "", "bad node"),
		})
		r.Finalize()
		assert.False(t, r.Summary.Clean)
	})

	t.Run("save writes valid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reports", "run.json")
		r := NewRunReport("build", "gen")
		h := r.BeginStage("parse")
		r.EndStage(h, map[string]int{"nodes": 2, "edges": 1}, nil)
		require.NoError(t, r.Save(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var loaded RunReport
		require.NoError(t, json.Unmarshal(data, &loaded))
		assert.Equal(t, r.RunID, loaded.RunID)
		assert.Equal(t, "build", loaded.Command)
		assert.True(t, loaded.Summary.Clean)
	})
}
