// Package report renders the machine-readable outcome of one toolchain run:
// stage timings, per-stage counters and every diagnostic, under a unique
// run id.
package report

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"sdslc/internal/diag"
	"sdslc/internal/fsio"
)

type StageMetric struct {
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at"`
	DurationMS int64          `json:"duration_ms"`
	Counters   map[string]int `json:"counters,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type Summary struct {
	StageCount   int            `json:"stage_count"`
	FailedStages int            `json:"failed_stages"`
	Diagnostics  map[string]int `json:"diagnostics_by_severity"`
	Clean        bool           `json:"clean"`
}

type RunReport struct {
	Version     string        `json:"version"`
	RunID       string        `json:"run_id"`
	Command     string        `json:"command"`
	GeneratedAt string        `json:"generated_at"`
	OutputRoot  string        `json:"output_root"`
	Stages      []StageMetric `json:"stages"`
	Diagnostics []diag.Record `json:"diagnostics,omitempty"`
	Summary     Summary       `json:"summary"`
}

type StageHandle struct {
	name    string
	started time.Time
}

func NewRunReport(command, outputRoot string) *RunReport {
	return &RunReport{
		Version:     "v1",
		RunID:       uuid.NewString(),
		Command:     command,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		OutputRoot:  outputRoot,
		Stages:      []StageMetric{},
	}
}

func (r *RunReport) BeginStage(name string) StageHandle {
	return StageHandle{name: strings.TrimSpace(name), started: time.Now().UTC()}
}

func (r *RunReport) EndStage(h StageHandle, counters map[string]int, err error) {
	if r == nil || h.name == "" {
		return
	}
	finished := time.Now().UTC()
	m := StageMetric{
		Name:       h.name,
		Status:     "ok",
		StartedAt:  h.started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		DurationMS: finished.Sub(h.started).Milliseconds(),
		Counters:   counters,
	}
	if err != nil {
		m.Status = "error"
		m.Error = err.Error()
	}
	r.Stages = append(r.Stages, m)
}

func (r *RunReport) AddDiagnostics(recs []diag.Record) {
	if r == nil {
		return
	}
	r.Diagnostics = append(r.Diagnostics, recs...)
}

// Finalize computes the summary. Clean means no failed stage and no
// error-severity diagnostic; warnings alone leave a run clean.
func (r *RunReport) Finalize() {
	if r == nil {
		return
	}
	r.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	failed := 0
	for _, st := range r.Stages {
		if st.Status != "ok" {
			failed++
		}
	}
	bySeverity := map[string]int{}
	for sev, n := range diag.Counts(r.Diagnostics) {
		bySeverity[string(sev)] = n
	}
	r.Summary = Summary{
		StageCount:   len(r.Stages),
		FailedStages: failed,
		Diagnostics:  bySeverity,
		Clean:        failed == 0 && !diag.HasErrors(r.Diagnostics),
	}
}

// Save finalizes the report and writes it atomically as indented JSON.
func (r *RunReport) Save(path string) error {
	if r == nil {
		return nil
	}
	r.Finalize()
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return fsio.WriteFileAtomic(path, data)
}
