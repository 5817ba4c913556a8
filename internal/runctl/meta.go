package runctl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/google/uuid"
)

// newRunID mints a run-YYYYMMDD-HHMMSS-<uuid suffix> identifier: a sortable
// timestamp prefix plus a random suffix from google/uuid, since a run id has
// no content of its own to derive identity from.
func newRunID(now time.Time) (string, error) {
	id := uuid.New()
	return fmt.Sprintf("run-%s-%s", now.UTC().Format("20060102-150405"), id.String()[:8]), nil
}

// Meta is the run's meta.json payload: model.Run's persisted fields plus
// controller-only bookkeeping (how many rounds ended without passing
// verification, and the current step id), so a crashed controller can resume a paused or
// in-review run without re-deriving its progress.
type Meta struct {
	model.Run
	RoundsUsed int    `json:"rounds_used"`
	StepID     string `json:"step_id"`
	StageMode  string `json:"stage_mode,omitempty"`
}

func runDirFor(artifactsRoot, workspaceID, planID, runID string) string {
	return filepath.Join(artifactsRoot, "workspaces", workspaceID, "executions", planID, "runs", runID)
}

// ReadMeta exposes loadMeta to external callers (the CLI's status/artifact
// inspection commands) that need a run's current meta.json without driving
// any part of the round loop.
func ReadMeta(runDir string) (*Meta, error) {
	return loadMeta(runDir)
}

func loadMeta(runDir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("runctl: read meta: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("runctl: parse meta: %w", err)
	}
	return &m, nil
}

func saveMeta(runDir string, m *Meta) error {
	m.UpdatedTS = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("runctl: marshal meta: %w", err)
	}
	tmp := filepath.Join(runDir, ".meta.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("runctl: write meta: %w", err)
	}
	return os.Rename(tmp, filepath.Join(runDir, "meta.json"))
}

func eventsPath(runDir string) string {
	return filepath.Join(runDir, "events.jsonl")
}

func stepRoundDir(runDir, stepID string, round int) string {
	return filepath.Join(runDir, "steps", stepID, fmt.Sprintf("round-%d", round))
}
