package runctl

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/stage"
	"github.com/aipl-dev/aipl/internal/task"
)

// Cancel writes cancel.flag in runDir; the round loop observes it before the
// next spawn or between rounds and performs the actual transition/cleanup.
func Cancel(runDir string) error {
	return touchFlag(runDir, "cancel.flag")
}

// Pause writes pause.flag, causing the round loop to spin-wait via
// assistant.WaitWhilePaused. Only meaningful while the run is running.
func Pause(runDir string) error {
	meta, err := loadMeta(runDir)
	if err != nil {
		return err
	}
	if meta.Status != model.RunRunning {
		return fmt.Errorf("runctl: cannot pause a run in status %q", meta.Status)
	}
	if err := touchFlag(runDir, "pause.flag"); err != nil {
		return err
	}
	meta.Status = model.RunPaused
	return saveMeta(runDir, meta)
}

// Resume removes pause.flag, letting a spin-waiting round loop continue.
func Resume(runDir string) error {
	meta, err := loadMeta(runDir)
	if err != nil {
		return err
	}
	if meta.Status != model.RunPaused {
		return fmt.Errorf("runctl: cannot resume a run in status %q", meta.Status)
	}
	if err := os.Remove(filepath.Join(runDir, "pause.flag")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("runctl: remove pause.flag: %w", err)
	}
	meta.Status = model.RunRunning
	return saveMeta(runDir, meta)
}

func touchFlag(runDir, name string) error {
	f, err := os.OpenFile(filepath.Join(runDir, name), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("runctl: create %s: %w", name, err)
	}
	return f.Close()
}

// Apply is allowed only when a run is awaiting_review: it replays the
// recorded patch set onto mainRoot (single writer, short critical section),
// cleans the stage, and transitions the run to done.
func Apply(runDir, mainRoot string) error {
	meta, err := loadMeta(runDir)
	if err != nil {
		return err
	}
	if meta.Status != model.RunAwaitingReview {
		return fmt.Errorf("runctl: apply requires status awaiting_review, got %q", meta.Status)
	}
	if err := emit(runDir, "apply_start", meta.PlanID, meta.ID, meta.TaskID, nil); err != nil {
		return err
	}

	if meta.PatchSet != nil {
		changed := make([]stage.ChangedFile, 0, len(meta.PatchSet.ChangedFiles))
		for _, cf := range meta.PatchSet.ChangedFiles {
			changed = append(changed, stage.ChangedFile{Path: cf.Path, Status: stage.ChangeStatus(cf.Status)})
		}
		for _, r := range stage.ApplyPatchSet(meta.StageRoot, mainRoot, changed) {
			if !r.OK {
				return fmt.Errorf("runctl: apply %s: %s", r.Path, r.Err)
			}
		}
	}

	if err := stage.RemoveStage(stage.Meta{StageRoot: meta.StageRoot, Mode: stage.Mode(meta.StageMode)}, mainRoot); err != nil {
		return fmt.Errorf("runctl: remove stage after apply: %w", err)
	}
	meta.Status = model.RunDone
	meta.StageRoot = ""
	if err := saveMeta(runDir, meta); err != nil {
		return err
	}
	return emit(runDir, "apply_done", meta.PlanID, meta.ID, meta.TaskID, nil)
}

// Discard is allowed on any terminal-eligible run (awaiting_review or a
// recently failed run whose stage is still present): it drops the stage
// without touching mainRoot and transitions the run to discarded.
func Discard(runDir, mainRoot string) error {
	meta, err := loadMeta(runDir)
	if err != nil {
		return err
	}
	if meta.Status != model.RunAwaitingReview && meta.Status != model.RunFailed {
		return fmt.Errorf("runctl: discard requires status awaiting_review or failed, got %q", meta.Status)
	}
	if meta.StageRoot != "" {
		if err := stage.RemoveStage(stage.Meta{StageRoot: meta.StageRoot, Mode: stage.Mode(meta.StageMode)}, mainRoot); err != nil {
			return fmt.Errorf("runctl: remove stage on discard: %w", err)
		}
	}
	meta.Status = model.RunDiscarded
	meta.StageRoot = ""
	if err := saveMeta(runDir, meta); err != nil {
		return err
	}
	return emit(runDir, "discard_done", meta.PlanID, meta.ID, meta.TaskID, nil)
}

// Rework schedules a new round on an awaiting_review or recently failed run,
// using the stage already on disk. It writes feedback as a synthetic
// rework_request.json for the next round and flips the run back to running
// so a subsequent RunTask-style round loop picks it up; building that
// continuation loop from RoundsUsed is the caller's responsibility since it
// requires the same Options the original run used.
func Rework(runDir, feedback string) error {
	meta, err := loadMeta(runDir)
	if err != nil {
		return err
	}
	if meta.Status != model.RunAwaitingReview && meta.Status != model.RunFailed {
		return fmt.Errorf("runctl: rework requires status awaiting_review or failed, got %q", meta.Status)
	}
	nextRound := meta.RoundsUsed
	nextDir := stepRoundDir(runDir, meta.StepID, nextRound)
	req := struct {
		Round int `json:"round"`
		ErrorSummary string `json:"error_summary"`
		FixGuidance string `json:"fix_guidance"`
	}{Round: nextRound, ErrorSummary: "operator-supplied rework feedback", FixGuidance: feedback}
	if err := os.MkdirAll(nextDir, 0o755); err != nil {
		return fmt.Errorf("runctl: create rework round dir: %w", err)
	}
	data := fmt.Sprintf(`{"round":%d,"error_summary":%q,"fix_guidance":%q}`, req.Round, req.ErrorSummary, req.FixGuidance)
	if err := os.WriteFile(filepath.Join(nextDir, "rework_request.json"), []byte(data), 0o644); err != nil {
		return fmt.Errorf("runctl: write rework request: %w", err)
	}
	meta.Status = model.RunRunning
	if err := saveMeta(runDir, meta); err != nil {
		return err
	}
	return emit(runDir, "rework_start", meta.PlanID, meta.ID, meta.TaskID, map[string]any{"source": "operator"})
}

// Retry resets a failed or canceled task back to todo, optionally cascading
// through the dependency subgraph of tasks that depend on it (directly or
// transitively) and are themselves failed or canceled, so a downstream retry
// does not leave orphaned failures blocking re-execution. Both statuses are
// terminal in the transition matrix, so the reset is applied directly (with
// heartbeat_ts and stale_ts cleared) and logged as a status_transition event.
func Retry(b *task.Backlog, taskID, planID string, includeDeps bool, eventsPath string) error {
	t := b.Find(taskID)
	if t == nil {
		return fmt.Errorf("runctl: task %s not found in backlog", taskID)
	}
	if t.Status != model.StatusFailed && t.Status != model.StatusCanceled {
		return fmt.Errorf("runctl: retry requires a failed or canceled task, %s is %q", taskID, t.Status)
	}
	reset := func(rt *model.Task, reason string) error {
		from, now := rt.Status, time.Now()
		rt.Status, rt.StatusTS, rt.HeartbeatTS, rt.StaleTS = model.StatusTodo, now, nil, nil
		return task.AppendEvent(eventsPath, model.Event{Type: "status_transition", TS: now, PlanID: planID,
			TaskID: rt.ID, From: from, To: model.StatusTodo, Source: "operator", Reason: reason})
	}
	if err := reset(t, "retry"); err != nil {
		return err
	}
	if !includeDeps {
		return nil
	}

	dependents := dependentsOf(b, taskID)
	for _, id := range dependents {
		dt := b.Find(id)
		if dt == nil || (dt.Status != model.StatusFailed && dt.Status != model.StatusCanceled) {
			continue
		}
		if err := reset(dt, "retry (dependency subgraph)"); err != nil {
			return err
		}
	}
	return nil
}

// dependentsOf returns every task id that transitively depends on rootID.
func dependentsOf(b *task.Backlog, rootID string) []string {
	edges := make(map[string][]string) // dep id -> dependents
	for _, t := range b.Tasks {
		for _, dep := range t.Dependencies {
			edges[dep] = append(edges[dep], t.ID)
		}
	}
	var out []string
	seen := map[string]bool{rootID: true}
	queue := append([]string{}, edges[rootID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, edges[id]...)
	}
	return out
}
