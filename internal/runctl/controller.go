// Package runctl implements the run controller: the central
// step→round→verify→retry→patch→review algorithm that drives one task from
// its backlog through a staged workspace to either a reviewable patch set or
// a failure.
//
// Grounded on internal/scheduler/scheduler.go's tick loop (pick work, check
// limits, dispatch, advance state) and internal/scheduler/pipeline.go's
// multi-stage "prepare, run, verify, record outcome" shape, generalized from
// ticking over beads/Temporal workflows to driving one task's rounds
// in-process. Pause/cancel polling is internal/assistant/control.go's
// WaitWhilePaused/IsCanceled, reused directly rather than re-derived.
package runctl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aipl-dev/aipl/internal/assistant"
	"github.com/aipl-dev/aipl/internal/cost"
	"github.com/aipl-dev/aipl/internal/learn"
	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/stage"
	"github.com/aipl-dev/aipl/internal/task"
	"github.com/aipl-dev/aipl/internal/verify"
)

// defaultInputPriceMtok/defaultOutputPriceMtok are the fallback per-million-
// token USD prices used when Options leaves pricing unset.
const (
	defaultInputPriceMtok  = 3.0
	defaultOutputPriceMtok = 15.0
)

// defaultMinLearnConfidence gates which diagnosis-derived candidates are
// persisted into the per-workspace learned/ store (learn.StoreAll).
const defaultMinLearnConfidence = 0.5

func learnedDirFor(artifactsRoot, workspaceID string) string {
	return filepath.Join(artifactsRoot, "workspaces", workspaceID, "learned")
}

// Mode selects whether the round loop drives a real assistant or writes
// stub output, mirroring step 5c's autopilot/manual split.
type Mode string

const (
	ModeAutopilot Mode = "autopilot"
	ModeManual    Mode = "manual"
)

// Options parameterizes one controller invocation. Runner/Command are only
// consulted in ModeAutopilot.
type Options struct {
	Mode Mode
	MaxRounds int
	HardPolicy model.HardPolicy
	PolicyChecks []model.Check
	VerifyConfig verify.Config
	Runner assistant.Runner
	AssistantCommand []string
	SchemaPath string
	IdleTimeout time.Duration
	HardTimeout time.Duration
	PausePollInterval time.Duration
	Logger *slog.Logger
	Mirror *Mirror // optional SQLite status mirror; nil is fine
	InputPriceMtok float64 // USD per million input tokens, for cost tracking
	OutputPriceMtok float64 // USD per million output tokens, for cost tracking
}

func (o Options) withDefaults() Options {
	if o.MaxRounds <= 0 {
		o.MaxRounds = 1
	}
	if o.PausePollInterval <= 0 {
		o.PausePollInterval = 2 * time.Second
	}
	if o.Mode == "" {
		o.Mode = ModeAutopilot
	}
	if o.InputPriceMtok <= 0 {
		o.InputPriceMtok = defaultInputPriceMtok
	}
	if o.OutputPriceMtok <= 0 {
		o.OutputPriceMtok = defaultOutputPriceMtok
	}
	return o
}

// RunTask executes one task's full lifecycle: select (already done by
// the caller via task.PickNextTask), transition to doing, stage, round loop,
// finalize, and patch/review. backlogPath/taskEventsPath are the workspace's
// backlog file and task-level event log; mainRoot is the real workspace
// tree; artifactsRoot is the artifacts root that holds workspaces/<workspaceID>/.
func RunTask(ctx context.Context, opts Options, b *task.Backlog, t *model.Task, backlogPath, taskEventsPath, planID, workspaceID, mainRoot, artifactsRoot string) (*Meta, error) {
	opts = opts.withDefaults()

	if err := task.Transition(t, model.StatusDoing, planID, "runctl", "selected for execution", taskEventsPath); err != nil {
		return nil, fmt.Errorf("runctl: transition to doing: %w", err)
	}
	if err := b.Save(backlogPath); err != nil {
		return nil, fmt.Errorf("runctl: save backlog: %w", err)
	}

	now := time.Now().UTC()
	runID, err := newRunID(now)
	if err != nil {
		return nil, err
	}
	runDir := runDirFor(artifactsRoot, workspaceID, planID, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("runctl: create run dir: %w", err)
	}

	meta := &Meta{
		Run: model.Run{
			ID: runID,
			PlanID: planID,
			TaskID: t.ID,
			WorkspaceID: workspaceID,
			WorkspaceMainRoot: mainRoot,
			Status: model.RunRunning,
			CreatedTS: now,
			UpdatedTS: now,
		},
		StepID: t.ID,
	}
	if err := saveMeta(runDir, meta); err != nil {
		return meta, err
	}
	if err := emit(runDir, "run_init", planID, runID, t.ID, nil); err != nil {
		return meta, err
	}
	mirrorStatus(opts.Mirror, meta)

	stageMeta, err := stage.CreateStage(runDir, mainRoot)
	if err != nil {
		return finalizeFailed(runDir, meta, opts, taskEventsPath, planID, t, fmt.Sprintf("stage creation failed: %v", err))
	}
	meta.StageRoot = stageMeta.StageRoot
	meta.StageMode = string(stageMeta.Mode)
	if err := saveMeta(runDir, meta); err != nil {
		return meta, err
	}
	if err := emit(runDir, "workspace_stage_ready", planID, runID, t.ID, map[string]any{"mode": string(stageMeta.Mode)}); err != nil {
		return meta, err
	}

	effectiveChecks := verify.EffectiveChecks(t.Checks, opts.PolicyChecks)

	passed := false
	var lastReasons []model.Reason
	var producedFiles []string

	for round := 0; round < opts.MaxRounds; round++ {
		if assistant.IsCanceled(runDir) {
			return cancelRun(runDir, meta, opts, taskEventsPath, planID, t)
		}
		assistant.WaitWhilePaused(runDir, opts.PausePollInterval, opts.Logger, func(evType string) {
			_ = emit(runDir, evType, planID, runID, t.ID, nil)
		})
		if assistant.IsCanceled(runDir) {
			return cancelRun(runDir, meta, opts, taskEventsPath, planID, t)
		}

		roundDir := stepRoundDir(runDir, t.ID, round)
		if err := os.MkdirAll(roundDir, 0o755); err != nil {
			return finalizeFailed(runDir, meta, opts, taskEventsPath, planID, t, fmt.Sprintf("create round dir: %v", err))
		}
		if err := emit(runDir, "step_round_start", planID, runID, t.ID, map[string]any{"round": round}); err != nil {
			return meta, err
		}

		var roundReasons []model.Reason
		if opts.Mode == ModeAutopilot {
			var roundProduced []string
			var usage cost.TokenUsage
			roundReasons, roundProduced, usage, err = runAutopilotRound(ctx, opts, stageMeta.StageRoot, roundDir, round, t)
			if err != nil {
				return finalizeFailed(runDir, meta, opts, taskEventsPath, planID, t, fmt.Sprintf("assistant invocation: %v", err))
			}
			producedFiles = append(producedFiles, roundProduced...)
			meta.InputTokens += usage.Input
			meta.OutputTokens += usage.Output
			meta.CostUSD += cost.CalculateCost(usage, opts.InputPriceMtok, opts.OutputPriceMtok)
		} else {
			_ = os.WriteFile(filepath.Join(roundDir, "stdout.txt"), []byte("manual mode: no assistant invoked\n"), 0o644)
			_ = os.WriteFile(filepath.Join(roundDir, "stderr.txt"), nil, 0o644)
		}

		res, reasons, verr := verify.VerifyTask(ctx, opts.VerifyConfig, opts.Logger, stageMeta.StageRoot, roundDir, effectiveChecks)
		if verr != nil {
			return finalizeFailed(runDir, meta, opts, taskEventsPath, planID, t, fmt.Sprintf("verification: %v", verr))
		}
		if err := emit(runDir, "step_round_verified", planID, runID, t.ID, map[string]any{"round": round, "passed": res.Passed}); err != nil {
			return meta, err
		}

		lastReasons = append(append([]model.Reason{}, roundReasons...), reasons...)
		if res.Passed {
			passed = true
			break
		}

		diagnoseRoundFailure(roundDir, learnedDirFor(artifactsRoot, workspaceID), t.ID, round, lastReasons, res.Checks, producedFiles)

		if round+1 < opts.MaxRounds {
			req := verify.BuildReworkRequest(round, opts.MaxRounds, lastReasons, res.Checks, stageMeta.StageRoot, producedFiles, nil)
			nextDir := stepRoundDir(runDir, t.ID, round+1)
			if err := emit(runDir, "rework_start", planID, runID, t.ID, map[string]any{"round": round}); err != nil {
				return meta, err
			}
			if err := verify.WriteReworkRequest(nextDir, req); err != nil {
				return finalizeFailed(runDir, meta, opts, taskEventsPath, planID, t, fmt.Sprintf("write rework request: %v", err))
			}
			if err := emit(runDir, "rework_done", planID, runID, t.ID, map[string]any{"round": round}); err != nil {
				return meta, err
			}
		}
		meta.RoundsUsed = round + 1
		_ = saveMeta(runDir, meta)
	}

	if err := emit(runDir, "step_done", planID, runID, t.ID, map[string]any{"passed": passed}); err != nil {
		return meta, err
	}

	if !passed {
		if err := task.Transition(t, model.StatusFailed, planID, "runctl", "all rounds exhausted without passing verification", taskEventsPath); err != nil {
			return meta, err
		}
		_ = b.Save(backlogPath)
		meta.Status = model.RunFailed
		_ = saveMeta(runDir, meta)
		_ = emit(runDir, "run_done", planID, runID, t.ID, map[string]any{"status": string(meta.Status)})
		mirrorStatus(opts.Mirror, meta)
		_ = stage.RemoveStage(stageMeta, mainRoot)
		return meta, nil
	}

	if err := task.Transition(t, model.StatusDone, planID, "runctl", "verification passed", taskEventsPath); err != nil {
		return meta, err
	}
	_ = b.Save(backlogPath)

	patchSet, err := stage.BuildPatchSet(stageMeta.StageRoot, mainRoot, runDir)
	if err != nil {
		return meta, fmt.Errorf("runctl: build patch set: %w", err)
	}

	if len(patchSet.ChangedFiles) == 0 {
		meta.Status = model.RunDone
		_ = saveMeta(runDir, meta)
		_ = emit(runDir, "run_done", planID, runID, t.ID, map[string]any{"status": string(meta.Status)})
		mirrorStatus(opts.Mirror, meta)
		_ = stage.RemoveStage(stageMeta, mainRoot)
		return meta, nil
	}

	meta.PatchSet = &model.PatchSet{UnifiedDiffText: patchSet.UnifiedDiffText}
	for _, cf := range patchSet.ChangedFiles {
		meta.PatchSet.ChangedFiles = append(meta.PatchSet.ChangedFiles, model.ChangedFile{Path: cf.Path, Status: model.ChangeStatus(cf.Status)})
	}
	meta.Status = model.RunAwaitingReview
	if err := saveMeta(runDir, meta); err != nil {
		return meta, err
	}
	if err := emit(runDir, "patchset_ready", planID, runID, t.ID, nil); err != nil {
		return meta, err
	}
	if err := emit(runDir, "awaiting_review", planID, runID, t.ID, nil); err != nil {
		return meta, err
	}
	mirrorStatus(opts.Mirror, meta)
	return meta, nil
}

func runAutopilotRound(ctx context.Context, opts Options, stageRoot, roundDir string, round int, t *model.Task) ([]model.Reason, []string, cost.TokenUsage, error) {
	prompt := buildRoundPrompt(roundDir, round, t)
	if err := os.WriteFile(filepath.Join(roundDir, "prompt.txt"), []byte(prompt), 0o644); err != nil {
		return nil, nil, cost.TokenUsage{}, fmt.Errorf("write prompt: %w", err)
	}

	res, err := opts.Runner.Run(assistant.RunOpts{
		Prompt: prompt,
		SchemaPath: opts.SchemaPath,
		Sandbox: assistant.SandboxSubprocess,
		WorkDir: stageRoot,
		IdleTimeout: opts.IdleTimeout,
		HardTimeout: opts.HardTimeout,
		HeartbeatPath: filepath.Join(roundDir, "heartbeat.txt"),
		Command: opts.AssistantCommand,
	})
	if err != nil {
		return nil, nil, cost.TokenUsage{}, err
	}
	if err := os.WriteFile(filepath.Join(roundDir, "shape_response.json"), []byte(res.Output), 0o644); err != nil {
		return nil, nil, cost.TokenUsage{}, fmt.Errorf("write shape response: %w", err)
	}
	usage := cost.ExtractTokenUsage(res.Output, prompt)

	fr, err := parseFixResponse(res.Output)
	if err != nil {
		return []model.Reason{{Type: "invalid_response", Detail: err.Error()}}, nil, usage, nil
	}

	writesApplied, writeReasons := applyWrites(stageRoot, roundDir, fr.Writes, opts.HardPolicy)
	stdout, stderr, cmdReasons := runCommands(ctx, stageRoot, fr.Commands, opts.HardPolicy)
	_ = os.WriteFile(filepath.Join(roundDir, "stdout.txt"), []byte(stdout), 0o644)
	_ = os.WriteFile(filepath.Join(roundDir, "stderr.txt"), []byte(stderr), 0o644)

	return append(writeReasons, cmdReasons...), writesApplied, usage, nil
}

func buildRoundPrompt(roundDir string, round int, t *model.Task) string {
	if round == 0 {
		return fmt.Sprintf("Task: %s\n\nAcceptance criteria:\n- %s\n", t.Title, joinLines(t.AcceptanceCriteria))
	}
	// A prior round, upon failing with rounds remaining, writes
	// rework_request.json directly into this round's own directory before
	// this iteration starts (see the round loop's "rounds remain" branch).
	data, err := os.ReadFile(filepath.Join(roundDir, "rework_request.json"))
	if err != nil {
		return fmt.Sprintf("Task: %s (round %d, previous rework request unavailable)\n", t.Title, round)
	}
	return fmt.Sprintf("Task: %s\n\nThe previous round failed verification. Rework request:\n%s\n", t.Title, string(data))
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return "(none declared)"
	}
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n- " + l
	}
	return out
}

// diagnoseRoundFailure categorizes one failed round's output, writes the
// round's diagnosis.json/diagnosis.md, and folds the resulting learning
// candidates into the workspace's learned/ store. Best-effort: a failure
// here must never fail the run it is diagnosing.
func diagnoseRoundFailure(roundDir, learnedDir, stepID string, round int, reasons []model.Reason, checks []verify.CheckRecord, producedFiles []string) {
	output := roundFailureOutput(reasons, checks)
	diag := learn.Diagnose(output)
	if diag == nil {
		return
	}
	_ = learn.WriteReport(roundDir, round, stepID, *diag)
	candidates := learn.FromDiagnosis(diag, producedFiles)
	_ = learn.StoreAll(learnedDir, candidates, defaultMinLearnConfidence)
}

func roundFailureOutput(reasons []model.Reason, checks []verify.CheckRecord) string {
	var lines []string
	for _, r := range reasons {
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", r.Type, r.Detail, r.Path))
	}
	for _, c := range checks {
		if c.OK {
			continue
		}
		if c.Reason != nil {
			lines = append(lines, fmt.Sprintf("%s: %s (%s)", c.Reason.Type, c.Reason.Detail, c.Reason.Path))
		}
		if c.Evidence != "" {
			lines = append(lines, c.Evidence)
		}
	}
	return joinLines(lines)
}

func cancelRun(runDir string, meta *Meta, opts Options, taskEventsPath, planID string, t *model.Task) (*Meta, error) {
	meta.Status = model.RunCanceled
	_ = saveMeta(runDir, meta)
	_ = emit(runDir, "run_canceled", planID, meta.ID, t.ID, nil)
	if err := task.Transition(t, model.StatusCanceled, planID, "operator", "run canceled", taskEventsPath); err != nil {
		return meta, err
	}
	mirrorStatus(opts.Mirror, meta)
	if meta.StageRoot != "" {
		_ = stage.RemoveStage(stage.Meta{StageRoot: meta.StageRoot, Mode: stage.Mode(meta.StageMode)}, meta.WorkspaceMainRoot)
	}
	return meta, nil
}

func finalizeFailed(runDir string, meta *Meta, opts Options, taskEventsPath, planID string, t *model.Task, reason string) (*Meta, error) {
	meta.Status = model.RunFailed
	_ = saveMeta(runDir, meta)
	_ = emit(runDir, "run_done", planID, meta.ID, t.ID, map[string]any{"status": string(meta.Status), "reason": reason})
	_ = task.Transition(t, model.StatusFailed, planID, "runctl", reason, taskEventsPath)
	mirrorStatus(opts.Mirror, meta)
	if meta.StageRoot != "" {
		_ = stage.RemoveStage(stage.Meta{StageRoot: meta.StageRoot, Mode: stage.Mode(meta.StageMode)}, meta.WorkspaceMainRoot)
	}
	return meta, fmt.Errorf("runctl: %s", reason)
}
