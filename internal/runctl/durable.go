// Durable mode: an optional Temporal-backed alternative to RunTask's
// in-process round loop, for a deployment that wants a run to survive a
// worker process restart mid-task rather than leaving it stuck in "running"
// until an operator notices and retries.
//
// Grounded on the teacher's internal/temporal/workflow.go CortexAgentWorkflow
// (PLAN -> GATE -> EXECUTE -> REVIEW -> DOD -> RECORD loop), generalized from
// its five-phase agent/reviewer handoff to aipl's own two-phase shape: EXECUTE
// (the existing RunTask round loop, unchanged) -> GATE (wait for an operator
// apply/rework/discard decision on the awaiting_review patch set). The human
// gate is still a real Temporal signal, same pattern as the teacher's
// "human-approval" signal channel.
package runctl

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aipl-dev/aipl/internal/assistant"
	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/task"
	"github.com/aipl-dev/aipl/internal/verify"
)

// DurableTaskRequest is ExecutionWorkflow's input: every serializable field
// RunTask needs, shipped across the Temporal activity boundary instead of
// held in an in-process goroutine's closure.
type DurableTaskRequest struct {
	PlanID        string
	TaskID        string
	WorkspaceID   string
	MainRoot      string
	ArtifactsRoot string
	BacklogPath   string
	EventsPath    string

	Mode             string
	MaxRounds        int
	AssistantCommand []string
	SchemaPath       string
	VerifyConfig     verify.Config
	HardPolicy       model.HardPolicy
}

// OperatorDecision is the signal payload ExecutionWorkflow waits for once a
// run reaches awaiting_review.
type OperatorDecision struct {
	Action   string // apply, rework, discard
	Feedback string // for rework
}

const OperatorDecisionSignal = "operator-decision"

// DurableActivities groups ExecutionWorkflow's activities. Each method
// constructs its own Options/Runner locally rather than receiving them from
// the workflow, since a Temporal activity's input must round-trip through
// JSON and assistant.Runner is an interface.
type DurableActivities struct{}

// ExecuteTaskActivity loads the backlog, finds the task, and runs it through
// RunTask exactly as the in-process CLI path does.
func (DurableActivities) ExecuteTaskActivity(ctx context.Context, req DurableTaskRequest) (*Meta, error) {
	b, err := task.LoadBacklog(req.BacklogPath)
	if err != nil {
		return nil, err
	}
	var t *model.Task
	for i := range b.Tasks {
		if b.Tasks[i].ID == req.TaskID {
			t = &b.Tasks[i]
			break
		}
	}
	if t == nil {
		return nil, fmt.Errorf("durable: task %s not found in backlog", req.TaskID)
	}

	mode := ModeAutopilot
	if req.Mode == "manual" {
		mode = ModeManual
	}
	opts := Options{
		Mode:             mode,
		MaxRounds:        req.MaxRounds,
		HardPolicy:       req.HardPolicy,
		VerifyConfig:     req.VerifyConfig,
		Runner:           assistant.NewSubprocessRunner(),
		AssistantCommand: req.AssistantCommand,
		SchemaPath:       req.SchemaPath,
	}
	return RunTask(ctx, opts, b, t, req.BacklogPath, req.EventsPath, req.PlanID, req.WorkspaceID, req.MainRoot, req.ArtifactsRoot)
}

// ApplyRunActivity applies an awaiting_review run's patch set.
func (DurableActivities) ApplyRunActivity(ctx context.Context, runDir, mainRoot string) error {
	return Apply(runDir, mainRoot)
}

// ReworkRunActivity schedules another round with operator feedback.
func (DurableActivities) ReworkRunActivity(ctx context.Context, runDir, feedback string) error {
	return Rework(runDir, feedback)
}

// DiscardRunActivity discards an awaiting_review or failed run's stage.
func (DurableActivities) DiscardRunActivity(ctx context.Context, runDir, mainRoot string) error {
	return Discard(runDir, mainRoot)
}

// ExecutionWorkflow drives one task to completion: run it, and if it lands
// in awaiting_review, block on an operator-decision signal before applying,
// scheduling rework, or discarding. A worker restart mid-run resumes from
// Temporal's replayed history rather than losing the in-flight attempt.
func ExecutionWorkflow(ctx workflow.Context, req DurableTaskRequest) (*Meta, error) {
	logger := workflow.GetLogger(ctx)
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a DurableActivities
	var meta *Meta
	if err := workflow.ExecuteActivity(ctx, a.ExecuteTaskActivity, req).Get(ctx, &meta); err != nil {
		return nil, fmt.Errorf("durable: execute task: %w", err)
	}

	if meta.Status != model.RunAwaitingReview {
		return meta, nil
	}

	logger.Info("durable: run awaiting review, waiting for operator decision", "run_id", meta.ID)

	decisionCh := workflow.GetSignalChannel(ctx, OperatorDecisionSignal)
	var decision OperatorDecision
	decisionCh.Receive(ctx, &decision)

	runDir := runDirFor(req.ArtifactsRoot, req.WorkspaceID, req.PlanID, meta.ID)
	quickOpts := workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	qctx := workflow.WithActivityOptions(ctx, quickOpts)

	switch decision.Action {
	case "apply":
		if err := workflow.ExecuteActivity(qctx, a.ApplyRunActivity, runDir, req.MainRoot).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("durable: apply: %w", err)
		}
	case "discard":
		if err := workflow.ExecuteActivity(qctx, a.DiscardRunActivity, runDir, req.MainRoot).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("durable: discard: %w", err)
		}
	case "rework":
		// Rework only records feedback and flips the run back to running;
		// resuming its round loop on the existing stage is a separate
		// continuation RunTask does not yet expose (see ops.go's Rework
		// doc comment), matching the same scope boundary the synchronous
		// CLI "rework" command has today.
		if err := workflow.ExecuteActivity(qctx, a.ReworkRunActivity, runDir, decision.Feedback).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("durable: rework: %w", err)
		}
	default:
		return nil, fmt.Errorf("durable: unrecognized operator decision %q", decision.Action)
	}

	return meta, nil
}
