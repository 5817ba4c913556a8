// Package planbuilder turns a
// natural-language goal into a dependency-ordered backlog of tasks by
// prompting the assistant for a "plan" response and applying derivation
// rules that fill in defaults and validate the result before it becomes a
// runnable backlog.
//
// Grounded on internal/scheduler/prompt.go's BuildPrompt (structured,
// section-by-section prompt construction via strings.Builder) and the
// teacher's task/bead field defaults (internal/beads/beads.go's Bead
// shape), generalized to assemble a "plan" prompt instead of a "fix" one.
package planbuilder

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aipl-dev/aipl/internal/assistant"
	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/task"
)

// rawTask is the shape the assistant's "plan" schema response is parsed
// into, before derivation rules populate the rest of model.Task.
type rawTask struct {
	Title string `json:"title"`
	Priority int `json:"priority"`
	Dependencies       []string      `json:"dependencies"`
	AcceptanceCriteria []string      `json:"acceptance_criteria"`
	Checks             []model.Check `json:"checks"`
}

type rawPlanResponse struct {
	Tasks []rawTask `json:"tasks"`
}

// BuildPrompt constructs the "plan" prompt for the assistant, grounded on
// internal/scheduler/prompt.go's section-by-section strings.Builder style.
func BuildPrompt(goal, workspaceRoot string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are planning a backlog of verifiable sub-tasks for the workspace at %s.\n\n", workspaceRoot)
	fmt.Fprintf(&b, "## Goal\n%s\n\n", goal)
	b.WriteString("## Instructions\n")
	b.WriteString("1. Break the goal into an ordered list of small, independently verifiable tasks.\n")
	b.WriteString("2. Each task must have a title, a priority (higher runs first), a list of dependency indices within this plan, acceptance criteria, and at least one machine-checkable check.\n")
	b.WriteString("3. Prefer execution checks (command or http_check) over mere file-existence checks whenever the task produces runnable output.\n")
	b.WriteString("4. Respond only with JSON conforming to the declared plan schema.\n")
	return b.String()
}

// BuildPlan invokes the assistant for a plan response, applies derivation
// rules to produce a full Backlog, and returns both the Plan record and its
// Backlog. The goal/raw response are preserved on the Plan for audit.
func BuildPlan(runner assistant.Runner, opts assistant.RunOpts, planID, workspaceID, goal string) (*model.Plan, *task.Backlog, error) {
	res, err := runner.Run(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("planbuilder: invoke assistant: %w", err)
	}

	var raw rawPlanResponse
	if err := json.Unmarshal([]byte(res.Output), &raw); err != nil {
		return nil, nil, fmt.Errorf("planbuilder: parse plan response: %w", err)
	}

	now := time.Now()
	tasks, reasons := deriveTasks(raw.Tasks, now)

	plan := &model.Plan{
		ID: planID,
		WorkspaceID: workspaceID,
		Goal: goal,
		RawPlan: res.Output,
		ValidationReasons: reasons,
		CreatedTS: now,
	}
	backlog := &task.Backlog{
		PlanID: planID,
		WorkspaceID: workspaceID,
		Tasks: tasks,
	}
	return plan, backlog, nil
}

// deriveTasks applies Task defaults to each raw task: an id derived
// from its plan-local index, type fixed at "time_for_certainty", status
// "todo", and dependency indices resolved into task ids. A dependency index
// out of range is dropped and recorded as a validation reason rather than
// failing the whole plan.
func deriveTasks(raw []rawTask, now time.Time) ([]model.Task, []model.Reason) {
	ids := make([]string, len(raw))
	for i := range raw {
		ids[i] = fmt.Sprintf("t%d", i+1)
	}

	var reasons []model.Reason
	tasks := make([]model.Task, 0, len(raw))
	for i, r := range raw {
		deps := make([]string, 0, len(r.Dependencies))
		for _, d := range r.Dependencies {
			idx, ok := parseTaskRef(d, len(raw))
			if !ok {
				reasons = append(reasons, model.Reason{Type: "invalid_dependency", Index: i, Detail: d})
				continue
			}
			deps = append(deps, ids[idx])
		}

		title := r.Title
		if strings.TrimSpace(title) == "" {
			title = fmt.Sprintf("task %d", i+1)
			reasons = append(reasons, model.Reason{Type: "missing_title", Index: i})
		}

		if len(r.Checks) == 0 {
			reasons = append(reasons, model.Reason{Type: "no_checks", Index: i, Detail: "task has no machine-checkable assertions"})
		}

		tasks = append(tasks, model.Task{
			ID: ids[i],
			Title: title,
			Type: "time_for_certainty",
			Priority: r.Priority,
			Dependencies: deps,
			Status: model.StatusTodo,
			AcceptanceCriteria: r.AcceptanceCriteria,
			Checks: r.Checks,
			StatusTS: now,
			CreatedTS: now,
		})
	}
	return tasks, reasons
}

// parseTaskRef accepts either a 0-based numeric index ("2") or an existing
// id of the form "tN" and resolves it to a 0-based index into raw.
func parseTaskRef(ref string, n int) (int, bool) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "t") {
		ref = strings.TrimPrefix(ref, "t")
		var idx int
		if _, err := fmt.Sscanf(ref, "%d", &idx); err == nil && idx >= 1 && idx <= n {
			return idx - 1, true
		}
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(ref, "%d", &idx); err == nil && idx >= 0 && idx < n {
		return idx, true
	}
	return 0, false
}
