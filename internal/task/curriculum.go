package task

import (
	"time"

	"github.com/aipl-dev/aipl/internal/model"
)

// CurriculumPlanID is the synthetic plan id used to house curriculum-
// generated tasks: the backlog a no-plan-filter run falls back to once
// every real plan in the workspace is out of runnable work.
const CurriculumPlanID = "curriculum"

// curriculumStep is one rung of the built-in ladder.
type curriculumStep struct {
	ID       string
	Title    string
	Deps     []string
	Criteria []string
}

// curriculumLadder is a small, rule-based progression of objectively
// verifiable tasks, grounded on curriculum.py's suggest_next_task ladder
// (T001 -> T002 -> T003). No LLM is consulted; each step only fires once
// its predecessor id is already present in the backlog.
var curriculumLadder = []curriculumStep{
	{
		ID:    "T001",
		Title: "Generate deliverable file",
		Criteria: []string{
			"outputs/result.txt exists",
			"result.txt is exactly one line: OK: deliverable generated",
		},
	},
	{
		ID:    "T002",
		Title: "Create a human-readable summary",
		Deps:  []string{"T001"},
		Criteria: []string{
			"outputs/summary.md exists",
			"summary.md contains Task and Run",
		},
	},
	{
		ID:    "T003",
		Title: "Produce a run report index",
		Deps:  []string{"T002"},
		Criteria: []string{
			"index.md exists",
			"index.md contains Evidence section",
		},
	},
}

// SuggestNextTask returns the first ladder step whose id is not already in
// existingIDs, translated into a runnable time_for_certainty task, or nil
// once the whole ladder is exhausted. This is the last-resort fallback
// spec'd for a run with no plan filter and no runnable task anywhere in the
// workspace's backlogs.
func SuggestNextTask(goal string, existingIDs map[string]bool) *model.Task {
	now := time.Now()
	for _, step := range curriculumLadder {
		if existingIDs[step.ID] {
			continue
		}
		return &model.Task{
			ID:                 step.ID,
			Title:              step.Title,
			Type:               "time_for_certainty",
			Priority:           50,
			Dependencies:       append([]string{}, step.Deps...),
			Status:             model.StatusTodo,
			AcceptanceCriteria: append([]string{}, step.Criteria...),
			CreatedTS:          now,
			StatusTS:           now,
		}
	}
	return nil
}
