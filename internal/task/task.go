// Package task implements the task state machine and backlog ordering:
// status transitions under the finite-state matrix, the
// append-only event log every transition writes, staleness detection, and
// pick_next_task dependency-ordered selection.
//
// Grounded on the teacher's internal/beads/beads.go (DepGraph construction
// over DependsOn edges, FilterUnblockedOpen's blocked-dependency check and
// priority/estimate ordering — generalized here from "open, non-epic,
// closed-dependencies" to the spec's {todo, all-dependencies-done} rule)
// and internal/health/stuck.go (staleness-by-timeout detection pattern).
package task

import (
	"fmt"

	"github.com/aipl-dev/aipl/internal/model"
)

// transitions is the allowed-transition matrix. A zero-value "from"
// key is not present; creation (∅ → todo) happens where tasks are built
// (the plan builder, SuggestNextTask), not through Transition.
var transitions = map[model.TaskStatus]map[model.TaskStatus]bool{
	model.StatusTodo: {
		model.StatusDoing: true,
		model.StatusCanceled: true,
	},
	model.StatusDoing: {
		model.StatusDone: true,
		model.StatusFailed: true,
		model.StatusCanceled: true,
		model.StatusStale: true,
	},
	model.StatusStale: {
		model.StatusTodo: true,
		model.StatusDoing: true,
		model.StatusCanceled: true,
	},
}

// CanTransition reports whether moving from "from" to "to" is legal under
// the matrix. Terminal states (done, failed, canceled) permit nothing.
func CanTransition(from, to model.TaskStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s model.TaskStatus) bool {
	_, ok := transitions[s]
	return !ok
}

// TransitionError is returned by Transition when the matrix forbids
// the requested move.
type TransitionError struct {
	TaskID string
	From, To model.TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task: illegal transition for %s: %s -> %s", e.TaskID, e.From, e.To)
}
