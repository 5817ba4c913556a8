package runctl

import (
	"time"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/task"
)

// emit appends one event to the run's events.jsonl, grounded on
// internal/task's Transition/AppendEvent event-log convention generalized
// from status_transition to the broader run-level event vocabulary.
func emit(runDir, evType, planID, runID, taskID string, extra map[string]any) error {
	return task.AppendEvent(eventsPath(runDir), model.Event{
		Type: evType,
		TS: time.Now().UTC(),
		PlanID: planID,
		RunID: runID,
		TaskID: taskID,
		Extra: extra,
	})
}
