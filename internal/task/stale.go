package task

import (
	"time"

	"github.com/aipl-dev/aipl/internal/model"
)

// DefaultStaleSeconds is the default heartbeat staleness threshold.
const DefaultStaleSeconds = 3600

// lastActivity returns the most recent of heartbeat_ts, status_ts, created_ts.
func lastActivity(t model.Task) time.Time {
	latest := t.CreatedTS
	if t.StatusTS.After(latest) {
		latest = t.StatusTS
	}
	if t.HeartbeatTS != nil && t.HeartbeatTS.After(latest) {
		latest = *t.HeartbeatTS
	}
	return latest
}

// ScanStale walks a backlog's tasks and transitions any `doing` task whose
// last activity is older than staleSeconds into `stale`, appending the
// transition event. If autoReset is set, a freshly-staled task is
// immediately transitioned again into `todo` (STALE_AUTO_RESET),
// recorded as a second event.
//
// Grounded on internal/health/stuck.go's CheckStuckDispatches: scan all
// in-flight items, compare now - lastActivity against a timeout, act on the
// ones that exceed it.
func ScanStale(b *Backlog, now time.Time, staleSeconds int, autoReset bool, eventsPath string) ([]string, error) {
	if staleSeconds <= 0 {
		staleSeconds = DefaultStaleSeconds
	}
	timeout := time.Duration(staleSeconds) * time.Second

	var affected []string
	for i := range b.Tasks {
		t := &b.Tasks[i]
		if t.Status != model.StatusDoing {
			continue
		}
		if now.Sub(lastActivity(*t)) < timeout {
			continue
		}
		if err := Transition(t, model.StatusStale, b.PlanID, "stale_scanner", "heartbeat timeout exceeded", eventsPath); err != nil {
			return affected, err
		}
		affected = append(affected, t.ID)

		if autoReset {
			if err := Transition(t, model.StatusTodo, b.PlanID, "stale_scanner", "auto-reset after staleness", eventsPath); err != nil {
				return affected, err
			}
		}
	}
	return affected, nil
}
