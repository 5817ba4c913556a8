package task

import (
	"sort"

	"github.com/aipl-dev/aipl/internal/model"
)

// depGraph is a minimal forward-dependency index over one backlog's tasks,
// grounded on the teacher's beads.DepGraph (internal/beads/beads.go).
type depGraph struct {
	byID map[string]*model.Task
}

func buildDepGraph(tasks []model.Task) *depGraph {
	g := &depGraph{byID: make(map[string]*model.Task, len(tasks))}
	for i := range tasks {
		g.byID[tasks[i].ID] = &tasks[i]
	}
	return g
}

// dependenciesAllDone reports whether every dependency of t is done. A
// dependency referencing an unknown task id counts as not done (blocked),
// mirroring beads.isBlocked's fail-closed behavior for a missing node.
func (g *depGraph) dependenciesAllDone(t *model.Task) bool {
	for _, depID := range t.Dependencies {
		dep, ok := g.byID[depID]
		if !ok || dep.Status != model.StatusDone {
			return false
		}
	}
	return true
}

// PickNextTask selects the next runnable task: among todo tasks of type
// "time_for_certainty" whose dependencies are all done, pick the highest
// priority, ties broken by file (slice) order. Returns nil if no task
// qualifies.
func PickNextTask(tasks []model.Task) *model.Task {
	g := buildDepGraph(tasks)

	var candidates []*model.Task
	for i := range tasks {
		t := &tasks[i]
		if t.Status != model.StatusTodo {
			continue
		}
		if t.Type != "time_for_certainty" {
			continue
		}
		if !g.dependenciesAllDone(t) {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})
	return candidates[0]
}
