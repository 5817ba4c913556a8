package task

import (
	"testing"

	"github.com/aipl-dev/aipl/internal/model"
)

func TestPickNextTask_HighestPriorityAmongReady(t *testing.T) {
	tasks := []model.Task{
		{ID: "low", Status: model.StatusTodo, Type: "time_for_certainty", Priority: 1},
		{ID: "high", Status: model.StatusTodo, Type: "time_for_certainty", Priority: 5},
		{ID: "mid", Status: model.StatusTodo, Type: "time_for_certainty", Priority: 3},
	}
	got := PickNextTask(tasks)
	if got == nil || got.ID != "high" {
		t.Fatalf("expected high, got %+v", got)
	}
}

func TestPickNextTask_SkipsBlockedByIncompleteDependency(t *testing.T) {
	tasks := []model.Task{
		{ID: "blocked", Status: model.StatusTodo, Type: "time_for_certainty", Priority: 10, Dependencies: []string{"dep"}},
		{ID: "dep", Status: model.StatusDoing, Type: "time_for_certainty", Priority: 1},
		{ID: "ready", Status: model.StatusTodo, Type: "time_for_certainty", Priority: 1},
	}
	got := PickNextTask(tasks)
	if got == nil || got.ID != "ready" {
		t.Fatalf("expected ready, got %+v", got)
	}
}

func TestPickNextTask_UnblockedOnceDependencyDone(t *testing.T) {
	tasks := []model.Task{
		{ID: "dependent", Status: model.StatusTodo, Type: "time_for_certainty", Priority: 10, Dependencies: []string{"dep"}},
		{ID: "dep", Status: model.StatusDone, Type: "time_for_certainty", Priority: 1},
	}
	got := PickNextTask(tasks)
	if got == nil || got.ID != "dependent" {
		t.Fatalf("expected dependent, got %+v", got)
	}
}

func TestPickNextTask_IgnoresNonTodoAndWrongType(t *testing.T) {
	tasks := []model.Task{
		{ID: "doing", Status: model.StatusDoing, Type: "time_for_certainty", Priority: 10},
		{ID: "other_type", Status: model.StatusTodo, Type: "something_else", Priority: 10},
	}
	if got := PickNextTask(tasks); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestPickNextTask_MissingDependencyBlocksFailClosed(t *testing.T) {
	tasks := []model.Task{
		{ID: "t1", Status: model.StatusTodo, Type: "time_for_certainty", Priority: 1, Dependencies: []string{"ghost"}},
	}
	if got := PickNextTask(tasks); got != nil {
		t.Fatalf("expected nil for unresolvable dependency, got %+v", got)
	}
}
