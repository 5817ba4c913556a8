package task

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
)

func TestBacklog_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backlog.json")
	b := &Backlog{
		PlanID:      "plan-1",
		WorkspaceID: "ws-1",
		Tasks: []model.Task{
			{ID: "t1", Title: "first", Type: "time_for_certainty", Status: model.StatusTodo, CreatedTS: time.Now()},
		},
	}
	if err := b.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadBacklog(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Tasks) != 1 || loaded.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected loaded backlog: %+v", loaded)
	}
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	tk := model.Task{ID: "t1", Status: model.StatusDone}
	err := Transition(&tk, model.StatusDoing, "plan-1", "test", "", filepath.Join(t.TempDir(), "events.jsonl"))
	if err == nil {
		t.Fatal("expected error transitioning out of a terminal state")
	}
}

func TestTransition_WritesEventAndUpdatesBookkeeping(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	tk := model.Task{ID: "t1", Status: model.StatusTodo, CreatedTS: time.Now()}

	if err := Transition(&tk, model.StatusDoing, "plan-1", "controller", "starting", eventsPath); err != nil {
		t.Fatal(err)
	}
	if tk.Status != model.StatusDoing {
		t.Fatalf("expected status doing, got %s", tk.Status)
	}
	if tk.HeartbeatTS == nil {
		t.Fatal("expected heartbeat_ts to be set on entering doing")
	}

	events, err := ReadEvents(eventsPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != "status_transition" || events[0].From != model.StatusTodo || events[0].To != model.StatusDoing {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestTransition_StaleSetsStaleTSAndIncrementsCount(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	tk := model.Task{ID: "t1", Status: model.StatusDoing, CreatedTS: time.Now(), StaleCount: 2}

	if err := Transition(&tk, model.StatusStale, "plan-1", "stale_scanner", "timeout", eventsPath); err != nil {
		t.Fatal(err)
	}
	if tk.StaleTS == nil {
		t.Fatal("expected stale_ts to be set")
	}
	if tk.StaleCount != 3 {
		t.Fatalf("expected stale_count incremented to 3, got %d", tk.StaleCount)
	}
}

func TestAppendEvent_NoTwoConsecutiveSameTo(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	tk := model.Task{ID: "t1", Status: model.StatusTodo, CreatedTS: time.Now()}

	_ = Transition(&tk, model.StatusDoing, "plan-1", "c", "", eventsPath)
	_ = Transition(&tk, model.StatusStale, "plan-1", "c", "", eventsPath)
	_ = Transition(&tk, model.StatusTodo, "plan-1", "c", "", eventsPath)

	events, err := ReadEvents(eventsPath)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(events); i++ {
		if events[i].To == events[i-1].To {
			t.Fatalf("consecutive events with same `to` status at index %d: %+v", i, events)
		}
	}
}
