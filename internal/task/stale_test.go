package task

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
)

func TestScanStale_TransitionsOverdueDoingTask(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	old := time.Now().Add(-2 * time.Hour)
	b := &Backlog{
		PlanID: "plan-1",
		Tasks: []model.Task{
			{ID: "t1", Status: model.StatusDoing, CreatedTS: old, StatusTS: old},
		},
	}
	affected, err := ScanStale(b, time.Now(), DefaultStaleSeconds, false, eventsPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(affected) != 1 || affected[0] != "t1" {
		t.Fatalf("expected t1 flagged stale, got %+v", affected)
	}
	if b.Tasks[0].Status != model.StatusStale {
		t.Fatalf("expected status stale, got %s", b.Tasks[0].Status)
	}
}

func TestScanStale_AutoResetReturnsToTodo(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	old := time.Now().Add(-2 * time.Hour)
	b := &Backlog{
		Tasks: []model.Task{
			{ID: "t1", Status: model.StatusDoing, CreatedTS: old, StatusTS: old},
		},
	}
	if _, err := ScanStale(b, time.Now(), DefaultStaleSeconds, true, eventsPath); err != nil {
		t.Fatal(err)
	}
	if b.Tasks[0].Status != model.StatusTodo {
		t.Fatalf("expected auto-reset to todo, got %s", b.Tasks[0].Status)
	}
}

func TestScanStale_LeavesRecentTaskAlone(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	now := time.Now()
	b := &Backlog{
		Tasks: []model.Task{
			{ID: "t1", Status: model.StatusDoing, CreatedTS: now, StatusTS: now},
		},
	}
	affected, err := ScanStale(b, now, DefaultStaleSeconds, false, eventsPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(affected) != 0 {
		t.Fatalf("expected no tasks flagged, got %+v", affected)
	}
	if b.Tasks[0].Status != model.StatusDoing {
		t.Fatalf("expected status unchanged, got %s", b.Tasks[0].Status)
	}
}
