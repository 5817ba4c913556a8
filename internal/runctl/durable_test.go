package runctl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/verify"
)

// ExecuteTaskActivity always builds its own assistant.NewSubprocessRunner,
// so these tests exercise the same RunTask path it drives directly with a
// scripted runner instead, keeping them independent of a real subprocess.

func TestDurableActivities_ExecuteTaskActivityReachesAwaitingReview(t *testing.T) {
	mainRoot, artifactsRoot := newWorkspace(t)
	dir := t.TempDir()
	backlogPath := filepath.Join(dir, "backlog.json")
	eventsPath := filepath.Join(dir, "events.jsonl")

	checks := []model.Check{{Type: model.CheckFileExists, Path: "output.txt"}}
	b, tk := newTestBacklog("t1", checks)
	runner := &scriptedRunner{responses: []string{`{"writes":[{"path":"output.txt","content":"hello"}],"commands":[]}`}}
	opts := Options{Mode: ModeAutopilot, MaxRounds: 1, VerifyConfig: verify.DefaultConfig(), Runner: runner}

	meta, err := RunTask(context.Background(), opts, b, tk, backlogPath, eventsPath, "plan-1", "ws-1", mainRoot, artifactsRoot)
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if meta.Status != model.RunAwaitingReview {
		t.Fatalf("expected awaiting_review, got %s", meta.Status)
	}
}

func TestDurableActivities_ApplyRunActivity(t *testing.T) {
	mainRoot, artifactsRoot := newWorkspace(t)
	dir := t.TempDir()
	backlogPath := filepath.Join(dir, "backlog.json")
	eventsPath := filepath.Join(dir, "events.jsonl")

	checks := []model.Check{{Type: model.CheckFileExists, Path: "output.txt"}}
	b, tk := newTestBacklog("t1", checks)
	runner := &scriptedRunner{responses: []string{`{"writes":[{"path":"output.txt","content":"hello"}],"commands":[]}`}}
	opts := Options{Mode: ModeAutopilot, MaxRounds: 1, VerifyConfig: verify.DefaultConfig(), Runner: runner}

	meta, err := RunTask(context.Background(), opts, b, tk, backlogPath, eventsPath, "plan-1", "ws-1", mainRoot, artifactsRoot)
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	runDir := runDirFor(artifactsRoot, "ws-1", "plan-1", meta.ID)
	var activities DurableActivities
	if err := activities.ApplyRunActivity(context.Background(), runDir, mainRoot); err != nil {
		t.Fatalf("ApplyRunActivity: %v", err)
	}
	if _, err := os.Stat(filepath.Join(mainRoot, "output.txt")); err != nil {
		t.Fatalf("expected applied file in main root: %v", err)
	}
}

func TestDurableActivities_DiscardRunActivity(t *testing.T) {
	mainRoot, artifactsRoot := newWorkspace(t)
	dir := t.TempDir()
	backlogPath := filepath.Join(dir, "backlog.json")
	eventsPath := filepath.Join(dir, "events.jsonl")

	checks := []model.Check{{Type: model.CheckFileExists, Path: "output.txt"}}
	b, tk := newTestBacklog("t1", checks)
	runner := &scriptedRunner{responses: []string{`{"writes":[{"path":"output.txt","content":"hello"}],"commands":[]}`}}
	opts := Options{Mode: ModeAutopilot, MaxRounds: 1, VerifyConfig: verify.DefaultConfig(), Runner: runner}

	meta, err := RunTask(context.Background(), opts, b, tk, backlogPath, eventsPath, "plan-1", "ws-1", mainRoot, artifactsRoot)
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	runDir := runDirFor(artifactsRoot, "ws-1", "plan-1", meta.ID)
	var activities DurableActivities
	if err := activities.DiscardRunActivity(context.Background(), runDir, mainRoot); err != nil {
		t.Fatalf("DiscardRunActivity: %v", err)
	}
	if _, err := os.Stat(filepath.Join(mainRoot, "output.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected discarded run to leave main root untouched")
	}
}

func TestDurableActivities_ReworkRunActivity(t *testing.T) {
	mainRoot, artifactsRoot := newWorkspace(t)
	dir := t.TempDir()
	backlogPath := filepath.Join(dir, "backlog.json")
	eventsPath := filepath.Join(dir, "events.jsonl")

	checks := []model.Check{{Type: model.CheckFileExists, Path: "output.txt"}}
	b, tk := newTestBacklog("t1", checks)
	runner := &scriptedRunner{responses: []string{`{"writes":[{"path":"output.txt","content":"hello"}],"commands":[]}`}}
	opts := Options{Mode: ModeAutopilot, MaxRounds: 1, VerifyConfig: verify.DefaultConfig(), Runner: runner}

	meta, err := RunTask(context.Background(), opts, b, tk, backlogPath, eventsPath, "plan-1", "ws-1", mainRoot, artifactsRoot)
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}

	runDir := runDirFor(artifactsRoot, "ws-1", "plan-1", meta.ID)
	var activities DurableActivities
	if err := activities.ReworkRunActivity(context.Background(), runDir, "please retry with a comment"); err != nil {
		t.Fatalf("ReworkRunActivity: %v", err)
	}
	updated, err := ReadMeta(runDir)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != model.RunRunning {
		t.Fatalf("expected run status running after rework, got %s", updated.Status)
	}
}
