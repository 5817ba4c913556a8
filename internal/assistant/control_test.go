package assistant

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsCanceled(t *testing.T) {
	dir := t.TempDir()
	if IsCanceled(dir) {
		t.Fatal("expected not canceled when flag absent")
	}
	if err := os.WriteFile(filepath.Join(dir, "cancel.flag"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !IsCanceled(dir) {
		t.Fatal("expected canceled once flag present")
	}
}

func TestWaitWhilePaused_ReturnsImmediatelyWithoutFlag(t *testing.T) {
	dir := t.TempDir()
	var events []string
	done := make(chan struct{})
	go func() {
		WaitWhilePaused(dir, 10*time.Millisecond, nil, func(e string) { events = append(events, e) })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected immediate return when pause.flag absent")
	}
	if len(events) != 0 {
		t.Fatalf("expected no pause/resume events fired, got %+v", events)
	}
}

func TestWaitWhilePaused_ResumesWhenFlagRemoved(t *testing.T) {
	dir := t.TempDir()
	pauseFlag := filepath.Join(dir, "pause.flag")
	if err := os.WriteFile(pauseFlag, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var events []string
	done := make(chan struct{})
	go func() {
		WaitWhilePaused(dir, 10*time.Millisecond, nil, func(e string) { events = append(events, e) })
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	os.Remove(pauseFlag)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected resume once pause.flag removed")
	}
	if len(events) != 2 || events[0] != "run_paused" || events[1] != "run_resumed" {
		t.Fatalf("expected [run_paused, run_resumed], got %+v", events)
	}
}

func TestWaitWhilePaused_CancelPreemptsPause(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pause.flag"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		WaitWhilePaused(dir, 10*time.Millisecond, nil, nil)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "cancel.flag"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected pause to break out once cancel.flag appears")
	}
}
