package assistant

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// IsCanceled reports whether a cancel.flag file exists in runDir. Checked
// before spawning the assistant and between rounds per spec; cancellation
// always takes precedence over pause.
//
// Grounded on internal/health/flock.go's file-existence-as-signal idiom.
func IsCanceled(runDir string) bool {
	_, err := os.Stat(filepath.Join(runDir, "cancel.flag"))
	return err == nil
}

// WaitWhilePaused spin-waits while pause.flag exists in runDir, polling
// every pollInterval, logging run_paused once on entry and run_resumed once
// on exit. Returns early (without waiting for resume) if cancel.flag
// appears while paused, since cancellation is sticky and takes precedence.
//
// Grounded on internal/scheduler/leader_lock.go's poll-with-sleep-interval
// loop.
func WaitWhilePaused(runDir string, pollInterval time.Duration, logger *slog.Logger, onEvent func(eventType string)) {
	pauseFlag := filepath.Join(runDir, "pause.flag")
	if _, err := os.Stat(pauseFlag); err != nil {
		return
	}

	if onEvent != nil {
		onEvent("run_paused")
	}
	if logger != nil {
		logger.Info("run paused", "run_dir", runDir)
	}

	for {
		if IsCanceled(runDir) {
			break
		}
		if _, err := os.Stat(pauseFlag); err != nil {
			break
		}
		time.Sleep(pollInterval)
	}

	if onEvent != nil {
		onEvent("run_resumed")
	}
	if logger != nil {
		logger.Info("run resumed", "run_dir", runDir)
	}
}
