package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/task"
	"github.com/spf13/cobra"
)

var cleanupPlanID string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Archive a finished plan: empty its backlog and snapshot the removed tasks onto plan.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doCleanup() })
	},
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupPlanID, "plan-id", "", "plan whose backlog should be archived")
	rootCmd.AddCommand(cleanupCmd)
}

// acquirePlanLock serializes cleanup per plan via an exclusive-create lock
// file, the same file-existence-as-signal idiom internal/assistant/control.go
// uses for cancel/pause flags. A second concurrent cleanup of the same plan
// fails fast rather than racing the backlog rewrite.
func acquirePlanLock(path string) (func(), error) {
	if err := ensureParent(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("cleanup: plan is already being cleaned up (lock held at %s)", path)
		}
		return nil, err
	}
	f.Close()
	return func() { os.Remove(path) }, nil
}

// doCleanup removes every task from a plan's backlog, writes the removed
// tasks into the plan's one-shot cleanup_snapshot field, and mirrors the
// snapshot onto disk as snapshot.json. Grounded on
// cleanup_plan.py's update_plan_status/main, adapted from the original's
// single-workspace-wide backlog (filtered by plan_id) to aipl's
// one-backlog-file-per-plan layout: every task in a plan's own backlog file
// already belongs to that plan, so cleanup always empties the whole file.
func doCleanup() (any, error) {
	if strings.TrimSpace(cleanupPlanID) == "" {
		return nil, fmt.Errorf("--plan-id is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(e.executionsDir(cleanupPlanID), "cleanup.lock")
	release, err := acquirePlanLock(lockPath)
	if err != nil {
		return nil, err
	}
	defer release()

	backlogPath := e.backlogPath(cleanupPlanID)
	b, err := task.LoadBacklog(backlogPath)
	if err != nil {
		return nil, fmt.Errorf("cleanup: load backlog: %w", err)
	}

	removed := b.Tasks
	b.Tasks = nil
	if err := b.Save(backlogPath); err != nil {
		return nil, fmt.Errorf("cleanup: save emptied backlog: %w", err)
	}

	result := map[string]any{
		"plan_id": cleanupPlanID,
		"removed": len(removed),
	}
	if len(removed) == 0 {
		return result, nil
	}

	snapshotPath := filepath.Join(e.executionsDir(cleanupPlanID), "snapshot.json")
	if err := ensureParent(snapshotPath); err != nil {
		return nil, err
	}
	if err := writeJSONFile(snapshotPath, removed); err != nil {
		return nil, fmt.Errorf("cleanup: write snapshot: %w", err)
	}

	var plan model.Plan
	planPath := e.planPath(cleanupPlanID)
	if err := readJSONFile(planPath, &plan); err != nil {
		if os.IsNotExist(err) {
			result["plan_updated"] = false
			return result, nil
		}
		return nil, fmt.Errorf("cleanup: read plan: %w", err)
	}
	plan.CleanupSnapshot = &model.CleanupSnapshot{TakenAt: time.Now(), Path: snapshotPath}
	if err := writeJSONFile(planPath, &plan); err != nil {
		return nil, fmt.Errorf("cleanup: write plan: %w", err)
	}
	result["plan_updated"] = true
	result["snapshot_path"] = snapshotPath
	return result, nil
}
