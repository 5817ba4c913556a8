package main

import (
	"fmt"
	"os"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/runctl"
	"github.com/aipl-dev/aipl/internal/task"
	"github.com/spf13/cobra"
)

var (
	ctlPlanID      string
	ctlRunID       string
	ctlTaskID      string
	ctlRetryDeps   bool
	ctlFeedback    string
)

func addPlanRunFlags(c *cobra.Command) {
	c.Flags().StringVar(&ctlPlanID, "plan-id", "", "plan id")
	c.Flags().StringVar(&ctlRunID, "run-id", "", "run id")
}

func requirePlanRun() (*env, string, error) {
	if ctlPlanID == "" || ctlRunID == "" {
		return nil, "", fmt.Errorf("--plan-id and --run-id are required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, "", err
	}
	return e, e.runDir(ctlPlanID, ctlRunID), nil
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Request cancellation of a running run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) {
			_, runDir, err := requirePlanRun()
			if err != nil {
				return nil, err
			}
			return map[string]any{"run_id": ctlRunID}, runctl.Cancel(runDir)
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause a running run at its next suspension point",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) {
			_, runDir, err := requirePlanRun()
			if err != nil {
				return nil, err
			}
			return map[string]any{"run_id": ctlRunID}, runctl.Pause(runDir)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) {
			_, runDir, err := requirePlanRun()
			if err != nil {
				return nil, err
			}
			return map[string]any{"run_id": ctlRunID}, runctl.Resume(runDir)
		})
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply an awaiting_review run's patch set into the main workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) {
			e, runDir, err := requirePlanRun()
			if err != nil {
				return nil, err
			}
			return map[string]any{"run_id": ctlRunID}, runctl.Apply(runDir, e.mainRoot)
		})
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Discard an awaiting_review or failed run's stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) {
			e, runDir, err := requirePlanRun()
			if err != nil {
				return nil, err
			}
			return map[string]any{"run_id": ctlRunID}, runctl.Discard(runDir, e.mainRoot)
		})
	},
}

var reworkCmd = &cobra.Command{
	Use:   "rework",
	Short: "Schedule another round on a run, with operator-supplied feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) {
			_, runDir, err := requirePlanRun()
			if err != nil {
				return nil, err
			}
			return map[string]any{"run_id": ctlRunID}, runctl.Rework(runDir, ctlFeedback)
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset a failed or canceled task back to todo",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doRetry() })
	},
}

var cancelPlanRunsCmd = &cobra.Command{
	Use:   "cancel-plan-runs",
	Short: "Request cancellation of every non-terminal run under a plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doCancelPlanRuns() })
	},
}

var staleScanCmd = &cobra.Command{
	Use:   "stale-scan",
	Short: "Transition doing tasks whose heartbeat has expired to stale",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doStaleScan() })
	},
}

func init() {
	for _, c := range []*cobra.Command{cancelCmd, pauseCmd, resumeCmd, applyCmd, discardCmd, reworkCmd} {
		addPlanRunFlags(c)
	}
	reworkCmd.Flags().StringVar(&ctlFeedback, "feedback", "", "operator guidance for the next round")

	retryCmd.Flags().StringVar(&ctlPlanID, "plan-id", "", "plan id")
	retryCmd.Flags().StringVar(&ctlTaskID, "task-id", "", "task to retry")
	retryCmd.Flags().BoolVar(&ctlRetryDeps, "retry-deps", false, "cascade the retry through failed/canceled dependents")

	cancelPlanRunsCmd.Flags().StringVar(&ctlPlanID, "plan-id", "", "plan id")

	staleScanCmd.Flags().StringVar(&ctlPlanID, "plan-id", "", "plan id")

	rootCmd.AddCommand(cancelCmd, pauseCmd, resumeCmd, applyCmd, discardCmd, reworkCmd, retryCmd, cancelPlanRunsCmd, staleScanCmd)
}

func doStaleScan() (any, error) {
	if ctlPlanID == "" {
		return nil, fmt.Errorf("--plan-id is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	backlogPath := e.backlogPath(ctlPlanID)
	b, err := task.LoadBacklog(backlogPath)
	if err != nil {
		return nil, err
	}
	staleSeconds := task.DefaultStaleSeconds
	autoReset := false
	if e.cfg != nil {
		if e.cfg.General.StaleSeconds > 0 {
			staleSeconds = e.cfg.General.StaleSeconds
		}
		autoReset = e.cfg.General.StaleAutoReset
	}
	transitioned, err := task.ScanStale(b, time.Now().UTC(), staleSeconds, autoReset, e.eventsPath())
	if err != nil {
		return nil, err
	}
	if err := b.Save(backlogPath); err != nil {
		return nil, err
	}
	return map[string]any{"plan_id": ctlPlanID, "transitioned": transitioned}, nil
}

func doRetry() (any, error) {
	if ctlPlanID == "" || ctlTaskID == "" {
		return nil, fmt.Errorf("--plan-id and --task-id are required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	backlogPath := e.backlogPath(ctlPlanID)
	b, err := task.LoadBacklog(backlogPath)
	if err != nil {
		return nil, err
	}
	if err := runctl.Retry(b, ctlTaskID, ctlPlanID, ctlRetryDeps, e.eventsPath()); err != nil {
		return nil, err
	}
	if err := b.Save(backlogPath); err != nil {
		return nil, err
	}
	return map[string]any{"task_id": ctlTaskID, "retry_deps": ctlRetryDeps}, nil
}

func doCancelPlanRuns() (any, error) {
	if ctlPlanID == "" {
		return nil, fmt.Errorf("--plan-id is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	runsRoot := e.runsDir(ctlPlanID)
	entries, err := os.ReadDir(runsRoot)
	if os.IsNotExist(err) {
		return map[string]any{"canceled": []string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var canceled []string
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		runDir := e.runDir(ctlPlanID, ent.Name())
		meta, err := runctl.ReadMeta(runDir)
		if err != nil || isTerminalRunStatus(meta.Status) {
			continue
		}
		if err := runctl.Cancel(runDir); err == nil {
			canceled = append(canceled, ent.Name())
		}
	}
	return map[string]any{"canceled": canceled}, nil
}

func isTerminalRunStatus(s model.RunStatus) bool {
	switch s {
	case model.RunDone, model.RunFailed, model.RunDiscarded, model.RunCanceled:
		return true
	default:
		return false
	}
}
