package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/task"
	"github.com/spf13/cobra"
)

var statusPlanID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize a plan's backlog by task status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doStatus() })
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusPlanID, "plan-id", "", "plan to summarize")
	rootCmd.AddCommand(statusCmd)
}

func doStatus() (any, error) {
	if statusPlanID == "" {
		return nil, fmt.Errorf("--plan-id is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	b, err := task.LoadBacklog(e.backlogPath(statusPlanID))
	if err != nil {
		return nil, err
	}
	counts := map[model.TaskStatus]int{}
	for _, t := range b.Tasks {
		counts[t.Status]++
	}
	return map[string]any{
		"plan_id":      statusPlanID,
		"workspace_id": e.workspaceID,
		"task_count":   len(b.Tasks),
		"by_status":    counts,
	}, nil
}

var (
	eventsPlanID string
	eventsRunID  string
	eventsCursor int
	eventsLimit  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Page through a run's (or the cross-workspace) event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doEvents() })
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsPlanID, "plan-id", "", "plan whose run's events to read (omit for the cross-workspace log)")
	eventsCmd.Flags().StringVar(&eventsRunID, "run-id", "", "run whose events.jsonl to read")
	eventsCmd.Flags().IntVar(&eventsCursor, "cursor", 0, "index to resume from")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "maximum events to return")
	rootCmd.AddCommand(eventsCmd)
}

func doEvents() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	path := e.eventsPath()
	if eventsPlanID != "" && eventsRunID != "" {
		path = filepath.Join(e.runDir(eventsPlanID, eventsRunID), "events.jsonl")
	}
	all, err := task.ReadEvents(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if eventsCursor < 0 || eventsCursor > len(all) {
		eventsCursor = len(all)
	}
	end := eventsCursor + eventsLimit
	if end > len(all) {
		end = len(all)
	}
	page := all[eventsCursor:end]
	nextCursor := end
	return map[string]any{
		"cursor":      eventsCursor,
		"next_cursor": nextCursor,
		"events":      page,
	}, nil
}

var (
	artifactsPlanID string
	artifactsRunID  string
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List a run's artifact tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doArtifacts() })
	},
}

func init() {
	artifactsCmd.Flags().StringVar(&artifactsPlanID, "plan-id", "", "plan id")
	artifactsCmd.Flags().StringVar(&artifactsRunID, "run-id", "", "run id")
	rootCmd.AddCommand(artifactsCmd)
}

func doArtifacts() (any, error) {
	if artifactsPlanID == "" || artifactsRunID == "" {
		return nil, fmt.Errorf("--plan-id and --run-id are required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	root := e.runDir(artifactsPlanID, artifactsRunID)
	var files []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"run_id": artifactsRunID, "files": files}, nil
}
