package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aipl-dev/aipl/internal/assistant"
	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/runctl"
	"github.com/aipl-dev/aipl/internal/task"
	"github.com/aipl-dev/aipl/internal/verify"
	"github.com/spf13/cobra"
)

var (
	runPlanID         string
	runMode           string
	runMaxRounds      int
	runAssistantCmd   []string
	runSchemaPath     string
	runGoal           string
)

func addRunFlags(c *cobra.Command) {
	c.Flags().StringVar(&runPlanID, "plan-id", "", "plan to run a task from (omit to scan every backlog in the workspace)")
	c.Flags().StringVar(&runMode, "mode", "autopilot", "autopilot or manual")
	c.Flags().IntVar(&runMaxRounds, "max-rounds", 3, "maximum retry rounds per task")
	c.Flags().StringSliceVar(&runAssistantCmd, "assistant-cmd", []string{"assistant", "--schema", "{schema}"}, "argv used to invoke the assistant sub-process")
	c.Flags().StringVar(&runSchemaPath, "schema", "", "path to the fix-shape JSON schema")
	c.Flags().StringVar(&runGoal, "goal", "", "goal handed to the curriculum fallback if no real plan has runnable work")
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Pick and execute the next runnable task of a plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doRun(false) })
	},
}

var runPlanCommand = &cobra.Command{
	Use:   "run-plan",
	Short: "Run every runnable task of a plan to exhaustion",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doRun(true) })
	},
}

func init() {
	addRunFlags(runCommand)
	addRunFlags(runPlanCommand)
	rootCmd.AddCommand(runCommand, runPlanCommand)
}

func runOptions(e *env) runctl.Options {
	mode := runctl.ModeAutopilot
	if runMode == "manual" {
		mode = runctl.ModeManual
	}
	verifyConfig := verify.DefaultConfig()
	if e.cfg != nil {
		verifyConfig = e.cfg.ToVerifyConfig()
	}
	opts := runctl.Options{
		Mode:         mode,
		MaxRounds:    runMaxRounds,
		VerifyConfig: verifyConfig,
		Runner:       assistant.NewSubprocessRunner(),
		AssistantCommand: runAssistantCmd,
		SchemaPath:   runSchemaPath,
	}
	return opts
}

func doRun(loopToExhaustion bool) (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}

	var results []*runctl.Meta
	for {
		b, t, planID, backlogPath, err := selectRunnable(e)
		if err != nil {
			return summarizeRuns(results), err
		}
		if t == nil {
			break
		}
		meta, err := runctl.RunTask(context.Background(), runOptions(e), b, t, backlogPath, e.eventsPath(), planID, e.workspaceID, e.mainRoot, e.artifactsRoot)
		if meta != nil {
			results = append(results, meta)
		}
		if err != nil && !loopToExhaustion {
			return summarizeRuns(results), err
		}
		if !loopToExhaustion {
			break
		}
		if meta != nil && meta.Status == model.RunRunning {
			// Defensive: a controller bug left the run non-terminal; stop
			// rather than looping forever over the same task.
			break
		}
	}
	return summarizeRuns(results), nil
}

// selectRunnable implements the task-selection step: with --plan-id, pick
// from that plan's backlog alone, same as before. Without one, scan every
// backlog in the workspace and take the globally highest-priority runnable
// task (ties broken by backlog file order, then in-file order). If nothing
// is runnable anywhere and no plan filter was given, fall back to the
// curriculum ladder, appending its next rung to a dedicated curriculum
// backlog and returning that.
func selectRunnable(e *env) (*task.Backlog, *model.Task, string, string, error) {
	if runPlanID != "" {
		backlogPath := e.backlogPath(runPlanID)
		b, err := task.LoadBacklog(backlogPath)
		if err != nil {
			return nil, nil, "", "", err
		}
		return b, task.PickNextTask(b.Tasks), runPlanID, backlogPath, nil
	}

	backlogDir := filepath.Join(e.wsDir(), "backlog")
	entries, err := os.ReadDir(backlogDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, "", "", err
	}
	var names []string
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(ent.Name(), ".json") {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)

	var bestBacklog *task.Backlog
	var bestTask *model.Task
	var bestPath string
	for _, name := range names {
		path := filepath.Join(backlogDir, name)
		b, err := task.LoadBacklog(path)
		if err != nil {
			continue
		}
		t := task.PickNextTask(b.Tasks)
		if t == nil {
			continue
		}
		if bestTask == nil || t.Priority > bestTask.Priority {
			bestBacklog, bestTask, bestPath = b, t, path
		}
	}
	if bestTask != nil {
		return bestBacklog, bestTask, bestBacklog.PlanID, bestPath, nil
	}

	return curriculumFallback(e)
}

// curriculumFallback loads (or creates) the workspace's curriculum backlog
// and appends the next ladder rung not already present in it, grounded on
// curriculum.py's suggest_next_task behavior of appending to the backlog
// and retrying the pick.
func curriculumFallback(e *env) (*task.Backlog, *model.Task, string, string, error) {
	backlogPath := e.backlogPath(task.CurriculumPlanID)
	b, err := task.LoadBacklog(backlogPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, "", "", err
		}
		b = &task.Backlog{PlanID: task.CurriculumPlanID, WorkspaceID: e.workspaceID}
	}

	existingIDs := make(map[string]bool, len(b.Tasks))
	for _, t := range b.Tasks {
		existingIDs[t.ID] = true
	}

	goal := runGoal
	if strings.TrimSpace(goal) == "" {
		goal = "No goal"
	}
	next := task.SuggestNextTask(goal, existingIDs)
	if next == nil {
		return b, nil, task.CurriculumPlanID, backlogPath, nil
	}

	b.Tasks = append(b.Tasks, *next)
	if err := b.Save(backlogPath); err != nil {
		return nil, nil, "", "", err
	}
	return b, task.PickNextTask(b.Tasks), task.CurriculumPlanID, backlogPath, nil
}

func summarizeRuns(metas []*runctl.Meta) any {
	out := make([]map[string]any, 0, len(metas))
	for _, m := range metas {
		out = append(out, map[string]any{
			"run_id":  m.ID,
			"task_id": m.TaskID,
			"status":  string(m.Status),
		})
	}
	return map[string]any{"runs": out}
}
