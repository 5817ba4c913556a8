package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/aipl-dev/aipl/internal/assistant"
	"github.com/aipl-dev/aipl/internal/planbuilder"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	planGoal         string
	planAssistantCmd []string
	planSchemaPath   string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Turn a natural-language goal into a dependency-ordered backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doPlan() })
	},
}

func init() {
	planCmd.Flags().StringVar(&planGoal, "goal", "", "the natural-language goal to plan")
	planCmd.Flags().StringSliceVar(&planAssistantCmd, "assistant-cmd", []string{"assistant", "--schema", "{schema}"}, "argv used to invoke the assistant sub-process")
	planCmd.Flags().StringVar(&planSchemaPath, "schema", "", "path to the plan-shape JSON schema")
	rootCmd.AddCommand(planCmd)
}

// newID mints a <prefix>-YYYYMMDD-HHMMSS-<uuid suffix> identifier: a sortable
// timestamp prefix (matching internal/runctl/meta.go's run ids) plus a
// random suffix drawn from google/uuid rather than hand-rolled crypto/rand,
// since a plan id has no content to derive identity from.
func newID(prefix string, now time.Time) (string, error) {
	id := uuid.New()
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102-150405"), id.String()[:8]), nil
}

func doPlan() (any, error) {
	if strings.TrimSpace(planGoal) == "" {
		return nil, fmt.Errorf("--goal is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	planID, err := newID("plan", time.Now())
	if err != nil {
		return nil, err
	}

	runner := assistant.NewSubprocessRunner()
	opts := assistant.RunOpts{
		SchemaPath:  planSchemaPath,
		Sandbox:     assistant.SandboxSubprocess,
		WorkDir:     e.mainRoot,
		Command:     planAssistantCmd,
		IdleTimeout: 60 * time.Second,
		HardTimeout: 5 * time.Minute,
	}

	plan, backlog, err := planbuilder.BuildPlan(runner, opts, planID, e.workspaceID, planGoal)
	if err != nil {
		return nil, err
	}

	if err := ensureParent(e.planPath(planID)); err != nil {
		return nil, err
	}
	if err := writeJSONFile(e.planPath(planID), plan); err != nil {
		return nil, err
	}
	if err := ensureParent(e.backlogPath(planID)); err != nil {
		return nil, err
	}
	if err := backlog.Save(e.backlogPath(planID)); err != nil {
		return nil, err
	}

	return map[string]any{
		"plan_id":            planID,
		"workspace_id":       e.workspaceID,
		"task_count":         len(backlog.Tasks),
		"validation_reasons": plan.ValidationReasons,
	}, nil
}
