package main

import (
	"fmt"

	"github.com/aipl-dev/aipl/internal/runctl"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

var (
	workerHostPort  string
	workerNamespace string
	workerTaskQueue string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker for durable-mode task execution",
	Long: "Starts a Temporal worker registered for ExecutionWorkflow and its\n" +
		"activities. Runs until interrupted; a run started via durable mode\n" +
		"survives this process restarting, since Temporal replays the\n" +
		"workflow's history rather than losing the in-flight attempt.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doWorker()
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerHostPort, "host-port", client.DefaultHostPort, "Temporal frontend host:port")
	workerCmd.Flags().StringVar(&workerNamespace, "namespace", client.DefaultNamespace, "Temporal namespace")
	workerCmd.Flags().StringVar(&workerTaskQueue, "task-queue", "aipl-durable", "task queue ExecutionWorkflow is dispatched on")
	rootCmd.AddCommand(workerCmd)
}

func doWorker() error {
	c, err := client.Dial(client.Options{
		HostPort:  workerHostPort,
		Namespace: workerNamespace,
	})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer c.Close()

	w := worker.New(c, workerTaskQueue, worker.Options{})
	w.RegisterWorkflow(runctl.ExecutionWorkflow)
	var activities runctl.DurableActivities
	w.RegisterActivity(activities.ExecuteTaskActivity)
	w.RegisterActivity(activities.ApplyRunActivity)
	w.RegisterActivity(activities.ReworkRunActivity)
	w.RegisterActivity(activities.DiscardRunActivity)

	return w.Run(worker.InterruptCh())
}
