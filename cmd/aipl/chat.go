package main

import (
	"fmt"
	"time"

	"github.com/aipl-dev/aipl/internal/assistant"
	"github.com/spf13/cobra"
)

var (
	chatPrompt      string
	chatAssistant   []string
	chatIdleTimeout time.Duration
	chatHardTimeout time.Duration
)

var assistantChatCmd = &cobra.Command{
	Use:   "assistant-chat",
	Short: "Send a free-form prompt straight to the configured assistant sub-process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doAssistantChat() })
	},
}

func init() {
	assistantChatCmd.Flags().StringVar(&chatPrompt, "prompt", "", "prompt text")
	assistantChatCmd.Flags().StringSliceVar(&chatAssistant, "assistant-cmd", []string{"assistant", "--schema", "{schema}"}, "argv used to invoke the assistant sub-process")
	assistantChatCmd.Flags().DurationVar(&chatIdleTimeout, "idle-timeout", 60*time.Second, "idle timeout")
	assistantChatCmd.Flags().DurationVar(&chatHardTimeout, "hard-timeout", 10*time.Minute, "hard wall-clock timeout")
	rootCmd.AddCommand(assistantChatCmd)
}

func doAssistantChat() (any, error) {
	if chatPrompt == "" {
		return nil, fmt.Errorf("--prompt is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	runner := assistant.NewSubprocessRunner()
	res, err := runner.Run(assistant.RunOpts{
		Prompt:      chatPrompt,
		Sandbox:     assistant.SandboxSubprocess,
		WorkDir:     e.mainRoot,
		IdleTimeout: chatIdleTimeout,
		HardTimeout: chatHardTimeout,
		Command:     chatAssistant,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"output":    res.Output,
		"exit_code": res.ExitCode,
		"duration":  res.Duration.String(),
	}, nil
}
