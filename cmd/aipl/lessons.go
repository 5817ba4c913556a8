package main

import (
	"fmt"

	"github.com/aipl-dev/aipl/internal/learn"
	"github.com/spf13/cobra"
)

var lessonsKey string

var lessonsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete one learned lesson by key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doLessonsDelete() })
	},
}

var lessonsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear every learned lesson for the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doLessonsClear() })
	},
}

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "Manage the workspace's learned lessons",
}

func init() {
	lessonsDeleteCmd.Flags().StringVar(&lessonsKey, "key", "", "canonical key of the lesson to delete")
	lessonsCmd.AddCommand(lessonsDeleteCmd, lessonsClearCmd)
	rootCmd.AddCommand(lessonsCmd)
}

func doLessonsDelete() (any, error) {
	if lessonsKey == "" {
		return nil, fmt.Errorf("--key is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	if err := learn.DeleteEntry(e.learnedDir(), learn.KindLesson, lessonsKey); err != nil {
		return nil, err
	}
	return map[string]any{"key": lessonsKey}, nil
}

func doLessonsClear() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	if err := learn.ClearEntries(e.learnedDir(), learn.KindLesson); err != nil {
		return nil, err
	}
	return map[string]any{"cleared": true}, nil
}
