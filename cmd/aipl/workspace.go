package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aipl-dev/aipl/internal/graph"
	"github.com/aipl-dev/aipl/internal/policy"
	"github.com/spf13/cobra"
)

var (
	workspaceTreePath  string
	workspaceTreeDepth int
)

var workspaceTreeCmd = &cobra.Command{
	Use:   "workspace-tree",
	Short: "List the workspace's file tree up to a depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doWorkspaceTree() })
	},
}

var workspaceReadPath string

var workspaceReadCmd = &cobra.Command{
	Use:   "workspace-read",
	Short: "Read a single file from the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doWorkspaceRead() })
	},
}

func init() {
	workspaceTreeCmd.Flags().StringVar(&workspaceTreePath, "path", ".", "relative directory to list from")
	workspaceTreeCmd.Flags().IntVar(&workspaceTreeDepth, "depth", 3, "maximum directory depth to descend")
	workspaceReadCmd.Flags().StringVar(&workspaceReadPath, "path", "", "relative file path to read")
	rootCmd.AddCommand(workspaceTreeCmd, workspaceReadCmd)
}

func doWorkspaceTree() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	if workspaceTreePath != "." && !policy.IsSafeRelativePath(workspaceTreePath) {
		return nil, fmt.Errorf("unsafe path: %s", workspaceTreePath)
	}
	root := filepath.Join(e.mainRoot, workspaceTreePath)

	var entries []string
	err = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() && graph.IsExcludedDir(info.Name()) {
			return filepath.SkipDir
		}
		if countSeparators(rel)+1 > workspaceTreeDepth {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return map[string]any{"root": workspaceTreePath, "entries": entries}, nil
}

func countSeparators(p string) int {
	n := 0
	for _, r := range p {
		if r == '/' || r == os.PathSeparator {
			n++
		}
	}
	return n
}

func doWorkspaceRead() (any, error) {
	if workspaceReadPath == "" {
		return nil, fmt.Errorf("--path is required")
	}
	if !policy.IsSafeRelativePath(workspaceReadPath) {
		return nil, fmt.Errorf("unsafe path: %s", workspaceReadPath)
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	full := filepath.Join(e.mainRoot, workspaceReadPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": workspaceReadPath, "content": string(data)}, nil
}
