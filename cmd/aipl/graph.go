package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aipl-dev/aipl/internal/graph"
	"github.com/aipl-dev/aipl/internal/profilestore"
	"github.com/spf13/cobra"
)

var (
	graphSrcDir   string
	graphWatch    bool
)

var codeGraphBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and cache the workspace's import graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doCodeGraphBuild() })
	},
}

var (
	graphRelatedFiles  []string
	graphRelatedMaxHop int
)

var codeGraphRelatedCmd = &cobra.Command{
	Use:   "related",
	Short: "Find files related to a changed set by import edges and co-change history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd(func() (any, error) { return doCodeGraphRelated() })
	},
}

var codeGraphCmd = &cobra.Command{
	Use:   "code-graph",
	Short: "Inspect the workspace's file-level dependency graph",
}

func init() {
	codeGraphBuildCmd.Flags().StringVar(&graphSrcDir, "src", "", "secondary import root (e.g. src/) for Python resolution")
	codeGraphBuildCmd.Flags().BoolVar(&graphWatch, "watch", false, "after building, watch the tree and invalidate the cache on change until interrupted")
	codeGraphRelatedCmd.Flags().StringSliceVar(&graphRelatedFiles, "files", nil, "changed files to expand from")
	codeGraphRelatedCmd.Flags().IntVar(&graphRelatedMaxHop, "max-hops", 2, "import-edge hops to follow")
	codeGraphCmd.AddCommand(codeGraphBuildCmd, codeGraphRelatedCmd)
	rootCmd.AddCommand(codeGraphCmd)
}

func openGraphCache(e *env) (*graph.Cache, error) {
	if err := ensureParent(e.mirrorDBPath()); err != nil {
		return nil, err
	}
	return graph.OpenCache(e.mirrorDBPath())
}

func doCodeGraphBuild() (any, error) {
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	fingerprint, err := profilestore.ComputeFingerprint(e.mainRoot)
	if err != nil {
		return nil, err
	}

	g, err := graph.Build(e.mainRoot, graphSrcDir)
	if err != nil {
		return nil, err
	}

	cache, err := openGraphCache(e)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	if err := cache.Store(fingerprint, g); err != nil {
		return nil, err
	}

	if graphWatch {
		sw, err := cache.WatchAndInvalidate(e.mainRoot, fingerprint, nil)
		if err != nil {
			return nil, err
		}
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		sw.Stop()
	}

	return map[string]any{"fingerprint": fingerprint, "node_count": g.NodeCount()}, nil
}

func doCodeGraphRelated() (any, error) {
	if len(graphRelatedFiles) == 0 {
		return nil, fmt.Errorf("--files is required")
	}
	e, err := resolveEnv()
	if err != nil {
		return nil, err
	}
	fingerprint, err := profilestore.ComputeFingerprint(e.mainRoot)
	if err != nil {
		return nil, err
	}

	cache, err := openGraphCache(e)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	g, found, err := cache.Load(fingerprint)
	if err != nil {
		return nil, err
	}
	if !found {
		g, err = graph.Build(e.mainRoot, graphSrcDir)
		if err != nil {
			return nil, err
		}
		if err := cache.Store(fingerprint, g); err != nil {
			return nil, err
		}
	}

	related := g.RelatedFiles(graphRelatedFiles, graphRelatedMaxHop)
	tests := g.TestsForFiles(graphRelatedFiles)

	ctx := context.Background()
	if err := cache.RecordChangeSet(ctx, graphRelatedFiles); err != nil {
		return nil, err
	}
	suggested, err := cache.SuggestMissingFiles(ctx, graphRelatedFiles, 0.5)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"related_files":    related,
		"tests_for_files":  tests,
		"suggested_files":  suggested,
	}, nil
}
