package main

import (
	"github.com/spf13/cobra"
)

var (
	flagDataRoot  string
	flagWorkspace string
	flagConfig    string
)

var rootCmd = &cobra.Command{
	Use:           "aipl",
	Short:         "Drive the plan/run/verify control plane for automated coding tasks",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataRoot, "root", ".aipl", "aipl data root (artifacts/, server/)")
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "path to the source tree under management (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to an aipl.toml config file (defaults plus AIPL_* env overrides apply regardless)")
}

// runCmd wraps a subcommand body: it always emits exactly one envelope and
// never propagates the body's error to cobra, so a command failure surfaces
// as {"ok":false,"error":...} with exit code 0, while a failure to emit the
// envelope itself is the one case that does propagate (a pre-envelope
// failure).
func runCmd(body func() (any, error)) error {
	data, err := body()
	return emit(data, err)
}
