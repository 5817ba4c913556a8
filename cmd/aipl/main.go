// Command aipl is the command-line surface over the execution control
// plane: one subcommand per operation, each printing exactly one envelope
// JSON object on stdout.
//
// Grounded on daydemir-ralph's cmd/ralph/main.go + internal/cli/root.go
// (a thin main.go delegating to a cobra root command built up via
// package-level init()) and tim-coutinho-agentops's subcommand-per-verb
// command tree.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
