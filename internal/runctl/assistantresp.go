package runctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/policy"
)

// writeTargetWorkspace places a write under the stage (the live workspace
// copy); writeTargetRun places it under the run directory itself, for
// round-local scratch artifacts that never touch the workspace.
const (
	writeTargetWorkspace = "workspace"
	writeTargetRun = "run"
)

// proposedWrite is one file the assistant asked to create or overwrite.
type proposedWrite struct {
	Path string `json:"path"`
	Content string `json:"content"`
	Target string `json:"target,omitempty"`
}

// fixResponse is the "fix schema" shape autopilot mode expects back from the
// assistant: a set of file writes plus shell commands to run in the stage.
type fixResponse struct {
	Writes   []proposedWrite `json:"writes"`
	Commands []string        `json:"commands"`
	Summary string `json:"summary"`
}

func parseFixResponse(output string) (fixResponse, error) {
	var r fixResponse
	if err := json.Unmarshal([]byte(output), &r); err != nil {
		return fixResponse{}, fmt.Errorf("runctl: parse assistant response: %w", err)
	}
	return r, nil
}

// applyWrites validates every proposed write against the path guard (and,
// for workspace-target writes, the effective allow_write/deny_write), then
// writes the accepted ones to disk. A write under the stage's own outputs/
// directory is always rejected.
func applyWrites(stageRoot, runDir string, writes []proposedWrite, hp model.HardPolicy) ([]string, []model.Reason) {
	var accepted []string
	var reasons []model.Reason
	for i, w := range writes {
		target := w.Target
		if target == "" {
			target = writeTargetWorkspace
		}

		if !policy.IsSafeRelativePath(w.Path) {
			reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: w.Path})
			continue
		}
		if strings.HasPrefix(filepath.ToSlash(w.Path), "outputs/") {
			reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: w.Path, Detail: "writes under outputs/ are reserved for verification artifacts"})
			continue
		}

		var dest string
		switch target {
		case writeTargetWorkspace:
			if !policy.IsWriteAllowed(w.Path, hp.AllowWrite, hp.DenyWrite) {
				reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: w.Path, Detail: "not in allow_write or matched by deny_write"})
				continue
			}
			dest = filepath.Join(stageRoot, w.Path)
		case writeTargetRun:
			dest = filepath.Join(runDir, w.Path)
		default:
			reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: w.Path, Detail: "unknown write target " + target})
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: w.Path, Detail: err.Error()})
			continue
		}
		if err := os.WriteFile(dest, []byte(w.Content), 0o644); err != nil {
			reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: w.Path, Detail: err.Error()})
			continue
		}
		accepted = append(accepted, w.Path)
	}
	return accepted, reasons
}

// runCommands filters proposed commands through the command guard and runs
// each accepted one in the stage with the policy's per-command timeout,
// appending combined output to stdout/stderr buffers for the round's log
// files. A rejected or failed command never aborts the round; it is simply
// reflected in the combined output the verifier later inspects.
func runCommands(ctx context.Context, stageRoot string, cmds []string, hp model.HardPolicy) (stdout, stderr string, reasons []model.Reason) {
	accepted, rejectReasons := policy.ValidateCommands(cmds, hp)
	reasons = append(reasons, rejectReasons...)

	timeout := time.Duration(hp.CommandTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	var outBuf, errBuf bytes.Buffer
	for _, c := range accepted {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		cmd := exec.CommandContext(cctx, "sh", "-c", c)
		cmd.Dir = stageRoot
		var cOut, cErr bytes.Buffer
		cmd.Stdout = &cOut
		cmd.Stderr = &cErr
		runErr := cmd.Run()
		cancel()

		fmt.Fprintf(&outBuf, "$ %s\n%s", c, cOut.String())
		fmt.Fprintf(&errBuf, "$ %s\n%s", c, cErr.String())
		if cctx.Err() == context.DeadlineExceeded {
			reasons = append(reasons, model.Reason{Type: "command_timeout", Detail: c})
		} else if runErr != nil {
			reasons = append(reasons, model.Reason{Type: "command_failed", Detail: fmt.Sprintf("%s: %v", c, runErr)})
		}
	}
	return outBuf.String(), errBuf.String(), reasons
}
