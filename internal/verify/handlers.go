package verify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/policy"
)

func resolveSafe(workspace, rel string) (string, bool) {
	if !policy.IsSafeRelativePath(rel) {
		return "", false
	}
	return filepath.Join(workspace, filepath.FromSlash(rel)), true
}

func handleFileExists(_ context.Context, _ Config, workspace string, idx int, c model.Check) CheckRecord {
	abs, ok := resolveSafe(workspace, c.Path)
	if !ok {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "invalid_path", Index: idx, Path: c.Path}}
	}
	start := time.Now()
	info, err := os.Stat(abs)
	dur := time.Since(start).Milliseconds()
	if err != nil || info.IsDir() {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur,
			Reason: &model.Reason{Type: "missing_file", Index: idx, Path: c.Path}}
	}
	return CheckRecord{Index: idx, Type: c.Type, OK: true, Executed: true, DurationMS: dur, Evidence: "exists"}
}

func handleFileContains(_ context.Context, _ Config, workspace string, idx int, c model.Check) CheckRecord {
	abs, ok := resolveSafe(workspace, c.Path)
	if !ok {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "invalid_path", Index: idx, Path: c.Path}}
	}
	start := time.Now()
	data, err := os.ReadFile(abs)
	dur := time.Since(start).Milliseconds()
	if err != nil {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur,
			Reason: &model.Reason{Type: "missing_file", Index: idx, Path: c.Path}}
	}
	text := toUTF8(data)
	if !strings.Contains(text, c.Needle) {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur,
			Reason: &model.Reason{Type: "content_mismatch", Index: idx, Path: c.Path, Detail: "needle not found"}}
	}
	return CheckRecord{Index: idx, Type: c.Type, OK: true, Executed: true, DurationMS: dur, Evidence: "needle found"}
}

func handleFileMatches(_ context.Context, _ Config, workspace string, idx int, c model.Check) CheckRecord {
	abs, ok := resolveSafe(workspace, c.Path)
	if !ok {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true,
			Reason: &model.Reason{Type: "invalid_path", Index: idx, Path: c.Path}}
	}
	start := time.Now()
	data, err := os.ReadFile(abs)
	dur := time.Since(start).Milliseconds()
	if err != nil {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur,
			Reason: &model.Reason{Type: "missing_file", Index: idx, Path: c.Path}}
	}

	pattern := c.Pattern
	var flags string
	if c.IgnoreCase {
		flags += "i"
	}
	if c.Multiline {
		flags += "m"
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur,
			Reason: &model.Reason{Type: "pattern_not_found", Index: idx, Path: c.Path, Detail: err.Error()}}
	}
	if !re.Match(data) {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, DurationMS: dur,
			Reason: &model.Reason{Type: "pattern_not_found", Index: idx, Path: c.Path}}
	}
	return CheckRecord{Index: idx, Type: c.Type, OK: true, Executed: true, DurationMS: dur, Evidence: "pattern matched"}
}

func toUTF8(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

// runCommand executes cmd in cwd with the given timeout, using
// exec.CommandContext on the whitespace-split command (no shell).
// cfg.AllowShellCommands is not consulted, so shell syntax such as pipes or
// redirects is passed through as literal arguments.
func runCommand(ctx context.Context, cfg Config, workspace string, c model.Check) (exitCode int, timedOut bool, output string, executed bool) {
	cwd := workspace
	if c.Cwd != "" {
		abs, ok := resolveSafe(workspace, c.Cwd)
		if !ok {
			return -1, false, "invalid cwd", false
		}
		cwd = abs
	}

	timeout := time.Duration(c.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parts := strings.Fields(c.Cmd)
	if len(parts) == 0 {
		return -1, false, "empty command", false
	}

	cmd := exec.CommandContext(runCtx, parts[0], parts[1:]...)
	cmd.Dir = cwd
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := TruncateOutput(buf.String(), cfg.MaxOutputBytes)

	if runCtx.Err() == context.DeadlineExceeded {
		return -1, true, out, true
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), false, out, true
		}
		return -1, false, out, false
	}
	return 0, false, out, true
}

func handleCommand(ctx context.Context, cfg Config, workspace string, idx int, c model.Check) CheckRecord {
	if ok, reason := commandAllowed(c); !ok {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: false,
			Reason: &model.Reason{Type: reason, Index: idx, Detail: c.Cmd}}
	}

	start := time.Now()
	exitCode, timedOut, output, executed := runCommand(ctx, cfg, workspace, c)
	dur := time.Since(start).Milliseconds()

	writeCommandLogs(workspace, idx, output, timedOut)

	expect := c.ExpectExitCode
	if !executed {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: false, DurationMS: dur, Evidence: output,
			Reason: &model.Reason{Type: "command_not_executed", Index: idx, Detail: c.Cmd}}
	}
	if timedOut {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, TimedOut: true, DurationMS: dur, Evidence: output,
			Reason: &model.Reason{Type: "command_timeout", Index: idx, Detail: c.Cmd}}
	}
	ec := exitCode
	if exitCode != expect {
		return CheckRecord{Index: idx, Type: c.Type, OK: false, Executed: true, ExitCode: &ec, DurationMS: dur, Evidence: output,
			Reason: &model.Reason{Type: "command_failed", Index: idx, Detail: fmt.Sprintf("exit %d, expected %d", exitCode, expect)}}
	}
	return CheckRecord{Index: idx, Type: c.Type, OK: true, Executed: true, ExitCode: &ec, DurationMS: dur, Evidence: output}
}

func handleCommandContains(ctx context.Context, cfg Config, workspace string, idx int, c model.Check) CheckRecord {
	rec := handleCommand(ctx, cfg, workspace, idx, c)
	if !rec.Executed || rec.TimedOut {
		return rec
	}
	if !strings.Contains(rec.Evidence, c.Needle) {
		rec.OK = false
		rec.Reason = &model.Reason{Type: "content_mismatch", Index: idx, Detail: "needle not found in command output"}
	}
	return rec
}

func commandAllowed(c model.Check) (bool, string) {
	stripped := strings.TrimSpace(c.Cmd)
	if stripped == "" {
		return false, "empty_command"
	}
	if !policy.IsCommandAllowed(stripped, c.AllowPrefixes) {
		return false, "command_not_allowed"
	}
	return true, ""
}

func writeCommandLogs(workspace string, idx int, output string, timedOut bool) {
	dir := filepath.Join(workspace, "..", "verification")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	if timedOut {
		_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("cmd-%d.timeout.txt", idx)), []byte(output), 0o644)
		return
	}
	_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("cmd-%d.stdout.txt", idx)), []byte(output), 0o644)
}
