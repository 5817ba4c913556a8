// Package verify dispatches a task's effective
// check list to per-type handlers, enforces the "execution guard", and
// persists the machine-readable verification result.
//
// Grounded on the teacher's internal/scheduler/dod.go (CommandContext
// execution with output truncation and duration tracking) and
// internal/git/diff.go (truncate-with-marker helper, reused in spirit for
// output truncation).
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
)

// NoChecksBehavior governs what happens when the effective check list is empty.
type NoChecksBehavior string

const (
	NoChecksFail NoChecksBehavior = "fail"
	NoChecksWarn NoChecksBehavior = "warn"
	NoChecksSkip NoChecksBehavior = "skip"
)

// Config holds the environment-overridable verifier knobs (env vars).
type Config struct {
	NoChecksBehavior NoChecksBehavior
	RequireExecution bool
	AllowSkipTests bool
	AllowShellCommands bool
	MaxOutputBytes int
	HTTPTimeout time.Duration
	HTTPRetries int
	HTTPSoftFail bool
}

// DefaultConfig returns the built-in verifier defaults.
func DefaultConfig() Config {
	return Config{
		NoChecksBehavior: NoChecksFail,
		RequireExecution: true,
		MaxOutputBytes: 64 * 1024,
		HTTPTimeout: 30 * time.Second,
		HTTPRetries: 3,
	}
}

// CheckRecord is the per-check outcome persisted to verification_result.json.
type CheckRecord struct {
	Index int `json:"index"`
	Type model.CheckType `json:"type"`
	OK bool `json:"ok"`
	Executed bool `json:"executed"`
	TimedOut bool `json:"timed_out,omitempty"`
	ExitCode *int `json:"exit_code,omitempty"`
	DurationMS int64 `json:"duration_ms"`
	Evidence string `json:"evidence,omitempty"`
	Reason *model.Reason `json:"reason,omitempty"`
	Soft bool `json:"soft,omitempty"`
}

// Result is the full verification_result.json payload.
type Result struct {
	Passed bool `json:"passed"`
	Checks []CheckRecord `json:"checks"`
}

// handler is the signature every check-type dispatch function implements.
type handler func(ctx context.Context, cfg Config, workspace string, idx int, c model.Check) CheckRecord

var registry = map[model.CheckType]handler{
	model.CheckFileExists: handleFileExists,
	model.CheckFileContains: handleFileContains,
	model.CheckFileMatches: handleFileMatches,
	model.CheckCommand: handleCommand,
	model.CheckCommandContains: handleCommandContains,
	model.CheckJSONSchema: handleJSONSchema,
	model.CheckHTTP: handleHTTPCheck,
}

func isExecutionCheck(t model.CheckType) bool {
	return t == model.CheckCommand || t == model.CheckCommandContains || t == model.CheckHTTP
}

// EffectiveChecks implements step 1: if the task defines any execution
// check, use the task's own list; otherwise concatenate task then policy
// checks.
func EffectiveChecks(taskChecks, policyChecks []model.Check) []model.Check {
	for _, c := range taskChecks {
		if isExecutionCheck(c.Type) {
			return taskChecks
		}
	}
	return append(append([]model.Check{}, taskChecks...), policyChecks...)
}

// VerifyTask runs the effective check list against workspace (the stage
// root), writes verification_result.json under runDir, and returns the
// pass/fail outcome plus structured reasons for any non-soft failure.
func VerifyTask(ctx context.Context, cfg Config, logger *slog.Logger, workspace, runDir string, checks []model.Check) (Result, []model.Reason, error) {
	if len(checks) == 0 {
		switch cfg.NoChecksBehavior {
		case NoChecksSkip:
			res := Result{Passed: true}
			return res, nil, writeResult(runDir, res)
		case NoChecksWarn:
			res := Result{Passed: true}
			reasons := []model.Reason{{Type: "no_checks", Detail: "no effective checks; passing under warn policy"}}
			return res, reasons, writeResult(runDir, res)
		default:
			res := Result{Passed: false}
			reasons := []model.Reason{{Type: "no_checks", Detail: "no effective checks; failing under fail policy"}}
			return res, reasons, writeResult(runDir, res)
		}
	}

	records := make([]CheckRecord, 0, len(checks))
	passed := true
	var reasons []model.Reason
	anyExecuted := false

	for i, c := range checks {
		h, ok := registry[c.Type]
		if !ok {
			rec := CheckRecord{Index: i, Type: c.Type, OK: false, Reason: &model.Reason{Type: "unknown_check", Index: i, Detail: string(c.Type)}}
			records = append(records, rec)
			if !c.Soft {
				passed = false
				reasons = append(reasons, *rec.Reason)
			}
			continue
		}
		rec := h(ctx, cfg, workspace, i, c)
		rec.Soft = rec.Soft || c.Soft
		records = append(records, rec)
		if rec.Executed {
			anyExecuted = true
		}
		if !rec.OK && !rec.Soft {
			passed = false
			if rec.Reason != nil {
				reasons = append(reasons, *rec.Reason)
			}
		}
		if logger != nil {
			logger.Debug("verify: check evaluated", "index", i, "type", c.Type, "ok", rec.OK, "executed", rec.Executed)
		}
	}

	if cfg.RequireExecution && hasExecutionCheck(checks) && !anyExecuted {
		if !(cfg.AllowSkipTests && allSkippedForDisabledTests(records)) {
			passed = false
			reasons = append(reasons, model.Reason{Type: "no_execution_check_defined", Detail: "no execution check actually ran"})
		} else {
			reasons = append(reasons, model.Reason{Type: "tests_skipped_allowed", Detail: "execution checks skipped because tests are disabled"})
		}
	}

	res := Result{Passed: passed, Checks: records}
	if err := writeResult(runDir, res); err != nil {
		return res, reasons, err
	}
	return res, reasons, nil
}

func hasExecutionCheck(checks []model.Check) bool {
	for _, c := range checks {
		if isExecutionCheck(c.Type) {
			return true
		}
	}
	return false
}

// allSkippedForDisabledTests is a narrow allowance: every skipped execution
// check must carry the command_not_allowed-with-tests-disabled reason, never
// a silent pass-through for arbitrary skips.
func allSkippedForDisabledTests(records []CheckRecord) bool {
	sawExecutionCheck := false
	for _, r := range records {
		if r.Type != model.CheckCommand && r.Type != model.CheckCommandContains && r.Type != model.CheckHTTP {
			continue
		}
		sawExecutionCheck = true
		if r.Executed {
			return false
		}
		if r.Reason == nil || r.Reason.Type != "command_not_allowed" {
			return false
		}
	}
	return sawExecutionCheck
}

func writeResult(runDir string, res Result) error {
	if runDir == "" {
		return nil
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("verify: create run dir: %w", err)
	}
	data, err := json.MarshalIndent(res, "", " ")
	if err != nil {
		return fmt.Errorf("verify: marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "verification_result.json"), data, 0o644); err != nil {
		return fmt.Errorf("verify: write verification_result.json: %w", err)
	}
	return nil
}

// TruncateOutput truncates text above cfg.MaxOutputBytes with a centered
// marker, grounded on internal/git/diff.go's TruncateDiff.
func TruncateOutput(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	half := maxBytes / 2
	marker := "\n\n...[truncated]...\n\n"
	if half*2 >= len(text) {
		return text
	}
	return text[:half] + marker + text[len(text)-half:]
}
