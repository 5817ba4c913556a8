package verify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aipl-dev/aipl/internal/model"
)

// ExecutionError is one failed command's diagnostic excerpt.
type ExecutionError struct {
	CheckIndex int `json:"check_index"`
	Command string `json:"command"`
	StdoutTail string `json:"stdout_tail"`
	StderrTail string `json:"stderr_tail"`
	KeyErrorLines []string `json:"key_error_lines,omitempty"`
}

// ReworkRequest is the structured failure briefing fed to the next round's
// assistant invocation.
type ReworkRequest struct {
	Round int `json:"round"`
	RemainingAttempts int `json:"remaining_attempts"`
	WhyFailed       []model.Reason   `json:"why_failed"`
	ExecutionErrors []ExecutionError `json:"execution_errors,omitempty"`
	ErrorSummary string `json:"error_summary"`
	FixGuidance string `json:"fix_guidance"`
	PrevStdout string `json:"prev_stdout,omitempty"`
	ProducedFiles         []string `json:"produced_files,omitempty"`
	SuspectedRelatedFiles []string `json:"suspected_related_files,omitempty"`
	Workspace string `json:"workspace"`
}

var keyErrorLinePattern = regexp.MustCompile(`(?i)(error|exception|traceback|panic|fail(ed|ure)?)\b`)

func extractKeyErrorLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if keyErrorLinePattern.MatchString(line) {
			lines = append(lines, strings.TrimSpace(line))
		}
		if len(lines) >= 10 {
			break
		}
	}
	return lines
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// BuildReworkRequest assembles the next round's diagnostic briefing from
// this round's verification result.
func BuildReworkRequest(round, maxRounds int, reasons []model.Reason, records []CheckRecord, workspace string, producedFiles, relatedFiles []string) ReworkRequest {
	var execErrs []ExecutionError
	for _, r := range records {
		if r.OK || !isExecutionRecord(r.Type) {
			continue
		}
		execErrs = append(execErrs, ExecutionError{
			CheckIndex: r.Index,
			StdoutTail: tail(r.Evidence, 2000),
			KeyErrorLines: extractKeyErrorLines(r.Evidence),
		})
	}

	var summaryParts []string
	for _, r := range reasons {
		summaryParts = append(summaryParts, fmt.Sprintf("%s: %s", r.Type, r.Detail))
	}

	return ReworkRequest{
		Round: round,
		RemainingAttempts: maxRounds - round - 1,
		WhyFailed: reasons,
		ExecutionErrors: execErrs,
		ErrorSummary: strings.Join(summaryParts, "; "),
		FixGuidance: fixGuidanceFor(reasons),
		ProducedFiles: producedFiles,
		SuspectedRelatedFiles: relatedFiles,
		Workspace: workspace,
	}
}

func isExecutionRecord(t model.CheckType) bool {
	return t == model.CheckCommand || t == model.CheckCommandContains || t == model.CheckHTTP
}

// fixGuidanceFor returns a short category-specific hint. Free-form language
// is acceptable per spec; this stays in plain English.
func fixGuidanceFor(reasons []model.Reason) string {
	for _, r := range reasons {
		switch r.Type {
		case "command_timeout":
			return "the command exceeded its timeout; reduce the scope of the change or the command it runs"
		case "command_failed":
			return "the command exited with an unexpected status; inspect stdout/stderr for the failing assertion"
		case "content_mismatch", "pattern_not_found":
			return "the expected file content was not produced; re-check the target path and exact text"
		case "missing_file":
			return "an expected file is missing; ensure it is written at the checked path"
		case "http_status_mismatch", "http_body_missing", "http_json_mismatch":
			return "the HTTP response did not match; verify the endpoint and response shape"
		}
	}
	return "review the reported check failures and adjust the previous round's edits"
}

// WriteReworkRequest persists the briefing under the next round's directory.
func WriteReworkRequest(nextRoundDir string, req ReworkRequest) error {
	if err := os.MkdirAll(nextRoundDir, 0o755); err != nil {
		return fmt.Errorf("verify: create round dir: %w", err)
	}
	data, err := json.MarshalIndent(req, "", " ")
	if err != nil {
		return fmt.Errorf("verify: marshal rework request: %w", err)
	}
	return os.WriteFile(filepath.Join(nextRoundDir, "rework_request.json"), data, 0o644)
}
