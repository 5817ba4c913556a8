// Package learn categorizes round failures, writes failure reports, and
// maintains the per-workspace learned/ store of signatures, hints, and
// lessons distilled from those failures.
package learn

import "strings"

// Category is the failure-category vocabulary a diagnosis is classified
// into, matched by keyword over the failure's error type and summary.
type Category string

const (
	CategorySyntax      Category = "syntax"
	CategoryRuntime     Category = "runtime"
	CategoryDependency  Category = "dependency"
	CategoryLogic       Category = "logic"
	CategoryEnvironment Category = "environment"
	CategoryTimeout     Category = "timeout"
	CategoryPermission  Category = "permission"
	CategoryUnknown     Category = "unknown"
)

// Diagnosis is the machine-readable record produced after a failed round.
type Diagnosis struct {
	Category            Category `json:"category"`
	Summary              string   `json:"summary"`
	RootCause            string   `json:"root_cause"`
	ContributingFactors  []string `json:"contributing_factors,omitempty"`
	Details              string   `json:"details,omitempty"`
}

// categoryPattern is one priority-ordered category and the keywords that
// match it. Earlier entries take priority when a line matches more than
// one category's keywords.
type categoryPattern struct {
	category Category
	matchers []string
}

var categoryPatterns = []categoryPattern{
	{category: CategorySyntax, matchers: []string{
		"syntax error", "SyntaxError", "unexpected token", "parse error",
		"expected declaration", "illegal character",
	}},
	{category: CategoryDependency, matchers: []string{
		"cannot find package", "cannot find module", "no such file or directory",
		"unresolved import", "ModuleNotFoundError", "package not found",
		"undefined:", "undefined reference",
	}},
	{category: CategoryPermission, matchers: []string{
		"permission denied", "Permission denied", "EACCES", "not permitted",
	}},
	{category: CategoryTimeout, matchers: []string{
		"context deadline exceeded", "context canceled", "timed out", "timeout",
	}},
	{category: CategoryEnvironment, matchers: []string{
		"command not found", "executable file not found", "connection refused",
		"no space left on device", "environment variable",
	}},
	{category: CategoryRuntime, matchers: []string{
		"panic:", "nil pointer dereference", "index out of range",
		"Traceback (most recent call last)", "segmentation fault", "stack overflow",
	}},
	{category: CategoryLogic, matchers: []string{
		"FAIL", "FAILED", "--- FAIL", "assertion", "AssertionError", "expected .* got",
	}},
	{category: CategoryUnknown, matchers: []string{"error:", "Error:"}},
}

// Diagnose classifies raw failure output (combined stdout/stderr and any
// check error summary) into a Category by scanning line by line in
// priority order, the first matcher hit wins. Returns nil for empty input.
//
// Generalizes internal/learner/diagnostics.go's DiagnoseFailure from its
// 6-category teacher vocabulary to the 8-category target vocabulary.
func Diagnose(output string) *Diagnosis {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	lines := strings.Split(output, "\n")
	for _, pattern := range categoryPatterns {
		for i, line := range lines {
			if !matchesAny(line, pattern.matchers) {
				continue
			}
			start := i - 2
			if start < 0 {
				start = 0
			}
			end := i + 3
			if end > len(lines) {
				end = len(lines)
			}
			return &Diagnosis{
				Category:            pattern.category,
				Summary:             strings.TrimSpace(line),
				RootCause:           rootCauseFor(pattern.category, line),
				ContributingFactors: contributingFactors(lines, i),
				Details:             strings.TrimSpace(strings.Join(lines[start:end], "\n")),
			}
		}
	}
	return nil
}

func matchesAny(line string, matchers []string) bool {
	for _, m := range matchers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func rootCauseFor(cat Category, line string) string {
	switch cat {
	case CategorySyntax:
		return "the assistant produced a file that does not parse"
	case CategoryDependency:
		return "a required package, module, or symbol could not be resolved"
	case CategoryPermission:
		return "the command or write touched a path outside the allowed policy"
	case CategoryTimeout:
		return "a command or the assistant exceeded its time budget"
	case CategoryEnvironment:
		return "a required tool or external resource was unavailable in the sandbox"
	case CategoryRuntime:
		return "the program crashed or panicked during execution"
	case CategoryLogic:
		return "the change ran but produced the wrong result"
	default:
		return "failure category could not be determined from the output"
	}
}

// contributingFactors scans a small window around the matched line for
// secondary signals (a second distinct category's keywords appearing
// nearby), which often point at a cascading cause.
func contributingFactors(lines []string, at int) []string {
	start := at - 5
	if start < 0 {
		start = 0
	}
	end := at + 6
	if end > len(lines) {
		end = len(lines)
	}
	seen := map[Category]bool{}
	var out []string
	for _, pattern := range categoryPatterns {
		for _, line := range lines[start:end] {
			if matchesAny(line, pattern.matchers) && !seen[pattern.category] {
				seen[pattern.category] = true
				out = append(out, string(pattern.category)+": "+strings.TrimSpace(line))
				break
			}
		}
	}
	return out
}
