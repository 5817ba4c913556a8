// Package policy implements the path and command guards that gate every
// write and every executed command, and the three-layer rule merge (user
// config, experience packs, learned content) used to build verification
// context. No predicate here ever panics; invalid input is rejected with a
// structured model.Reason, never an error return, so callers can always log
// and continue.
package policy

import (
	"strings"

	"github.com/aipl-dev/aipl/internal/model"
)

const shellMetacharacters = ";&|`\n\r"

// IsSafeRelativePath rejects absolute paths, paths containing "..", drive
// letters, and any character outside [A-Za-z0-9._/-]. Backslashes are
// normalized to forward slashes before the check.
func IsSafeRelativePath(p string) bool {
	if p == "" {
		return false
	}
	norm := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(norm, "/") {
		return false
	}
	if len(norm) >= 2 && norm[1] == ':' {
		return false // drive letter, e.g. "C:"
	}
	for _, seg := range strings.Split(norm, "/") {
		if seg == ".." {
			return false
		}
	}
	for _, r := range norm {
		if !isSafePathChar(r) {
			return false
		}
	}
	return true
}

func isSafePathChar(r rune) bool {
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
		return true
	}
	switch r {
	case '.', '_', '/', '-':
		return true
	default:
		return false
	}
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// IsWriteAllowed reports whether p may be written under the given allow/deny
// prefix lists. Deny wins over allow. An empty allow list permits any safe,
// non-denied path.
func IsWriteAllowed(p string, allow, deny []string) bool {
	if !IsSafeRelativePath(p) {
		return false
	}
	norm := normalizePath(p)
	for _, d := range deny {
		if pathUnderOrEqual(norm, normalizePath(d)) {
			return false
		}
	}
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if pathUnderOrEqual(norm, normalizePath(a)) {
			return true
		}
	}
	return false
}

func pathUnderOrEqual(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return false
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}

// IsCommandAllowed rejects empty commands and commands containing shell
// metacharacters (";", "&&", "||", "|", backtick, "$(", CR, LF), and
// requires the stripped command to start with a literal allowed prefix.
func IsCommandAllowed(cmd string, prefixes []string) bool {
	stripped := strings.TrimSpace(cmd)
	if stripped == "" {
		return false
	}
	if strings.ContainsAny(stripped, shellMetacharacters) {
		return false
	}
	if strings.Contains(stripped, "$(") {
		return false
	}
	for _, prefix := range prefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(stripped, prefix) {
			return true
		}
	}
	return false
}

// ValidateWrites filters a list of candidate relative write paths against
// the effective hard policy, returning the accepted subset plus one Reason
// per rejection.
func ValidateWrites(paths []string, hp model.HardPolicy) ([]string, []model.Reason) {
	var ok []string
	var reasons []model.Reason
	for i, p := range paths {
		if !IsSafeRelativePath(p) {
			reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: p})
			continue
		}
		if !IsWriteAllowed(p, hp.AllowWrite, hp.DenyWrite) {
			reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: p, Detail: "not in allow_write or matched by deny_write"})
			continue
		}
		ok = append(ok, p)
	}
	return ok, reasons
}

// ValidateCommands filters a list of candidate command lines against the
// effective hard policy's allowed_commands, with deny_commands taking
// precedence over an otherwise-allowed prefix match.
func ValidateCommands(cmds []string, hp model.HardPolicy) ([]string, []model.Reason) {
	var ok []string
	var reasons []model.Reason
	for i, c := range cmds {
		if strings.TrimSpace(c) == "" {
			reasons = append(reasons, model.Reason{Type: "empty_command", Index: i})
			continue
		}
		if isDenied(c, hp.DenyCommands) {
			reasons = append(reasons, model.Reason{Type: "command_not_allowed", Index: i, Detail: c})
			continue
		}
		if !IsCommandAllowed(c, hp.AllowedCommands) {
			reasons = append(reasons, model.Reason{Type: "command_not_allowed", Index: i, Detail: c})
			continue
		}
		ok = append(ok, c)
	}
	return ok, reasons
}

func isDenied(cmd string, prefixes []string) bool {
	stripped := strings.TrimSpace(cmd)
	for _, prefix := range prefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(stripped, prefix) {
			return true
		}
	}
	return false
}

// ValidateChecks filters a Check list, dropping any whose command/path
// fields violate the guards, with optional_whitelist allowing extra command
// prefixes beyond hp.AllowedCommands (e.g. task-declared allow_prefixes).
func ValidateChecks(checks []model.Check, hp model.HardPolicy, optionalWhitelist []string) ([]model.Check, []model.Reason) {
	var ok []model.Check
	var reasons []model.Reason
	allowed := append(append([]string{}, hp.AllowedCommands...), optionalWhitelist...)
	for i, c := range checks {
		switch c.Type {
		case model.CheckFileExists, model.CheckFileContains, model.CheckFileMatches:
			if !IsSafeRelativePath(c.Path) {
				reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: c.Path})
				continue
			}
		case model.CheckCommand, model.CheckCommandContains:
			prefixes := allowed
			if len(c.AllowPrefixes) > 0 {
				prefixes = append(append([]string{}, allowed...), c.AllowPrefixes...)
			}
			if !IsCommandAllowed(c.Cmd, prefixes) {
				reasons = append(reasons, model.Reason{Type: "command_not_allowed", Index: i, Detail: c.Cmd})
				continue
			}
			if c.Cwd != "" && !IsSafeRelativePath(c.Cwd) {
				reasons = append(reasons, model.Reason{Type: "invalid_cwd", Index: i, Path: c.Cwd})
				continue
			}
		case model.CheckJSONSchema:
			if c.Path != "" && !IsSafeRelativePath(c.Path) {
				reasons = append(reasons, model.Reason{Type: "invalid_path", Index: i, Path: c.Path})
				continue
			}
		case model.CheckHTTP:
			// scheme/host validated at execution time by internal/verify,
			// since it requires URL parsing, not a pure path/command guard.
		default:
			reasons = append(reasons, model.Reason{Type: "unknown_check", Index: i, Detail: string(c.Type)})
			continue
		}
		ok = append(ok, c)
	}
	return ok, reasons
}

// RuleSource is a layer in the rule-merge priority order (lowest index wins).
type RuleSource struct {
	Name  string
	Rules []string
}

// MergeResult is the output of layering rule sources by priority.
type MergeResult struct {
	Merged            []string
	ConflictsDiscarded []model.Reason
}

// MergeLayers merges rule sources in priority order — user config first,
// then imported experience packs, then learned content — deduplicating by
// lowercased content. A rule already present from a higher-priority layer is
// recorded in ConflictsDiscarded and dropped from the lower layer.
func MergeLayers(sources []RuleSource) MergeResult {
	seen := make(map[string]string) // lowercased content -> owning source
	var merged []string
	var discarded []model.Reason
	for _, src := range sources {
		for _, rule := range src.Rules {
			key := strings.ToLower(strings.TrimSpace(rule))
			if key == "" {
				continue
			}
			if owner, exists := seen[key]; exists {
				if owner != src.Name {
					discarded = append(discarded, model.Reason{
						Type:   "conflict_discarded",
						Detail: rule,
						Path:   src.Name,
					})
				}
				continue
			}
			seen[key] = src.Name
			merged = append(merged, rule)
		}
	}
	return MergeResult{Merged: merged, ConflictsDiscarded: discarded}
}
