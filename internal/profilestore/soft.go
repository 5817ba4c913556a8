package profilestore

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// softScanDepth/softMaxFileKB bound the workspace scan a soft-profile
// proposal performs, grounded on soft_proposer.py's SCAN_DEPTH/MAX_FILE_KB.
const (
	softScanDepth = 3
	softMaxFileKB = 64
)

var softReadmeNames = map[string]bool{"readme": true, "readme.md": true, "readme.txt": true}

var softTestEntryFiles = map[string]bool{
	"pytest.ini": true, "tox.ini": true, "setup.cfg": true, "package.json": true,
	"pom.xml": true, "build.gradle": true, "build.gradle.kts": true,
}

func softExists(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, name))
	return err == nil
}

func detectProjectType(root string) string {
	switch {
	case softExists(root, "pom.xml"), softExists(root, "build.gradle"), softExists(root, "build.gradle.kts"):
		return "java"
	case softExists(root, "package.json"):
		return "node"
	case softExists(root, "pyproject.toml"), softExists(root, "requirements.txt"):
		return "python"
	case softExists(root, "go.mod"):
		return "go"
	case softExists(root, "Cargo.toml"):
		return "rust"
	default:
		return "unknown"
	}
}

func suggestCommands(projectType, root string) []string {
	switch projectType {
	case "java":
		if softExists(root, "pom.xml") {
			return []string{"mvn -q test"}
		}
		return []string{"gradle test"}
	case "node":
		return []string{"npm test"}
	case "python":
		return []string{"python -m pytest -q"}
	default:
		return nil
	}
}

func collectConventions(root string) []string {
	var out []string
	for _, name := range []string{"src", "tests", "test", "docs", "scripts", "configs"} {
		if softExists(root, name) {
			out = append(out, "dir:"+name)
		}
	}
	for _, name := range []string{"pyproject.toml", "package.json", "pom.xml", "build.gradle", "build.gradle.kts"} {
		if softExists(root, name) {
			out = append(out, "config:"+name)
		}
	}
	return out
}

func checksTemplates(projectType, root string) []map[string]any {
	templates := []map[string]any{
		{"type": "file_exists", "path": "outputs/summary.txt"},
		{"type": "file_contains", "path": "outputs/summary.txt", "needle": "ok"},
	}
	if cmds := suggestCommands(projectType, root); len(cmds) > 0 {
		templates = append(templates, map[string]any{"type": "command", "cmd": cmds[0], "timeout": 300})
	}
	return templates
}

func softPathRules() []string {
	return []string{
		"checks.path must be relative to workspace or outputs/",
		"no drive letters, no colon, no .. segments",
		"allowed chars: A-Z a-z 0-9 . _ / -",
		"no braces, quotes, or template tokens",
	}
}

// walkLimited lists regular files no more than maxDepth directories below
// root, grounded on soft_proposer.py's _walk_limited.
func walkLimited(root string, maxDepth int) []string {
	var out []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		depth := len(strings.Split(filepath.ToSlash(rel), "/"))
		if d.IsDir() {
			if depth >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		out = append(out, path)
		return nil
	})
	return out
}

func limitedRead(path string, maxKB int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	limit := maxKB * 1024
	if len(data) > limit {
		data = data[:limit]
	}
	return string(data)
}

// ProposeSoftDraft scans a workspace and proposes a soft-policy draft:
// detected project type, suggested build/test commands, layout
// conventions, a starter checks template, and the path rules checks must
// follow. Nothing here is enforced until a caller approves the draft.
// Grounded on soft_proposer.py's propose_soft_profile.
func ProposeSoftDraft(root, fingerprint string) map[string]any {
	projectType := detectProjectType(root)
	buildAndTest := suggestCommands(projectType, root)
	conventions := collectConventions(root)

	paths := walkLimited(root, softScanDepth)

	var readmeSummary []string
	for _, p := range paths {
		if !softReadmeNames[strings.ToLower(filepath.Base(p))] {
			continue
		}
		lines := strings.Split(limitedRead(p, softMaxFileKB), "\n")
		if len(lines) > 10 {
			lines = lines[:10]
		}
		readmeSummary = lines
		break
	}

	var testEntries []string
	for _, p := range paths {
		if !softTestEntryFiles[filepath.Base(p)] {
			continue
		}
		if rel, err := filepath.Rel(root, p); err == nil {
			testEntries = append(testEntries, filepath.ToSlash(rel))
		}
	}
	sort.Strings(testEntries)

	return map[string]any{
		"project_type": projectType,
		"build_and_test": buildAndTest,
		"code_style_hints": []string{
			"prefer small diffs",
			"keep public APIs stable",
			"avoid large refactors unless asked",
		},
		"conventions":      conventions,
		"checks_templates": checksTemplates(projectType, root),
		"path_rules":       softPathRules(),
		"scan_limits":      map[string]any{"max_depth": softScanDepth, "max_file_kb": softMaxFileKB},
		"readme_summary":   readmeSummary,
		"test_entry_files": testEntries,
		"fingerprint":      fingerprint,
	}
}
