// Package graph implements the code graph and co-change learner: a
// directed multigraph over source files built from per-language static
// import relationships, plus a co-change learner over successful runs.
//
// The in-memory adjacency shape here — forward/reverse string-keyed maps
// with copy-out accessors so callers can't alias internal state, plus a
// BFS-style multi-hop traversal — is adapted from the teacher's task
// dependency graph (originally DepGraph over Task.DependsOn edges); the same
// shape now models file import/imported-by edges instead of task
// depends-on/blocks edges.
package graph

import (
	"path"
	"sort"
	"strings"
)

// excludedDirs are never walked when building the graph.
var excludedDirs = map[string]struct{}{
	".git": {}, ".idea": {}, ".vscode": {}, ".venv": {}, "__pycache__": {},
	"artifacts": {}, "build": {}, "dist": {}, "node_modules": {}, "outputs": {}, "target": {},
}

// MaxFileBytes is the size above which a file is excluded from graph building.
const MaxFileBytes = 512 * 1024

// FileGraph is a directed multigraph of source files linked by static
// import/require relationships.
type FileGraph struct {
	forward map[string][]string // file -> files it imports
	reverse map[string][]string // file -> files that import it
	nodes   map[string]struct{}
}

// NewFileGraph builds an empty graph.
func NewFileGraph() *FileGraph {
	return &FileGraph{
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
		nodes:   make(map[string]struct{}),
	}
}

// AddEdge records that `from` imports `to`. Both paths are workspace-relative
// and forward-slash normalized by the caller (internal/graph/build.go).
func (g *FileGraph) AddEdge(from, to string) {
	g.nodes[from] = struct{}{}
	g.nodes[to] = struct{}{}
	g.forward[from] = append(g.forward[from], to)
	g.reverse[to] = append(g.reverse[to], from)
}

// AddNode registers a file with no edges yet (e.g. a file with no imports).
func (g *FileGraph) AddNode(file string) {
	g.nodes[file] = struct{}{}
}

// NodeCount returns the number of distinct files registered in the graph.
func (g *FileGraph) NodeCount() int {
	if g == nil {
		return 0
	}
	return len(g.nodes)
}

// IsExcludedDir reports whether dirName should be skipped while walking a
// workspace to build the graph.
func IsExcludedDir(dirName string) bool {
	_, excluded := excludedDirs[dirName]
	return excluded
}

// RelatedFiles returns the sorted, deduplicated set of files reachable from
// the union of paths by following forward and reverse edges up to maxHops
// hops. maxHops=0 always returns an empty set; the result is monotonically
// non-decreasing in maxHops (RelatedFiles(p, k) is a subset of
// RelatedFiles(p, k+1)), and never includes any of the input paths.
func (g *FileGraph) RelatedFiles(paths []string, maxHops int) []string {
	if g == nil || maxHops <= 0 || len(paths) == 0 {
		return nil
	}

	seed := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seed[p] = struct{}{}
	}

	frontier := make(map[string]struct{}, len(paths))
	visited := make(map[string]struct{}, len(paths))
	for p := range seed {
		frontier[p] = struct{}{}
		visited[p] = struct{}{}
	}

	for hop := 0; hop < maxHops; hop++ {
		next := make(map[string]struct{})
		for p := range frontier {
			for _, n := range g.forward[p] {
				if _, ok := visited[n]; !ok {
					next[n] = struct{}{}
					visited[n] = struct{}{}
				}
			}
			for _, n := range g.reverse[p] {
				if _, ok := visited[n]; !ok {
					next[n] = struct{}{}
					visited[n] = struct{}{}
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	result := make([]string, 0, len(visited))
	for p := range visited {
		if _, isSeed := seed[p]; isSeed {
			continue
		}
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

// language is used to pick a test-naming convention in TestsForFiles.
type language int

const (
	langUnknown language = iota
	langPython
	langJava
	langTSJS
	langGo
)

func detectLanguage(file string) language {
	switch strings.ToLower(path.Ext(file)) {
	case ".py":
		return langPython
	case ".java":
		return langJava
	case ".ts", ".tsx", ".js", ".jsx":
		return langTSJS
	case ".go":
		return langGo
	default:
		return langUnknown
	}
}

// TestsForFiles returns the name-based test association for each file,
// matching the workspace's existing node set: test_X.py, XTest.java,
// X.test.ts, X_test.go.
func (g *FileGraph) TestsForFiles(files []string) map[string][]string {
	out := make(map[string][]string, len(files))
	for _, f := range files {
		dir := path.Dir(f)
		base := path.Base(f)
		ext := path.Ext(base)
		stem := strings.TrimSuffix(base, ext)

		var candidates []string
		switch detectLanguage(f) {
		case langPython:
			candidates = []string{path.Join(dir, "test_"+stem+ext), path.Join(dir, stem+"_test"+ext)}
		case langJava:
			candidates = []string{path.Join(dir, stem+"Test"+ext)}
		case langTSJS:
			candidates = []string{path.Join(dir, stem+".test"+ext), path.Join(dir, stem+".spec"+ext)}
		case langGo:
			candidates = []string{path.Join(dir, stem+"_test"+ext)}
		}

		var found []string
		for _, c := range candidates {
			if _, ok := g.nodes[c]; ok {
				found = append(found, c)
			}
		}
		if len(found) > 0 {
			sort.Strings(found)
			out[f] = found
		}
	}
	return out
}
