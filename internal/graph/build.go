package graph

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	pyImportRe  = regexp.MustCompile(`^\s*(?:from\s+([.\w]+)\s+import|import\s+([.\w]+))`)
	jsImportRe  = regexp.MustCompile(`(?:import\s+(?:[\w*{}\s,]+\s+from\s+)?|require\()\s*['"]([^'"]+)['"]`)
	javaPkgRe   = regexp.MustCompile(`^\s*package\s+([\w.]+)\s*;`)
	javaClassRe = regexp.MustCompile(`^\s*(?:public\s+)?(?:final\s+)?(?:abstract\s+)?(?:class|interface|enum)\s+(\w+)`)
)

// Build walks root and produces a FileGraph of import relationships. src is
// an optional secondary root (e.g. "src/") that Python imports may also
// resolve against. Directories in excludedDirs and files over MaxFileBytes
// are skipped.
func Build(root string, src string) (*FileGraph, error) {
	g := NewFileGraph()

	var pyFiles, jsFiles []string
	javaPackageToPath := map[string]string{} // fully.qualified.Class -> relpath

	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			if rel != "." && IsExcludedDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Size() > MaxFileBytes {
			return nil
		}
		g.AddNode(rel)
		switch strings.ToLower(filepath.Ext(rel)) {
		case ".py":
			pyFiles = append(pyFiles, rel)
		case ".js", ".jsx", ".ts", ".tsx":
			jsFiles = append(jsFiles, rel)
		case ".java":
			if fqcn, ferr := javaFQCN(p); ferr == nil && fqcn != "" {
				javaPackageToPath[fqcn] = rel
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, rel := range pyFiles {
		for _, target := range pyImportTargets(filepath.Join(root, rel), rel, root, src) {
			g.AddEdge(rel, target)
		}
	}
	for _, rel := range jsFiles {
		for _, target := range jsImportTargets(filepath.Join(root, rel), rel, root) {
			g.AddEdge(rel, target)
		}
	}
	for fqcn, rel := range javaPackageToPath {
		for _, target := range javaImportTargets(filepath.Join(root, rel), javaPackageToPath, fqcn) {
			g.AddEdge(rel, target)
		}
	}

	return g, nil
}

func javaFQCN(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var pkg, cls string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if pkg == "" {
			if m := javaPkgRe.FindStringSubmatch(line); m != nil {
				pkg = m[1]
			}
		}
		if cls == "" {
			if m := javaClassRe.FindStringSubmatch(line); m != nil {
				cls = m[1]
			}
		}
		if pkg != "" && cls != "" {
			break
		}
	}
	if cls == "" {
		return "", nil
	}
	if pkg == "" {
		return cls, nil
	}
	return pkg + "." + cls, nil
}

func javaImportTargets(absPath string, index map[string]string, selfFQCN string) []string {
	f, err := os.Open(absPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	importRe := regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.]+)\s*;`)
	for scanner.Scan() {
		m := importRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if rel, ok := index[m[1]]; ok {
			targets = append(targets, rel)
		}
	}
	return targets
}

func pyImportTargets(absPath, relPath, root, src string) []string {
	f, err := os.Open(absPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	dir := filepath.Dir(relPath)
	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		m := pyImportRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[1] == "." {
			// "from . import a, b": each imported name is a sibling module.
			for _, name := range strings.Split(line[len(m[0]):], ",") {
				if f := strings.Fields(name); len(f) > 0 && fileExists(filepath.Join(root, dir, f[0]+".py")) {
					targets = append(targets, filepath.ToSlash(filepath.Join(dir, f[0]+".py")))
				}
			}
			continue
		}
		mod := m[1]
		if mod == "" {
			mod = m[2]
		}
		mod = strings.TrimPrefix(mod, ".")
		modPath := strings.ReplaceAll(mod, ".", "/")

		for _, base := range []string{dir, root, filepath.Join(root, src)} {
			candidate := filepath.ToSlash(filepath.Join(base, modPath+".py"))
			candidate = strings.TrimPrefix(candidate, filepath.ToSlash(root)+"/")
			if fileExists(filepath.Join(root, candidate)) {
				targets = append(targets, candidate)
				break
			}
		}
	}
	return targets
}

func jsImportTargets(absPath, relPath, root string) []string {
	f, err := os.Open(absPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	dir := filepath.Dir(relPath)
	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := jsImportRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		spec := m[1]
		if !strings.HasPrefix(spec, ".") && !strings.HasPrefix(spec, "/") {
			continue // not relative/root-anchored: skip node_modules-style package imports
		}
		base := dir
		if strings.HasPrefix(spec, "/") {
			base = root
			spec = strings.TrimPrefix(spec, "/")
		}
		for _, ext := range []string{".ts", ".tsx", ".js", ".jsx"} {
			candidate := filepath.ToSlash(filepath.Join(base, spec+ext))
			if fileExists(filepath.Join(root, candidate)) {
				targets = append(targets, candidate)
				break
			}
		}
	}
	return targets
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
