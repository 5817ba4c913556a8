package graph

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_PythonRelativeImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/a.py", "from . import b\n")
	writeFile(t, root, "pkg/b.py", "x = 1\n")

	g, err := Build(root, "src")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	related := g.RelatedFiles([]string{"pkg/a.py"}, 1)
	if len(related) != 1 || related[0] != "pkg/b.py" {
		t.Fatalf("expected pkg/a.py -> pkg/b.py edge, got %v", related)
	}
}

func TestBuild_JSRelativeImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "web/app.ts", `import { widget } from "./widget"`+"\n")
	writeFile(t, root, "web/widget.ts", "export const widget = 1\n")

	g, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	related := g.RelatedFiles([]string{"web/app.ts"}, 1)
	if len(related) != 1 || related[0] != "web/widget.ts" {
		t.Fatalf("expected web/app.ts -> web/widget.ts edge, got %v", related)
	}
}

func TestBuild_JSBarePackageIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "web/app.ts", `import React from "react"`+"\n")

	g, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if related := g.RelatedFiles([]string{"web/app.ts"}, 1); len(related) != 0 {
		t.Fatalf("expected no edges for a bare package specifier, got %v", related)
	}
}

func TestBuild_JavaPackageImport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/com/acme/Widget.java", "package com.acme;\n\npublic class Widget {}\n")
	writeFile(t, root, "src/com/acme/App.java", "package com.acme;\n\nimport com.acme.Widget;\n\npublic class App {}\n")

	g, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	related := g.RelatedFiles([]string{"src/com/acme/App.java"}, 1)
	if len(related) != 1 || related[0] != "src/com/acme/Widget.java" {
		t.Fatalf("expected App.java -> Widget.java edge, got %v", related)
	}
}

func TestBuild_ExcludesVendorDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = {}\n")
	writeFile(t, root, "app.js", "require('./app')\n")

	g, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.NodeCount() != 1 {
		t.Fatalf("expected node_modules to be excluded, got %d nodes", g.NodeCount())
	}
}

func TestBuild_SkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, MaxFileBytes+1)
	writeFile(t, root, "huge.py", string(big))
	writeFile(t, root, "small.py", "x = 1\n")

	g, err := Build(root, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.NodeCount() != 1 {
		t.Fatalf("expected oversized file to be excluded, got %d nodes", g.NodeCount())
	}
}
