package stage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateStage_CopyFallback(t *testing.T) {
	mainRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(mainRoot, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(mainRoot, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mainRoot, "node_modules", "dep.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	runDir := t.TempDir()
	meta, err := CreateStage(runDir, mainRoot)
	if err != nil {
		t.Fatalf("CreateStage: %v", err)
	}
	if meta.Mode != ModeCopy {
		t.Fatalf("expected copy mode without a .git dir, got %s", meta.Mode)
	}
	if _, err := os.Stat(filepath.Join(meta.StageRoot, "a.txt")); err != nil {
		t.Fatalf("expected a.txt copied into stage: %v", err)
	}
	if _, err := os.Stat(filepath.Join(meta.StageRoot, "node_modules")); !os.IsNotExist(err) {
		t.Fatal("expected node_modules to be excluded from the stage copy")
	}
}

func TestCreateStage_ClearsPreexistingStage(t *testing.T) {
	mainRoot := t.TempDir()
	runDir := t.TempDir()
	stagePath := filepath.Join(runDir, "stage")
	if err := os.MkdirAll(stagePath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stagePath, "stale.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	meta, err := CreateStage(runDir, mainRoot)
	if err != nil {
		t.Fatalf("CreateStage: %v", err)
	}
	if _, err := os.Stat(filepath.Join(meta.StageRoot, "stale.txt")); !os.IsNotExist(err) {
		t.Fatal("expected stale stage contents to be cleared")
	}
}

func TestBuildAndApplyPatchSet_RoundTrip(t *testing.T) {
	mainRoot := t.TempDir()
	stageRoot := t.TempDir()
	runDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(mainRoot, "keep.txt"), []byte("same\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mainRoot, "old.txt"), []byte("to be deleted\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mainRoot, "change.txt"), []byte("before\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(stageRoot, "keep.txt"), []byte("same\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stageRoot, "change.txt"), []byte("after\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stageRoot, "new.txt"), []byte("brand new\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ps, err := BuildPatchSet(stageRoot, mainRoot, runDir)
	if err != nil {
		t.Fatalf("BuildPatchSet: %v", err)
	}
	if len(ps.ChangedFiles) != 3 {
		t.Fatalf("expected 3 changed files (old deleted, change modified, new added), got %d: %+v", len(ps.ChangedFiles), ps.ChangedFiles)
	}

	if _, err := os.Stat(filepath.Join(runDir, "patchset", "patchset.diff")); err != nil {
		t.Errorf("expected patchset.diff written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(runDir, "patchset", "changed_files.json")); err != nil {
		t.Errorf("expected changed_files.json written: %v", err)
	}

	results := ApplyPatchSet(stageRoot, mainRoot, ps.ChangedFiles)
	for _, r := range results {
		if !r.OK {
			t.Errorf("apply failed for %s: %s", r.Path, r.Err)
		}
	}

	if _, err := os.Stat(filepath.Join(mainRoot, "old.txt")); !os.IsNotExist(err) {
		t.Error("expected old.txt removed from main after apply")
	}
	newContent, err := os.ReadFile(filepath.Join(mainRoot, "new.txt"))
	if err != nil || string(newContent) != "brand new\n" {
		t.Errorf("expected new.txt copied into main, got %q err=%v", newContent, err)
	}
	changeContent, err := os.ReadFile(filepath.Join(mainRoot, "change.txt"))
	if err != nil || string(changeContent) != "after\n" {
		t.Errorf("expected change.txt updated in main, got %q err=%v", changeContent, err)
	}

	mainFiles, err := listFiles(mainRoot)
	if err != nil {
		t.Fatal(err)
	}
	stageFiles, err := listFiles(stageRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(mainFiles) != len(stageFiles) {
		t.Fatalf("expected main tree to match stage tree after apply, got %d vs %d files", len(mainFiles), len(stageFiles))
	}
	for rel, hash := range stageFiles {
		if mainFiles[rel] != hash {
			t.Errorf("file %s differs between main and stage after apply", rel)
		}
	}
}

func TestApplyPatchSet_RefusesUnsafePaths(t *testing.T) {
	mainRoot := t.TempDir()
	stageRoot := t.TempDir()
	results := ApplyPatchSet(stageRoot, mainRoot, []ChangedFile{
		{Path: "../escape.txt", Status: Added},
		{Path: "/abs.txt", Status: Added},
	})
	for _, r := range results {
		if r.OK {
			t.Errorf("expected unsafe path %s to be refused", r.Path)
		}
	}
}
