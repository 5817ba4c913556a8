package profilestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aipl-dev/aipl/internal/model"
)

func TestComputeFingerprint_EmptyVsPresent(t *testing.T) {
	dir := t.TempDir()
	fp1, err := ComputeFingerprint(dir)
	if err != nil {
		t.Fatalf("ComputeFingerprint: %v", err)
	}
	if fp1 == "" {
		t.Fatal("expected non-empty sentinel fingerprint")
	}

	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fp2, err := ComputeFingerprint(dir)
	if err != nil {
		t.Fatalf("ComputeFingerprint: %v", err)
	}
	if fp1 == fp2 {
		t.Fatal("expected fingerprint to change once a manifest file exists")
	}

	fp3, err := ComputeFingerprint(dir)
	if err != nil {
		t.Fatal(err)
	}
	if fp2 != fp3 {
		t.Fatal("expected fingerprint to be stable across repeated calls")
	}
}

func TestWorkspaceID_Stable(t *testing.T) {
	id1 := WorkspaceID("/home/user/project")
	id2 := WorkspaceID("/home/user/project")
	if id1 != id2 {
		t.Fatal("WorkspaceID must be stable for the same path")
	}
	if len(id1) != 16 {
		t.Fatalf("expected 16-hex id, got %q", id1)
	}
	if WorkspaceID("/home/user/other") == id1 {
		t.Fatal("different paths must not collide trivially")
	}
}

func TestSanitizeUserHard_RejectsNonPositive(t *testing.T) {
	clean, reasons := SanitizeUserHard(model.HardPolicy{
		CommandTimeoutSec: -5,
		MaxConcurrency:    0,
		AllowWrite:        []string{`src\sub`},
	})
	if len(reasons) != 1 {
		t.Fatalf("expected 1 reason (negative timeout only; zero concurrency is absent-field), got %+v", reasons)
	}
	if clean.AllowWrite[0] != "src/sub" {
		t.Errorf("expected backslash normalized to forward slash, got %q", clean.AllowWrite[0])
	}
}

func TestMergeHard_UserOverridesFieldByField(t *testing.T) {
	system := model.HardPolicy{AllowedCommands: []string{"go test"}, CommandTimeoutSec: 60, MaxConcurrency: 1}
	user := &model.HardPolicy{CommandTimeoutSec: 300}
	eff := MergeHard(system, user)
	if eff.CommandTimeoutSec != 300 {
		t.Errorf("expected user override, got %d", eff.CommandTimeoutSec)
	}
	if len(eff.AllowedCommands) != 1 || eff.AllowedCommands[0] != "go test" {
		t.Errorf("expected system default preserved for unset user field, got %v", eff.AllowedCommands)
	}
}

func TestEnsureProfile_CreateThenUpdateDetectsFingerprintChange(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "profiles.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	res, err := st.EnsureProfile(dir, nil, DefaultSystemHard())
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	if !res.Created {
		t.Error("expected Created=true on first call")
	}
	if res.FingerprintChanged {
		t.Error("fingerprint should not be 'changed' on initial creation")
	}

	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res2, err := st.EnsureProfile(dir, nil, DefaultSystemHard())
	if err != nil {
		t.Fatalf("EnsureProfile (2nd): %v", err)
	}
	if res2.Created {
		t.Error("expected Created=false on second call")
	}
	if !res2.FingerprintChanged {
		t.Error("expected FingerprintChanged=true after adding go.mod")
	}
}
