package profilestore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProposeSoftDraft_DetectsGoProject(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Title\nline2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	draft := ProposeSoftDraft(dir, "fp123")
	if draft["project_type"] != "go" {
		t.Fatalf("expected go, got %v", draft["project_type"])
	}
	if draft["fingerprint"] != "fp123" {
		t.Fatalf("expected fingerprint carried through, got %v", draft["fingerprint"])
	}
	summary, ok := draft["readme_summary"].([]string)
	if !ok || len(summary) == 0 || summary[0] != "# Title" {
		t.Fatalf("expected readme summary to start with title line, got %v", draft["readme_summary"])
	}
}

func TestProposeSoftDraft_UnknownProjectHasNoCommands(t *testing.T) {
	dir := t.TempDir()
	draft := ProposeSoftDraft(dir, "fp")
	if draft["project_type"] != "unknown" {
		t.Fatalf("expected unknown, got %v", draft["project_type"])
	}
	if cmds, _ := draft["build_and_test"].([]string); len(cmds) != 0 {
		t.Fatalf("expected no suggested commands for unknown project, got %v", cmds)
	}
}

func TestSoftProfileLifecycle_ProposeApproveReject(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(t.TempDir(), "profiles.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ensured, err := st.EnsureProfile(dir, nil, DefaultSystemHard())
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	wsID := ensured.Profile.WorkspaceID

	proposed, err := st.ProposeSoftProfile(dir, "initial scan")
	if err != nil {
		t.Fatalf("ProposeSoftProfile: %v", err)
	}
	if proposed.SoftDraft == nil {
		t.Fatal("expected a soft draft to be recorded")
	}
	if proposed.SoftApproved != nil {
		t.Error("proposing must not touch soft_approved")
	}

	reloaded, err := st.GetProfile(wsID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if reloaded.SoftDraft == nil {
		t.Fatal("expected draft to persist across reload")
	}
	if reloaded.SoftVersion != 0 {
		t.Errorf("expected soft_version 0 before approval, got %d", reloaded.SoftVersion)
	}

	approved, err := st.ApproveSoftProfile(wsID)
	if err != nil {
		t.Fatalf("ApproveSoftProfile: %v", err)
	}
	if approved.SoftApproved == nil {
		t.Fatal("expected soft_approved to be set after approval")
	}
	if approved.SoftVersion != 1 {
		t.Errorf("expected soft_version 1 after first approval, got %d", approved.SoftVersion)
	}

	if _, err := st.ProposeSoftProfile(dir, "second scan"); err != nil {
		t.Fatalf("ProposeSoftProfile (2nd): %v", err)
	}
	rejected, err := st.RejectSoftProfile(wsID)
	if err != nil {
		t.Fatalf("RejectSoftProfile: %v", err)
	}
	if rejected.SoftDraft != nil {
		t.Error("expected soft_draft cleared after rejection")
	}

	final, err := st.GetProfile(wsID)
	if err != nil {
		t.Fatalf("GetProfile (final): %v", err)
	}
	if final.SoftApproved == nil {
		t.Error("rejecting a later draft must not clear a prior approval")
	}
	if final.SoftVersion != 1 {
		t.Errorf("expected soft_version to remain 1, got %d", final.SoftVersion)
	}
}

func TestEnsureProfile_UpdateDoesNotClobberSoftState(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "profiles.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ensured, err := st.EnsureProfile(dir, nil, DefaultSystemHard())
	if err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}
	wsID := ensured.Profile.WorkspaceID

	if _, err := st.ProposeSoftProfile(dir, "scan"); err != nil {
		t.Fatalf("ProposeSoftProfile: %v", err)
	}
	if _, err := st.ApproveSoftProfile(wsID); err != nil {
		t.Fatalf("ApproveSoftProfile: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res2, err := st.EnsureProfile(dir, nil, DefaultSystemHard())
	if err != nil {
		t.Fatalf("EnsureProfile (2nd): %v", err)
	}
	if res2.Profile.SoftApproved == nil {
		t.Error("expected ensure-profile update to preserve soft_approved")
	}
	if res2.Profile.SoftVersion != 1 {
		t.Errorf("expected soft_version preserved at 1, got %d", res2.Profile.SoftVersion)
	}
}
