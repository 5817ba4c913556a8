package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aipl-dev/aipl/internal/model"
)

func TestVerifyTask_FileExistsPass(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "out.txt"), []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}
	runDir := t.TempDir()
	res, reasons, err := VerifyTask(context.Background(), DefaultConfig(), nil, ws, runDir,
		[]model.Check{{Type: model.CheckFileExists, Path: "out.txt"}})
	if err != nil {
		t.Fatalf("VerifyTask: %v", err)
	}
	if !res.Passed || len(reasons) != 0 {
		t.Fatalf("expected pass, got %+v reasons=%+v", res, reasons)
	}
	if _, err := os.Stat(filepath.Join(runDir, "verification_result.json")); err != nil {
		t.Errorf("expected verification_result.json written: %v", err)
	}
}

func TestVerifyTask_FileContainsFail(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "out.txt"), []byte("no"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, reasons, err := VerifyTask(context.Background(), DefaultConfig(), nil, ws, t.TempDir(),
		[]model.Check{{Type: model.CheckFileContains, Path: "out.txt", Needle: "ok"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Fatal("expected failure when needle absent")
	}
	if len(reasons) != 1 || reasons[0].Type != "content_mismatch" {
		t.Fatalf("expected content_mismatch reason, got %+v", reasons)
	}
}

func TestVerifyTask_NoChecksFailDefault(t *testing.T) {
	res, reasons, err := VerifyTask(context.Background(), DefaultConfig(), nil, t.TempDir(), t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Fatal("expected NO_CHECKS_BEHAVIOR=fail (default) to fail an empty check list")
	}
	if len(reasons) != 1 || reasons[0].Type != "no_checks" {
		t.Fatalf("expected no_checks reason, got %+v", reasons)
	}
}

func TestVerifyTask_NoChecksSkip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoChecksBehavior = NoChecksSkip
	res, reasons, err := VerifyTask(context.Background(), cfg, nil, t.TempDir(), t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed || len(reasons) != 0 {
		t.Fatalf("expected skip behavior to pass silently, got %+v reasons=%+v", res, reasons)
	}
}

func TestVerifyTask_CommandNotAllowed(t *testing.T) {
	res, reasons, err := VerifyTask(context.Background(), DefaultConfig(), nil, t.TempDir(), t.TempDir(),
		[]model.Check{{Type: model.CheckCommand, Cmd: "rm -rf /", ExpectExitCode: 0}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Fatal("expected disallowed command to fail verification")
	}
	if len(res.Checks) != 1 || res.Checks[0].Executed {
		t.Fatalf("expected the check record to show executed=false, got %+v", res.Checks)
	}
	// The default execution guard adds no_execution_check_defined because the
	// only execution check did not run.
	if len(reasons) != 2 || reasons[0].Type != "command_not_allowed" || reasons[1].Type != "no_execution_check_defined" {
		t.Fatalf("expected command_not_allowed then no_execution_check_defined reasons, got %+v", reasons)
	}
}

func TestVerifyTask_CommandSucceeds(t *testing.T) {
	ws := t.TempDir()
	res, _, err := VerifyTask(context.Background(), DefaultConfig(), nil, ws, t.TempDir(),
		[]model.Check{{Type: model.CheckCommand, Cmd: "true", AllowPrefixes: []string{"true"}, ExpectExitCode: 0}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed {
		t.Fatalf("expected `true` to pass, got %+v", res)
	}
	if !res.Checks[0].Executed {
		t.Fatal("expected executed=true for an allowed command")
	}
}

func TestVerifyTask_CommandTimeout(t *testing.T) {
	ws := t.TempDir()
	res, reasons, err := VerifyTask(context.Background(), DefaultConfig(), nil, ws, t.TempDir(),
		[]model.Check{{Type: model.CheckCommand, Cmd: "sleep 5", AllowPrefixes: []string{"sleep"}, TimeoutSec: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Fatal("expected timeout to fail verification")
	}
	if !res.Checks[0].TimedOut {
		t.Fatal("expected timed_out=true")
	}
	if reasons[0].Type != "command_timeout" {
		t.Fatalf("expected command_timeout reason, got %+v", reasons)
	}
}

func TestVerifyTask_UnknownCheckType(t *testing.T) {
	res, reasons, err := VerifyTask(context.Background(), DefaultConfig(), nil, t.TempDir(), t.TempDir(),
		[]model.Check{{Type: "not_a_real_type"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Fatal("expected unknown check type to fail")
	}
	if reasons[0].Type != "unknown_check" {
		t.Fatalf("expected unknown_check reason, got %+v", reasons)
	}
}

func TestVerifyTask_SoftCheckDoesNotFailOverall(t *testing.T) {
	ws := t.TempDir()
	res, reasons, err := VerifyTask(context.Background(), DefaultConfig(), nil, ws, t.TempDir(),
		[]model.Check{{Type: model.CheckFileExists, Path: "missing.txt", Soft: true}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed {
		t.Fatal("expected a soft failing check not to fail the overall result")
	}
	if len(reasons) != 0 {
		t.Fatalf("expected no reasons recorded for a soft failure, got %+v", reasons)
	}
}

func TestEffectiveChecks_ExecutionChecksOverridePolicy(t *testing.T) {
	taskChecks := []model.Check{{Type: model.CheckCommand, Cmd: "go test"}}
	policyChecks := []model.Check{{Type: model.CheckFileExists, Path: "README.md"}}
	got := EffectiveChecks(taskChecks, policyChecks)
	if len(got) != 1 || got[0].Cmd != "go test" {
		t.Fatalf("expected task's own execution checks to win, got %+v", got)
	}
}

func TestEffectiveChecks_ConcatenatesWhenNoExecutionCheck(t *testing.T) {
	taskChecks := []model.Check{{Type: model.CheckFileExists, Path: "a.txt"}}
	policyChecks := []model.Check{{Type: model.CheckFileExists, Path: "b.txt"}}
	got := EffectiveChecks(taskChecks, policyChecks)
	if len(got) != 2 {
		t.Fatalf("expected concatenation, got %+v", got)
	}
}

func TestBuildReworkRequest_ErrorSummary(t *testing.T) {
	reasons := []model.Reason{{Type: "content_mismatch", Detail: "needle not found"}}
	req := BuildReworkRequest(0, 3, reasons, nil, "/tmp/ws", nil, nil)
	if req.RemainingAttempts != 2 {
		t.Errorf("expected 2 remaining attempts, got %d", req.RemainingAttempts)
	}
	if req.FixGuidance == "" {
		t.Error("expected non-empty fix guidance")
	}
}
