package config

import (
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := validate(cfg); err != nil {
		t.Fatalf("Default() produced an invalid config: %v", err)
	}
}

func TestLoad_MissingPathFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.General.PolicyMode != "enforce" {
		t.Fatalf("expected default policy mode, got %q", cfg.General.PolicyMode)
	}
}

func TestLoad_NonexistentFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/aipl.toml")
	if err != nil {
		t.Fatalf("Load with missing file should not error: %v", err)
	}
	if cfg.General.MaxConcurrency != 1 {
		t.Fatalf("expected default max concurrency, got %d", cfg.General.MaxConcurrency)
	}
}

func TestLoad_DecodesFileOverDefaults(t *testing.T) {
	path := writeTestConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.General.MaxConcurrency != 4 {
		t.Fatalf("expected max_concurrency=4 from file, got %d", cfg.General.MaxConcurrency)
	}
	// HTTPRetries left unset in the fixture, should keep the Default() value.
	if cfg.Verify.HTTPRetries != 3 {
		t.Fatalf("expected default http_retries to survive partial decode, got %d", cfg.Verify.HTTPRetries)
	}
}

func TestLoad_RejectsBadPolicyMode(t *testing.T) {
	path := writeTestConfig(t, `
[general]
policy_mode = "sometimes"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown policy_mode")
	}
}

func TestLoad_RejectsConflictingTestFlags(t *testing.T) {
	path := writeTestConfig(t, `
[verify]
disable_tests = true
allow_tests = true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for disable_tests + allow_tests")
	}
}

func TestApplyEnvOverrides_StaleAndPolicy(t *testing.T) {
	t.Setenv("AIPL_STALE_SECONDS", "120")
	t.Setenv("AIPL_STALE_AUTO_RESET", "true")
	t.Setenv("AIPL_POLICY_MODE", "report-only")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.General.StaleSeconds != 120 {
		t.Fatalf("expected AIPL_STALE_SECONDS override, got %d", cfg.General.StaleSeconds)
	}
	if !cfg.General.StaleAutoReset {
		t.Fatal("expected AIPL_STALE_AUTO_RESET override to enable auto reset")
	}
	if cfg.General.PolicyMode != "report-only" {
		t.Fatalf("expected AIPL_POLICY_MODE override, got %q", cfg.General.PolicyMode)
	}
}

func TestApplyEnvOverrides_CommandLists(t *testing.T) {
	t.Setenv("AIPL_ALLOWED_COMMANDS", "go test, go build,  go vet ")
	t.Setenv("AIPL_DENY_COMMANDS", "rm -rf")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{"go test", "go build", "go vet"}
	if len(cfg.HardPolicy.AllowedCommands) != len(want) {
		t.Fatalf("expected %d allowed commands, got %v", len(want), cfg.HardPolicy.AllowedCommands)
	}
	for i, w := range want {
		if cfg.HardPolicy.AllowedCommands[i] != w {
			t.Fatalf("allowed_commands[%d] = %q, want %q", i, cfg.HardPolicy.AllowedCommands[i], w)
		}
	}
	if len(cfg.HardPolicy.DenyCommands) != 1 || cfg.HardPolicy.DenyCommands[0] != "rm -rf" {
		t.Fatalf("expected deny_commands=[\"rm -rf\"], got %v", cfg.HardPolicy.DenyCommands)
	}
}

func TestApplyEnvOverrides_IgnoresUnparseableValues(t *testing.T) {
	t.Setenv("AIPL_MAX_CONCURRENCY", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.General.MaxConcurrency != 1 {
		t.Fatalf("expected unparseable override to be ignored, got %d", cfg.General.MaxConcurrency)
	}
}

func TestApplyEnvOverrides_HTTPTimeout(t *testing.T) {
	t.Setenv("AIPL_HTTP_TIMEOUT", "5s")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Verify.HTTPTimeout.Duration != 5*time.Second {
		t.Fatalf("expected 5s http timeout override, got %v", cfg.Verify.HTTPTimeout.Duration)
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("expected 90s, got %v", d.Duration)
	}
	if _, err := d.MarshalText(); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
}

func TestDuration_UnmarshalTextRejectsGarbage(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Fatal("expected error for invalid duration text")
	}
}

func TestToVerifyConfig_FallsBackToVerifyDefaults(t *testing.T) {
	cfg := &Config{}
	vc := cfg.ToVerifyConfig()
	base := vc // zero Config resolves its non-bool fields to verify.DefaultConfig() values
	if base.MaxOutputBytes == 0 {
		t.Fatal("expected fallback max output bytes to be non-zero")
	}
	if base.HTTPRetries == 0 {
		t.Fatal("expected fallback http retries to be non-zero")
	}
}

func TestToVerifyConfig_HonorsSetFields(t *testing.T) {
	cfg := Default()
	cfg.Verify.RequireExecution = false
	cfg.Verify.MaxOutputBytes = 4096
	vc := cfg.ToVerifyConfig()
	if vc.RequireExecution {
		t.Fatal("expected RequireExecution=false to be preserved")
	}
	if vc.MaxOutputBytes != 4096 {
		t.Fatalf("expected MaxOutputBytes=4096, got %d", vc.MaxOutputBytes)
	}
}

func TestClone_IsIndependentOfSource(t *testing.T) {
	cfg := Default()
	cfg.HardPolicy.AllowedCommands = []string{"go test"}
	clone := cfg.Clone()
	clone.HardPolicy.AllowedCommands[0] = "rm -rf /"
	if cfg.HardPolicy.AllowedCommands[0] != "go test" {
		t.Fatal("expected Clone to deep-copy AllowedCommands slice")
	}
}
