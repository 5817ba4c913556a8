// Package config loads and validates aipl's TOML configuration, layered as
// built-in defaults -> TOML file -> AIPL_* environment variable overrides.
//
// Grounded on the teacher's own internal/config/config.go: a struct-of-
// structs Config decoded with github.com/BurntSushi/toml, a Duration
// wrapper type implementing UnmarshalText/MarshalText for "60s"-style
// fields, and a Load(path) that decodes over defaults then validates.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aipl-dev/aipl/internal/model"
	"github.com/aipl-dev/aipl/internal/verify"
)

// Duration is a time.Duration that unmarshals from TOML/env strings like
// "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// General holds the run controller / stale-scanner / policy-mode knobs.
type General struct {
	StaleSeconds       int    `toml:"stale_seconds"`
	StaleAutoReset     bool   `toml:"stale_auto_reset"`
	MaxConcurrency     int    `toml:"max_concurrency"`
	PolicyMode         string `toml:"policy_mode"` // report-only, enforce
	DefaultWorkspace   string `toml:"default_workspace"`
	DBPath             string `toml:"db_path"`
	AllowShellCommands bool   `toml:"allow_shell_commands"`
}

// VerifyConfig mirrors internal/verify.Config's TOML-editable fields.
type VerifyConfig struct {
	NoChecksBehavior string   `toml:"no_checks_behavior"` // fail, warn, skip
	RequireExecution bool     `toml:"require_execution"`
	AllowSkipTests   bool     `toml:"allow_skip_tests"`
	MaxOutputBytes   int      `toml:"max_output_bytes"`
	CommandTimeout   Duration `toml:"command_timeout"`
	HTTPTimeout      Duration `toml:"http_timeout"`
	HTTPRetries      int      `toml:"http_retries"`
	HTTPSoftFail     bool     `toml:"http_soft_fail"`
	DisableTests     bool     `toml:"disable_tests"`
	AllowTests       bool     `toml:"allow_tests"`
}

// CodeGraphConfig controls the code graph cache's location and watch behavior.
type CodeGraphConfig struct {
	Cache     bool   `toml:"cache"`
	Watch     bool   `toml:"watch"`
	CacheRoot string `toml:"cache_root"`
}

// Config is aipl's top-level configuration: defaults for the system hard
// policy plus the controller/verifier/graph knobs the environment variable
// list in the CLI surface exposes for operator override.
type Config struct {
	General    General          `toml:"general"`
	HardPolicy model.HardPolicy `toml:"hard_policy"`
	Verify     VerifyConfig     `toml:"verify"`
	CodeGraph  CodeGraphConfig  `toml:"code_graph"`
}

// Default returns aipl's built-in configuration defaults.
func Default() *Config {
	return &Config{
		General: General{
			StaleSeconds:   3600,
			MaxConcurrency: 1,
			PolicyMode:     "enforce",
		},
		HardPolicy: model.HardPolicy{
			CommandTimeoutSec: 120,
			MaxConcurrency:    1,
		},
		Verify: VerifyConfig{
			NoChecksBehavior: "fail",
			RequireExecution: true,
			MaxOutputBytes:   64 * 1024,
			HTTPTimeout:      Duration{30 * time.Second},
			HTTPRetries:      3,
		},
		CodeGraph: CodeGraphConfig{
			Cache: true,
		},
	}
}

// Load reads and decodes the TOML file at path over Default(), then applies
// AIPL_* environment variable overrides and validates the result. A missing
// path is not an error: Default() plus environment overrides is a complete
// configuration on its own, matching deployments configured purely through
// the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.General.PolicyMode {
	case "report-only", "enforce":
	default:
		return fmt.Errorf("general.policy_mode must be report-only or enforce, got %q", cfg.General.PolicyMode)
	}
	switch verify.NoChecksBehavior(cfg.Verify.NoChecksBehavior) {
	case verify.NoChecksFail, verify.NoChecksWarn, verify.NoChecksSkip:
	default:
		return fmt.Errorf("verify.no_checks_behavior must be fail, warn, or skip, got %q", cfg.Verify.NoChecksBehavior)
	}
	if cfg.Verify.DisableTests && cfg.Verify.AllowTests {
		return fmt.Errorf("verify.disable_tests and verify.allow_tests are mutually exclusive")
	}
	if cfg.General.MaxConcurrency < 0 {
		return fmt.Errorf("general.max_concurrency cannot be negative")
	}
	return nil
}

// applyEnvOverrides layers the AIPL_* environment variables the CLI surface
// documents over whatever Load already decoded from TOML, environment last
// so an operator can always override a checked-in config file at deploy
// time without editing it.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("AIPL_STALE_SECONDS"); ok {
		cfg.General.StaleSeconds = v
	}
	if v, ok := envBool("AIPL_STALE_AUTO_RESET"); ok {
		cfg.General.StaleAutoReset = v
	}
	if v, ok := os.LookupEnv("AIPL_ALLOWED_COMMANDS"); ok {
		cfg.HardPolicy.AllowedCommands = splitList(v)
	}
	if v, ok := os.LookupEnv("AIPL_DENY_COMMANDS"); ok {
		cfg.HardPolicy.DenyCommands = splitList(v)
	}
	if v, ok := envInt("AIPL_COMMAND_TIMEOUT"); ok {
		cfg.HardPolicy.CommandTimeoutSec = v
	}
	if v, ok := os.LookupEnv("AIPL_DENY_WRITE"); ok {
		cfg.HardPolicy.DenyWrite = splitList(v)
	}
	if v, ok := envInt("AIPL_MAX_CONCURRENCY"); ok {
		cfg.General.MaxConcurrency = v
		cfg.HardPolicy.MaxConcurrency = v
	}
	if v, ok := os.LookupEnv("AIPL_POLICY_MODE"); ok {
		cfg.General.PolicyMode = v
	}
	if v, ok := os.LookupEnv("AIPL_NO_CHECKS_BEHAVIOR"); ok {
		cfg.Verify.NoChecksBehavior = v
	}
	if v, ok := envBool("AIPL_REQUIRE_EXECUTION"); ok {
		cfg.Verify.RequireExecution = v
	}
	if v, ok := envBool("AIPL_ALLOW_SKIP_TESTS"); ok {
		cfg.Verify.AllowSkipTests = v
	}
	if v, ok := envBool("AIPL_ALLOW_SHELL_COMMANDS"); ok {
		cfg.General.AllowShellCommands = v
	}
	if v, ok := envInt("AIPL_MAX_OUTPUT_BYTES"); ok {
		cfg.Verify.MaxOutputBytes = v
	}
	if v, ok := envDuration("AIPL_HTTP_TIMEOUT"); ok {
		cfg.Verify.HTTPTimeout = Duration{v}
	}
	if v, ok := envInt("AIPL_HTTP_RETRIES"); ok {
		cfg.Verify.HTTPRetries = v
	}
	if v, ok := envBool("AIPL_HTTP_SOFT_FAIL"); ok {
		cfg.Verify.HTTPSoftFail = v
	}
	if v, ok := envBool("AIPL_CODE_GRAPH_CACHE"); ok {
		cfg.CodeGraph.Cache = v
	}
	if v, ok := envBool("AIPL_CODE_GRAPH_WATCH"); ok {
		cfg.CodeGraph.Watch = v
	}
	if v, ok := os.LookupEnv("AIPL_CODE_GRAPH_CACHE_ROOT"); ok {
		cfg.CodeGraph.CacheRoot = v
	}
	if v, ok := os.LookupEnv("AIPL_DB_PATH"); ok {
		cfg.General.DBPath = v
	}
	if v, ok := os.LookupEnv("AIPL_DEFAULT_WORKSPACE"); ok {
		cfg.General.DefaultWorkspace = v
	}
	if v, ok := envBool("AIPL_DISABLE_TESTS"); ok {
		cfg.Verify.DisableTests = v
	}
	if v, ok := envBool("AIPL_ALLOW_TESTS"); ok {
		cfg.Verify.AllowTests = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

func envDuration(key string) (time.Duration, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return d, true
}

// Clone returns a deep-enough copy of cfg safe for a reader to hold onto
// while a concurrent Reload swaps the manager's live pointer.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.General.DBPath = c.General.DBPath
	clone.HardPolicy.AllowWrite = append([]string{}, c.HardPolicy.AllowWrite...)
	clone.HardPolicy.DenyWrite = append([]string{}, c.HardPolicy.DenyWrite...)
	clone.HardPolicy.AllowedCommands = append([]string{}, c.HardPolicy.AllowedCommands...)
	clone.HardPolicy.DenyCommands = append([]string{}, c.HardPolicy.DenyCommands...)
	return &clone
}

// ToVerifyConfig converts the TOML-editable verify section into
// internal/verify.Config, falling back to verify's own defaults for any
// non-bool field left at its zero value. Bool fields are copied as given,
// so a false in c is not replaced by a true verify default.
func (c *Config) ToVerifyConfig() verify.Config {
	base := verify.DefaultConfig()
	behavior := verify.NoChecksBehavior(c.Verify.NoChecksBehavior)
	if behavior == "" {
		behavior = base.NoChecksBehavior
	}
	maxOutputBytes := c.Verify.MaxOutputBytes
	if maxOutputBytes == 0 {
		maxOutputBytes = base.MaxOutputBytes
	}
	httpTimeout := c.Verify.HTTPTimeout.Duration
	if httpTimeout == 0 {
		httpTimeout = base.HTTPTimeout
	}
	httpRetries := c.Verify.HTTPRetries
	if httpRetries == 0 {
		httpRetries = base.HTTPRetries
	}
	return verify.Config{
		NoChecksBehavior:   behavior,
		RequireExecution:   c.Verify.RequireExecution,
		AllowSkipTests:     c.Verify.AllowSkipTests,
		AllowShellCommands: c.General.AllowShellCommands,
		MaxOutputBytes:     maxOutputBytes,
		HTTPTimeout:        httpTimeout,
		HTTPRetries:        httpRetries,
		HTTPSoftFail:       c.Verify.HTTPSoftFail,
	}
}
