package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aipl-dev/aipl/internal/clienv"
	"github.com/aipl-dev/aipl/internal/config"
	"github.com/aipl-dev/aipl/internal/profilestore"
)

// env resolves the paths one command invocation needs, derived from the
// --root/--workspace persistent flags.
type env struct {
	mainRoot string // the real source tree under management
	dataRoot string // aipl's own data root
	artifactsRoot string
	workspaceID string
	cfg *config.Config
}

func resolveEnv() (*env, error) {
	mainRoot := flagWorkspace
	if mainRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		mainRoot = wd
	}
	abs, err := filepath.Abs(mainRoot)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	artifactsRoot := filepath.Join(flagDataRoot, "artifacts")
	if cfg.General.DefaultWorkspace != "" && flagWorkspace == "" {
		if abs, err = filepath.Abs(cfg.General.DefaultWorkspace); err != nil {
			return nil, err
		}
	}
	return &env{
		mainRoot: abs,
		dataRoot: flagDataRoot,
		artifactsRoot: artifactsRoot,
		workspaceID: profilestore.WorkspaceID(abs),
		cfg: cfg,
	}, nil
}

func (e *env) wsDir() string {
	return filepath.Join(e.artifactsRoot, "workspaces", e.workspaceID)
}

func (e *env) backlogPath(planID string) string {
	return filepath.Join(e.wsDir(), "backlog", planID+".json")
}

func (e *env) executionsDir(planID string) string {
	return filepath.Join(e.wsDir(), "executions", planID)
}

func (e *env) planPath(planID string) string {
	return filepath.Join(e.executionsDir(planID), "plan.json")
}

func (e *env) runsDir(planID string) string {
	return filepath.Join(e.executionsDir(planID), "runs")
}

func (e *env) runDir(planID, runID string) string {
	return filepath.Join(e.runsDir(planID), runID)
}

// eventsPath is the cross-workspace status-transition log, a sibling of
// the workspaces/ directory.
func (e *env) eventsPath() string {
	return filepath.Join(e.artifactsRoot, "state", "events.jsonl")
}

func (e *env) learnedDir() string {
	return filepath.Join(e.wsDir(), "learned")
}

func (e *env) packsDir(kind string) string {
	return filepath.Join(e.wsDir(), "packs", kind)
}

func (e *env) profileDBPath() string {
	if e.cfg != nil && e.cfg.General.DBPath != "" {
		return filepath.Join(e.cfg.General.DBPath, "profiles.db")
	}
	return filepath.Join(e.dataRoot, "server", "data", "profiles.db")
}

func (e *env) mirrorDBPath() string {
	if e.cfg != nil && e.cfg.General.DBPath != "" {
		return filepath.Join(e.cfg.General.DBPath, "aipl.db")
	}
	return filepath.Join(e.dataRoot, "server", "data", "aipl.db")
}

func (e *env) codeGraphCachePath(fingerprint string) string {
	return filepath.Join(e.artifactsRoot, "code-graph-cache-"+fingerprint+".json")
}

func emit(data any, err error) error {
	return clienv.Emit(data, err)
}

func ensureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
