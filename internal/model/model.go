// Package model defines the entities of the execution control plane: the
// workspace/profile identity records, the plan/task/run hierarchy, checks,
// patch sets, and the append-only event shape. It holds no behavior beyond
// small helpers — the components in internal/policy, internal/task,
// internal/verify, internal/stage, and internal/runctl own the operations
// that act on these types.
package model

import "time"

// TaskStatus is one of the states in the transition matrix.
type TaskStatus string

const (
	StatusTodo     TaskStatus = "todo"
	StatusDoing    TaskStatus = "doing"
	StatusStale    TaskStatus = "stale"
	StatusDone     TaskStatus = "done"
	StatusFailed   TaskStatus = "failed"
	StatusCanceled TaskStatus = "canceled"
)

// RunStatus is one of the states a Run passes through.
type RunStatus string

const (
	RunStarting       RunStatus = "starting"
	RunRunning        RunStatus = "running"
	RunPaused         RunStatus = "paused"
	RunCanceled       RunStatus = "canceled"
	RunAwaitingReview RunStatus = "awaiting_review"
	RunDone           RunStatus = "done"
	RunFailed         RunStatus = "failed"
	RunDiscarded      RunStatus = "discarded"
)

// CheckType discriminates the Check tagged union.
type CheckType string

const (
	CheckFileExists      CheckType = "file_exists"
	CheckFileContains    CheckType = "file_contains"
	CheckFileMatches     CheckType = "file_matches"
	CheckCommand         CheckType = "command"
	CheckCommandContains CheckType = "command_contains"
	CheckJSONSchema      CheckType = "json_schema"
	CheckHTTP            CheckType = "http_check"
)

// ChangeStatus is the per-file status in a PatchSet inventory.
type ChangeStatus string

const (
	ChangeAdded    ChangeStatus = "added"
	ChangeModified ChangeStatus = "modified"
	ChangeDeleted  ChangeStatus = "deleted"
)

// Workspace is the identity record for a target source tree.
type Workspace struct {
	ID string `json:"id"` // stable 16-hex prefix of SHA-256 over the normalized path
	Path string `json:"path"`
}

// HardPolicy is the sandbox contract: writable paths, allowed command
// prefixes, timeouts, concurrency.
type HardPolicy struct {
	AllowWrite      []string `json:"allow_write" toml:"allow_write"`
	DenyWrite       []string `json:"deny_write" toml:"deny_write"`
	AllowedCommands []string `json:"allowed_commands" toml:"allowed_commands"`
	DenyCommands []string `json:"deny_commands,omitempty" toml:"deny_commands"`
	CommandTimeoutSec int `json:"command_timeout_sec" toml:"command_timeout_sec"`
	MaxConcurrency int `json:"max_concurrency" toml:"max_concurrency"`
}

// Profile is the per-workspace record merging system/user/effective hard
// policy plus the fingerprint of its build manifests. SoftDraft/SoftApproved
// hold a proposed/accepted soft-policy payload (build-and-test commands,
// conventions, checks templates) a workspace scan suggests but never
// enforces; SoftVersion increments each time a draft is approved.
type Profile struct {
	WorkspaceID string `json:"workspace_id"`
	WorkspacePath string `json:"workspace_path"`
	SystemHard HardPolicy `json:"system_hard"`
	UserHard *HardPolicy `json:"user_hard,omitempty"`
	EffectiveHard HardPolicy `json:"effective_hard"`
	Fingerprint string `json:"fingerprint"`
	SoftDraft map[string]any `json:"soft_draft,omitempty"`
	SoftApproved map[string]any `json:"soft_approved,omitempty"`
	SoftVersion int `json:"soft_version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Check is a tagged-union assertion. Only the fields relevant to Type are
// populated; the registry in internal/verify dispatches on Type.
type Check struct {
	Type CheckType `json:"type"`
	Soft bool `json:"soft,omitempty"`

	// file_exists, file_contains, file_matches
	Path string `json:"path,omitempty"`
	Needle string `json:"needle,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	IgnoreCase bool `json:"ignore_case,omitempty"`
	Multiline bool `json:"multiline,omitempty"`

	// command, command_contains
	Cmd string `json:"cmd,omitempty"`
	Cwd string `json:"cwd,omitempty"`
	TimeoutSec int `json:"timeout_sec,omitempty"`
	ExpectExitCode int `json:"expect_exit_code,omitempty"`
	AllowPrefixes []string `json:"allow_prefixes,omitempty"`

	// json_schema
	Schema map[string]any `json:"schema,omitempty"`
	SchemaPath string `json:"schema_path,omitempty"`

	// http_check
	URL string `json:"url,omitempty"`
	Method string `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body string `json:"body,omitempty"`
	ExpectedStatus int `json:"expected_status,omitempty"`
	Contains string `json:"contains,omitempty"`
	JSONContains map[string]any `json:"json_contains,omitempty"`
	AllowHosts []string `json:"allow_hosts,omitempty"`
}

// Task is the unit of scheduling within a Plan's backlog.
type Task struct {
	ID string `json:"id"`
	Title string `json:"title"`
	Type string `json:"type"` // always "time_for_certainty"
	Priority int `json:"priority"`
	Dependencies []string `json:"dependencies"`
	Status TaskStatus `json:"status"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Checks             []Check  `json:"checks"`
	WorkspacePath string `json:"workspace_path,omitempty"`
	HeartbeatTS *time.Time `json:"heartbeat_ts,omitempty"`
	StaleTS *time.Time `json:"stale_ts,omitempty"`
	StaleCount int `json:"stale_count"`
	StatusTS time.Time `json:"status_ts"`
	CreatedTS time.Time `json:"created_ts"`
}

// Plan is an ordered identifier for a backlog derived from a user goal.
type Plan struct {
	ID string `json:"id"` // plan-YYYYMMDD-HHMMSS
	WorkspaceID string `json:"workspace_id"`
	Goal string `json:"goal"`
	RawPlan string `json:"raw_plan"`
	ValidationReasons []Reason `json:"validation_reasons,omitempty"`
	CreatedTS time.Time `json:"created_ts"`
	CleanupSnapshot *CleanupSnapshot `json:"cleanup_snapshot,omitempty"`
}

// CleanupSnapshot is the one-shot mutable field on an otherwise immutable Plan.
type CleanupSnapshot struct {
	TakenAt time.Time `json:"taken_at"`
	Path string `json:"path"`
}

// Reason is a structured rejection/validation note, never a thrown error.
type Reason struct {
	Type string `json:"type"`
	Index int `json:"index,omitempty"`
	Path string `json:"path,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Run is a single execution attempt of one task within a plan.
type Run struct {
	ID string `json:"id"` // run-YYYYMMDD-HHMMSS
	PlanID string `json:"plan_id"`
	TaskID string `json:"task_id"`
	WorkspaceID string `json:"workspace_id"`
	WorkspaceMainRoot string `json:"workspace_main_root"`
	Status RunStatus `json:"status"`
	StageRoot string `json:"stage_root,omitempty"`
	PatchSet *PatchSet `json:"patch_set,omitempty"`
	InputTokens int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	CostUSD float64 `json:"cost_usd,omitempty"`
	CreatedTS time.Time `json:"created_ts"`
	UpdatedTS time.Time `json:"updated_ts"`
}

// ChangedFile is one entry in a PatchSet's inventory.
type ChangedFile struct {
	Path string `json:"path"`
	Status ChangeStatus `json:"status"`
}

// PatchSet is the diff between stage and main at success time.
type PatchSet struct {
	ChangedFiles []ChangedFile `json:"changed_files"`
	UnifiedDiffText string `json:"unified_diff_text"`
}

// Event is an append-only record written to a run's events.jsonl.
type Event struct {
	Type string `json:"type"`
	TS time.Time `json:"ts"`

	PlanID string `json:"plan_id,omitempty"`
	RunID string `json:"run_id,omitempty"`
	TaskID string `json:"task_id,omitempty"`

	From TaskStatus `json:"from,omitempty"`
	To TaskStatus `json:"to,omitempty"`
	Source string `json:"source,omitempty"`
	Reason string `json:"reason,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// CoChangePattern is a learned correlation between files frequently modified
// together.
type CoChangePattern struct {
	Files []string `json:"files"`
	OccurrenceCount int `json:"occurrence_count"`
	Confidence float64 `json:"confidence"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen time.Time `json:"last_seen"`
	PatternType string `json:"pattern_type"`
}

// LearnedEntry is the shared shape for hints, lessons, and signatures:
// confidence-gated, decaying, capped per kind.
type LearnedEntry struct {
	Kind string `json:"kind"` // hint, lesson, signature
	Key string `json:"key"` // canonical dedup key
	Payload string `json:"payload"`
	Confidence float64 `json:"confidence"`
	CreatedTS time.Time `json:"created_ts"`
	UpdatedTS time.Time `json:"updated_ts"`
}

// Pack is an importable/exportable bundle of context rules, one rule-layering
// source for internal/policy.MergeLayers. Kind distinguishes experience packs
// (workflow/process guidance) from language packs (per-language conventions).
type Pack struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // experience, language
	Rules []string `json:"rules"`
	CreatedTS time.Time `json:"created_ts"`
	UpdatedTS time.Time `json:"updated_ts"`
}
