// Package profilestore implements the workspace profile store: a small
// SQLite schema holding one row per workspace (system/user/effective hard
// policy plus a build-manifest fingerprint) and an append-only review-log
// audit table. Grounded on internal/store's sqlite.Open idiom from the
// teacher repo (pure-Go driver, WAL journal mode, schema-then-migrate).
package profilestore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aipl-dev/aipl/internal/model"
)

// FingerprintManifests is the fixed set of build-manifest files whose union
// (those that exist) is hashed to produce a workspace's fingerprint.
var FingerprintManifests = []string{
	"pom.xml",
	"build.gradle",
	"build.gradle.kts",
	"package.json",
	"pyproject.toml",
	"requirements.txt",
	"go.mod",
	"Cargo.toml",
}

// emptyFingerprintSentinel is hashed when no manifest files exist, so an
// empty workspace still has a stable, non-empty fingerprint.
const emptyFingerprintSentinel = "aipl:no-manifests"

const schema = `
CREATE TABLE IF NOT EXISTS workspace_profiles (
	workspace_id TEXT PRIMARY KEY,
	workspace_path TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	user_hard_json TEXT NOT NULL DEFAULT '',
	system_hard_json TEXT NOT NULL DEFAULT '',
	soft_draft_json TEXT NOT NULL DEFAULT '',
	soft_approved_json TEXT NOT NULL DEFAULT '',
	soft_version INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS profile_review_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_id TEXT NOT NULL,
	action TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	payload_json TEXT NOT NULL DEFAULT '',
	ts DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Store is the SQLite-backed profile store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the profile database at dbPath and ensures its schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("profilestore: open %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("profilestore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// WorkspaceID derives the stable 16-hex-prefix-of-SHA-256 identity for an
// absolute workspace path. The path is normalized to forward slashes and,
// on case-insensitive platforms, case-folded, before hashing.
func WorkspaceID(absPath string) string {
	p := strings.ReplaceAll(absPath, "\\", "/")
	p = strings.TrimPrefix(p, `\\?\`)
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
	}
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:])[:16]
}

// ComputeFingerprint hashes the union of FingerprintManifests that exist
// under root, plus any top-level *.sln files, in sorted path order, as
// SHA-256(relative_path || bytes).
func ComputeFingerprint(root string) (string, error) {
	var present []string
	for _, name := range FingerprintManifests {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			present = append(present, name)
		}
	}
	if slns, err := filepath.Glob(filepath.Join(root, "*.sln")); err == nil {
		for _, sln := range slns {
			rel, err := filepath.Rel(root, sln)
			if err == nil {
				present = append(present, rel)
			}
		}
	}
	if len(present) == 0 {
		sum := sha256.Sum256([]byte(emptyFingerprintSentinel))
		return hex.EncodeToString(sum[:]), nil
	}
	sort.Strings(present)
	h := sha256.New()
	for _, rel := range present {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return "", fmt.Errorf("profilestore: read %s: %w", rel, err)
		}
		h.Write([]byte(rel))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EnsureResult is the outcome of EnsureProfile.
type EnsureResult struct {
	Profile            model.Profile
	Created            bool
	FingerprintChanged bool
}

// SanitizeUserHard keeps only known fields, rejects non-positive integers,
// and normalizes path separators, returning one Reason per rejected field.
func SanitizeUserHard(raw model.HardPolicy) (model.HardPolicy, []model.Reason) {
	var reasons []model.Reason
	clean := model.HardPolicy{}

	clean.AllowWrite = normalizePaths(raw.AllowWrite)
	clean.DenyWrite = normalizePaths(raw.DenyWrite)
	clean.AllowedCommands = append([]string{}, raw.AllowedCommands...)

	if raw.CommandTimeoutSec > 0 {
		clean.CommandTimeoutSec = raw.CommandTimeoutSec
	} else if raw.CommandTimeoutSec != 0 {
		reasons = append(reasons, model.Reason{Type: "invalid_policy_field", Detail: "command_timeout_sec must be positive"})
	}

	if raw.MaxConcurrency > 0 {
		clean.MaxConcurrency = raw.MaxConcurrency
	} else if raw.MaxConcurrency != 0 {
		reasons = append(reasons, model.Reason{Type: "invalid_policy_field", Detail: "max_concurrency must be positive"})
	}

	return clean, reasons
}

func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, strings.TrimSpace(strings.ReplaceAll(p, "\\", "/")))
	}
	return out
}

// DefaultSystemHard is the built-in fallback hard policy when no config
// supplies one.
func DefaultSystemHard() model.HardPolicy {
	return model.HardPolicy{
		AllowWrite:        nil, // empty: any safe non-denied path
		DenyWrite:         []string{".git", "node_modules"},
		AllowedCommands:   []string{"go test", "go build", "go vet", "python -m pytest", "npm test"},
		CommandTimeoutSec: 120,
		MaxConcurrency:    1,
	}
}

// MergeHard applies user policy over system policy field-by-field: a
// user-supplied field (non-zero/non-nil) overrides the system default.
func MergeHard(system model.HardPolicy, user *model.HardPolicy) model.HardPolicy {
	eff := system
	if user == nil {
		return eff
	}
	if len(user.AllowWrite) > 0 {
		eff.AllowWrite = user.AllowWrite
	}
	if len(user.DenyWrite) > 0 {
		eff.DenyWrite = user.DenyWrite
	}
	if len(user.AllowedCommands) > 0 {
		eff.AllowedCommands = user.AllowedCommands
	}
	if len(user.DenyCommands) > 0 {
		eff.DenyCommands = user.DenyCommands
	}
	if user.CommandTimeoutSec > 0 {
		eff.CommandTimeoutSec = user.CommandTimeoutSec
	}
	if user.MaxConcurrency > 0 {
		eff.MaxConcurrency = user.MaxConcurrency
	}
	return eff
}

// EnsureProfile idempotently inserts or updates the workspace_profiles row,
// recomputing the fingerprint and sanitizing any supplied user policy.
func (s *Store) EnsureProfile(workspacePath string, userHard *model.HardPolicy, systemHard model.HardPolicy) (EnsureResult, error) {
	absPath, err := filepath.Abs(workspacePath)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("profilestore: abs path: %w", err)
	}
	wsID := WorkspaceID(absPath)

	fingerprint, err := ComputeFingerprint(absPath)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("profilestore: fingerprint: %w", err)
	}

	var sanitizedUser *model.HardPolicy
	var sanitizeReasons []model.Reason
	if userHard != nil {
		clean, reasons := SanitizeUserHard(*userHard)
		sanitizedUser = &clean
		sanitizeReasons = reasons
	}

	effective := MergeHard(systemHard, sanitizedUser)

	var existingFingerprint, softDraftJSON, softApprovedJSON string
	var softVersion int
	var created bool
	row := s.db.QueryRow(`SELECT fingerprint, soft_draft_json, soft_approved_json, soft_version
		FROM workspace_profiles WHERE workspace_id = ?`, wsID)
	switch err := row.Scan(&existingFingerprint, &softDraftJSON, &softApprovedJSON, &softVersion); err {
	case sql.ErrNoRows:
		created = true
	case nil:
		// found; soft_* columns are intentionally left untouched below so an
		// ensure-profile call never clobbers pending or approved soft state.
	default:
		return EnsureResult{}, fmt.Errorf("profilestore: lookup: %w", err)
	}

	userJSON, _ := json.Marshal(sanitizedUser)
	systemJSON, _ := json.Marshal(systemHard)

	if created {
		_, err = s.db.Exec(`INSERT INTO workspace_profiles
			(workspace_id, workspace_path, fingerprint, user_hard_json, system_hard_json, updated_at)
			VALUES (?, ?, ?, ?, ?, datetime('now'))`,
			wsID, absPath, fingerprint, string(userJSON), string(systemJSON))
	} else {
		_, err = s.db.Exec(`UPDATE workspace_profiles SET
			workspace_path = ?, fingerprint = ?, user_hard_json = ?, system_hard_json = ?, updated_at = datetime('now')
			WHERE workspace_id = ?`,
			absPath, fingerprint, string(userJSON), string(systemJSON), wsID)
	}
	if err != nil {
		return EnsureResult{}, fmt.Errorf("profilestore: upsert: %w", err)
	}

	fpChanged := !created && existingFingerprint != fingerprint

	action := "updated"
	if created {
		action = "created"
	}
	payload, _ := json.Marshal(map[string]any{"sanitize_reasons": sanitizeReasons})
	if _, err := s.db.Exec(`INSERT INTO profile_review_log (workspace_id, action, fingerprint, payload_json)
		VALUES (?, ?, ?, ?)`, wsID, action, fingerprint, string(payload)); err != nil {
		return EnsureResult{}, fmt.Errorf("profilestore: audit log: %w", err)
	}

	profile := model.Profile{
		WorkspaceID:   wsID,
		WorkspacePath: absPath,
		SystemHard:    systemHard,
		UserHard:      sanitizedUser,
		EffectiveHard: effective,
		Fingerprint:   fingerprint,
		SoftVersion:   softVersion,
		UpdatedAt:     time.Now().UTC(),
	}
	if softDraftJSON != "" && softDraftJSON != "null" {
		_ = json.Unmarshal([]byte(softDraftJSON), &profile.SoftDraft)
	}
	if softApprovedJSON != "" && softApprovedJSON != "null" {
		_ = json.Unmarshal([]byte(softApprovedJSON), &profile.SoftApproved)
	}

	return EnsureResult{Profile: profile, Created: created, FingerprintChanged: fpChanged}, nil
}

// GetProfile loads a previously ensured profile by workspace id.
func (s *Store) GetProfile(workspaceID string) (model.Profile, error) {
	var p model.Profile
	var userJSON, systemJSON, softDraftJSON, softApprovedJSON string
	var updatedAt time.Time
	row := s.db.QueryRow(`SELECT workspace_path, fingerprint, user_hard_json, system_hard_json,
		soft_draft_json, soft_approved_json, soft_version, updated_at
		FROM workspace_profiles WHERE workspace_id = ?`, workspaceID)
	if err := row.Scan(&p.WorkspacePath, &p.Fingerprint, &userJSON, &systemJSON,
		&softDraftJSON, &softApprovedJSON, &p.SoftVersion, &updatedAt); err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: get profile %s: %w", workspaceID, err)
	}
	p.WorkspaceID = workspaceID
	p.UpdatedAt = updatedAt
	_ = json.Unmarshal([]byte(systemJSON), &p.SystemHard)
	if userJSON != "" && userJSON != "null" {
		var uh model.HardPolicy
		if err := json.Unmarshal([]byte(userJSON), &uh); err == nil {
			p.UserHard = &uh
		}
	}
	if softDraftJSON != "" && softDraftJSON != "null" {
		_ = json.Unmarshal([]byte(softDraftJSON), &p.SoftDraft)
	}
	if softApprovedJSON != "" && softApprovedJSON != "null" {
		_ = json.Unmarshal([]byte(softApprovedJSON), &p.SoftApproved)
	}
	p.EffectiveHard = MergeHard(p.SystemHard, p.UserHard)
	return p, nil
}

// ProposeSoftProfile scans the workspace for a soft-policy draft and stores
// it as the profile's soft_draft_json, leaving any existing soft_approved
// untouched until ApproveSoftProfile is called. Grounded on
// services/profile_service.py's propose_soft.
func (s *Store) ProposeSoftProfile(workspacePath, reason string) (model.Profile, error) {
	absPath, err := filepath.Abs(workspacePath)
	if err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: abs path: %w", err)
	}
	wsID := WorkspaceID(absPath)

	p, err := s.GetProfile(wsID)
	if err != nil {
		return model.Profile{}, err
	}
	draft := ProposeSoftDraft(absPath, p.Fingerprint)
	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: marshal soft draft: %w", err)
	}

	if _, err := s.db.Exec(`UPDATE workspace_profiles SET soft_draft_json = ?, updated_at = datetime('now')
		WHERE workspace_id = ?`, string(draftJSON), wsID); err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: store soft draft: %w", err)
	}
	payload, _ := json.Marshal(map[string]any{"reason": reason, "draft": draft})
	if _, err := s.db.Exec(`INSERT INTO profile_review_log (workspace_id, action, fingerprint, payload_json)
		VALUES (?, 'propose', ?, ?)`, wsID, p.Fingerprint, string(payload)); err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: audit log: %w", err)
	}

	p.SoftDraft = draft
	return p, nil
}

// ApproveSoftProfile promotes the current soft_draft to soft_approved,
// incrementing soft_version. A no-op (other than returning the profile
// unchanged) when there is no pending draft.
func (s *Store) ApproveSoftProfile(workspaceID string) (model.Profile, error) {
	p, err := s.GetProfile(workspaceID)
	if err != nil {
		return model.Profile{}, err
	}
	if p.SoftDraft == nil {
		return p, nil
	}
	approvedJSON, err := json.Marshal(p.SoftDraft)
	if err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: marshal soft approved: %w", err)
	}
	newVersion := p.SoftVersion + 1
	if _, err := s.db.Exec(`UPDATE workspace_profiles SET soft_approved_json = ?, soft_version = ?, updated_at = datetime('now')
		WHERE workspace_id = ?`, string(approvedJSON), newVersion, workspaceID); err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: store soft approved: %w", err)
	}
	payload, _ := json.Marshal(map[string]any{"draft": p.SoftDraft, "soft_version": newVersion})
	if _, err := s.db.Exec(`INSERT INTO profile_review_log (workspace_id, action, fingerprint, payload_json)
		VALUES (?, 'approve', ?, ?)`, workspaceID, p.Fingerprint, string(payload)); err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: audit log: %w", err)
	}
	p.SoftApproved = p.SoftDraft
	p.SoftVersion = newVersion
	return p, nil
}

// RejectSoftProfile clears a pending soft_draft without touching any
// previously approved soft policy.
func (s *Store) RejectSoftProfile(workspaceID string) (model.Profile, error) {
	p, err := s.GetProfile(workspaceID)
	if err != nil {
		return model.Profile{}, err
	}
	if _, err := s.db.Exec(`UPDATE workspace_profiles SET soft_draft_json = '', updated_at = datetime('now')
		WHERE workspace_id = ?`, workspaceID); err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: clear soft draft: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO profile_review_log (workspace_id, action, fingerprint, payload_json)
		VALUES (?, 'reject', ?, '')`, workspaceID, p.Fingerprint); err != nil {
		return model.Profile{}, fmt.Errorf("profilestore: audit log: %w", err)
	}
	p.SoftDraft = nil
	return p, nil
}
