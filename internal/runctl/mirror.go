package runctl

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Mirror is the per-workspace SQLite shadow of run/plan status, for external
// UIs per "pure shadow, never the authority" rule: writes are per-row
// upserts keyed on plan_id/run_id, last write wins.
//
// Grounded on internal/store/store.go's Open (WAL + busy_timeout pragmas)
// and its per-row upsert style (e.g. UpsertClaimLease).
type Mirror struct {
	db *sql.DB
}

const mirrorSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	status TEXT NOT NULL,
	rounds_used INTEGER NOT NULL DEFAULT 0,
	updated_ts DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS plans (
	plan_id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	goal TEXT NOT NULL,
	updated_ts DATETIME NOT NULL
);
`

// OpenMirror opens (creating if needed) the SQLite mirror at dbPath.
func OpenMirror(dbPath string) (*Mirror, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("runctl: open mirror db: %w", err)
	}
	if _, err := db.Exec(mirrorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runctl: migrate mirror db: %w", err)
	}
	return &Mirror{db: db}, nil
}

func (m *Mirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// UpsertRun mirrors one run's current status. Last write wins.
func (m *Mirror) UpsertRun(meta *Meta) error {
	if m == nil {
		return nil
	}
	_, err := m.db.Exec(`
		INSERT INTO runs (run_id, plan_id, task_id, workspace_id, status, rounds_used, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET status=excluded.status, rounds_used=excluded.rounds_used, updated_ts=excluded.updated_ts
	`, meta.ID, meta.PlanID, meta.TaskID, meta.WorkspaceID, string(meta.Status), meta.RoundsUsed, meta.UpdatedTS)
	if err != nil {
		return fmt.Errorf("runctl: upsert run mirror: %w", err)
	}
	return nil
}

// UpsertPlan mirrors a plan's identity row.
func (m *Mirror) UpsertPlan(planID, workspaceID, goal string, updatedTS interface{}) error {
	if m == nil {
		return nil
	}
	_, err := m.db.Exec(`
		INSERT INTO plans (plan_id, workspace_id, goal, updated_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET goal=excluded.goal, updated_ts=excluded.updated_ts
	`, planID, workspaceID, goal, updatedTS)
	if err != nil {
		return fmt.Errorf("runctl: upsert plan mirror: %w", err)
	}
	return nil
}

// mirrorStatus is a best-effort mirror write; a shadow-table failure must
// never fail the run it is shadowing.
func mirrorStatus(m *Mirror, meta *Meta) {
	if m == nil {
		return
	}
	_ = m.UpsertRun(meta)
}
