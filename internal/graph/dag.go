// Code-graph cache and co-change learner.
//
// A small SQLite schema behind a thin Go type backs two different concerns:
// a fingerprint-keyed cache of a built FileGraph, and a co-change pattern
// store learned from successful multi-file runs.
package graph

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

const (
	cacheSchema = `
	CREATE TABLE IF NOT EXISTS graph_cache (
		fingerprint TEXT PRIMARY KEY,
		built_at DATETIME NOT NULL,
		edges_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cochange_patterns (
		id TEXT PRIMARY KEY,
		files_json TEXT NOT NULL,
		occurrence_count INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		pattern_type TEXT NOT NULL DEFAULT 'pair',
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS file_change_counts (
		file TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0
	);
	`
)

// Cache persists a built FileGraph keyed by workspace fingerprint, and
// hosts the co-change pattern store. Both tables live in one small SQLite
// database per workspace.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the code-graph cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("graph: open cache %s: %w", path, err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("graph: create schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error { return c.db.Close() }

// Invalidate drops the cached graph entry for fingerprint, forcing the next
// build to recompute rather than serve stale edges.
func (c *Cache) Invalidate(fingerprint string) error {
	_, err := c.db.Exec(`DELETE FROM graph_cache WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("graph: invalidate cache entry: %w", err)
	}
	return nil
}

// WatchAndInvalidate starts a SourceWatcher over srcDir that calls
// Invalidate(fingerprint) whenever source files settle after a change,
// so a long-lived caller (e.g. a server holding the cache open) never
// serves a graph built before the files it describes last changed.
func (c *Cache) WatchAndInvalidate(srcDir, fingerprint string, logger *slog.Logger) (*SourceWatcher, error) {
	sw, err := NewSourceWatcher(srcDir, func() {
		if err := c.Invalidate(fingerprint); err != nil && logger != nil {
			logger.Warn("graph: cache invalidation failed", "fingerprint", fingerprint, "error", err)
		}
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := sw.Start(); err != nil {
		return nil, err
	}
	return sw, nil
}

type edgeRecord struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Store persists g under fingerprint, overwriting any existing entry.
func (c *Cache) Store(fingerprint string, g *FileGraph) error {
	var edges []edgeRecord
	for from, tos := range g.forward {
		for _, to := range tos {
			edges = append(edges, edgeRecord{From: from, To: to})
		}
	}
	data, err := json.Marshal(edges)
	if err != nil {
		return fmt.Errorf("graph: marshal edges: %w", err)
	}
	_, err = c.db.Exec(`INSERT INTO graph_cache (fingerprint, built_at, edges_json) VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET built_at = excluded.built_at, edges_json = excluded.edges_json`,
		fingerprint, time.Now().UTC(), string(data))
	if err != nil {
		return fmt.Errorf("graph: store cache entry: %w", err)
	}
	return nil
}

// Load returns the cached FileGraph for fingerprint, or (nil, false) on miss.
func (c *Cache) Load(fingerprint string) (*FileGraph, bool, error) {
	var data string
	err := c.db.QueryRow(`SELECT edges_json FROM graph_cache WHERE fingerprint = ?`, fingerprint).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("graph: load cache entry: %w", err)
	}
	var edges []edgeRecord
	if err := json.Unmarshal([]byte(data), &edges); err != nil {
		return nil, false, fmt.Errorf("graph: unmarshal edges: %w", err)
	}
	g := NewFileGraph()
	for _, e := range edges {
		g.AddEdge(e.From, e.To)
	}
	return g, true, nil
}

// --- Co-change learner ---

// coChangeHalfLife is the confidence decay half-life: a pattern untouched
// for 30 days has its confidence halved.
const coChangeHalfLife = 30 * 24 * time.Hour

// MaxCoChangePatterns is the GC cap: patterns beyond this count, sorted by
// confidence, are dropped, as are any patterns whose decayed confidence
// falls below MinRetainConfidence.
const MaxCoChangePatterns = 500

// MinRetainConfidence is the floor below which a co-change pattern is GC'd.
const MinRetainConfidence = 0.1

func randomID(prefix string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(0x1000000000000))
	if err != nil {
		return "", fmt.Errorf("graph: generate id: %w", err)
	}
	return fmt.Sprintf("%s-%012x", prefix, n), nil
}

// CoChangeResult is one matched pattern from QueryCoChanges/SuggestMissingFiles.
type CoChangeResult struct {
	Files      []string
	Confidence float64
	LastSeen   time.Time
}

// RecordChangeSet accumulates co-change statistics for one successful run
// that modified the given files (≥2 files, else a no-op). Pair confidence is
// count_of_pair / max(count_of_either_file). Pairs below the retention
// threshold (≥2 occurrences AND ≥0.3 confidence) still persist a row — GC,
// not the write path, prunes by confidence so a pair can mature into
// retention as later runs reinforce it.
func (c *Cache) RecordChangeSet(ctx context.Context, files []string) error {
	if len(files) < 2 {
		return nil
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	now := time.Now().UTC()
	for _, f := range sorted {
		if _, err := c.db.ExecContext(ctx, `INSERT INTO file_change_counts (file, count) VALUES (?, 1)
			ON CONFLICT(file) DO UPDATE SET count = count + 1`, f); err != nil {
			return fmt.Errorf("graph: bump file change count: %w", err)
		}
	}

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if err := c.upsertPair(ctx, []string{sorted[i], sorted[j]}, now); err != nil {
				return err
			}
		}
	}
	return c.gc(ctx)
}

func (c *Cache) upsertPair(ctx context.Context, pair []string, now time.Time) error {
	filesJSON, _ := json.Marshal(pair)
	var id string
	var occ int
	err := c.db.QueryRowContext(ctx, `SELECT id, occurrence_count FROM cochange_patterns WHERE files_json = ?`,
		string(filesJSON)).Scan(&id, &occ)

	switch err {
	case sql.ErrNoRows:
		newID, genErr := randomID("cochange")
		if genErr != nil {
			return genErr
		}
		conf := c.computeConfidence(ctx, pair, 1)
		_, execErr := c.db.ExecContext(ctx, `INSERT INTO cochange_patterns
			(id, files_json, occurrence_count, confidence, pattern_type, first_seen, last_seen)
			VALUES (?, ?, 1, ?, 'pair', ?, ?)`, newID, string(filesJSON), conf, now, now)
		if execErr != nil {
			return fmt.Errorf("graph: insert cochange pattern: %w", execErr)
		}
		return nil
	case nil:
		occ++
		conf := c.computeConfidence(ctx, pair, occ)
		_, execErr := c.db.ExecContext(ctx, `UPDATE cochange_patterns SET
			occurrence_count = ?, confidence = ?, last_seen = ? WHERE id = ?`, occ, conf, now, id)
		if execErr != nil {
			return fmt.Errorf("graph: update cochange pattern: %w", execErr)
		}
		return nil
	default:
		return fmt.Errorf("graph: lookup cochange pattern: %w", err)
	}
}

func (c *Cache) computeConfidence(ctx context.Context, pair []string, pairCount int) float64 {
	maxEither := 1
	for _, f := range pair {
		var cnt int
		if err := c.db.QueryRowContext(ctx, `SELECT count FROM file_change_counts WHERE file = ?`, f).Scan(&cnt); err == nil {
			if cnt > maxEither {
				maxEither = cnt
			}
		}
	}
	return float64(pairCount) / float64(maxEither)
}

// decayedConfidence applies half-life decay from lastSeen to now.
func decayedConfidence(confidence float64, lastSeen, now time.Time) float64 {
	elapsed := now.Sub(lastSeen)
	if elapsed <= 0 {
		return confidence
	}
	halvings := float64(elapsed) / float64(coChangeHalfLife)
	return confidence * math.Pow(2, -halvings)
}

// QueryCoChanges returns the decayed confidence for each pattern involving
// file, restricted to those at or above minConf.
func (c *Cache) QueryCoChanges(ctx context.Context, file string, minConf float64) ([]CoChangeResult, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT files_json, confidence, last_seen FROM cochange_patterns`)
	if err != nil {
		return nil, fmt.Errorf("graph: query cochanges: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var out []CoChangeResult
	for rows.Next() {
		var filesJSON string
		var confidence float64
		var lastSeen time.Time
		if err := rows.Scan(&filesJSON, &confidence, &lastSeen); err != nil {
			return nil, fmt.Errorf("graph: scan cochange row: %w", err)
		}
		var files []string
		if err := json.Unmarshal([]byte(filesJSON), &files); err != nil {
			continue
		}
		if !containsFile(files, file) {
			continue
		}
		decayed := decayedConfidence(confidence, lastSeen, now)
		if decayed < minConf {
			continue
		}
		out = append(out, CoChangeResult{Files: files, Confidence: decayed, LastSeen: lastSeen})
	}
	return out, rows.Err()
}

func containsFile(files []string, target string) bool {
	for _, f := range files {
		if f == target {
			return true
		}
	}
	return false
}

// SuggestMissingFiles proposes files that are frequent co-changers (≥minConf,
// default 0.7) of any file in modified, excluding files already in modified.
func (c *Cache) SuggestMissingFiles(ctx context.Context, modified []string, minConf float64) ([]string, error) {
	if minConf <= 0 {
		minConf = 0.7
	}
	modifiedSet := make(map[string]struct{}, len(modified))
	for _, f := range modified {
		modifiedSet[f] = struct{}{}
	}

	suggested := make(map[string]struct{})
	for _, f := range modified {
		results, err := c.QueryCoChanges(ctx, f, minConf)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			for _, cand := range r.Files {
				if cand == f {
					continue
				}
				if _, already := modifiedSet[cand]; already {
					continue
				}
				suggested[cand] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(suggested))
	for f := range suggested {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// gc recomputes each pattern's confidence from the current file change
// counts, halves it by age, drops entries below MinRetainConfidence, and
// caps the table at MaxCoChangePatterns (keeping highest confidence).
func (c *Cache) gc(ctx context.Context) error {
	now := time.Now().UTC()
	// A file's count can grow through other pairs without this pair being
	// upserted, so the stored confidence is refreshed before it is judged.
	if _, err := c.db.ExecContext(ctx, `UPDATE cochange_patterns SET confidence = CAST(occurrence_count AS REAL) / MAX(1,
		COALESCE((SELECT count FROM file_change_counts WHERE file = json_extract(cochange_patterns.files_json, '$[0]')), 1),
		COALESCE((SELECT count FROM file_change_counts WHERE file = json_extract(cochange_patterns.files_json, '$[1]')), 1))`); err != nil {
		return fmt.Errorf("graph: gc refresh confidence: %w", err)
	}
	rows, err := c.db.QueryContext(ctx, `SELECT id, confidence, last_seen FROM cochange_patterns`)
	if err != nil {
		return fmt.Errorf("graph: gc query: %w", err)
	}
	type row struct {
		id         string
		confidence float64
	}
	var toDrop []string
	var kept []row
	for rows.Next() {
		var id string
		var confidence float64
		var lastSeen time.Time
		if err := rows.Scan(&id, &confidence, &lastSeen); err != nil {
			rows.Close()
			return fmt.Errorf("graph: gc scan: %w", err)
		}
		decayed := decayedConfidence(confidence, lastSeen, now)
		if decayed < MinRetainConfidence {
			toDrop = append(toDrop, id)
			continue
		}
		kept = append(kept, row{id: id, confidence: decayed})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].confidence > kept[j].confidence })
	if len(kept) > MaxCoChangePatterns {
		for _, r := range kept[MaxCoChangePatterns:] {
			toDrop = append(toDrop, r.id)
		}
	}

	for _, id := range toDrop {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM cochange_patterns WHERE id = ?`, id); err != nil {
			return fmt.Errorf("graph: gc delete: %w", err)
		}
	}
	return nil
}
