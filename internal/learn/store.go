package learn

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
)

// halfLife is the confidence decay half-life shared with the co-change
// learner: an entry untouched for 30 days has its confidence halved.
// Grounded on internal/graph/dag.go's coChangeHalfLife/decayedConfidence.
const halfLife = 30 * 24 * time.Hour

// MinRetainConfidence is the floor below which a learned entry is GC'd.
const MinRetainConfidence = 0.1

// MaxEntriesPerKind is the GC cap per kind, keeping the highest-confidence
// entries when the cap is exceeded.
const MaxEntriesPerKind = 500

func fileFor(learnedDir, kind string) string {
	return filepath.Join(learnedDir, kind+"s.json")
}

func loadEntries(learnedDir, kind string) ([]model.LearnedEntry, error) {
	path := fileFor(learnedDir, kind)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("learn: read %s: %w", kind, err)
	}
	var entries []model.LearnedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("learn: parse %s: %w", kind, err)
	}
	return entries, nil
}

// ListEntries exposes loadEntries to external callers (the CLI's
// lessons/hints/signatures inspection and delete commands).
func ListEntries(learnedDir, kind string) ([]model.LearnedEntry, error) {
	return loadEntries(learnedDir, kind)
}

// DeleteEntry removes the entry with the given key from kind's file, if
// present, and rewrites the file.
func DeleteEntry(learnedDir, kind, key string) error {
	entries, err := loadEntries(learnedDir, kind)
	if err != nil {
		return err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return saveEntries(learnedDir, kind, out)
}

// ClearEntries empties kind's learned file entirely.
func ClearEntries(learnedDir, kind string) error {
	return saveEntries(learnedDir, kind, nil)
}

func saveEntries(learnedDir, kind string, entries []model.LearnedEntry) error {
	if err := os.MkdirAll(learnedDir, 0o755); err != nil {
		return fmt.Errorf("learn: create learned dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("learn: marshal %s: %w", kind, err)
	}
	return writeAtomic(fileFor(learnedDir, kind), data)
}

// StoreAll merges candidates at or above minConfidence into learnedDir's
// per-kind files, deduplicated by canonical key: a repeat candidate bumps
// the existing entry's confidence (capped at 1.0) and refreshes its
// updated_ts rather than creating a duplicate row.
func StoreAll(learnedDir string, candidates []Candidate, minConfidence float64) error {
	byKind := map[string][]Candidate{}
	for _, c := range candidates {
		if c.Confidence < minConfidence {
			continue
		}
		byKind[c.Kind] = append(byKind[c.Kind], c)
	}

	now := time.Now().UTC()
	for kind, cands := range byKind {
		existing, err := loadEntries(learnedDir, kind)
		if err != nil {
			return err
		}
		byKey := make(map[string]int, len(existing))
		for i, e := range existing {
			byKey[e.Key] = i
		}
		for _, c := range cands {
			if idx, ok := byKey[c.Key]; ok {
				e := &existing[idx]
				e.Confidence = math.Min(1.0, e.Confidence+c.Confidence*0.25)
				e.UpdatedTS = now
				continue
			}
			existing = append(existing, model.LearnedEntry{
				Kind:       c.Kind,
				Key:        c.Key,
				Payload:    c.Payload,
				Confidence: c.Confidence,
				CreatedTS:  now,
				UpdatedTS:  now,
			})
			byKey[c.Key] = len(existing) - 1
		}
		if err := saveEntries(learnedDir, kind, existing); err != nil {
			return err
		}
	}
	return nil
}

// decayedConfidence applies half-life decay from updatedTS to now, mirroring
// internal/graph/dag.go's co-change decay formula.
func decayedConfidence(confidence float64, updatedTS, now time.Time) float64 {
	elapsed := now.Sub(updatedTS)
	if elapsed <= 0 {
		return confidence
	}
	halvings := float64(elapsed) / float64(halfLife)
	return confidence * math.Pow(2, -halvings)
}

// GC applies age-based decay to every kind's entries, drops any that fall
// below MinRetainConfidence, and caps each kind at MaxEntriesPerKind
// (keeping the highest-confidence survivors).
func GC(learnedDir string, now time.Time) error {
	for _, kind := range []string{KindSignature, KindHint, KindLesson} {
		entries, err := loadEntries(learnedDir, kind)
		if err != nil {
			return err
		}
		if entries == nil {
			continue
		}

		kept := entries[:0]
		for _, e := range entries {
			e.Confidence = decayedConfidence(e.Confidence, e.UpdatedTS, now)
			if e.Confidence < MinRetainConfidence {
				continue
			}
			kept = append(kept, e)
		}

		sort.Slice(kept, func(i, j int) bool { return kept[i].Confidence > kept[j].Confidence })
		if len(kept) > MaxEntriesPerKind {
			kept = kept[:MaxEntriesPerKind]
		}

		if err := saveEntries(learnedDir, kind, kept); err != nil {
			return err
		}
	}
	return nil
}
