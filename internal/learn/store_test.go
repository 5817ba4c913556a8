package learn

import (
	"fmt"
	"testing"
	"time"

	"github.com/aipl-dev/aipl/internal/model"
)

func TestStoreAll_FiltersBelowMinConfidence(t *testing.T) {
	dir := t.TempDir()
	cands := []Candidate{
		{Kind: KindHint, Key: "a", Payload: "low", Confidence: 0.05},
		{Kind: KindHint, Key: "b", Payload: "high", Confidence: 0.8},
	}
	if err := StoreAll(dir, cands, 0.2); err != nil {
		t.Fatalf("StoreAll: %v", err)
	}
	entries, err := loadEntries(dir, KindHint)
	if err != nil {
		t.Fatalf("loadEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "b" {
		t.Fatalf("expected only the high-confidence candidate stored, got %+v", entries)
	}
}

func TestStoreAll_DedupBumpsConfidenceInsteadOfDuplicating(t *testing.T) {
	dir := t.TempDir()
	cand := Candidate{Kind: KindLesson, Key: "x", Payload: "re-check the thing", Confidence: 0.4}
	if err := StoreAll(dir, []Candidate{cand}, 0.1); err != nil {
		t.Fatalf("StoreAll first: %v", err)
	}
	if err := StoreAll(dir, []Candidate{cand}, 0.1); err != nil {
		t.Fatalf("StoreAll second: %v", err)
	}
	entries, err := loadEntries(dir, KindLesson)
	if err != nil {
		t.Fatalf("loadEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected dedup to keep exactly one entry, got %d", len(entries))
	}
	if entries[0].Confidence <= 0.4 {
		t.Fatalf("expected repeat observation to raise confidence above 0.4, got %f", entries[0].Confidence)
	}
}

func TestStoreAll_PersistsAcrossKindsSeparately(t *testing.T) {
	dir := t.TempDir()
	cands := []Candidate{
		{Kind: KindSignature, Key: "s1", Payload: "sig", Confidence: 0.5},
		{Kind: KindHint, Key: "h1", Payload: "hint", Confidence: 0.5},
	}
	if err := StoreAll(dir, cands, 0.1); err != nil {
		t.Fatalf("StoreAll: %v", err)
	}
	if _, err := loadEntries(dir, KindSignature); err != nil {
		t.Fatalf("signatures file: %v", err)
	}
	if _, err := loadEntries(dir, KindHint); err != nil {
		t.Fatalf("hints file: %v", err)
	}
	if _, err := loadEntries(dir, KindLesson); err != nil {
		t.Fatalf("lessons file should load empty without error: %v", err)
	}
}

func TestDecayedConfidence_HalvesAfterOneHalfLife(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-halfLife)
	got := decayedConfidence(1.0, past, now)
	if got < 0.49 || got > 0.51 {
		t.Fatalf("expected confidence to roughly halve after one half-life, got %f", got)
	}
}

func TestDecayedConfidence_UnchangedWithNoElapsedTime(t *testing.T) {
	now := time.Now().UTC()
	if got := decayedConfidence(0.7, now, now); got != 0.7 {
		t.Fatalf("expected unchanged confidence with zero elapsed time, got %f", got)
	}
}

func TestGC_DropsEntriesBelowMinRetainConfidence(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().UTC().Add(-10 * halfLife) // decays to ~1/1024 of original
	entries := []model.LearnedEntry{
		{Kind: KindHint, Key: "stale", Payload: "old", Confidence: 0.9, CreatedTS: old, UpdatedTS: old},
	}
	if err := saveEntries(dir, KindHint, entries); err != nil {
		t.Fatalf("saveEntries: %v", err)
	}
	if err := GC(dir, time.Now().UTC()); err != nil {
		t.Fatalf("GC: %v", err)
	}
	kept, err := loadEntries(dir, KindHint)
	if err != nil {
		t.Fatalf("loadEntries: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("expected the stale entry to be GC'd, got %+v", kept)
	}
}

func TestGC_CapsEntriesPerKindKeepingHighestConfidence(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	var entries []model.LearnedEntry
	for i := 0; i < MaxEntriesPerKind+10; i++ {
		entries = append(entries, model.LearnedEntry{
			Kind:       KindSignature,
			Key:        fmt.Sprintf("k-%d", i),
			Payload:    "p",
			Confidence: 0.1 + float64(i%100)/200.0,
			CreatedTS:  now,
			UpdatedTS:  now,
		})
	}
	if err := saveEntries(dir, KindSignature, entries); err != nil {
		t.Fatalf("saveEntries: %v", err)
	}
	if err := GC(dir, now); err != nil {
		t.Fatalf("GC: %v", err)
	}
	kept, err := loadEntries(dir, KindSignature)
	if err != nil {
		t.Fatalf("loadEntries: %v", err)
	}
	if len(kept) != MaxEntriesPerKind {
		t.Fatalf("expected GC to cap at %d entries, got %d", MaxEntriesPerKind, len(kept))
	}
	for i := 1; i < len(kept); i++ {
		if kept[i].Confidence > kept[i-1].Confidence {
			t.Fatalf("expected entries sorted by descending confidence after GC")
		}
	}
}
