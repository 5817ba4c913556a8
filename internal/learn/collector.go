package learn

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// Candidate kinds, matching model.LearnedEntry.Kind.
const (
	KindSignature = "signature"
	KindHint      = "hint"
	KindLesson    = "lesson"
)

// Candidate is one learned-entry proposal produced from a single diagnosis,
// not yet merged into the on-disk store.
type Candidate struct {
	Kind       string
	Key        string
	Payload    string
	Confidence float64
}

// FromDiagnosis converts one round's diagnosis into the three kinds of
// learning candidates. touchedFiles are the paths the failing round
// attempted to write, used to turn concrete paths into placeholders so the
// resulting signature generalizes across runs instead of pinning to one file.
func FromDiagnosis(d *Diagnosis, touchedFiles []string) []Candidate {
	if d == nil {
		return nil
	}
	var out []Candidate
	if sig := signatureCandidate(d, touchedFiles); sig != nil {
		out = append(out, *sig)
	}
	if hint := hintCandidate(d); hint != nil {
		out = append(out, *hint)
	}
	if lesson := lessonCandidate(d); lesson != nil {
		out = append(out, *lesson)
	}
	return out
}

// signatureCandidate generalizes the diagnosis summary into a categorized
// error pattern, replacing any touched file path with a `<path>` placeholder
// so the same signature matches future failures in other files.
func signatureCandidate(d *Diagnosis, touchedFiles []string) *Candidate {
	pattern := d.Summary
	for _, f := range touchedFiles {
		if f == "" {
			continue
		}
		pattern = strings.ReplaceAll(pattern, f, "<path>")
		pattern = strings.ReplaceAll(pattern, filepath.Base(f), "<path>")
	}
	payload := fmt.Sprintf("%s: %s", d.Category, pattern)
	return &Candidate{
		Kind:       KindSignature,
		Key:        canonicalKey(KindSignature, string(d.Category), pattern),
		Payload:    payload,
		Confidence: initialConfidence(d.Category),
	}
}

// hintCandidate proposes a trigger->fix string: what was observed, and the
// concrete next step a fresh round should try.
func hintCandidate(d *Diagnosis) *Candidate {
	fix := fixGuidanceFor(d.Category)
	if fix == "" {
		return nil
	}
	payload := fmt.Sprintf("when %s, %s", strings.ToLower(triggerFor(d)), fix)
	return &Candidate{
		Kind:       KindHint,
		Key:        canonicalKey(KindHint, string(d.Category), fix),
		Payload:    payload,
		Confidence: initialConfidence(d.Category),
	}
}

// lessonCandidate proposes prevention guidance tagged by category, meant to
// be surfaced before a task starts rather than after it fails.
func lessonCandidate(d *Diagnosis) *Candidate {
	prevention := preventionFor(d.Category)
	if prevention == "" {
		return nil
	}
	payload := fmt.Sprintf("[%s] %s", d.Category, prevention)
	return &Candidate{
		Kind:       KindLesson,
		Key:        canonicalKey(KindLesson, string(d.Category), prevention),
		Payload:    payload,
		Confidence: initialConfidence(d.Category),
	}
}

func triggerFor(d *Diagnosis) string {
	if d.RootCause != "" {
		return d.RootCause
	}
	return d.Summary
}

func fixGuidanceFor(cat Category) string {
	switch cat {
	case CategorySyntax:
		return "re-read the file before editing and ensure braces/parens balance before the next write"
	case CategoryDependency:
		return "add the missing import or dependency declaration before retrying the change"
	case CategoryPermission:
		return "restrict writes to paths allowed by policy and avoid denied prefixes"
	case CategoryTimeout:
		return "split the change into smaller steps or raise the command timeout if legitimately slow"
	case CategoryEnvironment:
		return "check the allowed command list covers the tool and that it is installed in the sandbox"
	case CategoryRuntime:
		return "add a nil/bounds check around the failing access before resubmitting"
	case CategoryLogic:
		return "re-read the failing assertion and adjust the implementation, not the test"
	default:
		return ""
	}
}

func preventionFor(cat Category) string {
	switch cat {
	case CategorySyntax:
		return "validate generated code compiles before declaring a round done"
	case CategoryDependency:
		return "confirm all referenced packages are declared before first use"
	case CategoryPermission:
		return "check target paths against the write policy before attempting a write"
	case CategoryTimeout:
		return "prefer incremental changes over large rewrites under a tight command timeout"
	case CategoryEnvironment:
		return "verify required tools are present in the allowed command list up front"
	case CategoryRuntime:
		return "guard external input and slice access defensively"
	case CategoryLogic:
		return "re-derive expected behavior from the check before changing code"
	default:
		return ""
	}
}

// initialConfidence seeds a new candidate's confidence by how specific its
// category is: categories backed by a structural signal (syntax, dependency,
// permission, timeout) start higher than the catch-all unknown bucket.
func initialConfidence(cat Category) float64 {
	if cat == CategoryUnknown {
		return 0.3
	}
	return 0.6
}

// canonicalKey builds a stable dedup key from a kind and its identifying
// fields, so StoreAll can merge repeat candidates instead of accumulating
// near-duplicates.
func canonicalKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:8])
}
