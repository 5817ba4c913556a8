package learn

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReport_WritesJSONAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	d := Diagnosis{
		Category:            CategoryTimeout,
		Summary:             "context deadline exceeded",
		RootCause:           "a command or the assistant exceeded its time budget",
		ContributingFactors: []string{"environment: command not found"},
		Details:             "running check\ncontext deadline exceeded\n",
	}
	if err := WriteReport(dir, 2, "step-1", d); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	jsonData, err := os.ReadFile(filepath.Join(dir, "diagnosis.json"))
	if err != nil {
		t.Fatalf("read diagnosis.json: %v", err)
	}
	if !strings.Contains(string(jsonData), "timeout") {
		t.Fatalf("expected diagnosis.json to contain the category, got %s", jsonData)
	}

	mdData, err := os.ReadFile(filepath.Join(dir, "diagnosis.md"))
	if err != nil {
		t.Fatalf("read diagnosis.md: %v", err)
	}
	md := string(mdData)
	if !strings.Contains(md, "step-1") {
		t.Fatalf("expected markdown to mention the step id, got %s", md)
	}
	if !strings.Contains(md, "## Root cause") {
		t.Fatalf("expected a root cause section, got %s", md)
	}
	if !strings.Contains(md, "## Contributing factors") {
		t.Fatalf("expected a contributing factors section, got %s", md)
	}
}

func TestWriteReport_OmitsContributingFactorsSectionWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	d := Diagnosis{Category: CategoryUnknown, Summary: "mystery", RootCause: "failure category could not be determined from the output"}
	if err := WriteReport(dir, 1, "step-2", d); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	mdData, err := os.ReadFile(filepath.Join(dir, "diagnosis.md"))
	if err != nil {
		t.Fatalf("read diagnosis.md: %v", err)
	}
	if strings.Contains(string(mdData), "## Contributing factors") {
		t.Fatalf("expected no contributing factors section when there are none")
	}
}
