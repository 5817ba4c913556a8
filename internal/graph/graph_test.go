package graph

import "testing"

func TestRelatedFiles_HopLimitMonotonic(t *testing.T) {
	g := NewFileGraph()
	g.AddEdge("a.go", "b.go")
	g.AddEdge("b.go", "c.go")
	g.AddEdge("c.go", "d.go")

	one := g.RelatedFiles([]string{"a.go"}, 1)
	two := g.RelatedFiles([]string{"a.go"}, 2)

	if len(one) != 1 || one[0] != "b.go" {
		t.Fatalf("expected [b.go] at hop 1, got %v", one)
	}
	if len(two) != 2 {
		t.Fatalf("expected 2 files at hop 2, got %v", two)
	}
	for _, f := range two {
		if f == "a.go" {
			t.Fatal("RelatedFiles must never include a seed path")
		}
	}
}

func TestRelatedFiles_ZeroHopsEmpty(t *testing.T) {
	g := NewFileGraph()
	g.AddEdge("a.go", "b.go")
	if got := g.RelatedFiles([]string{"a.go"}, 0); got != nil {
		t.Fatalf("expected nil for maxHops=0, got %v", got)
	}
}

func TestRelatedFiles_ReverseEdgesFollowed(t *testing.T) {
	g := NewFileGraph()
	g.AddEdge("importer.go", "target.go")
	got := g.RelatedFiles([]string{"target.go"}, 1)
	if len(got) != 1 || got[0] != "importer.go" {
		t.Fatalf("expected reverse edge to surface importer.go, got %v", got)
	}
}

func TestNodeCount(t *testing.T) {
	g := NewFileGraph()
	if g.NodeCount() != 0 {
		t.Fatal("expected empty graph to have zero nodes")
	}
	g.AddNode("solo.go")
	g.AddEdge("a.go", "b.go")
	if got := g.NodeCount(); got != 3 {
		t.Fatalf("expected 3 nodes, got %d", got)
	}
}

func TestIsExcludedDir(t *testing.T) {
	if !IsExcludedDir("node_modules") || !IsExcludedDir(".git") {
		t.Fatal("expected common vendor/vcs dirs to be excluded")
	}
	if IsExcludedDir("internal") {
		t.Fatal("did not expect a normal source dir to be excluded")
	}
}

func TestTestsForFiles(t *testing.T) {
	g := NewFileGraph()
	g.AddNode("pkg/widget.go")
	g.AddNode("pkg/widget_test.go")
	g.AddNode("app/models.py")
	g.AddNode("app/test_models.py")
	g.AddNode("src/Thing.java")
	g.AddNode("src/ThingTest.java")
	g.AddNode("web/button.ts")
	g.AddNode("web/button.test.ts")
	g.AddNode("web/orphan.rb")

	got := g.TestsForFiles([]string{
		"pkg/widget.go", "app/models.py", "src/Thing.java", "web/button.ts", "web/orphan.rb",
	})

	if want := []string{"pkg/widget_test.go"}; !equalStrings(got["pkg/widget.go"], want) {
		t.Errorf("go: got %v, want %v", got["pkg/widget.go"], want)
	}
	if want := []string{"app/test_models.py"}; !equalStrings(got["app/models.py"], want) {
		t.Errorf("python: got %v, want %v", got["app/models.py"], want)
	}
	if want := []string{"src/ThingTest.java"}; !equalStrings(got["src/Thing.java"], want) {
		t.Errorf("java: got %v, want %v", got["src/Thing.java"], want)
	}
	if want := []string{"web/button.test.ts"}; !equalStrings(got["web/button.ts"], want) {
		t.Errorf("ts: got %v, want %v", got["web/button.ts"], want)
	}
	if _, ok := got["web/orphan.rb"]; ok {
		t.Error("expected no test association for an unrecognized language")
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
