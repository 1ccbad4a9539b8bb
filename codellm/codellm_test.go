package codellm_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sokinpui/code-llm/codellm"
)

func TestApply(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	const content = "Here:\n\n```diff\n--- /dev/null\n+++ b/web/src/index.js\n@@ -0,0 +1 @@\n+console.log(\"hello world\");\n```\n\n" +
		"```diff\n--- a/main.go\n+++ b/main.go\n@@ -3 +3 @@\n-func main() {}\n+func main() { println() }\n```\n\n" +
		"```diff\n--- a/notes.txt\n+++ b/notes.txt\n@@ -1 +1 @@\n-a\n+b\n```\n"

	summary, err := codellm.Apply(content, codellm.Config{Root: root, NoArchive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(summary["Created"]) != 1 || summary["Created"][0] != "web/src/index.js" {
		t.Fatalf("expected web/src/index.js to be created, got %v", summary["Created"])
	}
	if len(summary["Modified"]) != 1 || summary["Modified"][0] != "main.go" {
		t.Fatalf("expected main.go to be modified, got %v", summary["Modified"])
	}
	if len(summary["Failed"]) != 1 || summary["Failed"][0] != "notes.txt" {
		t.Fatalf("expected notes.txt to fail, got %v", summary["Failed"])
	}

	got, err := os.ReadFile(filepath.Join(root, "web", "src", "index.js"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "console.log(\"hello world\");\n" {
		t.Errorf("index.js = %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, ".code-llm", "sessions")); !os.IsNotExist(err) {
		t.Errorf("expected no session archive, stat returned %v", err)
	}
}

func TestFix(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("a\nb\nc\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fixed, err := codellm.Fix("--- a/f.txt\n+++ b/f.txt\n@@ -9,2 +9,2 @@\n b\n-c\n+C\n", codellm.Config{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	want := "--- a/f.txt\n+++ b/f.txt\n@@ -2,2 +2,2 @@\n b\n-c\n+C\n"
	if fixed != want {
		t.Errorf("Fix() mismatch:\ngot:\n%s\nwant:\n%s", fixed, want)
	}

	if _, err := codellm.Fix("--- a/f.txt\n+++ b/f.txt\n@@ -1 +1 @@\n-zzz\n+y\n", codellm.Config{Root: root}); err == nil {
		t.Error("expected an error for a hunk that matches nothing")
	}
}
