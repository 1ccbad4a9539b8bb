package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/code-llm/internal/parser"
	"github.com/sokinpui/code-llm/internal/patcher"
	"github.com/sokinpui/code-llm/internal/state"
)

func setup(t *testing.T, files map[string]string) (string, *Session) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	s, err := NewSession(Options{Root: root, KnownPaths: []string{"src/util.go", "main.go"}})
	require.NoError(t, err)
	return root, s
}

func extract(t *testing.T, text string) []parser.ParsedDiff {
	t.Helper()
	diffs, errs := parser.Extract(text)
	require.Empty(t, errs)
	return diffs
}

func read(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name))
	require.NoError(t, err)
	return string(data)
}

const twoHunks = "--- a/f.txt\n+++ b/f.txt\n" +
	"@@ -1,2 +1,3 @@\n a\n+a2\n b\n" +
	"@@ -5,2 +6,2 @@\n e\n-f\n+F\n"

func TestReviewAcceptAll(t *testing.T) {
	root, s := setup(t, map[string]string{"f.txt": "a\nb\nc\nd\ne\nf\n"})

	res, err := s.Review(context.Background(), extract(t, twoHunks), AutoSource{Decision: Accept()})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)

	f := res.Files[0]
	assert.Equal(t, StatusApplied, f.Status)
	assert.Equal(t, 2, f.Accepted())
	assert.Equal(t, "a\na2\nb\nc\nd\ne\nF\n", read(t, root, "f.txt"))
	assert.Equal(t, []string{"f.txt"}, res.Written())
	assert.NotEmpty(t, res.ID)
}

func TestReviewRejectAllLeavesFileUntouched(t *testing.T) {
	original := "a\nb\nc\nd\ne\nf\n"
	root, s := setup(t, map[string]string{"f.txt": original})
	info, err := os.Stat(filepath.Join(root, "f.txt"))
	require.NoError(t, err)

	res, err := s.Review(context.Background(), extract(t, twoHunks), AutoSource{Decision: Reject()})
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, res.Files[0].Status)
	assert.Equal(t, original, read(t, root, "f.txt"))
	after, err := os.Stat(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
	assert.Empty(t, res.Written())
}

func TestReviewRejectFirstAcceptSecond(t *testing.T) {
	root, s := setup(t, map[string]string{"f.txt": "a\nb\nc\nd\ne\nf\n"})
	src := &ScriptedSource{Decisions: []Decision{Reject(), Accept()}}

	res, err := s.Review(context.Background(), extract(t, twoHunks), src)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Files[0].Status)
	assert.Equal(t, "a\nb\nc\nd\ne\nF\n", read(t, root, "f.txt"))
	require.Len(t, src.Prompts, 2)
	assert.Equal(t, patcher.StatusApplied, src.Prompts[1].Preview.Status)
	assert.Zero(t, src.Prompts[1].Preview.Offset, "the second hunk is previewed against the unshifted original")
}

func TestReviewModify(t *testing.T) {
	root, s := setup(t, map[string]string{"f.txt": "a\nb\nc\n"})
	diffs := extract(t, "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n")

	res, err := s.Review(context.Background(), diffs, &ScriptedSource{Decisions: []Decision{Modify("X\nY")}})
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, res.Files[0].Status)
	assert.Equal(t, "a\nX\nY\nc\n", read(t, root, "f.txt"))
	assert.Equal(t, []string{"a", "X", "Y", "c"}, res.Files[0].Hunks[0].Hunk.NewText())
}

func TestReviewAcceptedHunkConflicts(t *testing.T) {
	root, s := setup(t, map[string]string{"f.txt": "a\nb\nc\n", "g.txt": "1\n"})
	diffs := extract(t, "--- a/f.txt\n+++ b/f.txt\n@@ -1,2 +1,2 @@\n a\n-zzz\n+Z\n"+
		"--- a/g.txt\n+++ b/g.txt\n@@ -1 +1 @@\n-1\n+one\n")

	res, err := s.Review(context.Background(), diffs, AutoSource{Decision: Accept()})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	assert.Equal(t, StatusConflict, res.Files[0].Status)
	require.NotNil(t, res.Files[0].Conflict)
	assert.Equal(t, "a\nb\nc\n", read(t, root, "f.txt"))
	assert.Equal(t, StatusApplied, res.Files[1].Status, "a conflict does not stop other files")
	assert.Equal(t, "one\n", read(t, root, "g.txt"))
}

func TestReviewMergesBlocksForSamePath(t *testing.T) {
	root, s := setup(t, map[string]string{"f.txt": "a\nb\nc\nd\ne\nf\n"})
	text := "```diff\n--- a/f.txt\n+++ b/f.txt\n@@ -5,2 +5,2 @@\n e\n-f\n+F\n```\n" +
		"and\n```diff\n--- a/f.txt\n+++ b/f.txt\n@@ -1,2 +1,3 @@\n a\n+a2\n b\n```\n"
	src := &ScriptedSource{Decisions: []Decision{Accept(), Accept()}}

	res, err := s.Review(context.Background(), extract(t, text), src)
	require.NoError(t, err)

	require.Len(t, res.Files, 1)
	assert.Equal(t, 5, src.Prompts[0].Hunk.OldStart, "hunks are presented in appearance order")
	assert.Equal(t, "a\na2\nb\nc\nd\ne\nF\n", read(t, root, "f.txt"))
}

func TestReviewFileLevelActions(t *testing.T) {
	files := map[string]string{"f.txt": "a\nb\nc\nd\ne\nf\n", "g.txt": "1\n"}
	gDiff := "--- a/g.txt\n+++ b/g.txt\n@@ -1 +1 @@\n-1\n+one\n"

	t.Run("accept rest of file", func(t *testing.T) {
		root, s := setup(t, files)
		src := &ScriptedSource{Decisions: []Decision{{Action: ActionAcceptFile}, Reject()}}
		res, err := s.Review(context.Background(), extract(t, twoHunks+gDiff), src)
		require.NoError(t, err)
		assert.Len(t, src.Prompts, 2, "the second hunk of f.txt is not asked about")
		assert.Equal(t, "a\na2\nb\nc\nd\ne\nF\n", read(t, root, "f.txt"))
		assert.Equal(t, StatusRejected, res.Files[1].Status)
	})

	t.Run("reject rest of file", func(t *testing.T) {
		root, s := setup(t, files)
		src := &ScriptedSource{Decisions: []Decision{{Action: ActionRejectFile}, Accept()}}
		_, err := s.Review(context.Background(), extract(t, twoHunks+gDiff), src)
		require.NoError(t, err)
		assert.Len(t, src.Prompts, 2)
		assert.Equal(t, files["f.txt"], read(t, root, "f.txt"))
		assert.Equal(t, "one\n", read(t, root, "g.txt"))
	})

	t.Run("quit", func(t *testing.T) {
		root, s := setup(t, files)
		src := &ScriptedSource{Decisions: []Decision{Accept(), {Action: ActionQuit}}}
		res, err := s.Review(context.Background(), extract(t, twoHunks+gDiff), src)
		require.NoError(t, err)
		assert.Len(t, src.Prompts, 2)
		assert.Equal(t, "a\na2\nb\nc\nd\ne\nf\n", read(t, root, "f.txt"), "hunks accepted before quitting are kept")
		assert.Equal(t, StatusRejected, res.Files[1].Status)
		assert.Equal(t, "1\n", read(t, root, "g.txt"))
	})
}

func TestReviewDecisionSourceFailure(t *testing.T) {
	root, s := setup(t, map[string]string{"f.txt": "a\nb\nc\nd\ne\nf\n"})
	boom := errors.New("terminal closed")
	calls := 0
	src := DecisionFunc(func(context.Context, Prompt) (Decision, error) {
		calls++
		if calls == 2 {
			return Decision{}, boom
		}
		return Accept(), nil
	})

	res, err := s.Review(context.Background(), extract(t, twoHunks), src)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, StatusApplied, res.Files[0].Status)
	assert.Equal(t, "a\na2\nb\nc\nd\ne\nf\n", read(t, root, "f.txt"))
}

func TestReviewNewMissingAndDeletedFiles(t *testing.T) {
	root, s := setup(t, map[string]string{"main.go": "package main\n", "old.txt": "x\n"})
	text := "--- /dev/null\n+++ b/pkg/new.go\n@@ -0,0 +1,2 @@\n+package pkg\n+\n" +
		"--- a/src/utl.go\n+++ b/src/utl.go\n@@ -1 +1 @@\n-a\n+b\n" +
		"--- a/old.txt\n+++ /dev/null\n@@ -1 +0,0 @@\n-x\n" +
		"--- /dev/null\n+++ b/main.go\n@@ -0,0 +1 @@\n+package other\n" +
		"--- a/../escape.txt\n+++ b/../escape.txt\n@@ -0,0 +1 @@\n+x\n"

	res, err := s.Review(context.Background(), extract(t, text), AutoSource{Decision: Accept()})
	require.NoError(t, err)
	require.Len(t, res.Files, 5)

	byPath := map[string]FileResult{}
	for _, f := range res.Files {
		byPath[f.Path] = f
	}

	assert.Equal(t, StatusApplied, byPath["pkg/new.go"].Status)
	assert.True(t, byPath["pkg/new.go"].Created)
	assert.Equal(t, "package pkg\n\n", read(t, root, "pkg/new.go"))

	missing := byPath["src/utl.go"]
	assert.Equal(t, StatusRejected, missing.Status)
	assert.Contains(t, missing.Reason, "did you mean src/util.go?")

	assert.Equal(t, StatusRejected, byPath["old.txt"].Status)
	assert.Equal(t, "x\n", read(t, root, "old.txt"))

	assert.Equal(t, StatusRejected, byPath["main.go"].Status)
	assert.Equal(t, "package main\n", read(t, root, "main.go"))

	assert.Equal(t, StatusRejected, byPath["../escape.txt"].Status)
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestReviewWriteErrorDoesNotAbort(t *testing.T) {
	root, s := setup(t, map[string]string{"ro/f.txt": "a\n", "g.txt": "1\n"})
	ro := filepath.Join(root, "ro")
	require.NoError(t, os.Chmod(ro, 0o555))
	t.Cleanup(func() { _ = os.Chmod(ro, 0o755) })
	if f, err := os.CreateTemp(ro, "probe"); err == nil {
		f.Close()
		os.Remove(f.Name())
		t.Skip("directory permissions are not enforced for this user")
	}

	diffs := extract(t, "--- a/ro/f.txt\n+++ b/ro/f.txt\n@@ -1 +1 @@\n-a\n+A\n--- a/g.txt\n+++ b/g.txt\n@@ -1 +1 @@\n-1\n+one\n")
	res, err := s.Review(context.Background(), diffs, AutoSource{Decision: Accept()})
	require.NoError(t, err)

	assert.Equal(t, StatusWriteError, res.Files[0].Status)
	var we *WriteError
	assert.True(t, errors.As(res.Files[0].Err, &we))
	assert.Equal(t, "a\n", read(t, root, "ro/f.txt"))
	assert.Equal(t, StatusApplied, res.Files[1].Status)
}

func TestReviewArchivesSession(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("a\nb\nc\n"), 0o644))
	store := state.NewStore(root)
	s, err := NewSession(Options{Root: root, Store: store})
	require.NoError(t, err)

	diffs := extract(t, "--- a/f.txt\n+++ b/f.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n")
	res, err := s.Review(context.Background(), diffs, AutoSource{Decision: Accept()})
	require.NoError(t, err)
	require.NotEmpty(t, res.Archive)

	rec, err := store.Load(res.ID)
	require.NoError(t, err)
	require.Len(t, rec.Files, 1)
	assert.Equal(t, "applied", rec.Files[0].Status)
	assert.Equal(t, "accept", rec.Files[0].Hunks[0].Decision)
	assert.Equal(t, "applied", rec.Files[0].Hunks[0].Outcome)

	_, err = store.Revert(rec)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", read(t, root, "f.txt"))
}

func TestLineSource(t *testing.T) {
	in := strings.NewReader("?\nm\nnew line\n.\n")
	var out strings.Builder
	src := NewLineSource(in, &out)

	d, err := src.Decide(context.Background(), Prompt{Path: "f.txt", HunkCount: 1, Hunk: parser.Hunk{OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1,
		Ops: []parser.LineOp{{Kind: parser.OpRemove, Text: "a"}, {Kind: parser.OpAdd, Text: "b"}}}})
	require.NoError(t, err)
	assert.Equal(t, Modify("new line"), d)
	assert.Contains(t, out.String(), "f.txt (hunk 1/1)\n@@ -1 +1 @@\n-a\n+b\n")
	assert.Contains(t, out.String(), "q - reject everything that is left")

	_, err = src.Decide(context.Background(), Prompt{})
	assert.Error(t, err, "end of input is an error")
}
