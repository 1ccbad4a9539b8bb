package parser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSingleFencedDiff(t *testing.T) {
	text := "Here's a fix:\n```diff\n--- a/x.txt\n+++ b/x.txt\n@@ -1,1 +1,1 @@\n-old\n+new\n```\nDone."

	diffs, errs := Extract(text)
	require.Empty(t, errs)
	require.Len(t, diffs, 1)

	want := ParsedDiff{
		OldPath: "x.txt",
		NewPath: "x.txt",
		Line:    3,
		Hunks: []Hunk{{
			OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1,
			Line: 5,
			Ops: []LineOp{
				{Kind: OpRemove, Text: "old"},
				{Kind: OpAdd, Text: "new"},
			},
		}},
	}
	if diff := cmp.Diff(want, diffs[0]); diff != "" {
		t.Fatalf("unexpected parse (-want +got):\n%s", diff)
	}
	assert.Equal(t, "x.txt", diffs[0].TargetPath())
}

func TestExtractNoDiffs(t *testing.T) {
	diffs, errs := Extract("Just prose.\n\n```go\nfmt.Println(\"hi\")\n```\n")
	assert.Empty(t, diffs)
	assert.Empty(t, errs)
}

func TestExtractUnfencedText(t *testing.T) {
	text := "diff --git a/main.go b/main.go\nindex 83db48f..bf269f4 100644\n--- a/main.go\t2024-01-01 00:00:00\n+++ b/main.go\t2024-01-02 00:00:00\n@@ -2,3 +2,4 @@ func main() {\n a\n-b\n+B\n+C\n c\n"

	diffs, errs := Extract(text)
	require.Empty(t, errs)
	require.Len(t, diffs, 1)
	assert.Equal(t, "main.go", diffs[0].OldPath)
	h := diffs[0].Hunks[0]
	assert.Equal(t, 2, h.OldStart)
	assert.Equal(t, []string{"a", "b", "c"}, h.OldText())
	assert.Equal(t, []string{"a", "B", "C", "c"}, h.NewText())
	assert.Equal(t, 1, h.Delta())
}

func TestExtractUnfencedDiffBesideFencedBlock(t *testing.T) {
	text := "Usage:\n```sh\ngo run .\n```\nApply this:\n--- a/x.txt\n+++ b/x.txt\n@@ -1,1 +1,1 @@\n-old\n+new\n\nDone.\n"

	diffs, errs := Extract(text)
	require.Empty(t, errs)
	require.Len(t, diffs, 1)
	assert.Equal(t, "x.txt", diffs[0].TargetPath())
	assert.Equal(t, 6, diffs[0].Line)
	assert.Equal(t, 8, diffs[0].Hunks[0].Line)
	assert.Equal(t, []string{"new"}, diffs[0].Hunks[0].NewText())
}

func TestExtractKeepsDocumentOrder(t *testing.T) {
	text := "--- a/one.txt\n+++ b/one.txt\n@@ -1 +1 @@\n-1\n+one\n\n" +
		"```diff\n--- a/two.txt\n+++ b/two.txt\n@@ -1 +1 @@\n-2\n+two\n```\n\n" +
		"--- a/three.txt\n+++ b/three.txt\n@@ -1 +1 @@\n-3\n+three\n"

	diffs, errs := Extract(text)
	require.Empty(t, errs)
	var paths []string
	for _, d := range diffs {
		paths = append(paths, d.TargetPath())
	}
	assert.Equal(t, []string{"one.txt", "two.txt", "three.txt"}, paths)
}

func TestExtractMultipleFilesAndHunks(t *testing.T) {
	text := "First:\n\n```diff\n--- a/one.go\n+++ b/one.go\n@@ -1,2 +1,2 @@\n x\n-y\n+Y\n@@ -10 +10,2 @@\n z\n+w\n--- a/two.go\n+++ b/two.go\n@@ -5,1 +5,0 @@\n-gone\n```\n"

	diffs, errs := Extract(text)
	require.Empty(t, errs)
	require.Len(t, diffs, 2)
	assert.Equal(t, "one.go", diffs[0].TargetPath())
	require.Len(t, diffs[0].Hunks, 2)
	assert.Equal(t, 1, diffs[0].Hunks[1].OldLines, "an omitted count means one line")
	assert.Equal(t, "two.go", diffs[1].TargetPath())
	assert.Equal(t, 0, diffs[1].Hunks[0].NewLines)
}

func TestExtractCountMismatchExcludesHunk(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"under count", "@@ -1,3 +1,3 @@\n a\n-b\n+B\n"},
		{"over count", "@@ -1,1 +1,1 @@\n-b\n+B\n+extra\n"},
		{"too many removals", "@@ -1,1 +1,2 @@\n-a\n-b\n+A\n+B\n"},
		{"context beyond count", "@@ -1,2 +1,2 @@\n a\n-b\n+B\n c\n d\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "```diff\n--- a/f.txt\n+++ b/f.txt\n" + tt.body + "@@ -9,1 +9,1 @@\n-q\n+Q\n```\n"

			diffs, errs := Extract(text)
			require.Len(t, errs, 1)
			var pe *ParseError
			require.True(t, errors.As(errs[0], &pe))
			assert.ErrorIs(t, pe, ErrCountMismatch)
			assert.Equal(t, "f.txt", pe.Path)
			assert.Equal(t, 4, pe.Line)

			require.Len(t, diffs, 1, "well-formed hunks of the same diff survive")
			require.Len(t, diffs[0].Hunks, 1)
			assert.Equal(t, 9, diffs[0].Hunks[0].OldStart)
		})
	}
}

func TestExtractDropsEmptyAndPlaceholderDiffs(t *testing.T) {
	text := "```diff\n--- a/path/to/file\n+++ b/path/to/file\n@@ -1 +1 @@\n-a\n+b\n```\n\n```diff\n--- a/real.go\n+++ b/real.go\n```\n"

	diffs, errs := Extract(text)
	assert.Empty(t, diffs)
	assert.Empty(t, errs)
}

func TestExtractOrphanAndBadHeaders(t *testing.T) {
	diffs, errs := Extract("@@ -1 +1 @@\n-a\n+b\n")
	assert.Empty(t, diffs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrOrphanHunk)

	diffs, errs = Extract("--- a/f\n+++ b/f\n@@ -x,1 +1 @@\n-a\n+b\n")
	assert.Empty(t, diffs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrHunkHeader)
}

func TestExtractOutOfRangeLineNumber(t *testing.T) {
	text := "```diff\n--- a/f.txt\n+++ b/f.txt\n@@ -99999999999999999999,1 +1,1 @@\n-a\n+b\n@@ -9 +9 @@\n-q\n+Q\n```\n"

	diffs, errs := Extract(text)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrHunkHeader)
	require.Len(t, diffs, 1)
	require.Len(t, diffs[0].Hunks, 1)
	assert.Equal(t, 9, diffs[0].Hunks[0].OldStart)
}

func TestExtractNewAndDeletedFiles(t *testing.T) {
	text := "```diff\n--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1,2 @@\n+one\n+two\n--- a/old.txt\n+++ /dev/null\n@@ -1 +0,0 @@\n-bye\n```"

	diffs, errs := Extract(text)
	require.Empty(t, errs)
	require.Len(t, diffs, 2)
	assert.True(t, diffs[0].IsNew())
	assert.Equal(t, "new.txt", diffs[0].TargetPath())
	assert.True(t, diffs[1].IsDelete())
	assert.Equal(t, "old.txt", diffs[1].TargetPath())
}

func TestExtractNoNewlineMarker(t *testing.T) {
	text := "--- a/f\n+++ b/f\n@@ -1,2 +1,2 @@\n keep\n-last\n\\ No newline at end of file\n+LAST\n\\ No newline at end of file\n"

	diffs, errs := Extract(text)
	require.Empty(t, errs)
	require.Len(t, diffs, 1)
	h := diffs[0].Hunks[0]
	assert.True(t, h.NoNewlineOld)
	assert.True(t, h.NoNewlineNew)
	assert.Equal(t, text, Format(diffs[0]))
}

func TestExtractLooseHunks(t *testing.T) {
	t.Run("header without line numbers", func(t *testing.T) {
		text := "```diff\n--- a/app.py\n+++ b/app.py\n@@ ... @@\n def main():\n-    print('hi')\n+    print('hello')\n```"
		diffs, errs := Extract(text)
		require.Empty(t, errs)
		require.Len(t, diffs, 1)
		h := diffs[0].Hunks[0]
		assert.True(t, h.Loose)
		assert.Equal(t, 2, h.OldLines)
		assert.Equal(t, 2, h.NewLines)
	})

	t.Run("file header without hunk header", func(t *testing.T) {
		text := "```diff\n--- a/app.py\n+++ b/app.py\n def main():\n-    pass\n+    run()\n\n```"
		diffs, errs := Extract(text)
		require.Empty(t, errs)
		require.Len(t, diffs, 1)
		assert.True(t, diffs[0].Hunks[0].Loose)
		assert.Len(t, diffs[0].Hunks[0].Ops, 3, "trailing blank lines are not context")
	})

	t.Run("path on the first line", func(t *testing.T) {
		text := "```diff\nsrc/util.go\n func A() {\n-\treturn 1\n+\treturn 2\n }\n```"
		diffs, errs := Extract(text)
		require.Empty(t, errs)
		require.Len(t, diffs, 1)
		assert.Equal(t, "src/util.go", diffs[0].TargetPath())
		assert.Equal(t, []string{"func A() {", "\treturn 2", "}"}, diffs[0].Hunks[0].NewText())
	})

	t.Run("first-line path keeps an a/ directory", func(t *testing.T) {
		text := "```diff\na/main.go\n-x\n+y\n```"
		diffs, errs := Extract(text)
		require.Empty(t, errs)
		require.Len(t, diffs, 1)
		assert.Equal(t, "a/main.go", diffs[0].TargetPath())
	})

	t.Run("path in the preceding paragraph", func(t *testing.T) {
		text := "Update `cfg/app.yaml`:\n```diff\n name: x\n-port: 1\n+port: 2\n```"
		diffs, errs := Extract(text)
		require.Empty(t, errs)
		require.Len(t, diffs, 1)
		assert.Equal(t, "cfg/app.yaml", diffs[0].TargetPath())
	})

	t.Run("no path anywhere", func(t *testing.T) {
		diffs, errs := Extract("```diff\n-a\n+b\n```")
		assert.Empty(t, diffs)
		assert.Empty(t, errs)
	})
}

func TestWithAdditions(t *testing.T) {
	h := Hunk{
		OldStart: 1, OldLines: 3, NewStart: 1, NewLines: 3,
		Ops: []LineOp{
			{Kind: OpContext, Text: "a"},
			{Kind: OpRemove, Text: "b"},
			{Kind: OpAdd, Text: "B"},
			{Kind: OpContext, Text: "c"},
		},
	}

	m := h.WithAdditions("X\nY\n")
	assert.Equal(t, []string{"a", "b", "c"}, m.OldText())
	assert.Equal(t, []string{"a", "X", "Y", "c"}, m.NewText())
	assert.Equal(t, 3, m.OldLines)
	assert.Equal(t, 4, m.NewLines)
	assert.Equal(t, []string{"a", "B", "c"}, h.NewText(), "the receiver is unchanged")

	removal := Hunk{Ops: []LineOp{{Kind: OpContext, Text: "a"}, {Kind: OpRemove, Text: "b"}, {Kind: OpContext, Text: "c"}}}
	m = removal.WithAdditions("Z")
	assert.Equal(t, []string{"a", "Z", "c"}, m.NewText())

	m = h.WithAdditions("")
	assert.Equal(t, []string{"a", "c"}, m.NewText())
	assert.Equal(t, 2, m.NewLines)
}

func TestUnindented(t *testing.T) {
	h := Hunk{Ops: []LineOp{{Kind: OpContext, Text: " a"}, {Kind: OpRemove, Text: " b"}, {Kind: OpAdd, Text: ""}}}
	u, ok := h.Unindented()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, u.OldText())

	_, ok = Hunk{Ops: []LineOp{{Kind: OpAdd, Text: "x"}}}.Unindented()
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	d := ParsedDiff{
		OldPath: DevNull,
		NewPath: "n.txt",
		Hunks: []Hunk{{
			OldStart: 0, OldLines: 0, NewStart: 1, NewLines: 1,
			Ops: []LineOp{{Kind: OpAdd, Text: "hello"}},
		}},
	}
	assert.Equal(t, "--- /dev/null\n+++ b/n.txt\n@@ -0,0 +1 @@\n+hello\n", Format(d))

	again, errs := Extract(Format(d))
	require.Empty(t, errs)
	require.Len(t, again, 1)
	assert.Equal(t, d.Hunks[0].Ops, again[0].Hunks[0].Ops)
}
