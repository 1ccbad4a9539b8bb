package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// codeBlock is a fenced code block found in markdown text.
type codeBlock struct {
	// hint is the paragraph immediately preceding the block.
	hint string
	// lang is the first word of the info string, lower-cased.
	lang  string
	lines []string
	// line is the 1-based line number of the first content line.
	line int
}

func (b codeBlock) isDiff() bool {
	return b.lang == "diff" || b.lang == "patch"
}

// codeBlocks walks the markdown AST and returns every fenced code block in
// document order.
func codeBlocks(source []byte) ([]codeBlock, error) {
	var blocks []codeBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	err := ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var block codeBlock
		if fields := strings.Fields(string(fenced.Language(source))); len(fields) > 0 {
			block.lang = strings.ToLower(fields[0])
		}

		segs := fenced.Lines()
		for i := 0; i < segs.Len(); i++ {
			seg := segs.At(i)
			if i == 0 {
				block.line = bytes.Count(source[:seg.Start], []byte("\n")) + 1
			}
			line := strings.TrimSuffix(string(seg.Value(source)), "\n")
			block.lines = append(block.lines, strings.TrimSuffix(line, "\r"))
		}

		if prev := fenced.PreviousSibling(); prev != nil {
			if p, ok := prev.(*ast.Paragraph); ok {
				block.hint = strings.TrimSpace(string(p.Lines().Value(source)))
			}
		}

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
