package markdown

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	tsmarkdown "github.com/smacker/go-tree-sitter/markdown/tree-sitter-markdown"
)

// leafBlocks are block node types emitted as KindOther tokens.
var leafBlocks = map[string]bool{
	"atx_heading":               true,
	"setext_heading":            true,
	"paragraph":                 true,
	"thematic_break":            true,
	"pipe_table":                true,
	"link_reference_definition": true,
}

// opaqueBlocks are emitted as KindOther and hide their lines from the
// display math scan.
var opaqueBlocks = map[string]bool{
	"indented_code_block": true,
	"html_block":          true,
}

// Parser produces tokens from markdown source using the tree-sitter block
// grammar. A Parser is safe for concurrent use; every call gets its own
// tree-sitter parser.
type Parser struct {
	lang *sitter.Language
}

// NewParser creates a markdown parser.
func NewParser() *Parser {
	return &Parser{lang: tsmarkdown.GetLanguage()}
}

// Parse tokenizes src. Tokens are returned in document order by start line.
func (p *Parser) Parse(ctx context.Context, src []byte) ([]Token, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(p.lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("markdown parse failed: %w", err)
	}
	defer tree.Close()

	w := &walker{src: src}

	// Front matter is not part of the CommonMark grammar, so it is split off
	// by hand and masked from the math scan.
	if fm, ok := SplitFrontMatter(string(src)); ok {
		w.opaque = append(w.opaque, fm.Lines)
	}

	w.visit(tree.RootNode())
	w.scanDisplayMath()

	sort.SliceStable(w.tokens, func(i, j int) bool {
		return w.tokens[i].Lines.Start < w.tokens[j].Lines.Start
	})
	return w.tokens, nil
}

type walker struct {
	src    []byte
	tokens []Token
	opaque []LineRange
}

func (w *walker) visit(n *sitter.Node) {
	if n == nil {
		return
	}

	typ := n.Type()
	switch {
	case typ == "fenced_code_block":
		r := nodeLines(n)
		w.tokens = append(w.tokens, NewToken(KindFence, w.infoString(n), r.Start, r.End))
		w.opaque = append(w.opaque, r)
	case opaqueBlocks[typ]:
		r := nodeLines(n)
		w.tokens = append(w.tokens, NewToken(KindOther, "", r.Start, r.End))
		w.opaque = append(w.opaque, r)
	case leafBlocks[typ]:
		r := nodeLines(n)
		w.tokens = append(w.tokens, NewToken(KindOther, "", r.Start, r.End))
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.visit(n.NamedChild(i))
		}
	}
}

func (w *walker) infoString(fence *sitter.Node) string {
	for i := 0; i < int(fence.NamedChildCount()); i++ {
		child := fence.NamedChild(i)
		if child.Type() == "info_string" {
			return strings.TrimSpace(child.Content(w.src))
		}
	}
	return ""
}

func (w *walker) masked(line int) bool {
	for _, r := range w.opaque {
		if r.Contains(line) {
			return true
		}
	}
	return false
}

// scanDisplayMath finds $$ blocks outside code, html and front matter.
// A block opens on a line starting with $$ and closes on the first later
// line containing $$. "$$ x $$" on one line is a one-line block.
func (w *walker) scanDisplayMath() {
	lines := strings.Split(string(w.src), "\n")
	for i := 0; i < len(lines); i++ {
		if w.masked(i) {
			continue
		}
		open := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(open, "$$") {
			continue
		}

		rest := open[2:]
		if idx := strings.Index(rest, "$$"); idx >= 0 {
			w.tokens = append(w.tokens, NewToken(KindDisplayMath, strings.TrimSpace(rest[idx+2:]), i, i+1))
			continue
		}

		for j := i + 1; j < len(lines); j++ {
			if w.masked(j) {
				break
			}
			closing := strings.TrimSpace(lines[j])
			if idx := strings.Index(closing, "$$"); idx >= 0 {
				w.tokens = append(w.tokens, NewToken(KindDisplayMath, strings.TrimSpace(closing[idx+2:]), i, j+1))
				i = j
				break
			}
		}
	}
}

// nodeLines converts a node's extent to a half-open line range. Block nodes
// normally end at column 0 of the following line; a block at end of input
// without a trailing newline ends mid-line and still owns that line.
func nodeLines(n *sitter.Node) LineRange {
	start := int(n.StartPoint().Row)
	end := n.EndPoint()
	endLine := int(end.Row)
	if end.Column > 0 {
		endLine++
	}
	if endLine <= start {
		endLine = start + 1
	}
	return LineRange{Start: start, End: endLine}
}
