package lsp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/leapstack-labs/qmdls/internal/jsonrpc"
	"github.com/leapstack-labs/qmdls/internal/markdown"
)

func (s *Server) handleHover(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params HoverParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "%v", err)
	}

	if e, ok := s.project(params.TextDocument.URI, params.Position); ok {
		result, ok, rpcErr := s.forward(ctx, e, "textDocument/hover", nil)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if ok && !isNull(result) {
			return result, nil
		}
	}

	// Display math without a latex server answer is shown as markdown math.
	if hover := mathHover(s.documents.Get(params.TextDocument.URI), params.Position); hover != nil {
		return hover, nil
	}
	return nil, nil
}

// mathHover returns the display math block on pos's line, delimiters
// included, as a markdown math hover. It returns nil outside display math
// or for an empty block.
func mathHover(doc *Document, pos Position) *Hover {
	if doc == nil {
		return nil
	}
	line := int(pos.Line)
	for _, tok := range doc.Tokens {
		if tok.Kind != markdown.KindDisplayMath || tok.Lines == nil || !tok.Lines.Contains(line) {
			continue
		}
		math := mathBody(doc, *tok.Lines)
		if math == "" {
			return nil
		}
		last := tok.Lines.End - 1
		return &Hover{
			Contents: MarkupContent{Kind: MarkupKindMarkdown, Value: "$$\n" + math + "\n$$"},
			Range: &Range{
				Start: Position{Line: uint32(tok.Lines.Start)},
				End:   Position{Line: uint32(last), Character: uint32(ByteToUTF16Offset(doc.GetLine(last), len(doc.GetLine(last))))},
			},
		}
	}
	return nil
}

// mathBody is the text between the opening and closing $$ of lines.
func mathBody(doc *Document, lines markdown.LineRange) string {
	parts := make([]string, 0, lines.End-lines.Start)
	for i := lines.Start; i < lines.End && i < doc.LineCount(); i++ {
		parts = append(parts, doc.GetLine(i))
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	text = strings.TrimPrefix(text, "$$")
	if idx := strings.LastIndex(text, "$$"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
