package lsp

import (
	"context"
	"encoding/json"

	"github.com/leapstack-labs/qmdls/internal/jsonrpc"
)

// rawCompletionContext keeps the client's context verbatim so it can be
// forwarded to the embedded server unchanged.
type rawCompletionContext struct {
	Context json.RawMessage `json:"context,omitempty"`
}

func (s *Server) handleCompletion(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params CompletionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "%v", err)
	}
	var rawCtx rawCompletionContext
	_ = json.Unmarshal(raw, &rawCtx)

	if e, ok := s.project(params.TextDocument.URI, params.Position); ok {
		result, ok, rpcErr := s.forward(ctx, e, "textDocument/completion", rawCtx.Context)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if !ok || isNull(result) {
			return &CompletionList{Items: []CompletionItem{}}, nil
		}
		return result, nil
	}

	doc := s.documents.Get(params.TextDocument.URI)
	trigger := ""
	if params.Context != nil {
		trigger = params.Context.TriggerCharacter
	}
	items := s.citationCompletions(doc, params.Position, trigger)
	if items == nil {
		items = []CompletionItem{}
	}
	return &CompletionList{Items: items}, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
