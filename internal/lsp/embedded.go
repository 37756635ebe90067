package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/leapstack-labs/qmdls/internal/dispatch"
	"github.com/leapstack-labs/qmdls/internal/jsonrpc"
	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/leapstack-labs/qmdls/internal/preview"
	"github.com/leapstack-labs/qmdls/internal/vdoc"
)

// Custom requests.
const (
	MethodVirtualDocument      = "qmdls/virtualDocument"
	MethodReadVirtualDocument  = "qmdls/readVirtualDocument"
	MethodPreviewErrorLocation = "qmdls/previewErrorLocation"
)

// embedded is the virtual document projected for a request position.
type embedded struct {
	ws  *workspace
	doc *Document
	vd  *vdoc.VirtualDoc
	pos vdoc.Position
}

func toVDocPosition(pos Position) vdoc.Position {
	return vdoc.Position{Line: int(pos.Line), Character: int(pos.Character)}
}

// project returns the virtual document for the block enclosing pos, or
// false when the document is unknown or pos is outside a registered block.
func (s *Server) project(uri string, pos Position) (*embedded, bool) {
	doc := s.documents.Get(uri)
	if doc == nil {
		return nil, false
	}
	ws := s.ws.Load()
	p := toVDocPosition(pos)
	vd, ok := ws.projector.Project(doc, doc.Tokens, p)
	if !ok {
		return nil, false
	}
	return &embedded{ws: ws, doc: doc, vd: vd, pos: p}, true
}

// resolve returns the address of the virtual document.
func (e *embedded) resolve(ctx context.Context) (string, error) {
	return e.ws.resolver.Resolve(ctx, e.vd, e.doc.URI)
}

// forward sends method for the virtual document to its embedded server. It
// reports false when no server is configured or the server failed; only a
// failure to materialize the document is returned as an error.
func (s *Server) forward(ctx context.Context, e *embedded, method string, rawContext json.RawMessage) (json.RawMessage, bool, *jsonrpc.Error) {
	lang := e.vd.Language.ID()
	if !e.ws.dispatcher.HasServer(lang) {
		return nil, false, nil
	}
	uri, err := e.resolve(ctx)
	if err != nil {
		s.logger.Error("Error resolving virtual document", "uri", e.doc.URI, "language", lang, "error", err)
		return nil, false, jsonrpc.NewError(jsonrpc.CodeInternalError, "%v", err)
	}

	req := dispatch.Request{
		HostURI:  e.doc.URI,
		Doc:      e.vd,
		URI:      uri,
		Position: e.pos,
		Context:  rawContext,
	}
	var result json.RawMessage
	switch method {
	case "textDocument/completion":
		result, err = e.ws.dispatcher.Completion(ctx, req)
	case "textDocument/hover":
		result, err = e.ws.dispatcher.Hover(ctx, req)
	default:
		return nil, false, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "Method not found: %s", method)
	}
	if err != nil {
		if !errors.Is(err, dispatch.ErrNoServer) {
			s.logger.Warn("Embedded request failed", "method", method, "language", lang, "error", err)
		}
		return nil, false, nil
	}
	return result, true, nil
}

// --- Document sync ---

func (s *Server) syncLock(uri string) *sync.Mutex {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	lock, ok := s.syncLocks[uri]
	if !ok {
		lock = &sync.Mutex{}
		s.syncLocks[uri] = lock
	}
	return lock
}

// syncEmbedded brings the embedded servers up to date with the current
// snapshot of uri in the background. Syncs of one document run in order and
// a sync that finds its snapshot already synced does nothing.
func (s *Server) syncEmbedded(uri string) {
	s.requests.Add(1)
	go func() {
		defer s.requests.Done()

		lock := s.syncLock(uri)
		lock.Lock()
		defer lock.Unlock()

		doc := s.documents.Get(uri)
		if doc == nil {
			return
		}
		s.syncMu.Lock()
		last := s.lastSynced[uri]
		s.syncMu.Unlock()
		if last == doc {
			return
		}

		ws := s.ws.Load()
		var resolved []dispatch.Resolved
		for _, vd := range ws.projector.ProjectAll(doc, doc.Tokens) {
			if _, ok := vd.Language.Strategy.(languages.TempFileBacked); !ok {
				continue
			}
			if !ws.dispatcher.HasServer(vd.Language.ID()) {
				continue
			}
			addr, err := ws.resolver.Resolve(s.ctx, vd, uri)
			if err != nil {
				s.logger.Warn("Error writing virtual document", "uri", uri, "language", vd.Language.ID(), "error", err)
				continue
			}
			resolved = append(resolved, dispatch.Resolved{Doc: vd, URI: addr})
		}

		if err := ws.dispatcher.Sync(s.ctx, uri, resolved); err != nil {
			s.logger.Warn("Error syncing embedded documents", "uri", uri, "error", err)
		}

		s.syncMu.Lock()
		s.lastSynced[uri] = doc
		s.syncMu.Unlock()
	}()
}

// publishEmbeddedDiagnostics records one language's diagnostics for a host
// document and publishes the union over all languages.
func (s *Server) publishEmbeddedDiagnostics(hostURI, languageID string, raw json.RawMessage) {
	var diags []json.RawMessage
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &diags); err != nil {
			s.logger.Warn("Invalid embedded diagnostics", "language", languageID, "error", err)
			return
		}
	}
	if s.documents.Get(hostURI) == nil {
		return
	}

	s.diagMu.Lock()
	defer s.diagMu.Unlock()

	byLang := s.diagnostics[hostURI]
	if byLang == nil {
		byLang = make(map[string][]json.RawMessage)
		s.diagnostics[hostURI] = byLang
	}
	if len(diags) == 0 {
		delete(byLang, languageID)
	} else {
		byLang[languageID] = diags
	}

	langs := make([]string, 0, len(byLang))
	for lang := range byLang {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	all := []json.RawMessage{}
	for _, lang := range langs {
		all = append(all, byLang[lang]...)
	}

	s.sendNotification("textDocument/publishDiagnostics", &PublishDiagnosticsParams{
		URI:         hostURI,
		Diagnostics: all,
	})
}

// --- Custom requests ---

func (s *Server) handleVirtualDocument(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params TextDocumentPositionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "%v", err)
	}

	e, ok := s.project(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}
	uri, err := e.resolve(ctx)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "%v", err)
	}
	return &VirtualDocumentResult{
		LanguageID: e.vd.Language.ID(),
		URI:        uri,
		Content:    e.vd.Content,
	}, nil
}

func (s *Server) handleReadVirtualDocument(_ context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params ReadVirtualDocumentParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "%v", err)
	}

	addr, err := vdoc.DecodeContentURI(params.URI)
	if err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "%v", err)
	}
	return &ReadVirtualDocumentResult{Content: addr.Content}, nil
}

func (s *Server) handlePreviewErrorLocation(_ context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params PreviewErrorLocationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "%v", err)
	}
	if params.Target == "" {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "target is required")
	}

	loc, ok := preview.Locate(params.Output, vdoc.URIToPath(params.Target), vdoc.URIToPath(params.Dir))
	if !ok {
		return nil, nil
	}
	return loc, nil
}
