package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/qmdls/internal/config"
	"github.com/leapstack-labs/qmdls/internal/dispatch"
	"github.com/leapstack-labs/qmdls/internal/jsonrpc"
	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/leapstack-labs/qmdls/internal/markdown"
	"github.com/leapstack-labs/qmdls/internal/vdoc"
)

// ServerName is reported in the initialize result.
const ServerName = "qmdls"

// shutdownTimeout bounds how long embedded servers get to stop.
const shutdownTimeout = 5 * time.Second

// ErrExitWithoutShutdown is returned by Run when the client sends exit
// before shutdown.
var ErrExitWithoutShutdown = errors.New("exit received before shutdown")

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStarter replaces how embedded language servers are launched.
func WithStarter(start dispatch.Starter) Option {
	return func(s *Server) { s.starter = start }
}

// WithTempDir sets the root of temp-file backed virtual documents,
// overriding the project config.
func WithTempDir(dir string) Option {
	return func(s *Server) { s.tempDir = dir }
}

// workspace is everything derived from the project config. It is replaced
// as a whole when the config changes.
type workspace struct {
	root       string
	cfg        *config.ProjectConfig
	registry   *languages.Registry
	projector  *vdoc.Projector
	files      *vdoc.TempFileStore
	resolver   *vdoc.Resolver
	dispatcher *dispatch.Dispatcher
}

// Server implements the Language Server Protocol for Quarto documents.
type Server struct {
	// Document management
	documents *DocumentStore
	parser    *markdown.Parser

	ws      atomic.Pointer[workspace]
	starter dispatch.Starter
	tempDir string

	// I/O
	reader *jsonrpc.Reader
	writer *jsonrpc.Writer

	// Logging
	logger *slog.Logger

	// ctx is cancelled when Run returns.
	ctx    context.Context
	cancel context.CancelFunc
	// requests tracks in-flight feature requests and document syncs.
	requests sync.WaitGroup

	syncMu     sync.Mutex
	syncLocks  map[string]*sync.Mutex
	lastSynced map[string]*Document

	// diagnostics holds embedded server diagnostics per host document and
	// language.
	diagMu      sync.Mutex
	diagnostics map[string]map[string][]json.RawMessage

	// Shutdown state
	shutdown   bool
	shutdownMu sync.RWMutex
}

// NewServer creates a new LSP server instance.
func NewServer(reader io.Reader, writer io.Writer, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		documents:   NewDocumentStore(),
		parser:      markdown.NewParser(),
		reader:      jsonrpc.NewReader(reader),
		writer:      jsonrpc.NewWriter(writer),
		logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		ctx:         ctx,
		cancel:      cancel,
		syncLocks:   make(map[string]*sync.Mutex),
		lastSynced:  make(map[string]*Document),
		diagnostics: make(map[string]map[string][]json.RawMessage),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ws.Store(s.newWorkspace("", nil))
	return s
}

// NewServerWithLogger creates a new LSP server instance with a custom logger.
func NewServerWithLogger(reader io.Reader, writer io.Writer, logger *slog.Logger, opts ...Option) *Server {
	return NewServer(reader, writer, append([]Option{WithLogger(logger)}, opts...)...)
}

// Run processes JSON-RPC messages until the client exits or disconnects.
func (s *Server) Run() error {
	s.logger.Info("qmdls language server starting...")
	defer s.stop()

	for {
		msg, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				s.logger.Info("Client disconnected")
				return nil
			}
			s.logger.Error("Error reading message", "error", err)
			continue
		}

		if msg.Method == "exit" {
			s.logger.Info("Server exit")
			if !s.isShutdown() {
				return ErrExitWithoutShutdown
			}
			return nil
		}

		if err := s.handleMessage(msg); err != nil {
			s.logger.Error("Error handling message", "method", msg.Method, "error", err)
		}
	}
}

// stop waits for in-flight work and stops every embedded server.
func (s *Server) stop() {
	s.cancel()
	s.requests.Wait()

	ws := s.ws.Load()
	for _, uri := range s.documents.List() {
		_ = ws.files.Remove(uri)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ws.dispatcher.Shutdown(ctx); err != nil {
		s.logger.Warn("Error stopping language servers", "error", err)
	}
}

func (s *Server) isShutdown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.shutdown
}

// sendResponse sends a JSON-RPC response.
func (s *Server) sendResponse(id *json.RawMessage, result any, rpcErr *jsonrpc.Error) {
	msg, err := jsonrpc.NewResponse(id, result, rpcErr)
	if err != nil {
		s.logger.Error("Error marshaling response", "error", err)
		msg, _ = jsonrpc.NewResponse(id, nil, jsonrpc.NewError(jsonrpc.CodeInternalError, "%v", err))
	}
	s.write(msg)
}

// sendNotification sends a JSON-RPC notification (no ID).
func (s *Server) sendNotification(method string, params any) {
	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		s.logger.Error("Error marshaling notification", "method", method, "error", err)
		return
	}
	s.write(msg)
}

func (s *Server) write(msg *jsonrpc.Message) {
	if err := s.writer.Write(msg); err != nil {
		s.logger.Error("Error writing message", "error", err)
	}
}

// requestHandler answers one request. A nil error with a nil result
// replies null.
type requestHandler func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error)

// handleMessage dispatches a message to the appropriate handler.
func (s *Server) handleMessage(msg *jsonrpc.Message) error {
	s.logger.Debug("Received", "method", msg.Method)

	if msg.IsRequest() && s.isShutdown() {
		s.sendResponse(msg.ID, nil, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "server is shutting down"))
		return nil
	}

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return s.handleInitialized(msg)
	case "shutdown":
		return s.handleShutdown(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/completion":
		s.async(msg, s.handleCompletion)
	case "textDocument/hover":
		s.async(msg, s.handleHover)
	case MethodVirtualDocument:
		s.async(msg, s.handleVirtualDocument)
	case MethodReadVirtualDocument:
		s.async(msg, s.handleReadVirtualDocument)
	case MethodPreviewErrorLocation:
		s.async(msg, s.handlePreviewErrorLocation)
	default:
		if msg.IsRequest() {
			// Unknown method with ID - respond with method not found
			s.sendResponse(msg.ID, nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "Method not found: %s", msg.Method))
		}
	}
	return nil
}

// async answers a feature request on its own goroutine.
func (s *Server) async(msg *jsonrpc.Message, handle requestHandler) {
	s.requests.Add(1)
	go func() {
		defer s.requests.Done()
		result, rpcErr := handle(s.ctx, msg.Params)
		s.sendResponse(msg.ID, result, rpcErr)
	}()
}

// --- Lifecycle handlers ---

func (s *Server) handleInitialize(msg *jsonrpc.Message) error {
	var params InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "%v", err))
		return err
	}

	root := projectRoot(params)
	s.logger.Info("Project root", "path", root)

	cfg, err := s.loadConfig(root)
	if err != nil {
		s.logger.Warn("Ignoring invalid project config", "error", err)
	}
	s.replaceWorkspace(s.newWorkspace(root, cfg))
	ws := s.ws.Load()

	result := InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindFull,
				Save: &SaveOptions{
					IncludeText: true,
				},
			},
			CompletionProvider: &CompletionOptions{
				TriggerCharacters: triggerCharacters(ws.registry),
			},
			HoverProvider: true,
		},
		ServerInfo: &ServerInfo{Name: ServerName},
	}

	s.sendResponse(msg.ID, result, nil)
	return nil
}

func (s *Server) handleInitialized(_ *jsonrpc.Message) error {
	s.logger.Info("Server initialized")

	root := s.ws.Load().root
	if root == "" {
		return nil
	}
	s.requests.Add(1)
	go func() {
		defer s.requests.Done()
		err := config.Watch(s.ctx, root, s.logger, s.reloadConfig)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Config watcher stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) handleShutdown(msg *jsonrpc.Message) error {
	s.shutdownMu.Lock()
	s.shutdown = true
	s.shutdownMu.Unlock()

	s.sendResponse(msg.ID, nil, nil)
	s.logger.Info("Server shutdown")
	return nil
}

// --- Document handlers ---

func (s *Server) handleDidOpen(msg *jsonrpc.Message) error {
	var params DidOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	item := params.TextDocument
	s.documents.Open(s.snapshot(item.URI, item.Text, item.Version))
	s.logger.Info("Opened", "uri", item.URI)

	s.syncEmbedded(item.URI)
	return nil
}

func (s *Server) handleDidClose(msg *jsonrpc.Message) error {
	var params DidCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	uri := params.TextDocument.URI
	s.documents.Close(uri)
	s.logger.Info("Closed", "uri", uri)

	lock := s.syncLock(uri)
	lock.Lock()
	ws := s.ws.Load()
	ws.dispatcher.Close(uri)
	if err := ws.files.Remove(uri); err != nil {
		s.logger.Warn("Error removing virtual documents", "uri", uri, "error", err)
	}
	s.syncMu.Lock()
	delete(s.lastSynced, uri)
	delete(s.syncLocks, uri)
	s.syncMu.Unlock()
	lock.Unlock()

	// Clear diagnostics
	s.diagMu.Lock()
	delete(s.diagnostics, uri)
	s.diagMu.Unlock()
	s.sendNotification("textDocument/publishDiagnostics", &PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []json.RawMessage{},
	})
	return nil
}

func (s *Server) handleDidChange(msg *jsonrpc.Message) error {
	var params DidChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	// We use full sync, so take the last change
	if len(params.ContentChanges) == 0 {
		return nil
	}
	uri := params.TextDocument.URI
	last := params.ContentChanges[len(params.ContentChanges)-1]
	if !s.documents.Update(s.snapshot(uri, last.Text, params.TextDocument.Version)) {
		s.logger.Debug("Ignoring change", "uri", uri, "version", params.TextDocument.Version)
		return nil
	}

	s.syncEmbedded(uri)
	return nil
}

func (s *Server) handleDidSave(msg *jsonrpc.Message) error {
	var params DidSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	uri := params.TextDocument.URI
	s.logger.Info("Saved", "path", vdoc.URIToPath(uri))

	doc := s.documents.Get(uri)
	if doc != nil && params.Text != "" && params.Text != doc.Content {
		s.documents.Update(s.snapshot(uri, params.Text, doc.Version))
		s.syncEmbedded(uri)
	}
	return nil
}

// snapshot parses text into an immutable document. A parse failure leaves
// the document without tokens, so every request answers as outside a block.
func (s *Server) snapshot(uri, text string, version int) *Document {
	tokens, err := s.parser.Parse(s.ctx, []byte(text))
	if err != nil {
		s.logger.Warn("Error parsing document", "uri", uri, "error", err)
	}
	return NewDocument(uri, text, version, tokens)
}

// --- Workspace ---

func projectRoot(params InitializeParams) string {
	uri := params.RootURI
	if uri == "" && len(params.WorkspaceFolders) > 0 {
		uri = params.WorkspaceFolders[0].URI
	}
	dir := params.RootPath
	if uri != "" {
		dir = vdoc.URIToPath(uri)
	}
	if dir == "" {
		return ""
	}
	if root := config.FindProjectRoot(dir); root != "" {
		return root
	}
	return dir
}

func (s *Server) loadConfig(root string) (*config.ProjectConfig, error) {
	if root == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadOrDefault(root)
	if err != nil {
		return config.Default(), err
	}
	return cfg, nil
}

// newWorkspace builds the registry, resolver and dispatcher for cfg. An
// invalid languages section falls back to the built-in table.
func (s *Server) newWorkspace(root string, cfg *config.ProjectConfig) *workspace {
	if cfg == nil {
		cfg = config.Default()
	}

	base := languages.Builtin()
	registry, err := cfg.Registry(base)
	if err != nil {
		s.logger.Warn("Using built-in languages", "error", err)
		registry = base
	}

	tempDir := s.tempDir
	if tempDir == "" {
		tempDir = cfg.VDoc.TempDir
		if tempDir != "" && !filepath.IsAbs(tempDir) && root != "" {
			tempDir = filepath.Join(root, tempDir)
		}
	}
	files := vdoc.NewTempFileStore(tempDir)

	opts := []dispatch.Option{dispatch.WithDiagnostics(s.publishEmbeddedDiagnostics)}
	if s.starter != nil {
		opts = append(opts, dispatch.WithStarter(s.starter))
	}
	rootURI := ""
	if root != "" {
		rootURI = vdoc.PathToURI(root)
	}

	return &workspace{
		root:       root,
		cfg:        cfg,
		registry:   registry,
		projector:  vdoc.NewProjector(registry),
		files:      files,
		resolver:   vdoc.NewResolver(files),
		dispatcher: dispatch.New(cfg, rootURI, s.logger, opts...),
	}
}

// replaceWorkspace swaps in ws and stops the servers of the old one. When
// the temp directory moved, the open documents' files under the old root are
// removed.
func (s *Server) replaceWorkspace(ws *workspace) {
	old := s.ws.Swap(ws)
	if old == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := old.dispatcher.Shutdown(ctx); err != nil {
		s.logger.Warn("Error stopping language servers", "error", err)
	}

	if old.files.Root() == ws.files.Root() {
		return
	}
	for _, uri := range s.documents.List() {
		if err := old.files.Remove(uri); err != nil {
			s.logger.Warn("Error removing virtual documents", "uri", uri, "root", old.files.Root(), "error", err)
		}
	}
}

// reloadConfig rebuilds the workspace after the project config changed and
// resyncs every open document.
func (s *Server) reloadConfig(cfg *config.ProjectConfig, err error) {
	if err != nil {
		s.logger.Warn("Invalid project config", "error", err)
		s.sendNotification("window/showMessage", &ShowMessageParams{
			Type:    MessageTypeWarning,
			Message: "qmdls: " + err.Error(),
		})
		return
	}
	s.logger.Info("Project config changed", "path", cfg.Path)

	s.replaceWorkspace(s.newWorkspace(s.ws.Load().root, cfg))

	s.syncMu.Lock()
	s.lastSynced = make(map[string]*Document)
	s.syncMu.Unlock()
	for _, uri := range s.documents.List() {
		s.syncEmbedded(uri)
	}
}

// triggerCharacters is "@" for citations plus every embedded language's
// triggers.
func triggerCharacters(registry *languages.Registry) []string {
	triggers := []string{"@"}
	for _, t := range registry.TriggerCharacters() {
		if t != "@" {
			triggers = append(triggers, t)
		}
	}
	sort.Strings(triggers)
	return triggers
}
