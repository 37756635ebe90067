package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/qmdls/internal/config"
	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/leapstack-labs/qmdls/internal/vdoc"
)

// ErrNoServer is returned when no embedded server is configured for a
// language.
var ErrNoServer = errors.New("no language server configured")

// Request is one forwarded request against a resolved virtual document.
type Request struct {
	// HostURI is the Quarto document the virtual document was projected from.
	HostURI string
	Doc     *vdoc.VirtualDoc
	// URI is the address the virtual document resolved to.
	URI      string
	Position vdoc.Position
	// Context is passed through as the request's "context" field.
	Context json.RawMessage
}

// Resolved pairs a virtual document with its address.
type Resolved struct {
	Doc *vdoc.VirtualDoc
	URI string
}

// Starter launches and initializes the client for a language.
type Starter func(ctx context.Context, languageID string, server config.ServerConfig, onNotify NotifyFunc) (*Client, error)

// DiagnosticsFunc receives an embedded server's diagnostics for a host
// document. Ranges are already in host coordinates.
type DiagnosticsFunc func(hostURI, languageID string, diagnostics json.RawMessage)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStarter replaces the process starter.
func WithStarter(start Starter) Option {
	return func(d *Dispatcher) { d.start = start }
}

// WithDiagnostics sets the diagnostics callback.
func WithDiagnostics(fn DiagnosticsFunc) Option {
	return func(d *Dispatcher) { d.onDiagnostics = fn }
}

// Dispatcher routes requests to one client per embedded language. Clients
// start on first use and restart if their process exits.
type Dispatcher struct {
	cfg           *config.ProjectConfig
	timeout       time.Duration
	start         Starter
	onDiagnostics DiagnosticsFunc
	logger        *slog.Logger

	starting singleflight.Group

	mu      sync.Mutex
	clients map[string]*Client
	// owners maps a synced temp file uri to its host document.
	owners map[string]string
	// synced maps a host document to its synced virtual uris and their
	// language.
	synced map[string]map[string]string
}

// New creates a dispatcher for the servers in cfg. rootURI is sent to each
// server in initialize.
func New(cfg *config.ProjectConfig, rootURI string, logger *slog.Logger, opts ...Option) *Dispatcher {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		cfg:     cfg,
		timeout: cfg.RequestTimeout,
		logger:  logger,
		clients: make(map[string]*Client),
		owners:  make(map[string]string),
		synced:  make(map[string]map[string]string),
	}
	d.start = ProcessStarter(rootURI, logger)
	for _, opt := range opts {
		opt(d)
	}
	if d.timeout <= 0 {
		d.timeout = config.DefaultRequestTimeout
	}
	return d
}

// HasServer reports whether a server is configured for the language.
func (d *Dispatcher) HasServer(languageID string) bool {
	_, ok := d.cfg.Server(languageID)
	return ok
}

// Completion forwards textDocument/completion and returns the raw result.
func (d *Dispatcher) Completion(ctx context.Context, req Request) (json.RawMessage, error) {
	return d.request(ctx, "textDocument/completion", req)
}

// Hover forwards textDocument/hover and returns the raw result.
func (d *Dispatcher) Hover(ctx context.Context, req Request) (json.RawMessage, error) {
	return d.request(ctx, "textDocument/hover", req)
}

func (d *Dispatcher) request(ctx context.Context, method string, req Request) (json.RawMessage, error) {
	lang := req.Doc.Language
	client, err := d.client(ctx, lang.ID())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch lang.Strategy.(type) {
	case languages.TempFileBacked:
		d.track(req.HostURI, req.URI, lang.ID())
		if err := client.Sync(req.URI, lang.ID(), req.Doc.Content); err != nil {
			return nil, fmt.Errorf("sync %s: %w", req.URI, err)
		}
	case languages.ContentAddressed:
		if err := client.Acquire(req.URI, lang.ID(), req.Doc.Content); err != nil {
			return nil, fmt.Errorf("open %s: %w", req.URI, err)
		}
		defer func() { _ = client.Release(req.URI) }()
	}

	params := textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{URI: req.URI},
		Position:     position{Line: req.Position.Line, Character: req.Position.Character},
		Context:      req.Context,
	}
	result, err := client.Call(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", lang.ID(), method, err)
	}
	return result, nil
}

// Sync keeps the temp-file backed virtual documents of a host open in their
// servers, so the servers publish diagnostics for them. Documents synced
// earlier for the host but absent now are closed. Languages without a server
// are skipped.
func (d *Dispatcher) Sync(ctx context.Context, hostURI string, docs []Resolved) error {
	current := make(map[string]string)
	for _, r := range docs {
		if _, ok := r.Doc.Language.Strategy.(languages.TempFileBacked); ok && d.HasServer(r.Doc.Language.ID()) {
			current[r.URI] = r.Doc.Language.ID()
		}
	}
	d.closeStale(hostURI, current)

	eg, egctx := errgroup.WithContext(ctx)
	for _, r := range docs {
		lang := r.Doc.Language
		if _, ok := current[r.URI]; !ok {
			continue
		}
		eg.Go(func() error {
			client, err := d.client(egctx, lang.ID())
			if err != nil {
				return err
			}
			d.track(hostURI, r.URI, lang.ID())
			return client.Sync(r.URI, lang.ID(), r.Doc.Content)
		})
	}
	return eg.Wait()
}

// Close closes every virtual document synced for a host.
func (d *Dispatcher) Close(hostURI string) {
	d.closeStale(hostURI, nil)

	d.mu.Lock()
	delete(d.synced, hostURI)
	d.mu.Unlock()
}

func (d *Dispatcher) closeStale(hostURI string, keep map[string]string) {
	d.mu.Lock()
	var stale []struct{ uri, lang string }
	for uri, lang := range d.synced[hostURI] {
		if _, ok := keep[uri]; ok {
			continue
		}
		stale = append(stale, struct{ uri, lang string }{uri, lang})
		delete(d.synced[hostURI], uri)
		delete(d.owners, uri)
	}
	clients := make(map[string]*Client, len(stale))
	for _, s := range stale {
		if c, ok := d.clients[s.lang]; ok {
			clients[s.uri] = c
		}
	}
	d.mu.Unlock()

	for uri, c := range clients {
		if err := c.CloseDocument(uri); err != nil {
			d.logger.Warn("Error closing virtual document", "uri", uri, "error", err)
		}
	}
}

func (d *Dispatcher) track(hostURI, uri, languageID string) {
	if hostURI == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.owners[uri] = hostURI
	if d.synced[hostURI] == nil {
		d.synced[hostURI] = make(map[string]string)
	}
	d.synced[hostURI][uri] = languageID
}

// client returns a live client for the language, starting one if needed.
// Concurrent callers share a single start.
func (d *Dispatcher) client(ctx context.Context, languageID string) (*Client, error) {
	d.mu.Lock()
	c, ok := d.clients[languageID]
	d.mu.Unlock()
	if ok {
		select {
		case <-c.Done():
			d.logger.Warn("Language server exited, restarting", "language", languageID, "error", c.Err())
		default:
			return c, nil
		}
	}

	server, ok := d.cfg.Server(languageID)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoServer, languageID)
	}

	v, err, _ := d.starting.Do(languageID, func() (any, error) {
		d.mu.Lock()
		if existing, ok := d.clients[languageID]; ok && existing != c {
			d.mu.Unlock()
			return existing, nil
		}
		d.mu.Unlock()

		d.logger.Info("Starting language server", "language", languageID, "command", server.Command)
		started, err := d.start(ctx, languageID, server, d.notifyFunc(languageID))
		if err != nil {
			return nil, err
		}

		d.mu.Lock()
		d.clients[languageID] = started
		// A restarted server has none of the old documents open.
		for host, uris := range d.synced {
			for uri, lang := range uris {
				if lang == languageID {
					delete(uris, uri)
					delete(d.owners, uri)
				}
			}
			if len(uris) == 0 {
				delete(d.synced, host)
			}
		}
		d.mu.Unlock()
		return started, nil
	})
	if err != nil {
		return nil, fmt.Errorf("start %s server: %w", languageID, err)
	}
	return v.(*Client), nil
}

func (d *Dispatcher) notifyFunc(languageID string) NotifyFunc {
	return func(method string, params json.RawMessage) {
		switch method {
		case "textDocument/publishDiagnostics":
			var p publishDiagnosticsParams
			if err := json.Unmarshal(params, &p); err != nil {
				d.logger.Warn("Invalid diagnostics from language server", "language", languageID, "error", err)
				return
			}
			d.mu.Lock()
			host, ok := d.owners[p.URI]
			d.mu.Unlock()
			if !ok || d.onDiagnostics == nil {
				return
			}
			d.onDiagnostics(host, languageID, p.Diagnostics)
		case "window/logMessage", "window/showMessage":
			d.logger.Debug("Language server message", "language", languageID, "params", string(params))
		}
	}
}

// Shutdown stops every running server.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	clients := make([]*Client, 0, len(d.clients))
	for _, c := range d.clients {
		clients = append(clients, c)
	}
	d.clients = make(map[string]*Client)
	d.mu.Unlock()

	eg, egctx := errgroup.WithContext(ctx)
	for _, c := range clients {
		eg.Go(func() error {
			if err := c.Shutdown(egctx); err != nil {
				return fmt.Errorf("shutdown %s server: %w", c.Language(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}
