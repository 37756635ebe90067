// Package dispatch forwards requests for embedded-language regions to each
// language's own language server.
//
// Virtual documents are line-aligned with their host, so results travel back
// unchanged: the dispatcher never rewrites positions.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/qmdls/internal/jsonrpc"
)

// ErrClientClosed is returned for calls on a client whose connection ended.
var ErrClientClosed = errors.New("language server connection closed")

// NotifyFunc receives notifications sent by an embedded server.
type NotifyFunc func(method string, params json.RawMessage)

// Client is a JSON-RPC connection to one embedded language server.
type Client struct {
	language string
	reader   *jsonrpc.Reader
	writer   *jsonrpc.Writer
	closer   io.Closer
	onNotify NotifyFunc
	logger   *slog.Logger

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[string]chan *jsonrpc.Message

	docsMu sync.Mutex
	docs   map[string]*openDoc

	done    chan struct{}
	doneErr error
}

// NewClient runs a client over r and w. closer, if set, is closed when the
// client shuts down.
func NewClient(language string, r io.Reader, w io.Writer, closer io.Closer, onNotify NotifyFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		language: language,
		reader:   jsonrpc.NewReader(r),
		writer:   jsonrpc.NewWriter(w),
		closer:   closer,
		onNotify: onNotify,
		logger:   logger.With("language", language),
		pending:  make(map[string]chan *jsonrpc.Message),
		docs:     make(map[string]*openDoc),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Language returns the language id the client serves.
func (c *Client) Language() string { return c.language }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, once Done is closed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneErr
}

func (c *Client) readLoop() {
	var err error
	defer func() {
		c.mu.Lock()
		c.doneErr = err
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		close(c.done)
		c.mu.Unlock()
	}()

	for {
		var msg *jsonrpc.Message
		msg, err = c.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("Language server disconnected")
			} else {
				c.logger.Warn("Error reading from language server", "error", err)
			}
			return
		}

		switch {
		case msg.IsResponse():
			c.deliver(msg)
		case msg.IsRequest():
			c.answerServerRequest(msg)
		case msg.IsNotification():
			if c.onNotify != nil {
				c.onNotify(msg.Method, msg.Params)
			}
		}
	}
}

func (c *Client) deliver(msg *jsonrpc.Message) {
	key := string(*msg.ID)
	c.mu.Lock()
	ch, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Dropping response for unknown request", "id", key)
		return
	}
	ch <- msg
}

// answerServerRequest replies to requests a server sends its client. Only
// the few that servers block on are meaningful here.
func (c *Client) answerServerRequest(msg *jsonrpc.Message) {
	var result any
	switch msg.Method {
	case "workspace/configuration":
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		result = make([]any, len(params.Items))
	case "window/workDoneProgress/create", "client/registerCapability",
		"client/unregisterCapability", "window/showMessageRequest":
		result = nil
	default:
		resp, _ := jsonrpc.NewResponse(msg.ID, nil, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "Method not found: %s", msg.Method))
		c.write(resp)
		return
	}
	resp, err := jsonrpc.NewResponse(msg.ID, result, nil)
	if err != nil {
		c.logger.Error("Error building reply", "method", msg.Method, "error", err)
		return
	}
	c.write(resp)
}

func (c *Client) write(msg *jsonrpc.Message) {
	if err := c.writer.Write(msg); err != nil {
		c.logger.Warn("Error writing to language server", "method", msg.Method, "error", err)
	}
}

// Call sends a request and waits for its raw result.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := jsonrpc.IntID(c.nextID.Add(1))
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan *jsonrpc.Message, 1)
	key := string(*id)
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, ErrClientClosed
	default:
	}
	c.pending[key] = ch
	c.mu.Unlock()

	if err := c.writer.Write(req); err != nil {
		c.forget(key)
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(key)
		_ = c.Notify("$/cancelRequest", map[string]json.RawMessage{"id": *id})
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *Client) forget(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

// Notify sends a notification.
func (c *Client) Notify(method string, params any) error {
	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return c.writer.Write(msg)
}

// Initialize performs the initialize handshake.
func (c *Client) Initialize(ctx context.Context, rootURI string, options map[string]any) error {
	params := initializeParams{
		ProcessID: nil,
		RootURI:   rootURI,
		Capabilities: json.RawMessage(`{"textDocument":{"completion":{"completionItem":{"snippetSupport":true}},` +
			`"hover":{"contentFormat":["markdown","plaintext"]},"publishDiagnostics":{}},"workspace":{"configuration":true}}`),
		InitializationOptions: options,
	}
	if _, err := c.Call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize %s server: %w", c.language, err)
	}
	return c.Notify("initialized", struct{}{})
}

type openDoc struct {
	version int32
	refs    int
}

// Sync opens uri in the server, or sends its new full text if it is open.
// Synced documents stay open until CloseDocument.
func (c *Client) Sync(uri, languageID, text string) error {
	return c.sync(uri, languageID, text, false)
}

// Acquire syncs uri for the duration of one request. Each Acquire must be
// paired with a Release; the last Release closes the document.
func (c *Client) Acquire(uri, languageID, text string) error {
	return c.sync(uri, languageID, text, true)
}

// sync holds docsMu while writing so didOpen for a uri always precedes its
// didChange and didClose.
func (c *Client) sync(uri, languageID, text string, acquire bool) error {
	c.docsMu.Lock()
	defer c.docsMu.Unlock()

	doc, open := c.docs[uri]
	if !open {
		doc = &openDoc{}
		c.docs[uri] = doc
	}
	doc.version++
	if acquire {
		doc.refs++
	}

	if !open {
		return c.Notify("textDocument/didOpen", didOpenParams{
			TextDocument: textDocumentItem{URI: uri, LanguageID: languageID, Version: doc.version, Text: text},
		})
	}
	return c.Notify("textDocument/didChange", didChangeParams{
		TextDocument:   versionedTextDocumentIdentifier{URI: uri, Version: doc.version},
		ContentChanges: []contentChange{{Text: text}},
	})
}

// Release ends a request started with Acquire.
func (c *Client) Release(uri string) error {
	c.docsMu.Lock()
	defer c.docsMu.Unlock()

	doc, open := c.docs[uri]
	if !open {
		return nil
	}
	doc.refs--
	if doc.refs > 0 {
		return nil
	}
	delete(c.docs, uri)
	return c.Notify("textDocument/didClose", didCloseParams{TextDocument: textDocumentIdentifier{URI: uri}})
}

// CloseDocument closes uri if it is open.
func (c *Client) CloseDocument(uri string) error {
	c.docsMu.Lock()
	defer c.docsMu.Unlock()

	if _, open := c.docs[uri]; !open {
		return nil
	}
	delete(c.docs, uri)
	return c.Notify("textDocument/didClose", didCloseParams{TextDocument: textDocumentIdentifier{URI: uri}})
}

// IsOpen reports whether uri is open in the server.
func (c *Client) IsOpen(uri string) bool {
	c.docsMu.Lock()
	defer c.docsMu.Unlock()
	_, ok := c.docs[uri]
	return ok
}

// Shutdown asks the server to exit and closes the connection.
func (c *Client) Shutdown(ctx context.Context) error {
	var err error
	select {
	case <-c.done:
	default:
		if _, callErr := c.Call(ctx, "shutdown", nil); callErr != nil && !errors.Is(callErr, ErrClientClosed) {
			err = callErr
		}
		_ = c.Notify("exit", nil)
	}
	if c.closer != nil {
		if closeErr := c.closer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
