package vdoc

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/qmdls/internal/languages"
)

// Materializer writes a virtual document to disk and returns its path.
type Materializer interface {
	Materialize(ctx context.Context, parent, lang, ext, content string) (string, error)
}

// Resolver turns virtual documents into addresses according to each
// language's strategy.
type Resolver struct {
	files Materializer
}

// NewResolver returns a resolver that writes temp-file backed documents
// through files.
func NewResolver(files Materializer) *Resolver {
	return &Resolver{files: files}
}

// Resolve returns the address of vd. Content-addressed documents never touch
// the disk; temp-file backed documents are rewritten on every call.
func (r *Resolver) Resolve(ctx context.Context, vd *VirtualDoc, parent string) (string, error) {
	lang := vd.Language
	switch s := lang.Strategy.(type) {
	case languages.ContentAddressed:
		return EncodeContentURI(lang.ID(), vd.Content, parent, s.Ext), nil
	case languages.TempFileBacked:
		if r.files == nil {
			return "", fmt.Errorf("no temp file store for %s", lang.ID())
		}
		path, err := r.files.Materialize(ctx, parent, lang.ID(), s.Ext, vd.Content)
		if err != nil {
			return "", err
		}
		return PathToURI(path), nil
	}
	return "", fmt.Errorf("unknown materialization strategy %T", lang.Strategy)
}

// PathToURI converts an absolute file path to a file:// URI. A value that
// is already a file URI is returned unchanged.
func PathToURI(path string) string {
	if strings.HasPrefix(path, fileScheme) {
		return path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	if len(u.Path) > 0 && u.Path[0] != '/' {
		u.Path = "/" + u.Path
	}
	return u.String()
}

// URIToPath converts a file:// URI back to a file system path. Other URIs
// are returned unchanged.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, fileScheme) {
		return uri
	}
	p := uri[len(fileScheme):]
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		p = u.Path
	}
	// file:///C:/x has the path /C:/x.
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

const fileScheme = "file://"
