package vdoc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ContentScheme is the URI scheme of content-addressed virtual documents.
const ContentScheme = "qmd-embedded-content"

// ErrNotContentURI is returned when decoding anything that is not a content
// address.
var ErrNotContentURI = errors.New("not a content-addressed virtual document uri")

// ContentAddress is the decoded form of a content URI.
type ContentAddress struct {
	Language  string
	Parent    string
	Extension string
	Content   string
}

// EncodeContentURI builds an address that carries the virtual document
// itself:
//
//	qmd-embedded-content://<lang>/<escaped parent>.<ext>?<escaped content>
func EncodeContentURI(lang, content, parent, ext string) string {
	var b strings.Builder
	b.WriteString(ContentScheme)
	b.WriteString("://")
	b.WriteString(url.PathEscape(lang))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(parent))
	b.WriteByte('.')
	b.WriteString(url.PathEscape(ext))
	b.WriteByte('?')
	b.WriteString(url.QueryEscape(content))
	return b.String()
}

// DecodeContentURI reverses EncodeContentURI exactly.
func DecodeContentURI(uri string) (ContentAddress, error) {
	rest, ok := strings.CutPrefix(uri, ContentScheme+"://")
	if !ok {
		return ContentAddress{}, ErrNotContentURI
	}

	rest, rawContent, _ := strings.Cut(rest, "?")
	rawLang, rawPath, ok := strings.Cut(rest, "/")
	if !ok {
		return ContentAddress{}, fmt.Errorf("%w: missing path", ErrNotContentURI)
	}
	dot := strings.LastIndexByte(rawPath, '.')
	if dot < 0 {
		return ContentAddress{}, fmt.Errorf("%w: missing extension", ErrNotContentURI)
	}

	var (
		addr ContentAddress
		err  error
	)
	if addr.Language, err = url.PathUnescape(rawLang); err != nil {
		return ContentAddress{}, fmt.Errorf("decode language: %w", err)
	}
	if addr.Parent, err = url.PathUnescape(rawPath[:dot]); err != nil {
		return ContentAddress{}, fmt.Errorf("decode parent: %w", err)
	}
	if addr.Extension, err = url.PathUnescape(rawPath[dot+1:]); err != nil {
		return ContentAddress{}, fmt.Errorf("decode extension: %w", err)
	}
	if addr.Content, err = url.QueryUnescape(rawContent); err != nil {
		return ContentAddress{}, fmt.Errorf("decode content: %w", err)
	}
	return addr, nil
}

// IsContentURI reports whether uri uses the content scheme.
func IsContentURI(uri string) bool {
	return strings.HasPrefix(uri, ContentScheme+"://")
}
