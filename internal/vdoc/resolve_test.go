package vdoc

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qmdls/internal/languages"
)

type failingMaterializer struct{ err error }

func (f failingMaterializer) Materialize(context.Context, string, string, string, string) (string, error) {
	return "", f.err
}

func TestResolver_ContentAddressed(t *testing.T) {
	lang := &languages.EmbeddedLanguage{IDs: []string{"julia"}, Strategy: languages.ContentAddressed{Ext: "jl"}}
	vd := &VirtualDoc{Language: lang, Content: "\n1 + 1\n"}

	// No store: content addresses never need one.
	uri, err := NewResolver(nil).Resolve(context.Background(), vd, parentURI)
	require.NoError(t, err)

	addr, err := DecodeContentURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "julia", addr.Language)
	assert.Equal(t, "jl", addr.Extension)
	assert.Equal(t, parentURI, addr.Parent)
	assert.Equal(t, vd.Content, addr.Content)
}

func TestResolver_TempFileBacked(t *testing.T) {
	store := NewTempFileStore(t.TempDir())
	lang := &languages.EmbeddedLanguage{IDs: []string{"r"}, Strategy: languages.TempFileBacked{Ext: "r"}}
	r := NewResolver(store)
	ctx := context.Background()

	uri, err := r.Resolve(ctx, &VirtualDoc{Language: lang, Content: "x <- 1"}, parentURI)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	u, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, store.Path(parentURI, "r", "r"), u.Path)

	data, err := os.ReadFile(u.Path)
	require.NoError(t, err)
	assert.Equal(t, "x <- 1", string(data))

	// A second request sees the new content, not a stale file.
	_, err = r.Resolve(ctx, &VirtualDoc{Language: lang, Content: "x <- 2"}, parentURI)
	require.NoError(t, err)
	data, err = os.ReadFile(u.Path)
	require.NoError(t, err)
	assert.Equal(t, "x <- 2", string(data))
}

func TestResolver_TempFileFailure(t *testing.T) {
	lang := &languages.EmbeddedLanguage{IDs: []string{"python"}, Strategy: languages.TempFileBacked{Ext: "py"}}
	boom := errors.New("disk full")

	_, err := NewResolver(failingMaterializer{err: boom}).Resolve(context.Background(), &VirtualDoc{Language: lang}, parentURI)
	assert.ErrorIs(t, err, boom)

	_, err = NewResolver(nil).Resolve(context.Background(), &VirtualDoc{Language: lang}, parentURI)
	assert.Error(t, err)
}

func TestPathToURI(t *testing.T) {
	tests := []struct {
		path string
		uri  string
	}{
		{"/home/user/doc.qmd", "file:///home/user/doc.qmd"},
		{"/tmp/a b/x.py", "file:///tmp/a%20b/x.py"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.uri, PathToURI(tt.path))
		assert.Equal(t, tt.path, URIToPath(tt.uri))
	}

	assert.Equal(t, "file:///a.qmd", PathToURI("file:///a.qmd"))
	assert.Equal(t, "untitled:Untitled-1", URIToPath("untitled:Untitled-1"))
}

func TestPathToURI_MatchesHostIdentity(t *testing.T) {
	// The host URI built by the CLI and the one built by the server for the
	// same path must hash to the same temp-file directory.
	store := NewTempFileStore(t.TempDir())
	ctx := context.Background()

	a, err := store.Materialize(ctx, PathToURI("/w/doc.qmd"), "python", "py", "x")
	require.NoError(t, err)
	b, err := store.Materialize(ctx, PathToURI(PathToURI("/w/doc.qmd")), "python", "py", "x")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
