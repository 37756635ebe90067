package lsp

import (
	"strings"
	"sync"

	"github.com/leapstack-labs/qmdls/internal/markdown"
)

// Document is an immutable snapshot of an open Quarto document. Updates
// replace the snapshot, so a request holding one sees a consistent
// content, token and version triple.
type Document struct {
	URI     string // Document URI (file:///path/to/file.qmd)
	Content string // Full document content
	Version int    // Version number, incremented on each change
	Lines   []int  // Byte offsets of line starts for fast position lookups

	// Tokens is the block structure of Content.
	Tokens []markdown.Token
	// FrontMatter is nil when the document has none.
	FrontMatter *markdown.FrontMatter
}

// NewDocument builds a snapshot.
func NewDocument(uri, content string, version int, tokens []markdown.Token) *Document {
	fm, _ := markdown.SplitFrontMatter(content)
	return &Document{
		URI:         uri,
		Content:     content,
		Version:     version,
		Lines:       computeLineOffsets(content),
		Tokens:      tokens,
		FrontMatter: fm,
	}
}

// DocumentStore manages open documents in memory.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*Document
}

// NewDocumentStore creates a new document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]*Document),
	}
}

// Open adds or replaces a document in the store.
func (s *DocumentStore) Open(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[doc.URI] = doc
}

// Close removes a document from the store.
func (s *DocumentStore) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, uri)
}

// Get retrieves a document by URI.
func (s *DocumentStore) Get(uri string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.documents[uri]
}

// Update replaces an open document's snapshot. Stale versions and unknown
// documents are ignored; it reports whether the snapshot was stored.
func (s *DocumentStore) Update(doc *Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.documents[doc.URI]
	if !ok || doc.Version < cur.Version {
		return false
	}
	s.documents[doc.URI] = doc
	return true
}

// List returns all open document URIs.
func (s *DocumentStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uris := make([]string, 0, len(s.documents))
	for uri := range s.documents {
		uris = append(uris, uri)
	}
	return uris
}

// computeLineOffsets calculates byte offsets for each line start.
func computeLineOffsets(content string) []int {
	offsets := []int{0} // First line starts at offset 0

	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}

	return offsets
}

// LineCount returns the number of lines. A trailing newline starts a final
// empty line.
func (d *Document) LineCount() int {
	return len(d.Lines)
}

// Line returns the text of a line without its terminator.
func (d *Document) Line(line int) string {
	return d.GetLine(line)
}

// GetLine returns the content of a specific line.
func (d *Document) GetLine(line int) string {
	if d == nil || line < 0 || line >= len(d.Lines) {
		return ""
	}

	start := d.Lines[line]
	end := len(d.Content)

	if line+1 < len(d.Lines) {
		end = d.Lines[line+1] - 1 // Exclude newline
		if end < start {
			end = start
		}
	}

	return strings.TrimSuffix(d.Content[start:end], "\r")
}

// PositionToOffset converts a Position to a byte offset in the document.
// Characters are UTF-16 code units, as in the protocol.
func (d *Document) PositionToOffset(pos Position) int {
	if d == nil || len(d.Lines) == 0 {
		return 0
	}

	line := int(pos.Line)
	if line >= len(d.Lines) {
		return len(d.Content)
	}

	return d.Lines[line] + UTF16ToByteOffset(d.GetLine(line), int(pos.Character))
}

// GetTextInRange returns the text within a range.
func (d *Document) GetTextInRange(r Range) string {
	start := d.PositionToOffset(r.Start)
	end := d.PositionToOffset(r.End)
	if start >= end || start >= len(d.Content) {
		return ""
	}
	return d.Content[start:end]
}

// UTF16ToByteOffset converts a UTF-16 column within line to a byte offset,
// clamped to the line length.
func UTF16ToByteOffset(line string, character int) int {
	units := 0
	for i, r := range line {
		if units >= character {
			return i
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return len(line)
}

// ByteToUTF16Offset is the inverse of UTF16ToByteOffset.
func ByteToUTF16Offset(line string, offset int) int {
	units := 0
	for i, r := range line {
		if i >= offset {
			break
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return units
}
