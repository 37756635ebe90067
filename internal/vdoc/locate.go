// Package vdoc projects embedded-language regions of a Quarto document into
// line-aligned virtual documents and resolves them to addresses that an
// embedded language server can open.
//
// A virtual document always has the same number of lines as its host, so a
// position reported against it is valid in the host without translation.
package vdoc

import (
	"regexp"

	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/leapstack-labs/qmdls/internal/markdown"
)

var (
	leadingNonWord  = regexp.MustCompile(`^\W*`)
	trailingNonWord = regexp.MustCompile(`\W$`)
)

// Position is a zero-based line and character in the host document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Registry resolves a classified identifier to a language descriptor.
type Registry interface {
	Lookup(id string) (*languages.EmbeddedLanguage, bool)
}

// IsLanguageBlock reports whether tok can hold embedded-language content.
func IsLanguageBlock(tok markdown.Token) bool {
	switch tok.Kind {
	case markdown.KindFence, markdown.KindDisplayMath:
		return true
	case markdown.KindOther:
		return false
	}
	return false
}

// Classify returns the language identifier of a language block. Display math
// is always latex; fences use their info string with surrounding punctuation
// removed, so both "{python}" and "python" give "python".
func Classify(tok markdown.Token) string {
	switch tok.Kind {
	case markdown.KindDisplayMath:
		return languages.MathID
	case markdown.KindFence:
		id := leadingNonWord.ReplaceAllString(tok.Info, "")
		return trailingNonWord.ReplaceAllString(id, "")
	case markdown.KindOther:
		return ""
	}
	return ""
}

// Projector locates language blocks and projects virtual documents. It holds
// no mutable state and is safe for concurrent use.
type Projector struct {
	registry Registry
}

// NewProjector returns a projector resolving identifiers through reg.
func NewProjector(reg Registry) *Projector {
	return &Projector{registry: reg}
}

// Locate returns the language of the first block enclosing pos. A block
// encloses every line after its opening delimiter up to and including the
// line that follows its closing delimiter.
func (p *Projector) Locate(tokens []markdown.Token, pos Position) (*languages.EmbeddedLanguage, bool) {
	tok, ok := enclosingBlock(tokens, pos)
	if !ok {
		return nil, false
	}
	return p.registry.Lookup(Classify(tok))
}

// InBlock reports whether pos falls inside any language block, registered
// or not.
func InBlock(tokens []markdown.Token, pos Position) bool {
	_, ok := enclosingBlock(tokens, pos)
	return ok
}

func enclosingBlock(tokens []markdown.Token, pos Position) (markdown.Token, bool) {
	for _, tok := range tokens {
		if !IsLanguageBlock(tok) || tok.Lines == nil {
			continue
		}
		if pos.Line > tok.Lines.Start && pos.Line <= tok.Lines.End {
			return tok, true
		}
	}
	return markdown.Token{}, false
}
