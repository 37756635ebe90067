package vdoc

import (
	"strings"

	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/leapstack-labs/qmdls/internal/markdown"
)

// Document is a read-only host document snapshot.
type Document interface {
	LineCount() int
	Line(i int) string
}

// VirtualDoc is the projection of one embedded language. Content has exactly
// as many lines as the host it was projected from.
type VirtualDoc struct {
	Language *languages.EmbeddedLanguage
	Content  string
}

// Project builds the virtual document for the language of the block
// enclosing pos. It reports false when pos is not inside a registered block.
func (p *Projector) Project(doc Document, tokens []markdown.Token, pos Position) (*VirtualDoc, bool) {
	lang, ok := p.Locate(tokens, pos)
	if !ok {
		return nil, false
	}
	return p.ProjectLanguage(doc, tokens, lang), true
}

// ProjectLanguage builds the virtual document for lang from every block of
// that language in the document.
func (p *Projector) ProjectLanguage(doc Document, tokens []markdown.Token, lang *languages.EmbeddedLanguage) *VirtualDoc {
	n := doc.LineCount()
	lines := make([]string, n)

	for _, tok := range tokens {
		if !IsLanguageBlock(tok) || tok.Lines == nil {
			continue
		}
		if !lang.HasID(Classify(tok)) {
			continue
		}
		// Body lines only: skip both delimiter lines.
		for i := tok.Lines.Start + 1; i < tok.Lines.End-1 && i < n; i++ {
			if i < 0 {
				continue
			}
			lines[i] = doc.Line(i)
		}
	}

	if lang.Inject != "" && n > 0 {
		lines[0] = lang.Inject
	}

	return &VirtualDoc{Language: lang, Content: strings.Join(lines, "\n")}
}

// ProjectAll builds one virtual document per registered language present in
// the document, in order of first appearance.
func (p *Projector) ProjectAll(doc Document, tokens []markdown.Token) []*VirtualDoc {
	var (
		docs []*VirtualDoc
		seen = make(map[*languages.EmbeddedLanguage]bool)
	)
	for _, tok := range tokens {
		if !IsLanguageBlock(tok) || tok.Lines == nil {
			continue
		}
		lang, ok := p.registry.Lookup(Classify(tok))
		if !ok || seen[lang] {
			continue
		}
		seen[lang] = true
		docs = append(docs, p.ProjectLanguage(doc, tokens, lang))
	}
	return docs
}

// Lines is a Document over a slice of lines.
type Lines []string

// SplitLines splits text into a Lines document. A trailing newline yields a
// final empty line, matching how editors count lines.
func SplitLines(text string) Lines {
	return Lines(strings.Split(text, "\n"))
}

// LineCount implements Document.
func (l Lines) LineCount() int { return len(l) }

// Line implements Document. Out of range indexes give "".
func (l Lines) Line(i int) string {
	if i < 0 || i >= len(l) {
		return ""
	}
	return strings.TrimSuffix(l[i], "\r")
}
