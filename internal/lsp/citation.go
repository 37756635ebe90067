package lsp

import (
	"strings"
	"unicode"

	"github.com/leapstack-labs/qmdls/internal/vdoc"
)

// citeBreakers may not appear between "@" and the cursor.
const citeBreakers = "@;[]!,"

// citationCompletions offers the front matter references for a citation
// being typed at pos. It returns nil when pos is not in a citation.
func (s *Server) citationCompletions(doc *Document, pos Position, trigger string) []CompletionItem {
	if doc == nil {
		return nil
	}
	start, ok := citationKeyStart(doc, pos, trigger)
	if !ok {
		return nil
	}
	// The typed part of the key is replaced by the chosen id.
	keyRange := Range{Start: Position{Line: pos.Line, Character: start}, End: pos}

	refs, err := doc.FrontMatter.References()
	if err != nil {
		s.logger.Debug("Ignoring front matter references", "uri", doc.URI, "error", err)
		return nil
	}

	items := make([]CompletionItem, 0, len(refs))
	for _, ref := range refs {
		items = append(items, CompletionItem{
			Label:    ref.ID,
			Kind:     CompletionItemKindReference,
			Detail:   ref.Title,
			TextEdit: &TextEdit{Range: keyRange, NewText: ref.ID},
		})
	}
	return items
}

// inCitation reports whether pos is right after an "@" citation key in
// markdown content.
func inCitation(doc *Document, pos Position, trigger string) bool {
	_, ok := citationKeyStart(doc, pos, trigger)
	return ok
}

// citationKeyStart returns the UTF-16 character where the citation key
// being typed at pos begins, just after its "@".
func citationKeyStart(doc *Document, pos Position, trigger string) (uint32, bool) {
	if trigger != "" && trigger != "@" {
		return 0, false
	}

	line := strings.TrimRightFunc(doc.GetLine(int(pos.Line)), unicode.IsSpace)
	if !strings.Contains(line, "@") {
		return 0, false
	}
	if !isContentPosition(doc, pos) {
		return 0, false
	}

	cursor := UTF16ToByteOffset(line, int(pos.Character))
	text := line[:cursor]
	at := strings.LastIndex(text, "@")
	space := strings.LastIndex(text, " ")
	if at < 0 || at < space {
		return 0, false
	}

	key := text[at+1:]
	if strings.ContainsAny(key, citeBreakers) || strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return 0, false
	}

	if cursor < len(line) {
		switch line[cursor] {
		case ';', ' ', ']':
		default:
			return 0, false
		}
	}
	return uint32(ByteToUTF16Offset(line, at+1)), true
}

// isContentPosition reports whether pos is in markdown prose, outside every
// language block and the front matter.
func isContentPosition(doc *Document, pos Position) bool {
	if doc.FrontMatter != nil && doc.FrontMatter.Lines.Contains(int(pos.Line)) {
		return false
	}
	return !vdoc.InBlock(doc.Tokens, toVDocPosition(pos))
}
