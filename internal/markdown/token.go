// Package markdown turns a Quarto markdown host document into an ordered
// token stream. Only block-level structure matters here: which lines belong
// to fenced code, which to display math, and which to everything else.
package markdown

// Kind tags a token. The set is closed; switch over it exhaustively.
type Kind int

const (
	// KindOther is any block that is not an embedded-language region.
	KindOther Kind = iota
	// KindFence is a fenced code block (``` or ~~~).
	KindFence
	// KindDisplayMath is a $$ ... $$ display math block.
	KindDisplayMath
)

// String returns the markdown-it style name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFence:
		return "fence"
	case KindDisplayMath:
		return "math_block"
	case KindOther:
		return "other"
	}
	return "unknown"
}

// LineRange is a half-open range of zero-based source lines [Start, End).
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line < r.End
}

// Token is one block of the host document.
type Token struct {
	Kind Kind
	// Info is the fence info string (e.g. "{python}"). For display math it
	// holds whatever trails the closing delimiter, which is ignored.
	Info string
	// Lines is nil when the token carries no source position.
	Lines *LineRange
}

// NewToken builds a token spanning [start, end).
func NewToken(kind Kind, info string, start, end int) Token {
	return Token{Kind: kind, Info: info, Lines: &LineRange{Start: start, End: end}}
}
