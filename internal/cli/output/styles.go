package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolWarning = "!"
	SymbolFailed  = "✗"
)

// Styles holds the lipgloss styles used for text output.
type Styles struct {
	Header1       lipgloss.Style
	Header2       lipgloss.Style
	Muted         lipgloss.Style
	Bold          lipgloss.Style
	Success       lipgloss.Style
	Warning       lipgloss.Style
	Error         lipgloss.Style
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
}

// DefaultStyles returns the colored styles used on a terminal. Colors are
// resolved against out, which is treated as a terminal.
func DefaultStyles(out io.Writer) Styles {
	r := lipgloss.NewRenderer(out, termenv.WithTTY(true))
	return Styles{
		Header1:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Underline(true),
		Header2:       r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Muted:         r.NewStyle().Foreground(lipgloss.Color("8")),
		Bold:          r.NewStyle().Bold(true),
		Success:       r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:       r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:         r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		StatusSuccess: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		StatusFailed:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header1:       plain,
		Header2:       plain,
		Muted:         plain,
		Bold:          plain,
		Success:       plain,
		Warning:       plain,
		Error:         plain,
		StatusSuccess: plain,
		StatusFailed:  plain,
	}
}
