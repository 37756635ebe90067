package walkthrough

import (
	"context"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qmdls/internal/markdown"
	"github.com/leapstack-labs/qmdls/internal/vdoc"
)

func only(langs ...string) func(string) bool {
	return func(lang string) bool {
		for _, l := range langs {
			if l == lang {
				return true
			}
		}
		return false
	}
}

func TestChoose(t *testing.T) {
	tests := []struct {
		name      string
		available func(string) bool
		want      string
		hint      bool
	}{
		{name: "python first", available: only("julia", "python"), want: "python"},
		{name: "r", available: only("r", "julia"), want: "r"},
		{name: "julia", available: only("julia"), want: "julia"},
		{name: "none", available: only(), want: "python", hint: true},
		{name: "nil", available: nil, want: "python", hint: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell := Choose(tt.available)
			assert.Equal(t, tt.want, cell.Lang)
			assert.Equal(t, tt.hint, strings.Contains(cell.Suffix, "Install"))
		})
	}
}

func TestScaffold(t *testing.T) {
	doc, err := Scaffold(only("r"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc, "---\ntitle: \"Hello, Quarto\"\n"))
	assert.Contains(t, doc, "Here is an R code cell:")
	assert.Contains(t, doc, "```{r}\nsummary(cars)\n```")
	assert.Contains(t, doc, "$$\n\\chi' = \\sum_{i=1}^n k_i s_i^2\n$$")
}

func TestScaffold_Blocks(t *testing.T) {
	src, err := Scaffold(only("julia"))
	require.NoError(t, err)
	tokens, err := markdown.NewParser().Parse(context.Background(), []byte(src))
	require.NoError(t, err)

	var langs []string
	for _, tok := range tokens {
		if vdoc.IsLanguageBlock(tok) {
			langs = append(langs, vdoc.Classify(tok))
		}
	}
	assert.Equal(t, []string{"julia", "latex"}, langs)
}

func TestRender_ExecuteError(t *testing.T) {
	bad := template.Must(template.New("broken").Parse("{{.Missing}}"))

	out, err := render(bad, Cell{Lang: "python"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render broken")
	assert.Empty(t, out)
}
