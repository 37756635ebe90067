package vdoc

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/leapstack-labs/qmdls/internal/markdown"
)

func testRegistry(t *testing.T) *languages.Registry {
	t.Helper()
	reg, err := languages.NewRegistry(
		&languages.EmbeddedLanguage{IDs: []string{"python"}, Strategy: languages.ContentAddressed{Ext: "py"}},
		&languages.EmbeddedLanguage{IDs: []string{"r"}, Strategy: languages.TempFileBacked{Ext: "r"}},
		&languages.EmbeddedLanguage{IDs: []string{"bash", "sh"}, Strategy: languages.ContentAddressed{Ext: "sh"}},
		&languages.EmbeddedLanguage{IDs: []string{languages.MathID, "tex"}, Strategy: languages.ContentAddressed{Ext: "tex"}},
	)
	require.NoError(t, err)
	return reg
}

// scenarioDoc is two python fences under a title.
func scenarioDoc() (Lines, []markdown.Token) {
	doc := Lines{"# T", "```python", "x = 1", "```", "", "```python", "y = 2", "```"}
	tokens := []markdown.Token{
		markdown.NewToken(markdown.KindOther, "", 0, 1),
		markdown.NewToken(markdown.KindFence, "python", 1, 4),
		markdown.NewToken(markdown.KindFence, "python", 5, 8),
	}
	return doc, tokens
}

func TestProject_Scenario(t *testing.T) {
	doc, tokens := scenarioDoc()
	p := NewProjector(testRegistry(t))

	vd, ok := p.Project(doc, tokens, Position{Line: 6})
	require.True(t, ok)

	assert.Equal(t, "python", vd.Language.ID())
	assert.Equal(t, []string{"", "", "x = 1", "", "", "", "y = 2", ""}, strings.Split(vd.Content, "\n"))
}

func TestProject_PositionIndependence(t *testing.T) {
	doc, tokens := scenarioDoc()
	p := NewProjector(testRegistry(t))

	first, ok := p.Project(doc, tokens, Position{Line: 2, Character: 3})
	require.True(t, ok)
	second, ok := p.Project(doc, tokens, Position{Line: 6})
	require.True(t, ok)

	assert.Equal(t, first.Content, second.Content)
}

func TestProject_OnlySameLanguage(t *testing.T) {
	doc := Lines{"```{python}", "a = 1", "```", "```{r}", "b <- 2", "```", "```python", "c = 3", "```"}
	tokens := []markdown.Token{
		markdown.NewToken(markdown.KindFence, "{python}", 0, 3),
		markdown.NewToken(markdown.KindFence, "{r}", 3, 6),
		markdown.NewToken(markdown.KindFence, "python", 6, 9),
	}
	p := NewProjector(testRegistry(t))

	vd, ok := p.Project(doc, tokens, Position{Line: 4})
	require.True(t, ok)
	assert.Equal(t, "r", vd.Language.ID())
	assert.Equal(t, []string{"", "", "", "", "b <- 2", "", "", "", ""}, strings.Split(vd.Content, "\n"))

	vd, ok = p.Project(doc, tokens, Position{Line: 7})
	require.True(t, ok)
	assert.Equal(t, []string{"", "a = 1", "", "", "", "", "", "c = 3", ""}, strings.Split(vd.Content, "\n"))
}

func TestProject_AliasesAggregate(t *testing.T) {
	doc := Lines{"```bash", "ls", "```", "```sh", "pwd", "```"}
	tokens := []markdown.Token{
		markdown.NewToken(markdown.KindFence, "bash", 0, 3),
		markdown.NewToken(markdown.KindFence, "{sh}", 3, 6),
	}
	p := NewProjector(testRegistry(t))

	vd, ok := p.Project(doc, tokens, Position{Line: 1})
	require.True(t, ok)
	assert.Equal(t, "\nls\n\n\npwd\n", vd.Content)
}

func TestProject_Absent(t *testing.T) {
	doc := Lines{"# T", "```cobol", "DISPLAY 'HI'.", "```", "", "text", "", "```python", "x", "```"}
	tokens := []markdown.Token{
		markdown.NewToken(markdown.KindOther, "", 0, 1),
		markdown.NewToken(markdown.KindFence, "cobol", 1, 4),
		markdown.NewToken(markdown.KindOther, "", 5, 6),
		markdown.NewToken(markdown.KindFence, "python", 7, 10),
	}
	p := NewProjector(testRegistry(t))

	tests := []struct {
		name string
		line int
	}{
		{name: "title", line: 0},
		{name: "unregistered language", line: 2},
		{name: "paragraph", line: 5},
		{name: "opening fence", line: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := p.Project(doc, tokens, Position{Line: tt.line})
			assert.False(t, ok)
		})
	}
}

func TestLocate_Boundaries(t *testing.T) {
	tokens := []markdown.Token{markdown.NewToken(markdown.KindFence, "python", 2, 5)}
	p := NewProjector(testRegistry(t))

	tests := []struct {
		line int
		want bool
	}{
		{line: 1, want: false},
		{line: 2, want: false},
		{line: 3, want: true},
		{line: 4, want: true},
		// The line after the closing fence still counts.
		{line: 5, want: true},
		{line: 6, want: false},
	}
	for _, tt := range tests {
		_, ok := p.Locate(tokens, Position{Line: tt.line})
		assert.Equal(t, tt.want, ok, "line %d", tt.line)
	}
}

func TestLocate_SkipsTokensWithoutLines(t *testing.T) {
	tokens := []markdown.Token{
		{Kind: markdown.KindFence, Info: "r"},
		markdown.NewToken(markdown.KindFence, "python", 0, 3),
	}
	lang, ok := NewProjector(testRegistry(t)).Locate(tokens, Position{Line: 1})
	require.True(t, ok)
	assert.Equal(t, "python", lang.ID())
}

func TestLocate_FirstMatchWins(t *testing.T) {
	// Adjacent blocks: the line after the first close is the second's
	// opening fence.
	tokens := []markdown.Token{
		markdown.NewToken(markdown.KindFence, "python", 0, 3),
		markdown.NewToken(markdown.KindFence, "r", 3, 6),
	}
	lang, ok := NewProjector(testRegistry(t)).Locate(tokens, Position{Line: 3})
	require.True(t, ok)
	assert.Equal(t, "python", lang.ID())
}

func TestInBlock(t *testing.T) {
	tokens := []markdown.Token{markdown.NewToken(markdown.KindFence, "cobol", 0, 3)}
	assert.True(t, InBlock(tokens, Position{Line: 1}))
	assert.False(t, InBlock(tokens, Position{Line: 0}))
	assert.False(t, InBlock(tokens, Position{Line: 4}))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		tok  markdown.Token
		want string
	}{
		{name: "plain", tok: markdown.Token{Kind: markdown.KindFence, Info: "python"}, want: "python"},
		{name: "braced", tok: markdown.Token{Kind: markdown.KindFence, Info: "{python}"}, want: "python"},
		{name: "dotted", tok: markdown.Token{Kind: markdown.KindFence, Info: "{.python}"}, want: "python"},
		{name: "double braces", tok: markdown.Token{Kind: markdown.KindFence, Info: "{{r}}"}, want: "r}"},
		{name: "attributes", tok: markdown.Token{Kind: markdown.KindFence, Info: "{r echo=false}"}, want: "r echo=false"},
		{name: "empty", tok: markdown.Token{Kind: markdown.KindFence}, want: ""},
		{name: "math", tok: markdown.Token{Kind: markdown.KindDisplayMath}, want: languages.MathID},
		{name: "math with info", tok: markdown.Token{Kind: markdown.KindDisplayMath, Info: "python"}, want: languages.MathID},
		{name: "other", tok: markdown.Token{Kind: markdown.KindOther, Info: "python"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.tok))
		})
	}
}

func TestProject_DisplayMath(t *testing.T) {
	doc := Lines{"Intro", "$$", "x^2", "$$ {#eq-a}", "", "$$", "y^2", "$$"}
	tokens := []markdown.Token{
		markdown.NewToken(markdown.KindOther, "", 0, 1),
		markdown.NewToken(markdown.KindDisplayMath, "{#eq-a}", 1, 4),
		markdown.NewToken(markdown.KindDisplayMath, "", 5, 8),
	}
	vd, ok := NewProjector(testRegistry(t)).Project(doc, tokens, Position{Line: 2})
	require.True(t, ok)
	assert.Equal(t, languages.MathID, vd.Language.ID())
	assert.Equal(t, "\n\nx^2\n\n\n\ny^2\n", vd.Content)
}

func TestProject_InjectClobbersLineZero(t *testing.T) {
	reg, err := languages.NewRegistry(&languages.EmbeddedLanguage{
		IDs:      []string{"python"},
		Strategy: languages.TempFileBacked{Ext: "py"},
		Inject:   "# type: ignore",
	})
	require.NoError(t, err)

	doc := Lines{"```python", "import os", "```"}
	tokens := []markdown.Token{
		// A block whose body would start at line 0.
		markdown.NewToken(markdown.KindFence, "python", -1, 3),
	}

	vd, ok := NewProjector(reg).Project(doc, tokens, Position{Line: 1})
	require.True(t, ok)
	assert.Equal(t, []string{"# type: ignore", "import os", ""}, strings.Split(vd.Content, "\n"))
}

func TestProject_LineCountPreserved(t *testing.T) {
	src := "# T\n\n```python\nx = 1\n```\n\nmore\n"
	doc := SplitLines(src)
	tokens, err := markdown.NewParser().Parse(context.Background(), []byte(src))
	require.NoError(t, err)

	vd, ok := NewProjector(testRegistry(t)).Project(doc, tokens, Position{Line: 3})
	require.True(t, ok)
	assert.Equal(t, doc.LineCount(), strings.Count(vd.Content, "\n")+1)
	assert.Equal(t, "x = 1", strings.Split(vd.Content, "\n")[3])
}

func TestProject_WithParser(t *testing.T) {
	src := "# T\n```python\nx = 1\n```\n\n```python\ny = 2\n```"
	tokens, err := markdown.NewParser().Parse(context.Background(), []byte(src))
	require.NoError(t, err)

	vd, ok := NewProjector(testRegistry(t)).Project(SplitLines(src), tokens, Position{Line: 6})
	require.True(t, ok)
	assert.Equal(t, []string{"", "", "x = 1", "", "", "", "y = 2", ""}, strings.Split(vd.Content, "\n"))
}

func TestProject_TruncatedDocument(t *testing.T) {
	// Token ranges past the end of the document are clipped.
	doc := Lines{"```python", "x = 1"}
	tokens := []markdown.Token{markdown.NewToken(markdown.KindFence, "python", 0, 4)}

	vd, ok := NewProjector(testRegistry(t)).Project(doc, tokens, Position{Line: 1})
	require.True(t, ok)
	assert.Equal(t, "\nx = 1", vd.Content)
}

func TestProjectAll(t *testing.T) {
	doc := Lines{"```r", "a", "```", "```python", "b", "```", "```r", "c", "```", "```cobol", "d", "```"}
	tokens := []markdown.Token{
		markdown.NewToken(markdown.KindFence, "r", 0, 3),
		markdown.NewToken(markdown.KindFence, "python", 3, 6),
		markdown.NewToken(markdown.KindFence, "r", 6, 9),
		markdown.NewToken(markdown.KindFence, "cobol", 9, 12),
	}

	docs := NewProjector(testRegistry(t)).ProjectAll(doc, tokens)
	require.Len(t, docs, 2)
	assert.Equal(t, "r", docs[0].Language.ID())
	assert.Equal(t, "\na\n\n\n\n\n\nc\n\n\n\n", docs[0].Content)
	assert.Equal(t, "python", docs[1].Language.ID())
}

func TestLines(t *testing.T) {
	l := SplitLines("a\r\nb\n")
	assert.Equal(t, 3, l.LineCount())
	assert.Equal(t, "a", l.Line(0))
	assert.Equal(t, "b", l.Line(1))
	assert.Equal(t, "", l.Line(2))
	assert.Equal(t, "", l.Line(9))
	assert.Equal(t, "", l.Line(-1))
}
