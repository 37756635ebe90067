package preview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLua(t *testing.T) {
	output := "pandoc\nError running filter filters/wordcount.lua:\nfilters/wordcount.lua:12: attempt to index a nil value\n"

	loc, ok := Lua(output, "/proj/doc.qmd", "/proj")
	require.True(t, ok)
	assert.Equal(t, &ErrorLocation{LineBegin: 12, LineEnd: 12, File: "/proj/filters/wordcount.lua"}, loc)

	abs := "Error running filter /opt/f.lua:\r\n/opt/f.lua:3: boom"
	loc, ok = Lua(abs, "/proj/doc.qmd", "/proj")
	require.True(t, ok)
	assert.Equal(t, "/opt/f.lua", loc.File)
	assert.Equal(t, 3, loc.LineBegin)

	_, ok = Lua("all good", "/proj/doc.qmd", "/proj")
	assert.False(t, ok)
}

func TestKnitr(t *testing.T) {
	output := "Error in foo(): could not find function\nQuitting from lines 14-18 (report.rmarkdown)\nExecution halted"

	loc, ok := Knitr(output, "/proj/sub/report.qmd", "/proj")
	require.True(t, ok)
	assert.Equal(t, &ErrorLocation{LineBegin: 14, LineEnd: 18, File: "/proj/sub/report.rmarkdown"}, loc)
}

func TestYAML(t *testing.T) {
	output := "(ERROR) Validation of YAML front matter failed.\n(ERROR) In file chapter.qmd\n(line 3, columns 8--12) Field format has value htm"

	loc, ok := YAML(output, "/proj/chapter.qmd", "/proj")
	require.True(t, ok)
	assert.Equal(t, &ErrorLocation{LineBegin: 3, LineEnd: 3, File: "/proj/chapter.qmd"}, loc)
}

func TestJupyter(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nb.qmd")
	src := "---\ntitle: nb\n---\n\n```{python}\nx = 1\ny = x / 0\n```\n"
	require.NoError(t, os.WriteFile(target, []byte(src), 0o644))

	output := "An error occurred while executing the following cell:\n" +
		"------------------\n" +
		"x = 1\ny = x / 0\n" +
		"------------------\n\n" +
		"ZeroDivisionError                         Traceback (most recent call last)\n" +
		"Cell In[1], line 2)\n"

	loc, ok := Jupyter(output, target, dir)
	require.True(t, ok)
	// The cell starts on line 6 of the document; line 2 of the cell is line 7.
	assert.Equal(t, &ErrorLocation{LineBegin: 7, LineEnd: 7, File: target}, loc)
}

func TestJupyter_NoMatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nb.qmd")
	require.NoError(t, os.WriteFile(target, []byte("```{python}\nprint(1)\n```\n"), 0o644))

	tests := []struct {
		name   string
		output string
		target string
	}{
		{name: "no header", output: "Traceback\nline 2)", target: target},
		{name: "unclosed cell", output: "An error occurred while executing the following cell:\n---\nx = 1\n", target: target},
		{name: "cell not in file", output: "An error occurred while executing the following cell:\n---\nz = 9\n---\nline 1)", target: target},
		{name: "missing target", output: "An error occurred while executing the following cell:\n---\nprint(1)\n---\nline 1)", target: filepath.Join(dir, "gone.qmd")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Jupyter(tt.output, tt.target, dir)
			assert.False(t, ok)
		})
	}
}

func TestJupyterCell_CRLF(t *testing.T) {
	output := "An error occurred while executing the following cell:\r\n----\r\nprint(1)\r\n----\r\nline 4)"
	cell, line, ok := jupyterCell(output)
	require.True(t, ok)
	assert.Equal(t, "print(1)", cell)
	assert.Equal(t, 4, line)
}

func TestLocate_Order(t *testing.T) {
	// Both a yaml and a knitr report: yaml wins.
	output := "Quitting from lines 1-2 (a.qmd)\n(ERROR) Validation of YAML options failed\n(ERROR) In file _quarto.yml\n(line 9"

	loc, ok := Locate(output, "/proj/a.qmd", "")
	require.True(t, ok)
	assert.Equal(t, "/proj/_quarto.yml", loc.File)
	assert.Equal(t, 9, loc.LineBegin)

	_, ok = Locate("rendering complete", "/proj/a.qmd", "")
	assert.False(t, ok)
}
