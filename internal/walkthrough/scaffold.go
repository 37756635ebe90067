// Package walkthrough generates the "Hello, Quarto" starter document.
package walkthrough

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

// FileName is the default name of the generated document.
const FileName = "walkthrough.qmd"

//go:embed walkthrough.qmd.tmpl
var scaffoldSource string

var scaffoldTemplate = template.Must(template.New("walkthrough").Parse(scaffoldSource))

// Cell is the code cell shown in the scaffold.
type Cell struct {
	Lang   string
	Desc   string
	Code   string
	Suffix string
}

// Cells are the candidate code cells in order of preference.
var Cells = []Cell{
	{Lang: "python", Desc: "a Python", Code: "import os\nos.cpu_count()", Suffix: ":"},
	{Lang: "r", Desc: "an R", Code: "summary(cars)", Suffix: ":"},
	{Lang: "julia", Desc: "a Julia", Code: "1 + 1", Suffix: ":"},
}

const installHint = ".\n\nInstall a Python language server (pyright) to get completion\nand diagnostics in this cell."

// Choose returns the first cell whose language is available, or the python
// cell with an install hint.
func Choose(available func(lang string) bool) Cell {
	for _, c := range Cells {
		if available != nil && available(c.Lang) {
			return c
		}
	}
	fallback := Cells[0]
	fallback.Suffix = installHint
	return fallback
}

// Scaffold renders the starter document.
func Scaffold(available func(lang string) bool) (string, error) {
	return render(scaffoldTemplate, Choose(available))
}

func render(tmpl *template.Template, cell Cell) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, cell); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}
