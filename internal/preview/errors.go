// Package preview extracts source locations from the error output of a
// Quarto render, so an editor can jump to the failing line.
package preview

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrorLocation is a one-based line span in a source file.
type ErrorLocation struct {
	LineBegin int    `json:"lineBegin"`
	LineEnd   int    `json:"lineEnd"`
	File      string `json:"file"`
}

// Extractor finds an error location in render output. target is the file
// being previewed and dir the preview directory.
type Extractor func(output, target, dir string) (*ErrorLocation, bool)

var (
	luaPattern          = regexp.MustCompile(`Error running filter ([^:]+):\r?\n[^:]+:(\d+):`)
	knitrPattern        = regexp.MustCompile(`Quitting from lines (\d+)-(\d+) \(([^)]+)\)`)
	jupyterStartPattern = regexp.MustCompile(`An error occurred while executing the following cell:\s+(-{3,})\s`)
	jupyterLinePattern  = regexp.MustCompile(`(?s)^.+line (\d+)\)`)
	yamlPattern         = regexp.MustCompile(`\(ERROR\) Validation of YAML.*\n\(ERROR\) In file (.*?)\n\(line (\d+)`)
)

// Extractors lists the extractors in the order Locate tries them.
var Extractors = []Extractor{YAML, Jupyter, Knitr, Lua}

// Locate returns the first location any extractor finds.
func Locate(output, target, dir string) (*ErrorLocation, bool) {
	if dir == "" {
		dir = filepath.Dir(target)
	}
	for _, extract := range Extractors {
		if loc, ok := extract(output, target, dir); ok {
			return loc, true
		}
	}
	return nil, false
}

// Lua matches a failing Lua filter. Relative filter paths are resolved
// against the target's directory.
func Lua(output, target, _ string) (*ErrorLocation, bool) {
	m := luaPattern.FindStringSubmatch(output)
	if m == nil {
		return nil, false
	}
	line, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	file := m[1]
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(target), file)
	}
	return &ErrorLocation{LineBegin: line, LineEnd: line, File: file}, true
}

// Knitr matches knitr's "Quitting from lines" report.
func Knitr(output, target, _ string) (*ErrorLocation, bool) {
	m := knitrPattern.FindStringSubmatch(output)
	if m == nil {
		return nil, false
	}
	begin, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	end, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	return &ErrorLocation{
		LineBegin: begin,
		LineEnd:   end,
		File:      filepath.Join(filepath.Dir(target), m[3]),
	}, true
}

// Jupyter matches a failing notebook cell. The cell source is searched for
// in the target file and the reported cell line is offset by the cell's
// position there.
func Jupyter(output, target, _ string) (*ErrorLocation, bool) {
	cell, line, ok := jupyterCell(output)
	if !ok {
		return nil, false
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	src, err := os.ReadFile(target)
	if err != nil {
		return nil, false
	}
	text := normalizeNewlines(string(src))

	at := strings.Index(text, cell)
	if at < 0 {
		return nil, false
	}
	begin := strings.Count(text[:at], "\n") + line
	return &ErrorLocation{LineBegin: begin, LineEnd: begin, File: target}, true
}

// jupyterCell pulls the cell source between two identical dash rules and the
// last "line N)" after it.
func jupyterCell(output string) (string, int, bool) {
	loc := jupyterStartPattern.FindStringSubmatchIndex(output)
	if loc == nil {
		return "", 0, false
	}
	rule := output[loc[2]:loc[3]]
	rest := strings.TrimLeftFunc(output[loc[1]:], unicode.IsSpace)
	if rest == "" {
		return "", 0, false
	}

	closing := strings.Index(rest[1:], "\n"+rule)
	if closing < 0 {
		return "", 0, false
	}
	closing++
	cell := strings.TrimSuffix(rest[:closing], "\r")

	m := jupyterLinePattern.FindStringSubmatch(rest[closing+1+len(rule):])
	if m == nil {
		return "", 0, false
	}
	line, err := strconv.Atoi(m[1])
	if err != nil {
		return "", 0, false
	}
	return cell, line, true
}

// YAML matches a front matter or project file validation error. The file is
// relative to the preview directory.
func YAML(output, _, dir string) (*ErrorLocation, bool) {
	m := yamlPattern.FindStringSubmatch(output)
	if m == nil {
		return nil, false
	}
	line, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	return &ErrorLocation{LineBegin: line, LineEnd: line, File: filepath.Join(dir, m[1])}, true
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
