// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/qmdls/internal/cli/output"
)

// SampleDocument is a small Quarto document with python, display math and
// r regions. Blocks span lines 6-9, 13-15 and 17-19 (zero-based).
const SampleDocument = "---\n" +
	"title: Sample\n" +
	"---\n" +
	"\n" +
	"# Analysis\n" +
	"\n" +
	"```{python}\n" +
	"import os\n" +
	"os.getcwd()\n" +
	"```\n" +
	"\n" +
	"Some prose.\n" +
	"\n" +
	"$$\n" +
	"E = mc^2\n" +
	"$$\n" +
	"\n" +
	"```{r}\n" +
	"summary(cars)\n" +
	"```\n"

// SetupQmdProject creates a temporary project holding qmdls.yaml and
// SampleDocument as doc.qmd. It returns the project directory.
func SetupQmdProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := `servers:
  python:
    command: [qmdls-test-missing-pyright, --stdio]
`
	if err := os.WriteFile(filepath.Join(tmpDir, "qmdls.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to create qmdls.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "doc.qmd"), []byte(SampleDocument), 0644); err != nil {
		t.Fatalf("failed to create doc.qmd: %v", err)
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererAuto creates a new test renderer with auto mode detection.
// In tests, non-TTY defaults to markdown output.
func NewTestRendererAuto() *TestRenderer {
	return NewTestRenderer(output.ModeAuto, false)
}

// Output returns the combined stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContains checks that the string contains the expected substring.
func AssertContains(t *testing.T, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("string %q does not contain expected %q", s, expected)
	}
}

// AssertNotContains checks that the string does not contain the substring.
func AssertNotContains(t *testing.T, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("string %q unexpectedly contains %q", s, unexpected)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and basic structure.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	// Check for balanced code fences
	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	// Check that headers have content
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
