// Package main provides tests for the qmdls CLI.
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/qmdls/internal/cli"
	"github.com/leapstack-labs/qmdls/internal/cli/testutil"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "", "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "qmdls") {
		t.Errorf("version output should contain 'qmdls', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	output, err := execute(t, "", "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"lsp", "blocks", "vdoc", "preview-errors", "new", "doctor", "languages", "completion"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestBlocksCommand(t *testing.T) {
	dir := testutil.SetupQmdProject(t)

	output, err := execute(t, "", "blocks", filepath.Join(dir, "doc.qmd"), "--project-dir", dir, "-o", "json")
	if err != nil {
		t.Fatalf("blocks command error = %v", err)
	}

	var blocks []struct {
		Kind      string `json:"kind"`
		Language  string `json:"language"`
		StartLine int    `json:"start_line"`
		EndLine   int    `json:"end_line"`
	}
	if err := json.Unmarshal([]byte(output), &blocks); err != nil {
		t.Fatalf("blocks output is not JSON: %v\n%s", err, output)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %s", len(blocks), output)
	}
	if blocks[0].Language != "python" || blocks[0].StartLine != 7 || blocks[0].EndLine != 10 {
		t.Errorf("unexpected first block %+v", blocks[0])
	}
	if blocks[1].Kind != "math_block" || blocks[1].Language != "latex" {
		t.Errorf("unexpected math block %+v", blocks[1])
	}
}

func TestVDocCommand(t *testing.T) {
	dir := testutil.SetupQmdProject(t)

	output, err := execute(t, "", "vdoc", filepath.Join(dir, "doc.qmd"), "--line", "19", "-o", "text")
	if err != nil {
		t.Fatalf("vdoc command error = %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(output, "\n"), "\n")
	if len(lines) != 21 {
		t.Fatalf("expected 21 lines, got %d: %q", len(lines), output)
	}
	if lines[18] != "summary(cars)" {
		t.Errorf("expected r code on line 19, got %q", lines[18])
	}
	if lines[7] != "" {
		t.Errorf("expected python line to be blank in the r document, got %q", lines[7])
	}
}

func TestVDocCommand_OutsideBlock(t *testing.T) {
	dir := testutil.SetupQmdProject(t)

	_, err := execute(t, "", "vdoc", filepath.Join(dir, "doc.qmd"), "--line", "12")
	if err == nil || !strings.Contains(err.Error(), "not inside a registered language block") {
		t.Errorf("expected outside-block error, got %v", err)
	}
}

func TestPreviewErrorsCommand(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.qmd")
	log := "processing file: report.qmd\nQuitting from lines 12-15 (report.qmd)\n"

	output, err := execute(t, log, "preview-errors", "--target", target, "-o", "text")
	if err != nil {
		t.Fatalf("preview-errors command error = %v", err)
	}
	expected := filepath.Join(dir, "report.qmd") + ":12-15\n"
	if output != expected {
		t.Errorf("expected %q, got %q", expected, output)
	}

	if _, err := execute(t, "all good\n", "preview-errors", "--target", target); err == nil {
		t.Error("expected an error when the log has no location")
	}
}

func TestNewCommand(t *testing.T) {
	dir := testutil.SetupQmdProject(t)

	output, err := execute(t, "", "new", dir)
	if err != nil {
		t.Fatalf("new command error = %v", err)
	}
	if !strings.Contains(output, "walkthrough.qmd") {
		t.Errorf("expected created path in output, got %q", output)
	}

	content, err := os.ReadFile(filepath.Join(dir, "walkthrough.qmd"))
	if err != nil {
		t.Fatalf("walkthrough not written: %v", err)
	}
	if !strings.Contains(string(content), "$$") {
		t.Errorf("expected display math in walkthrough, got %s", content)
	}

	if _, err := execute(t, "", "new", dir); err == nil {
		t.Error("expected an error when the walkthrough exists")
	}
}

func TestLanguagesCommand(t *testing.T) {
	dir := testutil.SetupQmdProject(t)

	output, err := execute(t, "", "languages", "--project-dir", dir, "-o", "markdown")
	if err != nil {
		t.Fatalf("languages command error = %v", err)
	}
	for _, want := range []string{"| python |", "qmdls-test-missing-pyright", "tempfile"} {
		if !strings.Contains(output, want) {
			t.Errorf("languages output should contain %q, got: %s", want, output)
		}
	}
}

func TestCompletionCommand(t *testing.T) {
	output, err := execute(t, "", "completion", "bash")
	if err != nil {
		t.Fatalf("completion command error = %v", err)
	}
	if !strings.Contains(output, "qmdls") {
		t.Errorf("expected bash completion for qmdls, got %d bytes", len(output))
	}
}
