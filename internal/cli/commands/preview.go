package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/qmdls/internal/cli/config"
	"github.com/leapstack-labs/qmdls/internal/cli/output"
	"github.com/leapstack-labs/qmdls/internal/preview"
	"github.com/spf13/cobra"
)

// ErrNoErrorLocation is returned when the render output holds no location.
var ErrNoErrorLocation = errors.New("no error location found")

// PreviewErrorsOptions holds options for the preview-errors command.
type PreviewErrorsOptions struct {
	Target string
	Dir    string
	Format string
}

// NewPreviewErrorsCommand creates the preview-errors command.
func NewPreviewErrorsCommand() *cobra.Command {
	opts := &PreviewErrorsOptions{}
	cmd := &cobra.Command{
		Use:   "preview-errors [log]",
		Short: "Find the source location of a render error",
		Long: `Scan the output of quarto render or quarto preview for a known error
report and print the file and one-based line span it points at.

Recognized reports: YAML validation errors, failing Jupyter cells, knitr
chunk errors and Lua filter errors. The output is read from the log file
argument, or from stdin when there is none.`,
		Example: `  # From a saved log
  qmdls preview-errors --target report.qmd render.log

  # Straight from quarto
  quarto render report.qmd 2>&1 | qmdls preview-errors --target report.qmd`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreviewErrors(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "File being rendered (required)")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "Preview directory (default: the target's directory)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runPreviewErrors(cmd *cobra.Command, args []string, opts *PreviewErrorsOptions) error {
	var (
		log []byte
		err error
	)
	if len(args) == 1 && args[0] != "-" {
		log, err = os.ReadFile(args[0])
	} else {
		log, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read render output: %w", err)
	}

	target, err := filepath.Abs(opts.Target)
	if err != nil {
		return err
	}
	dir := opts.Dir
	if dir != "" {
		if dir, err = filepath.Abs(dir); err != nil {
			return err
		}
	}

	loc, ok := preview.Locate(string(log), target, dir)
	if !ok {
		return ErrNoErrorLocation
	}

	cfg := config.GetConfig(cmd.Context())
	r := newRenderer(cmd, cfg, opts.Format)
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(loc)
	case output.ModeMarkdown:
		r.Println(output.FormatKeyValue("File", loc.File))
		r.Println(output.FormatKeyValue("Lines", fmt.Sprintf("%d-%d", loc.LineBegin, loc.LineEnd)))
	default:
		r.Printf("%s:%d-%d\n", loc.File, loc.LineBegin, loc.LineEnd)
	}
	return nil
}
