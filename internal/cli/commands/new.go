package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/qmdls/internal/dispatch"
	"github.com/leapstack-labs/qmdls/internal/walkthrough"
	"github.com/spf13/cobra"
)

// NewOptions holds options for the new command.
type NewOptions struct {
	Force bool
}

// NewNewCommand creates the new command.
func NewNewCommand() *cobra.Command {
	opts := &NewOptions{}
	cmd := &cobra.Command{
		Use:   "new [path]",
		Short: "Create a Hello, Quarto walkthrough document",
		Long: `Write a starter Quarto document with a code cell and a display math
example. The code cell uses the first of Python, R and Julia whose language
server is configured and installed.

The path defaults to walkthrough.qmd. A directory argument gets
walkthrough.qmd inside it.`,
		Example: `  qmdls new
  qmdls new notes/hello.qmd`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := walkthrough.FileName
			if len(args) == 1 {
				path = args[0]
			}
			return runNew(cmd, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite an existing file")

	return cmd
}

func runNew(cmd *cobra.Command, path string, opts *NewOptions) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, walkthrough.FileName)
	}
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	cmdCtx, err := NewCommandContext(cmd, projectDirFor(abs))
	if err != nil {
		return err
	}

	available := func(lang string) bool {
		server, ok := cmdCtx.Project.Server(lang)
		if !ok {
			return false
		}
		_, err := dispatch.LookPath(server)
		return err == nil
	}
	content, err := walkthrough.Scaffold(available)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	cmdCtx.Logger.Debug("Wrote walkthrough", "path", abs, "cell", walkthrough.Choose(available).Lang)
	cmdCtx.Renderer.Success("Created " + path)
	return nil
}
