package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/qmdls/internal/cli/config"
	"github.com/leapstack-labs/qmdls/internal/cli/output"
	intconfig "github.com/leapstack-labs/qmdls/internal/config"
	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/leapstack-labs/qmdls/internal/markdown"
	"github.com/leapstack-labs/qmdls/internal/vdoc"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Project  *intconfig.ProjectConfig
	Registry *languages.Registry
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext for the project rooted at dir.
// An empty dir uses the configured project root.
func NewCommandContext(cmd *cobra.Command, dir string) (*CommandContext, error) {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	if dir == "" {
		dir = cfg.ProjectRoot
	}
	project, err := intconfig.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}
	registry, err := project.Registry(languages.Builtin())
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Cfg:      cfg,
		Project:  project,
		Registry: registry,
		Logger:   logger,
		Renderer: newRenderer(cmd, cfg, ""),
	}, nil
}

// newRenderer honors a per-command format flag over the global output mode.
func newRenderer(cmd *cobra.Command, cfg *config.Config, format string) *output.Renderer {
	mode := output.Mode(cfg.OutputFormat)
	if format != "" {
		mode = output.Mode(format)
	}
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
}

// TempDir returns the directory temp-file backed documents are written to.
// The CLI setting wins over vdoc.temp_dir; relative project paths are
// resolved against the project root.
func (c *CommandContext) TempDir() string {
	if c.Cfg.TempDir != "" {
		return c.Cfg.TempDir
	}
	dir := c.Project.VDoc.TempDir
	if dir == "" {
		return filepath.Join(os.TempDir(), vdoc.DefaultTempDirName)
	}
	if !filepath.IsAbs(dir) {
		root := c.Cfg.ProjectRoot
		if c.Project.Path != "" {
			root = filepath.Dir(c.Project.Path)
		}
		dir = filepath.Join(root, dir)
	}
	return dir
}

// hostFile is a parsed Quarto document read from disk.
type hostFile struct {
	Path   string
	URI    string
	Lines  vdoc.Lines
	Tokens []markdown.Token
}

// loadHostFile reads and tokenizes path.
func loadHostFile(cmd *cobra.Command, path string) (*hostFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	tokens, err := markdown.NewParser().Parse(cmd.Context(), src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &hostFile{
		Path:   abs,
		URI:    vdoc.PathToURI(abs),
		Lines:  vdoc.SplitLines(string(src)),
		Tokens: tokens,
	}, nil
}

// projectDirFor returns the project root containing path, or path's
// directory when there is none.
func projectDirFor(path string) string {
	dir := filepath.Dir(path)
	if root := intconfig.FindProjectRoot(dir); root != "" {
		return root
	}
	return dir
}
