package commands

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/qmdls/internal/cli/output"
	"github.com/leapstack-labs/qmdls/internal/vdoc"
	"github.com/spf13/cobra"
)

// VDocOptions holds options for the vdoc command.
type VDocOptions struct {
	Line    int
	Address bool
	All     bool
	Format  string
}

// NewVDocCommand creates the vdoc command.
func NewVDocCommand() *cobra.Command {
	opts := &VDocOptions{}
	cmd := &cobra.Command{
		Use:   "vdoc <file>",
		Short: "Print the virtual document for a position",
		Long: `Project the embedded language at a line of a Quarto document into its
virtual document and print it. The virtual document has exactly as many
lines as the host: lines outside blocks of that language are blank.

With --address the document is resolved instead, printing the URI an
embedded language server would open. Temp-file backed languages are written
to the temp directory.`,
		Example: `  # Python virtual document for line 8
  qmdls vdoc analysis.qmd --line 8

  # Where it would be opened
  qmdls vdoc analysis.qmd --line 8 --address

  # Every language in the document
  qmdls vdoc analysis.qmd --all --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVDoc(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Line, "line", "l", 0, "One-based line inside a language block")
	cmd.Flags().BoolVar(&opts.Address, "address", false, "Print the resolved address instead of the content")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Print the virtual document of every language")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json")

	return cmd
}

// VirtualDocument is the JSON output for one virtual document.
type VirtualDocument struct {
	Language string `json:"language"`
	Address  string `json:"address,omitempty"`
	Content  string `json:"content"`
}

func runVDoc(cmd *cobra.Command, path string, opts *VDocOptions) error {
	if !opts.All && opts.Line < 1 {
		return errors.New("--line is required unless --all is set")
	}

	host, err := loadHostFile(cmd, path)
	if err != nil {
		return err
	}
	cmdCtx, err := NewCommandContext(cmd, projectDirFor(host.Path))
	if err != nil {
		return err
	}
	r := newRenderer(cmd, cmdCtx.Cfg, opts.Format)
	projector := vdoc.NewProjector(cmdCtx.Registry)

	var docs []*vdoc.VirtualDoc
	if opts.All {
		docs = projector.ProjectAll(host.Lines, host.Tokens)
	} else {
		pos := vdoc.Position{Line: opts.Line - 1}
		vd, ok := projector.Project(host.Lines, host.Tokens, pos)
		if !ok {
			return fmt.Errorf("line %d of %s is not inside a registered language block", opts.Line, path)
		}
		docs = []*vdoc.VirtualDoc{vd}
	}

	results := make([]VirtualDocument, 0, len(docs))
	if opts.Address {
		files := vdoc.NewTempFileStore(cmdCtx.TempDir())
		resolver := vdoc.NewResolver(files)
		for _, vd := range docs {
			addr, err := resolver.Resolve(cmd.Context(), vd, host.URI)
			if err != nil {
				return fmt.Errorf("failed to resolve %s virtual document: %w", vd.Language.ID(), err)
			}
			cmdCtx.Logger.Debug("Resolved virtual document", "language", vd.Language.ID(), "address", addr)
			results = append(results, VirtualDocument{Language: vd.Language.ID(), Address: addr})
		}
	} else {
		for _, vd := range docs {
			results = append(results, VirtualDocument{Language: vd.Language.ID(), Content: vd.Content})
		}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if opts.All {
			return r.JSON(results)
		}
		return r.JSON(results[0])
	case output.ModeMarkdown:
		renderVDocMarkdown(r, results, opts)
		return nil
	default:
		renderVDocText(r, results, opts)
		return nil
	}
}

// renderVDocText prints the bare content or address when there is a single
// document so the output can be piped into a tool.
func renderVDocText(r *output.Renderer, docs []VirtualDocument, opts *VDocOptions) {
	styles := r.Styles()
	for _, d := range docs {
		if opts.All {
			r.Println(styles.Header2.Render(d.Language))
		}
		if opts.Address {
			r.Println(d.Address)
		} else {
			r.Println(d.Content)
		}
	}
}

func renderVDocMarkdown(r *output.Renderer, docs []VirtualDocument, opts *VDocOptions) {
	for _, d := range docs {
		r.Println(output.FormatHeader(2, d.Language))
		r.Println("")
		if opts.Address {
			r.Println(output.FormatKeyValue("Address", d.Address))
		} else {
			r.Println("```" + d.Language)
			r.Println(d.Content)
			r.Println("```")
		}
		r.Println("")
	}
}
