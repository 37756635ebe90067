package commands

import (
	"fmt"

	"github.com/leapstack-labs/qmdls/internal/cli/output"
	"github.com/leapstack-labs/qmdls/internal/languages"
	"github.com/leapstack-labs/qmdls/internal/markdown"
	"github.com/leapstack-labs/qmdls/internal/vdoc"
	"github.com/spf13/cobra"
)

// BlocksOptions holds options for the blocks command.
type BlocksOptions struct {
	Format string
}

// NewBlocksCommand creates the blocks command.
func NewBlocksCommand() *cobra.Command {
	opts := &BlocksOptions{}
	cmd := &cobra.Command{
		Use:   "blocks <file>",
		Short: "List the language blocks of a document",
		Long: `List every fenced code block and display math block in a Quarto
document with its language, line span and whether an embedded language is
registered for it.

Line numbers are one-based and include both delimiter lines.`,
		Example: `  # Show the blocks of a document
  qmdls blocks analysis.qmd

  # As JSON
  qmdls blocks analysis.qmd --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlocks(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json")

	return cmd
}

// BlockInfo describes one language block.
type BlockInfo struct {
	Kind       string `json:"kind"`
	Language   string `json:"language"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Registered bool   `json:"registered"`
	Strategy   string `json:"strategy,omitempty"`
}

func runBlocks(cmd *cobra.Command, path string, opts *BlocksOptions) error {
	host, err := loadHostFile(cmd, path)
	if err != nil {
		return err
	}
	cmdCtx, err := NewCommandContext(cmd, projectDirFor(host.Path))
	if err != nil {
		return err
	}
	r := newRenderer(cmd, cmdCtx.Cfg, opts.Format)

	blocks := collectBlocks(host.Tokens, cmdCtx.Registry)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(blocks)
	default:
		if len(blocks) == 0 {
			r.Println("(no language blocks)")
			return nil
		}
		rows := make([][]string, 0, len(blocks))
		for _, b := range blocks {
			registered := "no"
			if b.Registered {
				registered = "yes"
			}
			rows = append(rows, []string{
				b.Kind,
				b.Language,
				fmt.Sprintf("%d-%d", b.StartLine, b.EndLine),
				registered,
				b.Strategy,
			})
		}
		return r.Table([]string{"Kind", "Language", "Lines", "Registered", "Strategy"}, rows)
	}
}

func collectBlocks(tokens []markdown.Token, registry *languages.Registry) []BlockInfo {
	blocks := make([]BlockInfo, 0)
	for _, tok := range tokens {
		if !vdoc.IsLanguageBlock(tok) || tok.Lines == nil {
			continue
		}
		id := vdoc.Classify(tok)
		info := BlockInfo{
			Kind:      tok.Kind.String(),
			Language:  id,
			StartLine: tok.Lines.Start + 1,
			EndLine:   tok.Lines.End,
		}
		if lang, ok := registry.Lookup(id); ok {
			info.Registered = true
			info.Language = lang.ID()
			info.Strategy = lang.Strategy.Name()
		}
		if info.Language == "" {
			info.Language = "-"
		}
		blocks = append(blocks, info)
	}
	return blocks
}
