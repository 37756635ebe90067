package commands

import (
	"sort"
	"strings"

	"github.com/leapstack-labs/qmdls/internal/cli/output"
	"github.com/spf13/cobra"
)

// LanguagesOptions holds options for the languages command.
type LanguagesOptions struct {
	Format string
}

// NewLanguagesCommand creates the languages command.
func NewLanguagesCommand() *cobra.Command {
	opts := &LanguagesOptions{}
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List the embedded languages",
		Long: `List the embedded language registry in effect for the project: the
built-in languages merged with the languages section of qmdls.yaml, and the
server configured for each.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLanguages(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json")

	return cmd
}

// LanguageInfo describes one embedded language.
type LanguageInfo struct {
	ID        string   `json:"id"`
	Aliases   []string `json:"aliases,omitempty"`
	Strategy  string   `json:"strategy"`
	Extension string   `json:"extension"`
	Inject    string   `json:"inject,omitempty"`
	Trigger   []string `json:"trigger,omitempty"`
	Server    []string `json:"server,omitempty"`
}

func runLanguages(cmd *cobra.Command, opts *LanguagesOptions) error {
	cmdCtx, err := NewCommandContext(cmd, "")
	if err != nil {
		return err
	}
	r := newRenderer(cmd, cmdCtx.Cfg, opts.Format)

	langs := cmdCtx.Registry.Languages()
	infos := make([]LanguageInfo, 0, len(langs))
	for _, lang := range langs {
		info := LanguageInfo{
			ID:        lang.ID(),
			Aliases:   lang.IDs[1:],
			Strategy:  lang.Strategy.Name(),
			Extension: lang.Extension(),
			Inject:    lang.Inject,
			Trigger:   lang.Trigger,
		}
		if server, ok := cmdCtx.Project.Server(lang.ID()); ok {
			info.Server = server.Command
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		server := "-"
		if len(info.Server) > 0 {
			server = info.Server[0]
		}
		rows = append(rows, []string{
			info.ID,
			strings.Join(info.Aliases, ", "),
			info.Strategy,
			"." + info.Extension,
			server,
		})
	}
	return r.Table([]string{"Language", "Aliases", "Strategy", "Extension", "Server"}, rows)
}
