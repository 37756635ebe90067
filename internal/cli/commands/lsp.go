package commands

import (
	"os"

	"github.com/leapstack-labs/qmdls/internal/cli/config"
	"github.com/leapstack-labs/qmdls/internal/lsp"
	"github.com/spf13/cobra"
)

// NewLSPCommand creates the lsp command.
func NewLSPCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the LSP server for IDE integration.

The server communicates over stdin/stdout using JSON-RPC.
The project root, and with it qmdls.yaml, is determined by the
client's initialization request (rootUri parameter).
Logs go to stderr.`,
		Example: `  # Start LSP server (usually called by an IDE)
  qmdls lsp`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLSP(cmd)
		},
	}

	return cmd
}

func runLSP(cmd *cobra.Command) error {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	var opts []lsp.Option
	if cfg.TempDir != "" {
		opts = append(opts, lsp.WithTempDir(cfg.TempDir))
	}
	server := lsp.NewServerWithLogger(os.Stdin, os.Stdout, logger, opts...)
	return server.Run()
}
