package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vibeflow/taskvibe/internal/app"
	"github.com/vibeflow/taskvibe/internal/mcpserver"
)

// newMCPCmd serves the tools over MCP on stdio. stdout carries the
// protocol, so logs go to stderr.
func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the task tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stateDir, cfg, err := g.load()
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg, "mcp")
			a, err := app.New(app.Options{Dir: stateDir, Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ConnectNATS(); err != nil {
				logger.Warn("nats unavailable", "err", err)
			}

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s := mcpserver.New(a.Router, Version, logger)
			return mcpserver.Serve(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}
}
