package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibeflow/taskvibe/internal/app"
	"github.com/vibeflow/taskvibe/internal/config"
	"github.com/vibeflow/taskvibe/internal/daemon"
	"github.com/vibeflow/taskvibe/internal/uds"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon serving task tools on the local socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stateDir, cfg, err := g.load()
			if err != nil {
				return err
			}
			paths := config.Resolve(stateDir, cfg)
			if err := os.MkdirAll(filepath.Dir(paths.DaemonLog), 0755); err != nil {
				return fmt.Errorf("create log dir: %w", err)
			}
			logFile, err := os.OpenFile(paths.DaemonLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("open daemon log: %w", err)
			}

			a, err := app.New(app.Options{
				Dir:    stateDir,
				Config: cfg,
				Logger: newLogger(logFile, cfg, ""),
			})
			if err != nil {
				_ = logFile.Close()
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "taskvibe daemon listening on %s (log: %s)\n", paths.Socket, paths.DaemonLog)
			return daemon.New(a, logFile).Run()
		},
	}
	cmd.Flags().StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func (g *globalFlags) client() (*uds.Client, error) {
	stateDir, cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	return uds.NewClient(config.Resolve(stateDir, cfg).Socket), nil
}

func newStopCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the running daemon to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			if err := c.Call(uds.CommandShutdown, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "shutdown requested")
			return nil
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			c.SetTimeout(5 * time.Second)
			var st daemon.Status
			if err := c.Call(uds.CommandStatus, nil, &st); err != nil {
				return err
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pid:            %d\n", st.PID)
			fmt.Fprintf(out, "uptime:         %s\n", st.Uptime)
			fmt.Fprintf(out, "workflow:       %s\n", st.Workflow)
			fmt.Fprintf(out, "socket:         %s\n", st.Socket)
			if st.MetricsAddr != "" {
				fmt.Fprintf(out, "metrics:        http://%s/metrics\n", st.MetricsAddr)
			}
			fmt.Fprintf(out, "requests:       %d\n", st.Requests)
			fmt.Fprintf(out, "events dropped: %d\n", st.EventsDropped)
			return nil
		},
	}
}
