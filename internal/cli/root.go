// Package cli implements the taskvibe command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vibeflow/taskvibe/internal/app"
	"github.com/vibeflow/taskvibe/internal/config"
	"github.com/vibeflow/taskvibe/internal/logging"
	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/tools"
)

// Version is overridden at build time with -ldflags.
var Version = "0.1.0"

// globalFlags override the layered configuration.
type globalFlags struct {
	dir         string
	workflow    string
	socket      string
	logLevel    string
	logFormat   string
	metricsAddr string
	json        bool
}

// NewRootCmd builds the command tree. Each call returns independent state.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "taskvibe",
		Short:         "Workflow-driven task management for coding agents",
		Long:          `taskvibe tracks tasks as markdown todo hierarchies, derives status from progress and serves its tools over MCP, a local socket and this CLI.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.dir, "dir", "C", ".", "project directory (searched upwards for .taskvibe)")
	pf.StringVar(&g.workflow, "workflow", "", "workflow file (overrides config)")
	pf.StringVar(&g.socket, "socket", "", "daemon socket path (overrides config)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: text, json, logfmt")
	pf.BoolVar(&g.json, "json", false, "print structured JSON instead of text")

	root.AddCommand(
		newInitCmd(g),
		newServeCmd(g),
		newStopCmd(g),
		newStatusCmd(g),
		newMCPCmd(g),
		newTaskCmd(g),
		newCallCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and reports a failure with its error code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", model.ErrorCode(err), err)
		return 1
	}
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskvibe version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskvibe %s\n", Version)
		},
	}
}

// load finds the state directory and resolves the configuration with flag
// overrides applied last.
func (g *globalFlags) load() (string, model.Config, error) {
	stateDir := config.FindDir(g.dir)
	if stateDir == "" {
		return "", model.Config{}, &model.ConfigError{
			Path: g.dir,
			Msg:  "no " + config.DirName + " directory found; run `taskvibe init`",
		}
	}
	cfg, err := config.Load(stateDir)
	if err != nil {
		return "", model.Config{}, err
	}
	if g.workflow != "" {
		cfg.Workflow.Path = g.workflow
	}
	if g.socket != "" {
		cfg.Server.Socket = g.socket
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	if g.metricsAddr != "" {
		cfg.Server.MetricsAddr = g.metricsAddr
	}
	if err := config.Validate(cfg); err != nil {
		return "", model.Config{}, err
	}
	return stateDir, cfg, nil
}

func newLogger(w io.Writer, cfg model.Config, prefix string) *log.Logger {
	return logging.New(w, logging.Options{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Prefix:          prefix,
		ReportTimestamp: true,
	})
}

// openApp builds an in-process App logging to stderr.
func (g *globalFlags) openApp(cmd *cobra.Command) (*app.App, error) {
	stateDir, cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	return app.New(app.Options{
		Dir:    stateDir,
		Config: cfg,
		Logger: newLogger(cmd.ErrOrStderr(), cfg, "taskvibe"),
	})
}

// callTool runs a tool in-process and prints its result.
func (g *globalFlags) callTool(cmd *cobra.Command, name string, args any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s arguments: %w", name, err)
	}
	a, err := g.openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Call(cmdContext(cmd), name, raw)
	if err != nil {
		return err
	}
	return g.print(cmd.OutOrStdout(), res)
}

func (g *globalFlags) print(w io.Writer, res *tools.Result) error {
	if g.json {
		return printJSON(w, res.Data)
	}
	_, err := fmt.Fprintln(w, res.Text)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
