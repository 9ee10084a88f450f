// Package app wires taskvibe's engines, store and event sinks from a loaded
// configuration. The CLI, the MCP server and the daemon all run on an App.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/vibeflow/taskvibe/internal/analysis"
	"github.com/vibeflow/taskvibe/internal/config"
	"github.com/vibeflow/taskvibe/internal/events"
	"github.com/vibeflow/taskvibe/internal/execution"
	"github.com/vibeflow/taskvibe/internal/logging"
	"github.com/vibeflow/taskvibe/internal/metrics"
	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/status"
	"github.com/vibeflow/taskvibe/internal/store"
	"github.com/vibeflow/taskvibe/internal/todo"
	"github.com/vibeflow/taskvibe/internal/tools"
	"github.com/vibeflow/taskvibe/internal/validation"
	"github.com/vibeflow/taskvibe/internal/workflow"
)

// auditMaxSize is the size at which the audit log rotates.
const auditMaxSize = 10 * 1024 * 1024

type Options struct {
	// Dir is the .taskvibe state directory.
	Dir    string
	Config model.Config
	Logger *log.Logger
	// Changes overrides the git change source used by dev summaries.
	Changes tools.ChangeSource
	// Workflow skips workflow resolution when set.
	Workflow *model.WorkflowConfig
}

type App struct {
	Paths          config.Paths
	Config         model.Config
	Workflow       *model.WorkflowConfig
	WorkflowSource string
	Store          *store.FileStore
	Bus            *events.Bus
	Metrics        *metrics.Metrics
	Router         *tools.Router
	Logger         *log.Logger

	audit   *events.AuditLogger
	nats    *nats.Conn
	closers []func() error
}

// New resolves the workflow and builds every engine. The caller owns the
// returned App and must Close it.
func New(opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	paths := config.Resolve(opts.Dir, opts.Config)

	wf, source := opts.Workflow, "inline"
	if wf == nil {
		var err error
		wf, source, err = workflow.Resolve(paths.Workflow)
		if err != nil {
			return nil, err
		}
	}

	statusEng, err := status.New(wf)
	if err != nil {
		return nil, err
	}
	validator := validation.New(wf, statusEng)
	stats := todo.NewStatsEngine(wf.Policy)
	analyzer, err := analysis.New(statusEng, stats, wf.Policy)
	if err != nil {
		return nil, err
	}

	fs, err := store.NewFileStore(paths.Dir, paths.StoreDir, wf,
		store.WithLogger(logger.WithPrefix("store")),
		store.WithBaseURL(opts.Config.Store.BaseURL))
	if err != nil {
		return nil, err
	}

	a := &App{
		Paths:          paths,
		Config:         opts.Config,
		Workflow:       wf,
		WorkflowSource: source,
		Store:          fs,
		Bus:            events.NewBus(opts.Config.Events.BufferSize),
		Metrics:        metrics.New(),
		Logger:         logger,
	}

	executor := execution.New(fs, statusEng, validator, stats, wf.Policy,
		execution.WithLogger(logger.WithPrefix("execution")),
		execution.WithObserver(events.NewRecorder(a.Bus)),
		execution.WithObserver(a.Metrics))

	a.Router = tools.NewRouter(tools.NewService(tools.Deps{
		Store:     fs,
		Workflow:  wf,
		Status:    statusEng,
		Validator: validator,
		Stats:     stats,
		Analyzer:  analyzer,
		Executor:  executor,
		Changes:   opts.Changes,
		Bus:       a.Bus,
		Metrics:   a.Metrics,
		Logger:    logger.WithPrefix("tools"),
	}))

	if err := a.attachAudit(); err != nil {
		a.Bus.Close()
		return nil, err
	}
	logger.Debug("app ready", "workflow", source, "store", paths.StoreDir)
	return a, nil
}

func (a *App) attachAudit() error {
	if a.Paths.AuditLog == "" {
		return nil
	}
	audit, err := events.NewAuditLogger(a.Paths.AuditLog, auditMaxSize)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	audit.EnableChecksum(true)
	a.audit = audit
	a.Bus.Subscribe(events.AllEvents, audit.Record)
	a.closers = append(a.closers, audit.Close)
	return nil
}

// ConnectNATS forwards bus events to the configured NATS server. It is a
// no-op when no URL is configured.
func (a *App) ConnectNATS() error {
	url := a.Config.Events.NatsURL
	if url == "" {
		return nil
	}
	nc, err := events.ConnectNATS(url, a.Logger.WithPrefix("nats"))
	if err != nil {
		return err
	}
	a.nats = nc
	fwd := events.NewNATSForwarder(nc, a.Config.Events.NatsSubject, a.Logger.WithPrefix("nats"))
	a.Bus.Subscribe(events.AllEvents, fwd.Forward)
	a.closers = append(a.closers, func() error {
		return nc.Drain()
	})
	a.Logger.Info("forwarding events to nats", "url", url, "subject", a.Config.Events.NatsSubject)
	return nil
}

// Call runs a tool in-process.
func (a *App) Call(ctx context.Context, name string, args []byte) (*tools.Result, error) {
	return a.Router.Call(ctx, name, args)
}

// Close drains the event bus and then closes the sinks fed by it.
func (a *App) Close() error {
	a.Bus.Close()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
