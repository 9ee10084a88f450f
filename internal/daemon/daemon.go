// Package daemon runs taskvibe as a long-lived process serving the task
// tools over a Unix socket, with optional Prometheus metrics and event
// forwarding.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/vibeflow/taskvibe/internal/app"
	"github.com/vibeflow/taskvibe/internal/lock"
	"github.com/vibeflow/taskvibe/internal/tools"
	"github.com/vibeflow/taskvibe/internal/uds"
	"github.com/vibeflow/taskvibe/internal/workflow"
)

const defaultShutdownTimeout = 10 * time.Second

// Status is the reply to the status command.
type Status struct {
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	Workflow      string    `json:"workflow"`
	Socket        string    `json:"socket"`
	MetricsAddr   string    `json:"metrics_addr,omitempty"`
	Requests      int64     `json:"requests"`
	EventsDropped int64     `json:"events_dropped"`
}

// Daemon is the main taskvibe daemon process.
type Daemon struct {
	app     *app.App
	logger  *log.Logger
	logFile io.Closer

	fileLock   *lock.FileLock
	server     *uds.Server
	watcher    *fsnotify.Watcher
	metricsSrv *http.Server

	metricsAddr string
	startedAt   time.Time
	requests    atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
	done     chan struct{}
}

// New creates a daemon serving a. The daemon owns a and logFile (which may
// be nil) and closes both on shutdown.
func New(a *app.App, logFile io.Closer) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		app:      a,
		logger:   a.Logger.WithPrefix("daemon"),
		logFile:  logFile,
		fileLock: lock.NewFileLock(a.Paths.DaemonLock),
		server:   uds.NewServer(a.Paths.Socket),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}
	d.waitSignals()
	<-d.done
	return nil
}

// Start acquires the daemon lock and starts serving without blocking. On
// failure the app is closed.
func (d *Daemon) Start() error {
	if err := os.MkdirAll(filepath.Dir(d.app.Paths.DaemonLock), 0755); err != nil {
		d.release()
		return fmt.Errorf("ensure lock dir: %w", err)
	}
	if err := d.fileLock.TryLock(); err != nil {
		// Another daemon owns the socket; leave it in place.
		d.release()
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.startedAt = time.Now()
	d.logger.Info("daemon starting", "pid", os.Getpid(), "workflow", d.app.WorkflowSource)

	if err := d.app.ConnectNATS(); err != nil {
		d.logger.Warn("nats unavailable, events go to the audit log only", "err", err)
	}

	if err := d.watchWorkflow(); err != nil {
		d.abort()
		return err
	}

	d.registerHandlers()

	timeout := d.app.Config.Server.ConnTimeoutSec
	if timeout > 0 {
		d.server.SetConnTimeout(time.Duration(timeout) * time.Second)
	}
	d.server.SetLogger(d.logger.WithPrefix("uds"))
	if err := d.server.Start(); err != nil {
		d.abort()
		return fmt.Errorf("start UDS server: %w", err)
	}
	d.logger.Info("UDS server listening", "socket", d.app.Paths.Socket)

	if err := d.serveMetrics(); err != nil {
		_ = d.server.Stop()
		d.abort()
		return err
	}

	d.logger.Info("daemon ready")
	return nil
}

// Done is closed once shutdown has completed.
func (d *Daemon) Done() <-chan struct{} { return d.done }

// MetricsAddr is the address the metrics endpoint listens on, or "".
func (d *Daemon) MetricsAddr() string { return d.metricsAddr }

// registerHandlers registers one command per tool plus the daemon's own.
func (d *Daemon) registerHandlers() {
	for _, t := range tools.Tools {
		d.server.Handle(t.Name, d.toolHandler(t.Name))
	}

	d.server.Handle(uds.CommandPing, func(context.Context, *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle(uds.CommandStatus, func(context.Context, *uds.Request) *uds.Response {
		return uds.SuccessResponse(d.Status())
	})

	d.server.Handle(uds.CommandShutdown, func(context.Context, *uds.Request) *uds.Response {
		d.logger.Info("shutdown requested via UDS")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

func (d *Daemon) toolHandler(name string) uds.HandlerFunc {
	return func(ctx context.Context, req *uds.Request) *uds.Response {
		d.requests.Add(1)
		start := time.Now()
		res, err := d.app.Call(ctx, name, req.Params)
		if err != nil {
			d.logger.Debug("tool failed", "tool", name, "err", err, "elapsed", time.Since(start))
			if errors.Is(err, tools.ErrUnknownTool) {
				return uds.ErrorResponse(uds.ErrCodeUnknownCommand, err.Error())
			}
			return uds.ErrorFrom(err)
		}
		data, err := json.Marshal(res.Data)
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, fmt.Sprintf("marshal %s result: %v", name, err))
		}
		d.logger.Debug("tool served", "tool", name, "elapsed", time.Since(start))
		return uds.SuccessResponse(uds.ToolReply{Data: data, Text: res.Text})
	}
}

// Status reports the daemon's identity and counters.
func (d *Daemon) Status() Status {
	return Status{
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		Uptime:        time.Since(d.startedAt).Round(time.Second).String(),
		Workflow:      d.app.WorkflowSource,
		Socket:        d.app.Paths.Socket,
		MetricsAddr:   d.metricsAddr,
		Requests:      d.requests.Load(),
		EventsDropped: d.app.Bus.Dropped(),
	}
}

// watchWorkflow warns when the workflow file changes. The loaded workflow is
// immutable, so a change only takes effect after a restart.
func (d *Daemon) watchWorkflow() error {
	path := d.app.WorkflowSource
	if path == workflow.EnvVar || path == "" || !filepath.IsAbs(path) {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	d.watcher = watcher

	d.wg.Add(1)
	go d.fsnotifyLoop(filepath.Clean(path))
	return nil
}

// fsnotifyLoop processes filesystem change events.
func (d *Daemon) fsnotifyLoop(path string) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			d.logger.Debug("fsnotify event", "op", event.Op, "file", event.Name)
			if _, err := workflow.Load(path); err != nil {
				d.logger.Error("workflow file changed and no longer loads", "err", err)
				continue
			}
			d.logger.Warn("workflow file changed; restart the daemon to apply it", "path", path)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Error("fsnotify error", "err", err)
		}
	}
}

func (d *Daemon) serveMetrics() error {
	addr := d.app.Config.Server.MetricsAddr
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.app.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	d.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.metricsAddr = ln.Addr().String()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server stopped", "err", err)
		}
	}()
	d.logger.Info("metrics listening", "addr", d.metricsAddr)
	return nil
}

// waitSignals blocks until a shutdown signal is received or shutdown is
// requested over the socket.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Info("received signal, initiating graceful shutdown", "signal", sig)
	case <-d.ctx.Done():
		return
	}

	// Second signal forces exit.
	go func() {
		select {
		case <-sigCh:
			d.logger.Warn("received second signal, forcing exit")
			os.Exit(1)
		case <-d.done:
		}
	}()

	d.Shutdown()
}

// Shutdown performs graceful shutdown. It is idempotent.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Info("shutdown started")

		d.cancel()
		if d.watcher != nil {
			_ = d.watcher.Close()
		}
		_ = d.server.Stop()

		timeout := time.Duration(d.app.Config.Daemon.ShutdownTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if d.metricsSrv != nil {
			if err := d.metricsSrv.Shutdown(ctx); err != nil {
				d.logger.Warn("metrics server shutdown", "err", err)
			}
		}

		drained := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
			d.logger.Info("all goroutines drained")
		case <-ctx.Done():
			d.logger.Warn("shutdown timeout, some operations may be incomplete", "timeout", timeout)
		}

		d.logger.Info("daemon stopped")
		d.cleanup()
		close(d.done)
	})
}

// abort undoes a partial Start.
func (d *Daemon) abort() {
	d.cancel()
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	d.wg.Wait()
	d.cleanup()
}

// cleanup releases the socket and the lock, then closes the app and the
// log file.
func (d *Daemon) cleanup() {
	_ = os.Remove(d.app.Paths.Socket)
	_ = d.fileLock.Unlock()
	d.release()
}

func (d *Daemon) release() {
	if err := d.app.Close(); err != nil {
		d.logger.Warn("close app", "err", err)
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}
