// Package config resolves the application configuration. Layers are applied
// in order: built-in defaults, .taskvibe/config.yaml, a .env file,
// TASKVIBE_* environment variables. CLI flags are applied last by the
// caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/vibeflow/taskvibe/internal/model"
)

const (
	DirName    = ".taskvibe"
	FileName   = "config.yaml"
	DotEnvFile = ".env"
	EnvPrefix  = "TASKVIBE_"
)

// Default returns the configuration used when no file overrides it.
func Default() model.Config {
	return model.Config{
		Store:    model.StoreConfig{Dir: "."},
		Workflow: model.WorkflowRef{Path: "workflow.yaml"},
		Logging:  model.LoggingConfig{Level: "info", Format: "text"},
		Server: model.ServerConfig{
			Socket:         "daemon.sock",
			ConnTimeoutSec: 30,
		},
		Events: model.EventsConfig{
			AuditLog:    "logs/audit.jsonl",
			BufferSize:  64,
			NatsSubject: "taskvibe.events",
		},
		Daemon: model.DaemonConfig{ShutdownTimeoutSec: 10},
	}
}

// FindDir searches for .taskvibe/ in start and its ancestors. It returns ""
// when none exists.
func FindDir(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load resolves the configuration for the state directory dir. A missing
// config.yaml is not an error.
func Load(dir string) (model.Config, error) {
	cfg := Default()

	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yamlv3.Unmarshal(data, &cfg); err != nil {
			return model.Config{}, &model.ConfigError{Path: path, Msg: "parse config.yaml", Err: err}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return model.Config{}, &model.ConfigError{Path: path, Msg: "read config.yaml", Err: err}
	}

	if err := LoadDotEnv(dir); err != nil {
		return model.Config{}, err
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return model.Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files from the project root and from the state
// directory. Variables already present in the environment win.
func LoadDotEnv(dir string) error {
	for _, p := range []string{filepath.Join(filepath.Dir(dir), DotEnvFile), filepath.Join(dir, DotEnvFile)} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return &model.ConfigError{Path: p, Msg: "load .env", Err: err}
		}
	}
	return nil
}

// ApplyEnv overlays TASKVIBE_* variables read through lookup.
func ApplyEnv(cfg *model.Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &model.ConfigError{Path: EnvPrefix + name, Msg: fmt.Sprintf("want an integer, got %q", v)}
		}
		*dst = n
		return nil
	}

	str("STORE_DIR", &cfg.Store.Dir)
	str("BASE_URL", &cfg.Store.BaseURL)
	str("WORKFLOW", &cfg.Workflow.Path)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("SOCKET", &cfg.Server.Socket)
	str("METRICS_ADDR", &cfg.Server.MetricsAddr)
	str("AUDIT_LOG", &cfg.Events.AuditLog)
	str("NATS_URL", &cfg.Events.NatsURL)
	str("NATS_SUBJECT", &cfg.Events.NatsSubject)

	if err := num("CONN_TIMEOUT_SEC", &cfg.Server.ConnTimeoutSec); err != nil {
		return err
	}
	if err := num("EVENT_BUFFER", &cfg.Events.BufferSize); err != nil {
		return err
	}
	return num("SHUTDOWN_TIMEOUT_SEC", &cfg.Daemon.ShutdownTimeoutSec)
}

var (
	knownLevels  = []string{"debug", "info", "warn", "warning", "error", "fatal"}
	knownFormats = []string{"text", "json", "logfmt"}
)

// Validate rejects values no layer should be able to produce.
func Validate(cfg model.Config) error {
	if !contains(knownLevels, strings.ToLower(cfg.Logging.Level)) {
		return &model.ConfigError{Path: "logging.level", Msg: fmt.Sprintf("unknown level %q", cfg.Logging.Level)}
	}
	if !contains(knownFormats, strings.ToLower(cfg.Logging.Format)) {
		return &model.ConfigError{Path: "logging.format", Msg: fmt.Sprintf("unknown format %q (want text, json or logfmt)", cfg.Logging.Format)}
	}
	if cfg.Store.Dir == "" {
		return &model.ConfigError{Path: "store.dir", Msg: "must not be empty"}
	}
	if cfg.Workflow.Path == "" {
		return &model.ConfigError{Path: "workflow.path", Msg: "must not be empty"}
	}
	if cfg.Server.ConnTimeoutSec < 0 {
		return &model.ConfigError{Path: "server.conn_timeout_sec", Msg: "must not be negative"}
	}
	if cfg.Events.BufferSize < 0 {
		return &model.ConfigError{Path: "events.buffer_size", Msg: "must not be negative"}
	}
	if cfg.Daemon.ShutdownTimeoutSec < 0 {
		return &model.ConfigError{Path: "daemon.shutdown_timeout_sec", Msg: "must not be negative"}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Paths holds the absolute locations derived from a config and its state
// directory.
type Paths struct {
	Dir        string
	StoreDir   string
	Workflow   string
	Socket     string
	AuditLog   string
	DaemonLog  string
	DaemonLock string
}

// Resolve makes every configured path absolute relative to dir.
func Resolve(dir string, cfg model.Config) Paths {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	return Paths{
		Dir:        dir,
		StoreDir:   abs(cfg.Store.Dir),
		Workflow:   abs(cfg.Workflow.Path),
		Socket:     abs(cfg.Server.Socket),
		AuditLog:   abs(cfg.Events.AuditLog),
		DaemonLog:  filepath.Join(dir, "logs", "daemon.log"),
		DaemonLock: filepath.Join(dir, "locks", "daemon.lock"),
	}
}
