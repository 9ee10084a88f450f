// Package model defines taskvibe's domain types: tasks and their todo
// hierarchy, the workflow configuration, execution results, and the error
// taxonomy shared by every engine and transport.
package model

type Config struct {
	Project  ProjectConfig `yaml:"project"`
	Store    StoreConfig   `yaml:"store"`
	Workflow WorkflowRef   `yaml:"workflow"`
	Logging  LoggingConfig `yaml:"logging"`
	Server   ServerConfig  `yaml:"server"`
	Events   EventsConfig  `yaml:"events"`
	Daemon   DaemonConfig  `yaml:"daemon"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type StoreConfig struct {
	// Dir holds tasks/<id>.yaml. Relative paths resolve against the
	// .taskvibe directory.
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

type WorkflowRef struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Socket         string `yaml:"socket"`
	MetricsAddr    string `yaml:"metrics_addr"`
	ConnTimeoutSec int    `yaml:"conn_timeout_sec"`
}

type EventsConfig struct {
	AuditLog    string `yaml:"audit_log"`
	BufferSize  int    `yaml:"buffer_size"`
	NatsURL     string `yaml:"nats_url"`
	NatsSubject string `yaml:"nats_subject"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}
