// Package workflow loads the workflow document that drives every engine.
//
// A document may be YAML, TOML or JSON. Whatever the source format, it is
// normalised to JSON, validated against the embedded JSON Schema and then
// checked semantically. Every problem is reported as a *model.ConfigError.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/status"
)

// EnvVar holds an inline JSON workflow document. When set it takes
// precedence over the configured file.
const EnvVar = "WORKFLOW_CONFIG"

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the document format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", &model.ConfigError{Path: path, Msg: "unsupported workflow file extension (want .yaml, .yml, .toml or .json)"}
	}
}

// Load reads and validates the workflow document at path.
func Load(path string) (*model.WorkflowConfig, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigError{Path: path, Msg: "read workflow", Err: err}
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, withSource(err, path)
	}
	return cfg, nil
}

// LoadFromEnv parses the inline document in WORKFLOW_CONFIG. ok is false
// when the variable is unset or blank.
func LoadFromEnv() (cfg *model.WorkflowConfig, ok bool, err error) {
	raw := strings.TrimSpace(os.Getenv(EnvVar))
	if raw == "" {
		return nil, false, nil
	}
	cfg, err = Parse([]byte(raw), FormatJSON)
	if err != nil {
		return nil, true, withSource(err, EnvVar)
	}
	return cfg, true, nil
}

// Resolve prefers WORKFLOW_CONFIG and falls back to the file at path. The
// returned source names where the document came from.
func Resolve(path string) (*model.WorkflowConfig, string, error) {
	cfg, ok, err := LoadFromEnv()
	if ok {
		return cfg, EnvVar, err
	}
	cfg, err = Load(path)
	return cfg, path, err
}

// Parse decodes, validates and checks a workflow document.
func Parse(data []byte, format Format) (*model.WorkflowConfig, error) {
	doc, err := decode(data, format)
	if err != nil {
		return nil, err
	}
	doc, err = normalize(doc)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(doc); err != nil {
		return nil, err
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, &model.ConfigError{Msg: "normalise workflow", Err: err}
	}
	var cfg model.WorkflowConfig
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &model.ConfigError{Msg: "decode workflow", Err: err}
	}
	if err := Check(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Check fills defaults and verifies the parts of a workflow a schema cannot
// express: the status graph, the default status, policy ranges and blocker
// patterns.
func Check(cfg *model.WorkflowConfig) error {
	if cfg.DefaultStatus == "" && len(cfg.Statuses) > 0 {
		cfg.DefaultStatus = cfg.Statuses[0]
	}
	if cfg.Templates == nil {
		cfg.Templates = map[string]string{}
	}
	cfg.Policy.ApplyDefaults()

	if _, err := status.New(cfg); err != nil {
		return err
	}
	if !cfg.HasStatus(cfg.DefaultStatus) {
		return &model.ConfigError{Path: "default_status", Msg: fmt.Sprintf("unknown status %q", cfg.DefaultStatus)}
	}
	for name := range cfg.Templates {
		if strings.TrimSpace(name) == "" {
			return &model.ConfigError{Path: "templates", Msg: "template names must not be empty"}
		}
	}

	p := cfg.Policy
	if p.PreviewSize < 0 {
		return &model.ConfigError{Path: "policy.preview_size", Msg: fmt.Sprintf("must not be negative, got %d", p.PreviewSize)}
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		return &model.ConfigError{Path: "policy.failure_ratio", Msg: fmt.Sprintf("must be within (0, 1], got %g", p.FailureRatio)}
	}
	if p.NearTransitionWindow < 0 || p.NearTransitionWindow > 100 {
		return &model.ConfigError{Path: "policy.near_transition_window", Msg: fmt.Sprintf("must be within 0..100, got %d", p.NearTransitionWindow)}
	}
	if p.StaleAfter < 0 {
		return &model.ConfigError{Path: "policy.stale_after", Msg: "must not be negative"}
	}
	for i, pattern := range p.BlockerMarkers {
		if _, err := regexp.Compile(pattern); err != nil {
			return &model.ConfigError{Path: fmt.Sprintf("policy.blocker_markers[%d]", i), Msg: "invalid pattern", Err: err}
		}
	}
	return nil
}

func decode(data []byte, format Format) (any, error) {
	var doc any
	switch format {
	case FormatYAML:
		if err := yamlv3.Unmarshal(data, &doc); err != nil {
			return nil, &model.ConfigError{Msg: "parse yaml", Err: err}
		}
	case FormatTOML:
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, &model.ConfigError{Msg: "parse toml", Err: err}
		}
		doc = m
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &model.ConfigError{Msg: "parse json", Err: err}
		}
	default:
		return nil, &model.ConfigError{Msg: fmt.Sprintf("unsupported format %q", format)}
	}
	if doc == nil {
		return nil, &model.ConfigError{Msg: "workflow document is empty"}
	}
	return doc, nil
}

// normalize turns a decoded document into plain JSON values: map keys become
// strings and a threshold map ({100: done}) becomes the list form.
func normalize(doc any) (any, error) {
	doc = stringKeys(doc)
	root, ok := doc.(map[string]any)
	if !ok {
		return doc, nil
	}
	if th, ok := root["thresholds"].(map[string]any); ok {
		list := make([]any, 0, len(th))
		for key, st := range th {
			pct, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return nil, &model.ConfigError{Path: "thresholds." + key, Msg: "threshold key must be an integer percentage"}
			}
			list = append(list, map[string]any{"min": pct, "status": st})
		}
		sort.Slice(list, func(i, j int) bool {
			return list[i].(map[string]any)["min"].(int) > list[j].(map[string]any)["min"].(int)
		})
		root["thresholds"] = list
	}

	// Round-trip through JSON so every number is a float64 the validator
	// understands regardless of the source format.
	buf, err := json.Marshal(root)
	if err != nil {
		return nil, &model.ConfigError{Msg: "normalise workflow", Err: err}
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, &model.ConfigError{Msg: "normalise workflow", Err: err}
	}
	return out, nil
}

func stringKeys(v any) any {
	switch val := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = stringKeys(item)
		}
		return m
	case map[string]any:
		for k, item := range val {
			val[k] = stringKeys(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = stringKeys(item)
		}
		return val
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = stringKeys(item)
		}
		return out
	default:
		return v
	}
}

// withSource records where a failing document came from.
func withSource(err error, source string) error {
	if ce, ok := err.(*model.ConfigError); ok && ce.Path == "" {
		return &model.ConfigError{Path: source, Msg: ce.Msg, Err: ce.Err}
	}
	return err
}
