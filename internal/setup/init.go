// Package setup handles taskvibe project initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/vibeflow/taskvibe/internal/config"
	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/workflow"
	atomicyaml "github.com/vibeflow/taskvibe/internal/yaml"
	"github.com/vibeflow/taskvibe/templates"
)

// Dirs are created under .taskvibe/ by Run.
var Dirs = []string{"tasks", "logs", "locks", "quarantine"}

const gitignore = "daemon.sock\nlocks/\nlogs/\nquarantine/\n"

// Run initializes the .taskvibe/ directory in projectDir and returns its
// path. projectName overrides the auto-detected name (the directory
// basename).
func Run(projectDir, projectName string) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, config.DirName)
	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%s already exists", base)
	}

	for _, d := range Dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg, err := generateConfig(absDir, projectName)
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}
	if err := config.Validate(*cfg); err != nil {
		return "", err
	}
	if err := atomicyaml.AtomicWrite(filepath.Join(base, config.FileName), cfg); err != nil {
		return "", fmt.Errorf("write %s: %w", config.FileName, err)
	}

	// The shipped workflow must load cleanly before we hand it to the user.
	if _, err := workflow.Parse(templates.DefaultWorkflow, workflow.FormatYAML); err != nil {
		return "", fmt.Errorf("default workflow: %w", err)
	}
	if err := copyTemplateFile("workflow.yaml", filepath.Join(base, cfg.Workflow.Path)); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(base, ".gitignore"), []byte(gitignore), 0644); err != nil {
		return "", fmt.Errorf("write .gitignore: %w", err)
	}
	return base, nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func generateConfig(projectDir, projectName string) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, config.FileName)
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if projectName != "" {
		cfg.Project.Name = projectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	return &cfg, nil
}
