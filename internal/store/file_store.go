package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/vibeflow/taskvibe/internal/lock"
	"github.com/vibeflow/taskvibe/internal/logging"
	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/todo"
	yamlutil "github.com/vibeflow/taskvibe/internal/yaml"
)

const tasksDir = "tasks"

type taskDocument struct {
	yamlutil.Header `yaml:",inline"`
	model.Task      `yaml:",inline"`
}

// FileStore keeps one YAML document per task under <dir>/tasks. Writes to a
// task are serialised; concurrent reads of the same task share one load.
type FileStore struct {
	stateDir string
	dir      string
	baseURL  string
	workflow *model.WorkflowConfig
	locks    *lock.MutexMap
	reads    singleflight.Group
	logger   *log.Logger
	now      func() time.Time
}

type FileStoreOption func(*FileStore)

func WithLogger(l *log.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = l }
}

// WithBaseURL sets the prefix for Task.URL, e.g. a web UI serving tasks.
func WithBaseURL(u string) FileStoreOption {
	return func(s *FileStore) { s.baseURL = strings.TrimRight(u, "/") }
}

func WithClock(now func() time.Time) FileStoreOption {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore stores tasks under dir. stateDir receives quarantined files.
func NewFileStore(stateDir, dir string, workflow *model.WorkflowConfig, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{
		stateDir: stateDir,
		dir:      dir,
		workflow: workflow,
		locks:    lock.NewMutexMap(),
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Join(dir, tasksDir), 0755); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}
	return s, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, tasksDir, id+".yaml")
}

func (s *FileStore) FetchTask(ctx context.Context, id string) (*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err, _ := s.reads.Do(id, func() (any, error) {
		return s.load(id)
	})
	if err != nil {
		return nil, err
	}
	// Callers sharing a singleflight result must not share the hierarchy.
	shared := v.(*model.Task)
	cp := *shared
	cp.Sections = todo.Clone(shared.Sections)
	return &cp, nil
}

func (s *FileStore) load(id string) (*model.Task, error) {
	if !model.ValidateID(id) {
		return nil, &model.NotFoundError{Kind: model.NotFoundTask, ID: id}
	}
	path := s.path(id)
	var doc taskDocument
	err := yamlutil.ReadDocument(path, yamlutil.FileTypeTask, &doc)
	if errors.Is(err, yamlutil.ErrCorrupt) {
		s.logger.Warn("task file corrupted, recovering", "task", id, "err", err)
		if rerr := yamlutil.RecoverCorruptedFile(s.stateDir, path, yamlutil.FileTypeTask); rerr != nil {
			return nil, fmt.Errorf("load task %s: %w", id, rerr)
		}
		doc = taskDocument{}
		err = yamlutil.ReadDocument(path, yamlutil.FileTypeTask, &doc)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, &model.NotFoundError{Kind: model.NotFoundTask, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	if doc.Sections == nil {
		doc.Sections = []model.Section{}
	}
	return &doc.Task, nil
}

func (s *FileStore) save(t *model.Task) error {
	doc := taskDocument{Header: yamlutil.NewHeader(yamlutil.FileTypeTask), Task: *t}
	if err := yamlutil.AtomicWrite(s.path(t.ID), doc); err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	// A load already in flight may predate this write; later reads start fresh.
	s.reads.Forget(t.ID)
	return nil
}

func (s *FileStore) CreateTask(ctx context.Context, title, taskType, description string) (*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmpl, ok := s.workflow.Template(taskType)
	if !ok {
		errs := &model.InvalidInputError{}
		errs.Add(model.FieldTaskType, fmt.Sprintf("unknown task type %q", taskType))
		return nil, errs
	}
	sections, err := SectionsFromTemplate(tmpl, title, description)
	if err != nil {
		return nil, err
	}
	id, err := model.GenerateID(model.IDTypeTask)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	now := s.now().UTC()
	t := &model.Task{
		ID:          id,
		Title:       title,
		Type:        taskType,
		Status:      s.workflow.DefaultStatus,
		Description: description,
		Sections:    sections,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if s.baseURL != "" {
		t.URL = s.baseURL + "/" + id
	}
	err = s.locks.Do(id, func() error { return s.save(t) })
	if err != nil {
		return nil, err
	}
	s.logger.Info("task created", "task", id, "type", taskType, "todos", todo.Count(t.Sections))
	return t, nil
}

// mutate loads the task fresh under its lock, applies fn and writes it back.
func (s *FileStore) mutate(ctx context.Context, id string, fn func(*model.Task) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.locks.Do(id, func() error {
		t, err := s.load(id)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = s.now().UTC()
		return s.save(t)
	})
}

func (s *FileStore) UpdateTaskFields(ctx context.Context, id string, fields model.UpdateFields) error {
	return s.mutate(ctx, id, func(t *model.Task) error {
		ApplyFields(t, fields)
		return nil
	})
}

func (s *FileStore) SetTodoCompleted(ctx context.Context, id string, ref model.TodoRef, completed bool) error {
	return s.mutate(ctx, id, func(t *model.Task) error {
		return todo.SetCompleted(t.Sections, ref, completed)
	})
}

func (s *FileStore) SetTaskStatus(ctx context.Context, id string, status model.Status) error {
	return s.mutate(ctx, id, func(t *model.Task) error {
		t.Status = status
		return nil
	})
}

// ListTaskIDs returns the IDs of every stored task, sorted by file name.
func (s *FileStore) ListTaskIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, tasksDir))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		id := strings.TrimSuffix(name, ".yaml")
		if model.ValidateID(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
