package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/templates"
)

const schemaURL = "https://taskvibe.dev/schemas/workflow.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func workflowSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(templates.WorkflowSchema)); err != nil {
			schemaErr = fmt.Errorf("add workflow schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile workflow schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// validateSchema checks a normalised document against the embedded schema.
// The first leaf failure becomes the error path; all leaves are listed in
// the message.
func validateSchema(doc any) error {
	schema, err := workflowSchema()
	if err != nil {
		return &model.ConfigError{Msg: "workflow schema unavailable", Err: err}
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &model.ConfigError{Msg: "schema validation failed", Err: err}
	}

	var leaves []*jsonschema.ValidationError
	collectLeaves(verr, &leaves)
	if len(leaves) == 0 {
		leaves = append(leaves, verr)
	}
	msgs := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		msgs = append(msgs, fmt.Sprintf("%s: %s", displayPath(leaf.InstanceLocation), leaf.Message))
	}
	return &model.ConfigError{
		Path: displayPath(leaves[0].InstanceLocation),
		Msg:  "schema validation failed: " + strings.Join(msgs, "; "),
	}
}

func collectLeaves(err *jsonschema.ValidationError, out *[]*jsonschema.ValidationError) {
	if len(err.Causes) == 0 {
		*out = append(*out, err)
		return
	}
	for _, cause := range err.Causes {
		collectLeaves(cause, out)
	}
}

// displayPath turns a JSON pointer ("/policy/failure_ratio", "/thresholds/0")
// into the dotted form used by every other config error.
func displayPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return "(root)"
	}
	parts := strings.Split(pointer, "/")
	var sb strings.Builder
	for i, p := range parts {
		p = strings.ReplaceAll(strings.ReplaceAll(p, "~1", "/"), "~0", "~")
		if isIndex(p) {
			sb.WriteString("[" + p + "]")
			continue
		}
		if i > 0 {
			sb.WriteString(".")
		}
		sb.WriteString(p)
	}
	return sb.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
