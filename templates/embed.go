// Package templates embeds the default configuration, the default workflow
// document and the workflow JSON Schema.
package templates

import "embed"

//go:embed config.yaml workflow.yaml workflow.schema.json
var FS embed.FS

// WorkflowSchema is the JSON Schema every workflow document must satisfy.
//
//go:embed workflow.schema.json
var WorkflowSchema []byte

// DefaultWorkflow is the workflow written by `taskvibe init`.
//
//go:embed workflow.yaml
var DefaultWorkflow []byte
