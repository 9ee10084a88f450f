// Package mcpserver exposes the task tools over the Model Context Protocol
// on stdio. Stdout carries the protocol, so logs go to the logger's writer
// (stderr in the CLI).
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vibeflow/taskvibe/internal/model"
	"github.com/vibeflow/taskvibe/internal/tools"
)

const Name = "taskvibe"

const instructions = `taskvibe manages development tasks made of sections and todos.
Create a task from a template with create_task, inspect it with get_task or
analyze_todos, tick todos with update_todos or run execute_task to complete
them in order. Todo refs look like "<section>:<i>.<j>", e.g. "1:0.2".`

// New registers every tool of the router on a fresh MCP server.
func New(router *tools.Router, version string, logger *log.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range tools.Tools {
		s.AddTool(definition(t), handle(router, t.Name, logger))
	}
	return s
}

func definition(t tools.Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	for _, p := range t.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		switch p.Type {
		case tools.ParamBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, props...))
		case tools.ParamObject:
			opts = append(opts, mcp.WithObject(p.Name, props...))
		case tools.ParamArray:
			props = append(props, mcp.Items(map[string]any{"type": "object"}))
			opts = append(opts, mcp.WithArray(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

// handle adapts a router tool to an MCP handler. Tool failures become error
// results carrying the error code so the calling agent can react; the
// protocol-level error is reserved for transport problems.
func handle(router *tools.Router, name string, logger *log.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: encode arguments: %v", model.CodeInvalidInput, err)), nil
		}
		res, err := router.Call(ctx, name, args)
		if err != nil {
			code := model.ErrorCode(err)
			logger.Warn("tool failed", "tool", name, "code", code, "err", err)
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", code, err)), nil
		}
		logger.Debug("tool called", "tool", name)
		return mcp.NewToolResultText(res.Text), nil
	}
}

// Serve runs the server on the given streams until ctx is cancelled or in
// reaches EOF.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *log.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))
	logger.Info("mcp server listening on stdio", "tools", len(tools.Tools))
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}
