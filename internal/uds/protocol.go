// Package uds carries tool calls between the CLI and the daemon over a Unix
// domain socket, one length-prefixed JSON frame per request and response.
package uds

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/vibeflow/taskvibe/internal/model"
)

const ProtocolVersion = 1

// MaxFrameSize bounds a single frame's payload.
const MaxFrameSize = 10 * 1024 * 1024

type Request struct {
	ProtocolVersion int             `json:"protocol_version"`
	Command         string          `json:"command"`
	Params          json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Fields  []FieldDetail `json:"fields,omitempty"`
}

// FieldDetail is one field problem of an INVALID_INPUT error.
type FieldDetail struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error codes. The domain codes mirror model.ErrorCode.
const (
	ErrCodeProtocolMismatch  = "PROTOCOL_MISMATCH"
	ErrCodeUnknownCommand    = "UNKNOWN_COMMAND"
	ErrCodeInternal          = model.CodeInternal
	ErrCodeInvalidInput      = model.CodeInvalidInput
	ErrCodeInvalidTransition = model.CodeInvalidTransition
	ErrCodeNotFound          = model.CodeNotFound
	ErrCodeConfig            = model.CodeConfig
)

// Commands served besides the tools.
const (
	CommandPing     = "ping"
	CommandStatus   = "status"
	CommandShutdown = "shutdown"
)

// ToolReply is the data of a successful tool command: the structured result
// and its rendered text.
type ToolReply struct {
	Data json.RawMessage `json:"data,omitempty"`
	Text string          `json:"text"`
}

func NewRequest(command string, params any) (*Request, error) {
	req := &Request{
		ProtocolVersion: ProtocolVersion,
		Command:         command,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

func SuccessResponse(data any) *Response {
	resp := &Response{Success: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return ErrorResponse(ErrCodeInternal, fmt.Sprintf("marshal response: %v", err))
		}
		resp.Data = raw
	}
	return resp
}

func ErrorResponse(code, message string) *Response {
	return &Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// ErrorFrom maps a domain error to a response, keeping field errors.
func ErrorFrom(err error) *Response {
	resp := ErrorResponse(model.ErrorCode(err), err.Error())
	var ie *model.InvalidInputError
	if errors.As(err, &ie) {
		for _, fe := range ie.Errors {
			resp.Error.Fields = append(resp.Error.Fields, FieldDetail{Path: fe.FieldPath, Message: fe.Message})
		}
	}
	return resp
}

// ResponseError is a failed response seen by the client. errors.Is matches
// it against the model sentinels by code.
type ResponseError struct {
	Code    string
	Message string
	Fields  []FieldDetail
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ResponseError) Is(target error) bool {
	switch target {
	case model.ErrInvalidInput:
		return e.Code == ErrCodeInvalidInput
	case model.ErrInvalidTransition:
		return e.Code == ErrCodeInvalidTransition
	case model.ErrNotFound:
		return e.Code == ErrCodeNotFound
	case model.ErrConfig:
		return e.Code == ErrCodeConfig
	}
	return false
}

// DefaultSocketName is the conventional socket filename inside .taskvibe/.
const DefaultSocketName = "daemon.sock"

// WriteFrame writes a length-prefixed JSON frame to the connection.
// Format: [4-byte BigEndian length][JSON payload]
func WriteFrame(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}

	if err := binary.Write(conn, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	// io.Copy retries short writes.
	if _, err := io.Copy(conn, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a length-prefixed JSON frame from the connection.
func ReadFrame(conn net.Conn, v any) error {
	var length uint32
	if err := binary.Read(conn, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("read frame length: %w", err)
	}
	if length > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
