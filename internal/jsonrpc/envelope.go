// Package jsonrpc defines the JSON-RPC 2.0 wire envelope used by both the Gateway's public
// surface and the Tool Server's dispatch endpoint.
package jsonrpc

import (
	"encoding/json"

	"toolplane/internal/apperr"
)

const Version = "2.0"

// Dispatch methods the Tool Server's JSON-RPC surface exposes, per spec.md §4.7.
const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

// Request is an incoming JSON-RPC call. ID is raw so both string and numeric ids round-trip
// untouched; a nil ID marks a notification (no response expected).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a successful or failed JSON-RPC reply. Exactly one of Result/Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the wire shape of a JSON-RPC error, per spec §7/§6.
type ErrorObject struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ToolCallParams is the params shape for a tools/call method.
type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Success builds a Response carrying result, echoing id.
func Success(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// Failure builds a Response carrying appErr mapped to its JSON-RPC error object, echoing id.
// appErr's Cause is intentionally never included — only Message, Code, and Data reach the wire.
func Failure(id json.RawMessage, appErr *apperr.Error) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error: &ErrorObject{
			Code:    appErr.Code(),
			Message: appErr.Message,
			Data:    appErr.Data,
		},
	}
}
