// Package mcp provides MCP (Model Context Protocol) integration for
// driving an external tool server over newline-delimited JSON-RPC on
// stdin/stdout.
package mcp

import (
	"context"
	"encoding/json"

	"gateway-agent/internal/provider"
)

// MCPToolInfo represents tool metadata from an MCP server. The catalog is
// fetched once per session and treated as immutable afterwards.
type MCPToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPClient handles communication with an MCP server.
type MCPClient interface {
	// Connect establishes a connection to the MCP server and performs
	// the initialize handshake. No other method is valid before Connect
	// returns successfully.
	Connect(ctx context.Context) error

	// ListTools retrieves the list of available tools from the MCP server.
	ListTools(ctx context.Context) ([]MCPToolInfo, error)

	// CallTool invokes a tool on the MCP server with the given arguments.
	// Remote tool failures come back as unsuccessful results; only
	// transport-level failures are returned as errors.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*provider.ToolResult, error)

	// Close terminates the connection to the MCP server. It is
	// idempotent and never fails.
	Close() error
}

// JSONRPCRequest represents a JSON-RPC 2.0 request message. Notifications
// reuse this shape with ID omitted.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response message. ID is a
// pointer so that a missing id can be told apart from id 0 and rejected.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents an error in a JSON-RPC 2.0 response. It is the
// structured payload surfaced when the server answers a request with an
// error instead of a result.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface for JSONRPCError.
func (e *JSONRPCError) Error() string {
	return e.Message
}
