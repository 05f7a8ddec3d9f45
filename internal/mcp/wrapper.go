package mcp

import (
	"context"

	"gateway-agent/internal/log"
	"gateway-agent/internal/provider"
)

// MCPToolWrapper adapts an MCP tool to the Tool interface so the agent
// can use server-advertised tools like built-in ones. The mapping is
// total: a descriptor with missing optional fields gets defined defaults,
// never an error.
type MCPToolWrapper struct {
	client MCPClient
	info   MCPToolInfo
}

// NewMCPToolWrapper creates a new MCPToolWrapper for the given tool info.
func NewMCPToolWrapper(client MCPClient, info MCPToolInfo) *MCPToolWrapper {
	return &MCPToolWrapper{
		client: client,
		info:   info,
	}
}

// Name returns the tool's name from the MCP server.
func (w *MCPToolWrapper) Name() string {
	return w.info.Name
}

// Description returns the tool's description from the MCP server, empty
// when the server omitted it.
func (w *MCPToolWrapper) Description() string {
	return w.info.Description
}

// Parameters returns the tool's input schema. A missing schema maps to
// the permissive empty object schema rather than nil.
func (w *MCPToolWrapper) Parameters() map[string]interface{} {
	if w.info.InputSchema == nil {
		return map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
			"required":   []interface{}{},
		}
	}
	return w.info.InputSchema
}

// Execute forwards the tool call to the MCP server and returns the result.
func (w *MCPToolWrapper) Execute(ctx context.Context, args map[string]interface{}) (*provider.ToolResult, error) {
	log.Debug("[MCP Client] calling tool %q with args: %v", w.info.Name, args)

	result, err := w.client.CallTool(ctx, w.info.Name, args)
	if err != nil {
		log.Error("[MCP Client] tool %q transport error: %v", w.info.Name, err)
		return nil, err
	}

	if result.Success {
		log.Debug("[MCP Client] tool %q succeeded: %s", w.info.Name, truncate(result.Output, 100))
	} else {
		log.Debug("[MCP Client] tool %q failed: %s", w.info.Name, result.Error)
	}

	return result, nil
}

// Info returns the underlying MCPToolInfo.
func (w *MCPToolWrapper) Info() MCPToolInfo {
	return w.info
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
