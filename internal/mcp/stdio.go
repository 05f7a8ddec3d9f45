package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"gateway-agent/internal/log"
	"gateway-agent/internal/provider"
)

const (
	// ProtocolVersion is the MCP protocol version sent in the handshake.
	ProtocolVersion = "2024-11-05"

	// DefaultRequestTimeout bounds the wait for each response line.
	DefaultRequestTimeout = 30 * time.Second

	// terminateGrace is how long Close waits after SIGTERM before
	// escalating to SIGKILL.
	terminateGrace = 5 * time.Second

	clientName    = "gateway-agent"
	clientVersion = "1.0.0"
)

// StdioMCPClient spawns an MCP server as a subprocess and communicates
// via JSON-RPC 2.0 over stdin/stdout, one message per line.
//
// The transport supports exactly one outstanding request at a time:
// correlation is by blocking wait on the next response line, with the
// wire ids checked against the request. Request ids are assigned once,
// strictly increasing, and never reused within a session. The subprocess
// inherits the parent environment, which non-headless browser servers
// need for display access.
type StdioMCPClient struct {
	command string
	args    []string
	env     map[string]string
	timeout time.Duration

	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdoutPipe io.ReadCloser
	stderrPipe io.ReadCloser

	// lines carries stdout lines from the reader goroutine; closed on EOF.
	lines chan lineResult
	// exited is closed by the exit watcher once the process is reaped.
	exited    chan struct{}
	procState atomic.Pointer[exitStatus]

	requestID  atomic.Int64
	mu         sync.Mutex
	connected  bool
	closeOnce  sync.Once
	serverInfo map[string]interface{}
}

type lineResult struct {
	data []byte
	err  error
}

type exitStatus struct {
	code int
}

// StdioOption is a functional option for configuring StdioMCPClient.
type StdioOption func(*StdioMCPClient)

// WithRequestTimeout overrides the per-request response wait bound.
func WithRequestTimeout(d time.Duration) StdioOption {
	return func(c *StdioMCPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewStdioMCPClient creates a new StdioMCPClient with the given command
// and arguments. Entries in env are appended to the inherited environment.
func NewStdioMCPClient(command string, args []string, env map[string]string, opts ...StdioOption) *StdioMCPClient {
	c := &StdioMCPClient{
		command: command,
		args:    args,
		env:     env,
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts the MCP server subprocess and performs the initialize
// handshake. Spawn failures abort before the handshake; handshake
// failures terminate the subprocess.
func (c *StdioMCPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	c.cmd = exec.Command(c.command, c.args...)

	// Inherit the parent environment verbatim, then append extras.
	c.cmd.Env = c.cmd.Environ()
	for k, v := range c.env {
		c.cmd.Env = append(c.cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %w", ErrSpawn, err)
	}
	c.stdin = stdin

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	c.stdoutPipe = stdout

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}
	c.stderrPipe = stderr

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %q: %w", ErrSpawn, c.command, err)
	}

	c.lines = make(chan lineResult, 8)
	c.exited = make(chan struct{})

	go c.readLines(stdout)
	go c.drainStderr(stderr)
	go c.watchExit()

	if err := c.initialize(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	c.connected = true
	return nil
}

// initialize sends the MCP initialize request and, immediately after the
// result arrives, the fire-and-forget initialized notification. The
// notification must be sent before any other method; it has no response.
func (c *StdioMCPClient) initialize(ctx context.Context) error {
	initParams := map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"clientInfo": map[string]interface{}{
			"name":    clientName,
			"version": clientVersion,
		},
	}

	result, err := c.send(ctx, "initialize", initParams)
	if err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}
	c.serverInfo, _ = result["serverInfo"].(map[string]interface{})

	notification := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	}
	if err := c.writeMessage(notification); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	log.Debug("[MCP Client] handshake complete, server info: %v", c.serverInfo)
	return nil
}

// ServerInfo returns the serverInfo mapping from the handshake result,
// or nil before Connect.
func (c *StdioMCPClient) ServerInfo() map[string]interface{} {
	return c.serverInfo
}

// ListTools retrieves the list of available tools from the MCP server.
// A response without a tools field yields an empty catalog, not an error.
func (c *StdioMCPClient) ListTools(ctx context.Context) ([]MCPToolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected to MCP server")
	}

	result, err := c.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list request failed: %w", err)
	}

	toolsRaw, ok := result["tools"]
	if !ok {
		return []MCPToolInfo{}, nil
	}
	toolsList, ok := toolsRaw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected tools type: %T", toolsRaw)
	}

	tools := make([]MCPToolInfo, 0, len(toolsList))
	for _, t := range toolsList {
		toolMap, ok := t.(map[string]interface{})
		if !ok {
			log.Warn("[MCP Client] skipping non-object tool descriptor: %v", t)
			continue
		}

		info := MCPToolInfo{
			Name:        getString(toolMap, "name"),
			Description: getString(toolMap, "description"),
		}
		if schema, ok := toolMap["inputSchema"].(map[string]interface{}); ok {
			info.InputSchema = schema
		}
		tools = append(tools, info)
	}

	return tools, nil
}

// CallTool invokes a tool on the MCP server with the given arguments.
// Remote tool errors and isError results come back as unsuccessful
// ToolResults; transport failures are returned as errors so the session
// can be torn down.
func (c *StdioMCPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*provider.ToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected to MCP server")
	}

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}

	result, err := c.send(ctx, "tools/call", params)
	if err != nil {
		var remoteErr *JSONRPCError
		if errors.As(err, &remoteErr) {
			return &provider.ToolResult{
				Success: false,
				Error:   remoteErr.Message,
			}, nil
		}
		return nil, err
	}

	content := extractContent(result)
	if isError, _ := result["isError"].(bool); isError {
		return &provider.ToolResult{
			Success: false,
			Error:   content,
		}, nil
	}

	return &provider.ToolResult{
		Success: true,
		Output:  content,
	}, nil
}

// Close terminates the MCP server subprocess. It is idempotent, safe to
// call on an already-exited process, and swallows all teardown failures:
// cleanup is best-effort but must run on every session exit path.
func (c *StdioMCPClient) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.teardown()
	return nil
}

// teardown closes stdin, asks the process to stop, and escalates to
// SIGKILL if it ignores the grace period.
func (c *StdioMCPClient) teardown() {
	c.closeOnce.Do(func() {
		if c.stdin != nil {
			c.stdin.Close()
		}
		if c.cmd == nil || c.cmd.Process == nil {
			return
		}

		c.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-c.exited:
		case <-time.After(terminateGrace):
			c.cmd.Process.Kill()
			<-c.exited
		}

		if c.stdoutPipe != nil {
			c.stdoutPipe.Close()
		}
		if c.stderrPipe != nil {
			c.stderrPipe.Close()
		}
	})
}

// readLines feeds stdout lines to the transport. The channel is closed
// on EOF, which send reports as ErrTransportClosed.
func (c *StdioMCPClient) readLines(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && err == nil {
			c.lines <- lineResult{data: line}
			continue
		}
		close(c.lines)
		return
	}
}

// drainStderr logs the server's stderr for the lifetime of the process.
// It runs independently of the request path and its failures stay here.
func (c *StdioMCPClient) drainStderr(stderr io.Reader) {
	reader := bufio.NewReader(stderr)
	for {
		line, err := reader.ReadString('\n')
		if trimmed := strings.TrimRight(line, "\n"); trimmed != "" {
			log.Debug("[MCP Server stderr] %s", trimmed)
		}
		if err != nil {
			return
		}
	}
}

// watchExit reaps the subprocess and records its exit status. It uses
// Process.Wait rather than Cmd.Wait so the stdout pipe stays open for the
// reader even after the direct child exits (a grandchild may hold it).
func (c *StdioMCPClient) watchExit() {
	state, err := c.cmd.Process.Wait()
	if err == nil && state != nil {
		c.procState.Store(&exitStatus{code: state.ExitCode()})
	}
	close(c.exited)
}

// send issues one request and blocks for its response line, bounded by
// the configured timeout. The transport allows a single outstanding
// request; callers hold c.mu across send.
func (c *StdioMCPClient) send(ctx context.Context, method string, params interface{}) (map[string]interface{}, error) {
	id := int(c.requestID.Add(1))

	req := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := c.writeMessage(req); err != nil {
		return nil, fmt.Errorf("%w: write failed: %w", ErrTransportClosed, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case line, ok := <-c.lines:
		if !ok {
			return nil, ErrTransportClosed
		}
		return c.decodeResponse(line.data, id)
	case <-timer.C:
		return nil, c.timeoutError(method)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// decodeResponse parses one response line and correlates it with the
// outstanding request id.
func (c *StdioMCPClient) decodeResponse(line []byte, id int) (map[string]interface{}, error) {
	raw := strings.TrimRight(string(line), "\n")

	var resp JSONRPCResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, &ProtocolError{Reason: "malformed response", Raw: raw, Err: err}
	}

	if resp.ID == nil {
		return nil, &ProtocolError{Reason: "response missing id", Raw: raw}
	}
	if *resp.ID != id {
		return nil, &ProtocolError{
			Reason: fmt.Sprintf("response id %d does not match request id %d", *resp.ID, id),
			Raw:    raw,
		}
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	result := make(map[string]interface{})
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, &ProtocolError{Reason: "malformed result", Raw: raw, Err: err}
		}
	}
	return result, nil
}

// timeoutError builds a TimeoutError, probing whether the subprocess has
// exited so the failure can carry its exit status.
func (c *StdioMCPClient) timeoutError(method string) error {
	te := &TimeoutError{Method: method, Timeout: c.timeout}
	select {
	case <-c.exited:
		if state := c.procState.Load(); state != nil {
			te.Exited = true
			te.ExitCode = state.code
		}
	default:
	}
	return te
}

// writeMessage writes a JSON-RPC message as one newline-terminated line.
func (c *StdioMCPClient) writeMessage(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// getString safely extracts a string from a map.
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// extractContent extracts the text of the first content element from a
// tools/call result, falling back to the raw element when it carries no
// text field.
func extractContent(result map[string]interface{}) string {
	contentRaw, ok := result["content"]
	if !ok {
		return ""
	}

	contentList, ok := contentRaw.([]interface{})
	if !ok {
		return fmt.Sprintf("%v", contentRaw)
	}
	if len(contentList) == 0 {
		return ""
	}

	first := contentList[0]
	if itemMap, ok := first.(map[string]interface{}); ok {
		if text, ok := itemMap["text"].(string); ok {
			return text
		}
	}
	return fmt.Sprintf("%v", first)
}
