package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gateway-agent/internal/log"
	"gateway-agent/internal/mcp"
	"gateway-agent/internal/memory"
	"gateway-agent/internal/provider"
	"gateway-agent/internal/tool"
)

// BrowserSystemPrompt is the behavioral directive for browsing tasks.
const BrowserSystemPrompt = `You are a helpful assistant that can control web browsers.
Use the available tools to navigate websites, interact with elements, and gather information.
Always start by using browser_navigate to go to the URL, then use browser_snapshot to see the page structure.
Be explicit about what you're doing at each step.`

// ServerCommand describes how to launch the browser tool server.
type ServerCommand struct {
	Command string
	Args    []string
	Env     map[string]string
}

// BrowserAgent runs browsing tasks. Each task owns one tool-server
// session: the subordinate process is spawned on entry and terminated on
// every exit path, normal or not.
type BrowserAgent struct {
	provider       provider.LLMProvider
	server         ServerCommand
	maxIterations  int
	requestTimeout time.Duration

	// newClient is swappable for tests.
	newClient func() mcp.MCPClient
}

// BrowserOption is a functional option for configuring BrowserAgent.
type BrowserOption func(*BrowserAgent)

// WithMaxIterations overrides the conversation loop ceiling.
func WithMaxIterations(n int) BrowserOption {
	return func(b *BrowserAgent) {
		if n > 0 {
			b.maxIterations = n
		}
	}
}

// WithRequestTimeout overrides the per-request transport timeout.
func WithRequestTimeout(d time.Duration) BrowserOption {
	return func(b *BrowserAgent) {
		if d > 0 {
			b.requestTimeout = d
		}
	}
}

// WithClientFactory injects a custom MCP client constructor.
func WithClientFactory(f func() mcp.MCPClient) BrowserOption {
	return func(b *BrowserAgent) {
		b.newClient = f
	}
}

// NewBrowserAgent creates a BrowserAgent that spawns the given tool
// server for each task.
func NewBrowserAgent(llmProvider provider.LLMProvider, server ServerCommand, opts ...BrowserOption) *BrowserAgent {
	b := &BrowserAgent{
		provider:       llmProvider,
		server:         server,
		maxIterations:  DefaultMaxIterations,
		requestTimeout: mcp.DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.newClient == nil {
		b.newClient = func() mcp.MCPClient {
			return mcp.NewStdioMCPClient(b.server.Command, b.server.Args, b.server.Env,
				mcp.WithRequestTimeout(b.requestTimeout))
		}
	}
	return b
}

// Browse executes one browsing task: connect, fetch the tool catalog,
// run the conversation loop, and tear the session down. On a forced stop
// the partial text is returned together with ErrMaxIterations.
func (b *BrowserAgent) Browse(ctx context.Context, task string) (string, error) {
	client := b.newClient()
	if err := client.Connect(ctx); err != nil {
		return "", fmt.Errorf("browser session setup failed: %w", err)
	}
	defer client.Close()

	infos, err := client.ListTools(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list browser tools: %w", err)
	}
	log.Info("browser session ready with %d tools", len(infos))

	tools := make([]tool.Tool, 0, len(infos))
	for _, info := range infos {
		tools = append(tools, mcp.NewMCPToolWrapper(client, info))
	}

	loop := NewAgent(AgentConfig{
		Provider:      b.provider,
		Tools:         tools,
		SystemPrompt:  BrowserSystemPrompt,
		MaxIterations: b.maxIterations,
	})

	result, err := loop.Run(ctx, task, memory.NewConversationMemory())
	if errors.Is(err, ErrMaxIterations) {
		log.Warn("browsing task hit the iteration ceiling after %d turns", result.Iterations)
		return result.Response, err
	}
	if err != nil {
		return "", err
	}

	log.Info("browsing task finished in %d turns (%d tool calls)",
		result.Iterations, len(result.ToolCallsMade))
	return result.Response, nil
}
