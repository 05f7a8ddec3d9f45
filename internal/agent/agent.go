// Package agent implements the tool-augmented conversation loop.
package agent

import (
	"context"
	"errors"
	"fmt"

	"gateway-agent/internal/memory"
	"gateway-agent/internal/provider"
	"gateway-agent/internal/tool"
)

// DefaultMaxIterations bounds the conversation loop. A task that has not
// produced a tool-call-free turn by then is forcibly stopped.
const DefaultMaxIterations = 30

// ErrMaxIterations is returned when the loop reaches the iteration
// ceiling. The accompanying AgentResult still carries the last turn's
// text so callers can surface a partial answer.
var ErrMaxIterations = errors.New("agent: max iterations reached")

// AgentConfig holds configuration for creating a new Agent.
type AgentConfig struct {
	Provider      provider.LLMProvider
	Tools         []tool.Tool
	SystemPrompt  string
	MaxIterations int
}

// AgentResult represents the result of an agent run. Response is the
// text of the final model turn: the turn without tool calls on normal
// completion, or the last turn's text (possibly empty) on a forced stop.
type AgentResult struct {
	Response      string
	ToolCallsMade []provider.ToolCall
	Iterations    int
}

// Agent drives the multi-turn exchange with the model: each iteration
// sends the full history plus the tool catalog, executes any tool calls
// the model emitted, feeds the results back, and repeats until a turn
// carries no tool calls or the ceiling is reached.
type Agent struct {
	provider      provider.LLMProvider
	tools         map[string]tool.Tool
	toolOrder     []string
	systemPrompt  string
	maxIterations int
}

// NewAgent creates a new Agent with the given configuration.
// If MaxIterations is not set (0), it defaults to DefaultMaxIterations.
func NewAgent(cfg AgentConfig) *Agent {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	toolMap := make(map[string]tool.Tool)
	order := make([]string, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if _, exists := toolMap[t.Name()]; !exists {
			order = append(order, t.Name())
		}
		toolMap[t.Name()] = t
	}

	return &Agent{
		provider:      cfg.Provider,
		tools:         toolMap,
		toolOrder:     order,
		systemPrompt:  cfg.SystemPrompt,
		maxIterations: maxIter,
	}
}

// Run executes the conversation loop with the given task instruction.
// Per-tool failures are reported back to the model as error-flagged
// results and never abort the loop; transport-fatal errors from tool
// execution and model call failures propagate immediately. Reaching the
// ceiling returns the last turn's text together with ErrMaxIterations.
func (a *Agent) Run(ctx context.Context, input string, mem *memory.ConversationMemory) (*AgentResult, error) {
	mem.AddMessage("user", input)

	allToolCalls := make([]provider.ToolCall, 0)
	toolDefs := a.buildToolDefinitions()

	var lastText string
	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		req := provider.GenerateRequest{
			Messages:     mem.GetMessages(),
			Tools:        toolDefs,
			SystemPrompt: a.systemPrompt,
		}

		resp, err := a.provider.Generate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}

		// Each turn's own text is the candidate answer; it does not
		// accumulate across turns.
		lastText = resp.Text

		if !resp.HasToolCalls() {
			mem.AddMessage("assistant", resp.Text)
			return &AgentResult{
				Response:      resp.Text,
				ToolCallsMade: allToolCalls,
				Iterations:    iteration,
			}, nil
		}

		// The assistant turn with its tool_use blocks must precede the
		// tool results in the history.
		mem.AddAssistantMessageWithToolCalls(resp.Text, resp.ToolCalls)

		// Tool calls run sequentially in the order the model emitted
		// them, so later calls observe earlier side effects. All results
		// for the turn are appended as one user message.
		results := make([]provider.ToolResultBlock, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			allToolCalls = append(allToolCalls, tc)

			block, err := a.executeTool(ctx, tc)
			if err != nil {
				return nil, fmt.Errorf("tool %q failed fatally: %w", tc.Name, err)
			}
			results = append(results, block)
		}
		mem.AddToolResults(results)
	}

	return &AgentResult{
		Response:      lastText,
		ToolCallsMade: allToolCalls,
		Iterations:    a.maxIterations,
	}, ErrMaxIterations
}

// RegisterTool adds a tool to the agent's tool registry.
func (a *Agent) RegisterTool(t tool.Tool) {
	if _, exists := a.tools[t.Name()]; !exists {
		a.toolOrder = append(a.toolOrder, t.Name())
	}
	a.tools[t.Name()] = t
}

// GetTools returns all registered tools in registration order.
func (a *Agent) GetTools() []tool.Tool {
	tools := make([]tool.Tool, 0, len(a.toolOrder))
	for _, name := range a.toolOrder {
		tools = append(tools, a.tools[name])
	}
	return tools
}

// buildToolDefinitions converts registered tools to definitions for
// model requests, preserving catalog order.
func (a *Agent) buildToolDefinitions() []provider.ToolDefinition {
	defs := make([]provider.ToolDefinition, 0, len(a.toolOrder))
	for _, name := range a.toolOrder {
		defs = append(defs, tool.ToDefinition(a.tools[name]))
	}
	return defs
}

// executeTool runs one tool call and converts its outcome into a tool
// result block tagged with the originating call id. Unknown tools and
// failed executions become error-flagged blocks; only transport-level
// errors are returned for the loop to propagate.
func (a *Agent) executeTool(ctx context.Context, tc provider.ToolCall) (provider.ToolResultBlock, error) {
	t, exists := a.tools[tc.Name]
	if !exists {
		return provider.ToolResultBlock{
			ToolUseID: tc.ID,
			Content:   fmt.Sprintf("unknown tool %q", tc.Name),
			IsError:   true,
		}, nil
	}

	result, err := t.Execute(ctx, tc.Arguments)
	if err != nil {
		return provider.ToolResultBlock{}, err
	}

	if !result.Success {
		return provider.ToolResultBlock{
			ToolUseID: tc.ID,
			Content:   fmt.Sprintf("Error: %s", result.Error),
			IsError:   true,
		}, nil
	}

	return provider.ToolResultBlock{
		ToolUseID: tc.ID,
		Content:   result.Output,
	}, nil
}
