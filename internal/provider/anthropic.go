package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

const (
	// DefaultModel is the default Claude model to use.
	DefaultModel = "claude-sonnet-4-20250514"
	// DefaultMaxTokens bounds the size of each model turn.
	DefaultMaxTokens = 2048
)

// AnthropicProvider implements LLMProvider using the official Anthropic SDK.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// AnthropicOption is a functional option for configuring AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithModel sets the Claude model to use.
func WithModel(model string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithMaxTokens sets the per-turn output token budget.
func WithMaxTokens(n int) AnthropicOption {
	return func(p *AnthropicProvider) {
		if n > 0 {
			p.maxTokens = int64(n)
		}
	}
}

// NewAnthropicProvider creates a provider reading the API key from the
// ANTHROPIC_API_KEY environment variable.
func NewAnthropicProvider(opts ...AnthropicOption) (*AnthropicProvider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}
	return NewAnthropicProviderWithKey(apiKey, opts...)
}

// NewAnthropicProviderWithKey creates a provider with an explicit API key.
func NewAnthropicProviderWithKey(apiKey string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}

	p := &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Generate sends one non-streaming messages request and returns the
// response text and tool calls.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  buildMessages(req.Messages),
		Tools:     buildTools(req.Tools),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: messages request failed: %w", err)
	}

	return parseContent(msg.Content), nil
}

// buildMessages converts conversation messages to SDK message params.
func buildMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch {
		case len(msg.ToolResults) > 0:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResults))
			for _, tr := range msg.ToolResults {
				blocks = append(blocks, toolResultBlock(tr))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))

		case msg.Role == "assistant":
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

// toolResultBlock converts a ToolResultBlock to an SDK content block.
func toolResultBlock(tr ToolResultBlock) anthropic.ContentBlockParamUnion {
	block := anthropic.ToolResultBlockParam{
		ToolUseID: tr.ToolUseID,
		IsError:   anthropic.Bool(tr.IsError),
		Content: []anthropic.ToolResultBlockParamContentUnion{
			{OfText: &anthropic.TextBlockParam{Text: tr.Content}},
		},
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}
}

// buildTools converts tool definitions to SDK tool params.
func buildTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: def.Parameters["properties"],
			Required:   schemaRequired(def.Parameters),
		}
		tool := anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
		if def.Description != "" {
			tool.OfTool.Description = anthropic.String(def.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

// schemaRequired extracts the required field names from a JSON schema map.
func schemaRequired(schema map[string]interface{}) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// parseContent extracts text and tool calls from response content blocks.
func parseContent(content []anthropic.ContentBlockUnion) *LLMResponse {
	resp := &LLMResponse{ToolCalls: make([]ToolCall, 0)}
	for _, block := range content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += b.Text
		case anthropic.ToolUseBlock:
			args := make(map[string]interface{})
			if len(b.Input) > 0 {
				// Malformed input is passed through as empty args; the
				// tool server reports the missing arguments to the model.
				_ = json.Unmarshal(b.Input, &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}
	return resp
}
