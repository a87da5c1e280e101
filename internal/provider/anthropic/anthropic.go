// Package anthropic adapts Anthropic's Claude API to the provider.Provider interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"loom/internal/provider"
)

// Config holds the settings needed to construct a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// Provider implements provider.Provider for Anthropic's Messages API.
type Provider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// New constructs an Anthropic-backed provider. APIKey is required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Models() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-sonnet-20241022",
		"claude-3-haiku-20240307",
	}
}

// Chat sends a single non-streaming request to the Messages API.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	resp := &provider.ChatResponse{
		FinishReason: string(msg.StopReason),
	}
	if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
		resp.Usage = &provider.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			args, err := json.Marshal(tu.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: marshal tool_use input: %w", err)
			}
			resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
				ID:        tu.ID,
				Type:      "function",
				Name:      tu.Name,
				Arguments: string(args),
			})
		}
	}
	resp.Content = text.String()

	return resp, nil
}

// Stream wraps Chat into a single-chunk stream, kept for interface symmetry;
// the turn orchestrator only ever calls Chat.
func (p *Provider) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	events := make(chan provider.ChatEvent, 2)
	go func() {
		defer close(events)
		resp, err := p.Chat(ctx, req)
		if err != nil {
			events <- provider.ChatEvent{Type: provider.EventTypeError, Error: err}
			return
		}
		if resp.Content != "" {
			events <- provider.ChatEvent{Type: provider.EventTypeContent, Delta: resp.Content}
		}
		for i := range resp.ToolCalls {
			events <- provider.ChatEvent{Type: provider.EventTypeToolCall, ToolCall: &resp.ToolCalls[i]}
		}
		events <- provider.ChatEvent{Type: provider.EventTypeDone, Usage: resp.Usage, FinishReason: resp.FinishReason}
	}()
	return events, nil
}

func (p *Provider) buildParams(req provider.ChatRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}

	var systemPrompt strings.Builder
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		if m.Role == provider.RoleSystem {
			if systemPrompt.Len() > 0 {
				systemPrompt.WriteString("\n")
			}
			systemPrompt.WriteString(m.Content)
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		if m.Role == provider.RoleTool {
			isError := false
			blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isError))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]any
			args := tc.Arguments
			if tc.Function != nil {
				args = tc.Function.Arguments
			}
			if args != "" {
				if err := json.Unmarshal([]byte(args), &input); err != nil {
					return params, fmt.Errorf("anthropic: invalid tool call arguments: %w", err)
				}
			}
			name := tc.Name
			if tc.Function != nil && name == "" {
				name = tc.Function.Name
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, name))
		}

		role := anthropic.MessageParamRoleUser
		if m.Role == provider.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		messages = append(messages, anthropic.MessageParam{Role: role, Content: blocks})
	}
	params.Messages = messages
	if systemPrompt.Len() > 0 {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt.String()}}
	}

	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}

	return params, nil
}

func (p *Provider) convertTools(tools []provider.Tool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("anthropic: invalid schema for tool %s: %w", t.Function.Name, err)
			}
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool definition for %s", t.Function.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Function.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func (p *Provider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := provider.ErrCodeUnknown
		retryable := false
		switch apiErr.StatusCode {
		case 401, 403:
			code = provider.ErrCodeAuthFailed
		case 429:
			code = provider.ErrCodeRateLimited
			retryable = true
		case 404:
			code = provider.ErrCodeModelNotFound
		case 500, 502, 503, 504:
			code = provider.ErrCodeServiceUnavailable
			retryable = true
		default:
			if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
				code = provider.ErrCodeInvalidRequest
			}
		}
		return provider.NewProviderError(code, apiErr.Error(), "anthropic", retryable)
	}
	return provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), "anthropic", true)
}
