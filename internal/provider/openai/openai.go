// Package openai adapts OpenAI's Chat Completions API to the provider.Provider interface.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	openaisdk "github.com/sashabaranov/go-openai"

	"loom/internal/provider"
)

// Config holds the settings needed to construct a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// Provider implements provider.Provider for OpenAI's Chat Completions API.
type Provider struct {
	client       *openaisdk.Client
	defaultModel string
	maxTokens    int
}

// New constructs an OpenAI-backed provider. APIKey is required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openaisdk.GPT4o
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	clientCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openaisdk.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Models() []string {
	return []string{
		openaisdk.GPT4o,
		openaisdk.GPT4Turbo,
		openaisdk.GPT4,
		openaisdk.GPT3Dot5Turbo,
	}
}

// Chat sends a single non-streaming request to the Chat Completions API.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	chatReq := openaisdk.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	completion, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, provider.NewProviderError(provider.ErrCodeUnknown, "openai: empty choices in response", "openai", false)
	}

	choice := completion.Choices[0]
	resp := &provider.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &provider.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Type:      string(tc.Type),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

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

func convertMessages(messages []provider.Message) ([]openaisdk.ChatCompletionMessage, error) {
	result := make([]openaisdk.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaiMsg := openaisdk.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args := tc.Arguments
			name := tc.Name
			if tc.Function != nil {
				if args == "" {
					args = tc.Function.Arguments
				}
				if name == "" {
					name = tc.Function.Name
				}
			}
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openaisdk.ToolCall{
				ID:   tc.ID,
				Type: openaisdk.ToolTypeFunction,
				Function: openaisdk.FunctionCall{
					Name:      name,
					Arguments: args,
				},
			})
		}
		result = append(result, oaiMsg)
	}
	return result, nil
}

func convertTools(tools []provider.Tool) []openaisdk.Tool {
	result := make([]openaisdk.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Function.Parameters) > 0 {
			_ = json.Unmarshal(t.Function.Parameters, &params)
		}
		result = append(result, openaisdk.Tool{
			Type: openaisdk.ToolTypeFunction,
			Function: &openaisdk.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

func wrapError(err error) error {
	var apiErr *openaisdk.APIError
	if errors.As(err, &apiErr) {
		code := provider.ErrCodeUnknown
		retryable := false
		switch apiErr.HTTPStatusCode {
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
			if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
				code = provider.ErrCodeInvalidRequest
			}
		}
		msg := apiErr.Message
		if msg == "" {
			msg = "openai: request failed with status " + strconv.Itoa(apiErr.HTTPStatusCode)
		}
		return provider.NewProviderError(code, msg, "openai", retryable)
	}
	return provider.NewProviderError(provider.ErrCodeNetworkError, fmt.Sprintf("openai: %v", err), "openai", true)
}
