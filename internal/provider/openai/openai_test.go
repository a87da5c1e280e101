package openai

import (
	"testing"

	openaisdk "github.com/sashabaranov/go-openai"

	"loom/internal/provider"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.defaultModel != openaisdk.GPT4o {
		t.Errorf("defaultModel = %q, want %q", p.defaultModel, openaisdk.GPT4o)
	}
	if p.maxTokens != 4096 {
		t.Errorf("maxTokens = %d, want 4096", p.maxTokens)
	}
}

func TestConvertMessagesPreservesToolCalls(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.RoleUser, Content: "what's the weather?"},
		{
			Role: provider.RoleAssistant,
			ToolCalls: []provider.ToolCall{
				{ID: "call_1", Name: "weather", Arguments: `{"city":"nyc"}`},
			},
		},
		{Role: provider.RoleTool, Content: "72F", ToolCallID: "call_1"},
	}

	out, err := convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	if out[1].ToolCalls[0].Function.Name != "weather" {
		t.Errorf("tool call name = %q, want weather", out[1].ToolCalls[0].Function.Name)
	}
	if out[2].ToolCallID != "call_1" {
		t.Errorf("tool call id = %q, want call_1", out[2].ToolCallID)
	}
}

func TestConvertToolsBuildsFunctionDefinitions(t *testing.T) {
	tools := []provider.Tool{
		{Type: "function", Function: provider.ToolFunction{
			Name:        "read",
			Description: "read a file",
			Parameters:  []byte(`{"type":"object","properties":{"path":{"type":"string"}}}`),
		}},
	}

	out := convertTools(tools)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Function.Name != "read" {
		t.Errorf("Function.Name = %q, want read", out[0].Function.Name)
	}
}

func TestWrapErrorClassifiesRateLimit(t *testing.T) {
	apiErr := &openaisdk.APIError{HTTPStatusCode: 429, Message: "slow down"}
	err := wrapError(apiErr)
	var pe *provider.ProviderError
	if !errorsAs(err, &pe) {
		t.Fatalf("expected *provider.ProviderError, got %T", err)
	}
	if pe.Code != provider.ErrCodeRateLimited {
		t.Errorf("Code = %q, want %q", pe.Code, provider.ErrCodeRateLimited)
	}
	if !pe.Retryable {
		t.Error("rate limited errors should be retryable")
	}
}

func errorsAs(err error, target **provider.ProviderError) bool {
	pe, ok := err.(*provider.ProviderError)
	if !ok {
		return false
	}
	*target = pe
	return true
}
