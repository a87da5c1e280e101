package anthropic

import (
	"testing"

	"loom/internal/provider"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New(Config{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.defaultModel != "claude-sonnet-4-20250514" {
		t.Errorf("defaultModel = %q", p.defaultModel)
	}
	if p.maxTokens != 4096 {
		t.Errorf("maxTokens = %d, want 4096", p.maxTokens)
	}
}

func TestBuildParamsSeparatesSystemPrompt(t *testing.T) {
	p, err := New(Config{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := provider.ChatRequest{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: "be terse"},
			{Role: provider.RoleUser, Content: "hello"},
		},
	}

	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams failed: %v", err)
	}
	if len(params.System) != 1 || params.System[0].Text != "be terse" {
		t.Errorf("System = %+v, want [be terse]", params.System)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 (system message excluded)", len(params.Messages))
	}
}

func TestBuildParamsConvertsToolCallArguments(t *testing.T) {
	p, err := New(Config{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := provider.ChatRequest{
		Messages: []provider.Message{
			{
				Role: provider.RoleAssistant,
				ToolCalls: []provider.ToolCall{
					{ID: "call_1", Name: "grep", Arguments: `{"pattern":"TODO"}`},
				},
			},
		},
	}

	if _, err := p.buildParams(req); err != nil {
		t.Fatalf("buildParams failed: %v", err)
	}
}

func TestBuildParamsRejectsInvalidToolArguments(t *testing.T) {
	p, err := New(Config{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := provider.ChatRequest{
		Messages: []provider.Message{
			{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "grep", Arguments: "not json"}}},
		},
	}

	if _, err := p.buildParams(req); err == nil {
		t.Error("expected error for malformed tool call arguments")
	}
}

func TestConvertToolsRequiresValidSchema(t *testing.T) {
	p, err := New(Config{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tools := []provider.Tool{{Function: provider.ToolFunction{Name: "bash", Parameters: []byte("not json")}}}
	if _, err := p.convertTools(tools); err == nil {
		t.Error("expected error for malformed schema")
	}
}
