package contextmgr

import (
	"strings"
	"testing"

	"loom/internal/provider"
)

func TestEstimateTokens(t *testing.T) {
	m := New(0)

	tests := []struct {
		name     string
		msg      provider.Message
		expected int
	}{
		{
			name:     "empty content",
			msg:      provider.Message{Role: provider.RoleUser, Content: ""},
			expected: 0,
		},
		{
			name:     "four chars is one token",
			msg:      provider.Message{Role: provider.RoleUser, Content: "abcd"},
			expected: 1,
		},
		{
			name:     "five chars rounds up to two tokens",
			msg:      provider.Message{Role: provider.RoleUser, Content: "abcde"},
			expected: 2,
		},
		{
			name: "tool calls add 20 tokens each",
			msg: provider.Message{
				Role:    provider.RoleAssistant,
				Content: "",
				ToolCalls: []provider.ToolCall{
					{ID: "1"}, {ID: "2"},
				},
			},
			expected: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.EstimateTokens(tt.msg); got != tt.expected {
				t.Errorf("EstimateTokens() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestTrimAlwaysKeepsSystemMessage(t *testing.T) {
	m := New(10)

	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: strings.Repeat("x", 1000)},
		{Role: provider.RoleUser, Content: "hi"},
	}

	result := m.Trim(messages)
	if len(result) == 0 || result[0].Role != provider.RoleSystem {
		t.Fatalf("expected system message to always be kept, got %+v", result)
	}
}

func TestTrimExcludesOversizedNonSystemMessage(t *testing.T) {
	m := New(4)

	messages := []provider.Message{
		{Role: provider.RoleUser, Content: strings.Repeat("x", 1000)},
	}

	result := m.Trim(messages)
	if len(result) != 0 {
		t.Errorf("expected oversized non-system message to be excluded, got %+v", result)
	}
}

func TestTrimSelectsHighestScoringMessagesWithinBudget(t *testing.T) {
	// Budget fits the system message plus exactly one of the two
	// remaining messages; the later user message should win since
	// role_weight is equal and recency favors it.
	m := New(0)
	m.MaxTokens = 1

	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: ""},
		{Role: provider.RoleUser, Content: "ab"}, // 1 token, recency 2/3
		{Role: provider.RoleUser, Content: "cd"}, // 1 token, recency 3/3
	}

	result := m.Trim(messages)
	if len(result) != 2 {
		t.Fatalf("expected system + one message, got %d messages: %+v", len(result), result)
	}
	if result[1].Content != "cd" {
		t.Errorf("expected the more recent message to be kept, got %q", result[1].Content)
	}
}

func TestTrimReturnsChronologicalOrder(t *testing.T) {
	m := New(1000)

	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: "sys"},
		{Role: provider.RoleUser, Content: "first"},
		{Role: provider.RoleAssistant, Content: "second"},
		{Role: provider.RoleUser, Content: "third"},
	}

	result := m.Trim(messages)
	if len(result) != len(messages) {
		t.Fatalf("expected all messages to fit, got %d", len(result))
	}
	for i, msg := range messages {
		if result[i].Content != msg.Content {
			t.Errorf("result[%d] = %q, want %q (chronological order)", i, result[i].Content, msg.Content)
		}
	}
}

func TestTrimAssistantWithToolCallsOutranksPlainAssistant(t *testing.T) {
	m := New(0)
	m.MaxTokens = 1

	messages := []provider.Message{
		{Role: provider.RoleAssistant, Content: "a"},
		{Role: provider.RoleAssistant, Content: "a", ToolCalls: []provider.ToolCall{{ID: "1"}}},
	}

	s1 := score(provider.RoleAssistant, 0, 2, false)
	s2 := score(provider.RoleAssistant, 1, 2, true)
	if s2 <= s1 {
		t.Errorf("assistant-with-tool-calls score %v should outrank plain assistant score %v", s2, s1)
	}
}

func TestTrimEmptyInput(t *testing.T) {
	m := New(0)
	if result := m.Trim(nil); len(result) != 0 {
		t.Errorf("expected empty result for empty input, got %+v", result)
	}
}
