package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"loom/internal/provider"
	"loom/internal/storage"
	"loom/internal/tools"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.OpenWithRegisterer(dbPath, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestSession creates a session and persists its system prompt as the
// first message, mirroring what chat.Facade.CreateSession does for every
// real session — these tests go through storage.DB directly, so they have
// to do it themselves to keep the session's history starting with a
// role=system row.
func newTestSession(t *testing.T, db *storage.DB) string {
	t.Helper()
	systemPrompt := "you are a test assistant"
	s, err := db.CreateSession(storage.NewSessionFields{Title: "test", SystemPrompt: systemPrompt})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := db.AddMessage(storage.NewMessageFields{SessionID: s.ID, Role: storage.RoleSystem, Content: systemPrompt}); err != nil {
		t.Fatalf("seed system message: %v", err)
	}
	return s.ID
}

// scriptedProvider returns one canned ChatResponse per Chat call, in order.
type scriptedProvider struct {
	responses []*provider.ChatResponse
	calls     int
}

func (p *scriptedProvider) Name() string      { return "scripted" }
func (p *scriptedProvider) Models() []string  { return []string{"test-model"} }
func (p *scriptedProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}
func (p *scriptedProvider) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	return nil, nil
}

type echoTool struct {
	tools.BaseTool
}

func (t *echoTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	return tools.NewSuccessResult("echoed"), nil
}

func TestRunTurnReturnsFinalAssistantMessageWithNoToolCalls(t *testing.T) {
	db := newTestDB(t)
	registry := tools.NewRegistry()
	sessionID := newTestSession(t, db)

	orch := New(db, registry, nil, nil, 2, 0)
	prov := &scriptedProvider{responses: []*provider.ChatResponse{
		{Content: "hello there", FinishReason: provider.FinishReasonStop},
	}}

	msg, err := orch.RunTurn(context.Background(), sessionID, "hi", prov, "test-model")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if msg.Content != "hello there" {
		t.Errorf("content = %q, want %q", msg.Content, "hello there")
	}

	history, err := db.GetSessionMessages(sessionID, 0)
	if err != nil {
		t.Fatalf("GetSessionMessages: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 persisted messages (system + user + assistant), got %d", len(history))
	}
	if history[0].Role != storage.RoleSystem || history[1].Role != storage.RoleUser || history[2].Role != storage.RoleAssistant {
		t.Errorf("unexpected roles: %v, %v, %v", history[0].Role, history[1].Role, history[2].Role)
	}
}

func TestRunTurnExecutesToolCallsAndFeedsResultsBack(t *testing.T) {
	db := newTestDB(t)
	registry := tools.NewRegistry()
	if err := registry.Register(&echoTool{BaseTool: tools.BaseTool{ToolName: "echo", ToolDescription: "echoes"}}); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	sessionID := newTestSession(t, db)

	orch := New(db, registry, nil, nil, 2, 0)
	prov := &scriptedProvider{responses: []*provider.ChatResponse{
		{
			Content: "",
			ToolCalls: []provider.ToolCall{
				{ID: "call_1", Name: "echo", Arguments: `{}`},
			},
			FinishReason: provider.FinishReasonToolCalls,
		},
		{Content: "done", FinishReason: provider.FinishReasonStop},
	}}

	msg, err := orch.RunTurn(context.Background(), sessionID, "run echo", prov, "test-model")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if msg.Content != "done" {
		t.Errorf("content = %q, want %q", msg.Content, "done")
	}

	history, err := db.GetSessionMessages(sessionID, 0)
	if err != nil {
		t.Fatalf("GetSessionMessages: %v", err)
	}
	// system, user, assistant(with tool call), tool result, assistant(final)
	if len(history) != 5 {
		t.Fatalf("expected 5 persisted messages, got %d: %+v", len(history), history)
	}
	if history[3].Role != storage.RoleTool || history[3].Content != "echoed" {
		t.Errorf("unexpected tool message: %+v", history[3])
	}
	if history[3].ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q, want %q", history[3].ToolCallID, "call_1")
	}
}

func TestRunTurnFeedsToolFailureBackAsError(t *testing.T) {
	db := newTestDB(t)
	registry := tools.NewRegistry()
	sessionID := newTestSession(t, db)
	// No tools registered: execute_tracked should fail with tool-not-found,
	// and that failure text should flow back into the tool result message.

	orch := New(db, registry, nil, nil, 2, 0)
	prov := &scriptedProvider{responses: []*provider.ChatResponse{
		{
			ToolCalls:    []provider.ToolCall{{ID: "call_1", Name: "missing", Arguments: `{}`}},
			FinishReason: provider.FinishReasonToolCalls,
		},
		{Content: "recovered", FinishReason: provider.FinishReasonStop},
	}}

	msg, err := orch.RunTurn(context.Background(), sessionID, "run missing tool", prov, "test-model")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if msg.Content != "recovered" {
		t.Errorf("content = %q, want %q", msg.Content, "recovered")
	}

	history, _ := db.GetSessionMessages(sessionID, 0)
	if len(history) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(history))
	}
	if history[3].Role != storage.RoleTool {
		t.Fatalf("expected tool message at index 3, got %v", history[3].Role)
	}
	if history[3].Content == "" || history[3].Content[:6] != "Error:" {
		t.Errorf("expected tool failure to surface as an error message, got %q", history[3].Content)
	}
}

func TestResumeTurnReExecutesOutstandingToolCalls(t *testing.T) {
	db := newTestDB(t)
	registry := tools.NewRegistry()
	if err := registry.Register(&echoTool{BaseTool: tools.BaseTool{ToolName: "echo", ToolDescription: "echoes"}}); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	sessionID := newTestSession(t, db)

	// Simulate a prior turn that persisted the user message and an
	// assistant message with an outstanding tool call, but crashed before
	// the tool call was executed (e.g. the process died mid-turn).
	if _, err := db.AddMessage(storage.NewMessageFields{SessionID: sessionID, Role: storage.RoleUser, Content: "run echo"}); err != nil {
		t.Fatalf("seed user message: %v", err)
	}
	if _, err := db.AddMessage(storage.NewMessageFields{
		SessionID: sessionID,
		Role:      storage.RoleAssistant,
		ToolCalls: []storage.ToolCall{toStorageToolCall(provider.ToolCall{ID: "call_1", Name: "echo", Arguments: `{}`})},
	}); err != nil {
		t.Fatalf("seed assistant message: %v", err)
	}

	orch := New(db, registry, nil, nil, 2, 0)
	prov := &scriptedProvider{responses: []*provider.ChatResponse{
		{Content: "resumed", FinishReason: provider.FinishReasonStop},
	}}

	msg, err := orch.ResumeTurn(context.Background(), sessionID, prov, "test-model")
	if err != nil {
		t.Fatalf("ResumeTurn: %v", err)
	}
	if msg.Content != "resumed" {
		t.Errorf("content = %q, want %q", msg.Content, "resumed")
	}

	history, _ := db.GetSessionMessages(sessionID, 0)
	if len(history) != 5 {
		t.Fatalf("expected 5 messages after resume, got %d", len(history))
	}
	if history[3].Role != storage.RoleTool || history[3].Content != "echoed" {
		t.Errorf("expected the outstanding tool call to be re-executed, got %+v", history[3])
	}
}

type blockingTool struct {
	tools.BaseTool
	execFn func(ctx context.Context, args map[string]any) (tools.ToolResult, error)
}

func (t *blockingTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	return t.execFn(ctx, args)
}

// TestRunTurnAbortDropsToolMessageForUnresolvedCall covers the abort
// scenario: a turn cancelled while a tool call is still in flight must not
// append a tool message for that call — the session is left with just the
// user message and the assistant's tool-call message.
func TestRunTurnAbortDropsToolMessageForUnresolvedCall(t *testing.T) {
	db := newTestDB(t)
	registry := tools.NewRegistry()
	started := make(chan struct{})
	blockTool := &blockingTool{
		BaseTool: tools.BaseTool{ToolName: "block", ToolDescription: "blocks"},
		execFn: func(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
			close(started)
			<-ctx.Done()
			return tools.ToolResult{}, ctx.Err()
		},
	}
	if err := registry.Register(blockTool); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	sessionID := newTestSession(t, db)

	orch := New(db, registry, nil, nil, 2, 0)
	prov := &scriptedProvider{responses: []*provider.ChatResponse{
		{
			ToolCalls:    []provider.ToolCall{{ID: "call_1", Name: "block", Arguments: `{}`}},
			FinishReason: provider.FinishReasonToolCalls,
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := orch.RunTurn(ctx, sessionID, "run block", prov, "test-model")
		done <- err
	}()

	<-started
	cancel()

	if err := <-done; err == nil {
		t.Fatal("expected RunTurn to return an error on abort")
	}

	history, err := db.GetSessionMessages(sessionID, 0)
	if err != nil {
		t.Fatalf("GetSessionMessages: %v", err)
	}
	// system, user, assistant(with tool call) — no tool message for the
	// call that never resolved.
	if len(history) != 3 {
		t.Fatalf("expected 3 persisted messages (no tool message on abort), got %d: %+v", len(history), history)
	}
	if history[2].Role != storage.RoleAssistant || len(history[2].ToolCalls) == 0 {
		t.Errorf("expected last message to be the assistant's tool-call message, got %+v", history[2])
	}
}
