// Package orchestrator drives the user→LLM→tools→LLM loop for a single
// turn: it builds a trimmed context window, asks a provider for the next
// assistant message, and — while that message carries tool calls — runs
// them through the execution queue and feeds their results back, until
// the assistant responds with no further calls.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"loom/internal/contextmgr"
	"loom/internal/notifier"
	"loom/internal/provider"
	"loom/internal/queue"
	"loom/internal/storage"
	"loom/internal/tools"
	"loom/pkg/logger"
)

// DefaultMaxIterations bounds the tool-call loop so a misbehaving model
// can't keep a turn running forever.
const DefaultMaxIterations = 25

// Orchestrator runs turns against a session store, a tool registry, and a
// realtime hub. One Orchestrator is shared across sessions; concurrency
// between turns on different sessions is unbounded, but at most one turn
// runs per session at a time.
type Orchestrator struct {
	db             *storage.DB
	registry       *tools.Registry
	hub            *notifier.Hub
	contextManager *contextmgr.Manager
	maxConcurrent  int
	maxIterations  int
	turnConfig     TurnConfig

	turnLocksMu sync.Mutex
	turnLocks   map[string]*sync.Mutex
}

// New creates an Orchestrator. maxConcurrent bounds each turn's execution
// queue (see internal/queue); maxIterations <= 0 uses DefaultMaxIterations.
func New(db *storage.DB, registry *tools.Registry, hub *notifier.Hub, contextManager *contextmgr.Manager, maxConcurrent, maxIterations int) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if contextManager == nil {
		contextManager = contextmgr.New(0)
	}
	return &Orchestrator{
		db:             db,
		registry:       registry,
		hub:            hub,
		contextManager: contextManager,
		maxConcurrent:  maxConcurrent,
		maxIterations:  maxIterations,
		turnConfig:     DefaultTurnConfig(),
		turnLocks:      make(map[string]*sync.Mutex),
	}
}

// SetTurnConfig replaces the generation parameters forwarded to the
// provider on every subsequent turn. Values outside their valid range
// are clamped rather than rejected.
func (o *Orchestrator) SetTurnConfig(cfg TurnConfig) {
	o.turnConfig = cfg.Validate()
}

// sessionLock returns the mutex serializing turns for sessionID, creating
// one on first use. A second send on the same session blocks here until
// the active turn releases it, rather than being rejected.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.turnLocksMu.Lock()
	defer o.turnLocksMu.Unlock()
	lock, ok := o.turnLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.turnLocks[sessionID] = lock
	}
	return lock
}

// RunTurn executes one full turn: it appends userInput, loops the
// provider/tool exchange until the assistant responds with no tool calls,
// and returns that final assistant message. Every message it produces
// along the way is durably persisted before this returns, even if the
// turn ultimately fails partway through.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, userInput string, prov provider.Provider, model string) (*storage.Message, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	userMsg, err := o.db.AddMessage(storage.NewMessageFields{
		SessionID: sessionID,
		Role:      storage.RoleUser,
		Content:   userInput,
	})
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	o.emitMessage(notifier.EventUserMessage, sessionID, userMsg)

	return o.continueTurn(ctx, sessionID, prov, model)
}

// ResumeTurn re-enters the loop from the session's current persisted
// state without appending a new user message — used when a prior turn
// failed partway and the client retries against the same session: if the
// last persisted assistant message carries outstanding tool calls, those
// are re-executed before the loop continues.
func (o *Orchestrator) ResumeTurn(ctx context.Context, sessionID string, prov provider.Provider, model string) (*storage.Message, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return o.continueTurn(ctx, sessionID, prov, model)
}

// continueTurn runs steps 2-3 of the protocol: build context, ask the
// provider, run any tool calls it requests, and repeat until an
// assistant message with no tool calls is produced.
func (o *Orchestrator) continueTurn(ctx context.Context, sessionID string, prov provider.Provider, model string) (*storage.Message, error) {
	providerTools, err := o.registry.ToProviderTools()
	if err != nil {
		return nil, fmt.Errorf("build tool definitions: %w", err)
	}

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		history, err := o.db.GetSessionMessages(sessionID, 0)
		if err != nil {
			return nil, fmt.Errorf("load session history: %w", err)
		}

		pending := pendingToolCalls(history)
		if len(pending) > 0 {
			if err := o.runToolCalls(ctx, sessionID, pending); err != nil {
				return nil, err
			}
			continue
		}

		windowed := o.contextManager.Trim(toProviderMessages(history))

		resp, err := prov.Chat(ctx, provider.ChatRequest{
			Model:       model,
			Messages:    windowed,
			Tools:       providerTools,
			Temperature: o.turnConfig.Temperature,
			MaxTokens:   o.turnConfig.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("provider chat: %w", err)
		}

		assistantMsg, err := o.persistAssistant(sessionID, prov.Name(), model, resp)
		if err != nil {
			return nil, err
		}
		o.emitMessage(notifier.EventAssistantMessage, sessionID, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			return assistantMsg, nil
		}
	}

	return nil, fmt.Errorf("turn exceeded %d iterations without resolving", o.maxIterations)
}

// pendingToolCalls returns the assistant message's tool calls that have
// no answering tool message yet, or nil if the history's tail isn't an
// assistant message with outstanding calls.
func pendingToolCalls(history []*storage.Message) []storage.ToolCall {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	if last.Role != storage.RoleAssistant || len(last.ToolCalls) == 0 {
		return nil
	}

	answered := make(map[string]bool)
	for _, m := range history {
		if m.Role == storage.RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	var pending []storage.ToolCall
	for _, tc := range last.ToolCalls {
		if !answered[tc.ID] {
			pending = append(pending, tc)
		}
	}
	return pending
}

// runToolCalls enqueues every pending call on a turn-scoped queue, awaits
// all of them, and persists one role=tool message per call that actually
// produced a result. A call that never got one because the turn was
// aborted mid-flight is not written to history at all: the session is left
// with the user message and the assistant's tool-call message only, and the
// abort itself is returned as this turn's error.
func (o *Orchestrator) runToolCalls(ctx context.Context, sessionID string, calls []storage.ToolCall) error {
	q := queue.New(ctx, o.registry, o.maxConcurrent)

	type pendingCall struct {
		call   storage.ToolCall
		future *queue.Future
	}
	pending := make([]pendingCall, 0, len(calls))

	for _, tc := range calls {
		name := tc.GetName()
		var args map[string]any
		if raw := tc.GetArguments(); raw != "" {
			_ = json.Unmarshal([]byte(raw), &args)
		}
		o.emitToolStatus(sessionID, tc.ID, notifier.ToolStatusStarted, "")
		future := q.Add(name, args, tools.ExecutionContext{SessionID: sessionID}, queue.PriorityNormal)
		pending = append(pending, pendingCall{call: tc, future: future})
	}
	q.Wait()

	var abortErr error
	for _, p := range pending {
		result, err := p.future.Result()

		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// The turn was aborted before this call produced a real result —
			// spec.md requires no tool message be written for it.
			abortErr = err
			o.emitToolStatus(sessionID, p.call.ID, notifier.ToolStatusFailed, "aborted")
			continue
		}

		content := result.Output
		status := notifier.ToolStatusSucceeded
		if err != nil {
			content = "Error: " + err.Error()
			status = notifier.ToolStatusFailed
		} else if !result.Success {
			content = "Error: " + result.Error
			status = notifier.ToolStatusFailed
		} else {
			content = truncateToolResult(scrubCredentials(content), maxToolResultBytes)
		}

		if _, addErr := o.db.AddMessage(storage.NewMessageFields{
			SessionID:  sessionID,
			Role:       storage.RoleTool,
			Content:    content,
			ToolCallID: p.call.ID,
		}); addErr != nil {
			return fmt.Errorf("persist tool result for %s: %w", p.call.ID, addErr)
		}
		o.emitToolStatus(sessionID, p.call.ID, status, content)
		logger.Debug().Str("session", sessionID).Str("tool_call_id", p.call.ID).
			Str("status", string(status)).Msg("tool call resolved")
	}

	if abortErr != nil {
		return fmt.Errorf("turn aborted: %w", abortErr)
	}
	return nil
}

// persistAssistant stores the provider's response as a role=assistant
// message, attaching its tool calls (if any) for the next iteration to
// answer.
func (o *Orchestrator) persistAssistant(sessionID, providerName, model string, resp *provider.ChatResponse) (*storage.Message, error) {
	storageCalls := make([]storage.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		storageCalls = append(storageCalls, toStorageToolCall(tc))
	}

	var usage provider.Usage
	if resp.Usage != nil {
		usage = *resp.Usage
	}

	return o.db.AddMessage(storage.NewMessageFields{
		SessionID:    sessionID,
		Role:         storage.RoleAssistant,
		Content:      resp.Content,
		ToolCalls:    storageCalls,
		Provider:     providerName,
		Model:        model,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	})
}

// toStorageToolCall converts a provider tool call into the shape
// persisted with an assistant message.
func toStorageToolCall(tc provider.ToolCall) storage.ToolCall {
	name, args := tc.Name, tc.Arguments
	if tc.Function != nil {
		name, args = tc.Function.Name, tc.Function.Arguments
	}
	fn, _ := json.Marshal(struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}{Name: name, Arguments: args})

	return storage.ToolCall{
		ID:       tc.ID,
		Type:     "function",
		Function: fn,
	}
}

// toProviderMessages converts persisted history into the shape the
// provider adapter expects.
func toProviderMessages(history []*storage.Message) []provider.Message {
	out := make([]provider.Message, 0, len(history))
	for _, m := range history {
		pm := provider.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, provider.ToolCall{
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.GetName(),
				Arguments: tc.GetArguments(),
			})
		}
		out = append(out, pm)
	}
	return out
}

func (o *Orchestrator) emitMessage(kind notifier.EventKind, sessionID string, msg *storage.Message) {
	if o.hub == nil {
		return
	}
	o.hub.Emit(notifier.Event{
		Kind:      kind,
		SessionID: sessionID,
		Payload: notifier.MessagePayload{
			MessageID: msg.ID,
			SessionID: sessionID,
			Role:      string(msg.Role),
			Content:   msg.Content,
		},
	})
}

func (o *Orchestrator) emitToolStatus(sessionID, toolCallID string, status notifier.ToolStatus, message string) {
	if o.hub == nil {
		return
	}
	o.hub.Emit(notifier.Event{
		Kind:      notifier.EventToolStatus,
		SessionID: sessionID,
		Payload: notifier.ToolStatusPayload{
			ToolCallID: toolCallID,
			SessionID:  sessionID,
			Status:     status,
			Message:    message,
		},
	})
}
