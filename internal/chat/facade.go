// Package chat is the thin API surface the transport layer calls: create and
// list sessions, send a message and get back the assistant's reply, and
// manage which provider answers a session. It owns no state of its own —
// every operation reads or writes through the Session Store and, for
// send_message, delegates the actual turn to the Orchestrator.
//
// Grounded on the teacher's api/v1/chat.go and internal/cli/chat.go, which
// the teacher splits across an HTTP handler and a CLI command; both call the
// same handful of runner/session operations, so here they're collapsed into
// one Facade type that any transport (HTTP, CLI, tests) can call directly.
package chat

import (
	"context"
	"encoding/json"

	"loom/internal/apperr"
	"loom/internal/orchestrator"
	"loom/internal/provider"
	"loom/internal/storage"
)

// PromptResolver turns an opaque system_prompt_id into the literal prompt
// text frozen onto the session at creation time. Left nil, Facade falls
// back to treating the id as the prompt text itself — callers that have a
// real prompt library wire a resolver over it; this package does not
// speculate about where prompts are authored or stored.
type PromptResolver func(id string) (string, error)

// Facade is the Chat Facade. One Facade is shared across all transports.
type Facade struct {
	db              *storage.DB
	orchestrator    *orchestrator.Orchestrator
	promptResolver  PromptResolver
	defaultProvider string
	defaultModel    string
}

// New creates a Facade backed by db and orch. defaultProvider/defaultModel
// are used when create_session or send_message omit them.
func New(db *storage.DB, orch *orchestrator.Orchestrator, defaultProvider, defaultModel string) *Facade {
	return &Facade{
		db:              db,
		orchestrator:    orch,
		defaultProvider: defaultProvider,
		defaultModel:    defaultModel,
	}
}

// SetPromptResolver wires a PromptResolver in after construction, once a
// prompt source is available.
func (f *Facade) SetPromptResolver(r PromptResolver) {
	f.promptResolver = r
}

func (f *Facade) resolvePrompt(systemPromptID string) (string, error) {
	if systemPromptID == "" {
		return "", nil
	}
	if f.promptResolver == nil {
		return systemPromptID, nil
	}
	text, err := f.promptResolver(systemPromptID)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeNotFound, err, "resolve system_prompt_id %q", systemPromptID)
	}
	return text, nil
}

// CreateSessionParams are the caller-supplied fields for CreateSession; all
// are optional except Title.
type CreateSessionParams struct {
	Title          string
	SystemPromptID string
	Provider       string
	Model          string
	SessionID      string
}

// CreateSession creates a new session. The resolved system prompt is frozen
// onto the session's system_prompt column, with the raw id preserved in
// metadata per spec.md's Session data model, and persisted as the session's
// first message (role=system) — spec.md's Message invariant requires every
// session's first row to be role=system, not just the sessions table to
// carry the text.
func (f *Facade) CreateSession(params CreateSessionParams) (*storage.Session, error) {
	systemPrompt, err := f.resolvePrompt(params.SystemPromptID)
	if err != nil {
		return nil, err
	}

	providerName := params.Provider
	if providerName == "" {
		providerName = f.defaultProvider
	}
	model := params.Model
	if model == "" {
		model = f.defaultModel
	}

	metadata, err := json.Marshal(struct {
		SystemPromptID string `json:"system_prompt_id,omitempty"`
	}{SystemPromptID: params.SystemPromptID})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "marshal session metadata")
	}

	session, err := f.db.CreateSession(storage.NewSessionFields{
		ID:           params.SessionID,
		Title:        params.Title,
		Provider:     providerName,
		Model:        model,
		SystemPrompt: systemPrompt,
		Metadata:     metadata,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabaseQuery, err, "create session")
	}

	if _, err := f.db.AddMessage(storage.NewMessageFields{
		SessionID: session.ID,
		Role:      storage.RoleSystem,
		Content:   systemPrompt,
	}); err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabaseQuery, err, "persist system message for session %q", session.ID)
	}

	return session, nil
}

// SessionWithMessages is a session plus its full, chronologically ordered
// message history, as returned by GetSession.
type SessionWithMessages struct {
	*storage.Session
	Messages []*storage.Message
}

// GetSession fetches a session and reconstructs its message history.
func (f *Facade) GetSession(id string) (*SessionWithMessages, error) {
	session, err := f.db.GetSession(id)
	if err != nil {
		return nil, toAppErr(err, id)
	}
	messages, err := f.db.GetSessionMessages(id, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabaseQuery, err, "load messages for session %q", id)
	}
	return &SessionWithMessages{Session: session, Messages: messages}, nil
}

// ListSessions returns sessions without their messages, most recently
// updated first.
func (f *Facade) ListSessions(limit, offset int) ([]*storage.Session, error) {
	sessions, err := f.db.ListSessions(limit, offset, "")
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabaseQuery, err, "list sessions")
	}
	return sessions, nil
}

// SendMessage runs one turn: it creates sessionID if it doesn't already
// exist, resolves which provider/model to use, and delegates the actual
// exchange to the Orchestrator.
func (f *Facade) SendMessage(ctx context.Context, sessionID, content, providerName, model string) (*storage.Message, error) {
	session, err := f.db.GetSession(sessionID)
	if err != nil {
		if err != storage.ErrNotFound {
			return nil, apperr.Wrap(apperr.CodeDatabaseQuery, err, "load session %q", sessionID)
		}
		session, err = f.CreateSession(CreateSessionParams{SessionID: sessionID, Title: content})
		if err != nil {
			return nil, err
		}
	}

	if providerName == "" {
		providerName = session.Provider
	}
	if providerName == "" {
		providerName = f.defaultProvider
	}
	if model == "" {
		model = session.Model
	}
	if model == "" {
		model = f.defaultModel
	}

	prov, ok := provider.Get(providerName)
	if !ok {
		prov = provider.Default()
	}
	if prov == nil {
		return nil, apperr.New(apperr.CodeLLMModelNotFound, "no provider registered (requested %q)", providerName)
	}

	msg, err := f.orchestrator.RunTurn(ctx, session.ID, content, prov, model)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeLLMAPIError, err, "run turn for session %q", session.ID)
	}
	return msg, nil
}

// UpdateSystemPrompt re-resolves systemPromptID and freezes the new prompt
// text onto the session. It does not retroactively touch already-persisted
// messages — only turns from this point on see the new prompt.
func (f *Facade) UpdateSystemPrompt(sessionID, systemPromptID string) error {
	systemPrompt, err := f.resolvePrompt(systemPromptID)
	if err != nil {
		return err
	}

	metadata, err := json.Marshal(struct {
		SystemPromptID string `json:"system_prompt_id,omitempty"`
	}{SystemPromptID: systemPromptID})
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "marshal session metadata")
	}

	err = f.db.UpdateSession(sessionID, storage.SessionUpdate{
		SystemPrompt: &systemPrompt,
		Metadata:     metadata,
	})
	if err != nil {
		return toAppErr(err, sessionID)
	}
	return nil
}

// RegisterProvider adds p to the process-wide provider registry. Exposed on
// Facade so callers don't need to import internal/provider directly.
func (f *Facade) RegisterProvider(p provider.Provider) {
	provider.Register(p)
}

// GetProvider looks up a registered provider by name.
func (f *Facade) GetProvider(name string) (provider.Provider, bool) {
	return provider.Get(name)
}

// Providers lists the names of every registered provider.
func (f *Facade) Providers() []string {
	return provider.List()
}

func toAppErr(err error, sessionID string) error {
	if err == storage.ErrNotFound {
		return apperr.New(apperr.CodeSessionNotFound, "session %q not found", sessionID)
	}
	return apperr.Wrap(apperr.CodeDatabaseQuery, err, "session %q", sessionID)
}
