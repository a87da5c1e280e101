package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is a message's position in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a provider-issued request to invoke a tool.
type ToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function json.RawMessage `json:"function"`
}

// GetName returns the name of the tool being called.
func (tc *ToolCall) GetName() string {
	if len(tc.Function) == 0 {
		return ""
	}
	var fn struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(tc.Function, &fn); err != nil {
		return ""
	}
	return fn.Name
}

// GetArguments returns the raw JSON arguments of the tool call.
func (tc *ToolCall) GetArguments() string {
	if len(tc.Function) == 0 {
		return ""
	}
	var fn struct {
		Arguments string `json:"arguments"`
	}
	if err := json.Unmarshal(tc.Function, &fn); err != nil {
		return ""
	}
	return fn.Arguments
}

// Message is one turn in a session's ordered history.
type Message struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Role         Role            `json:"role"`
	Content      string          `json:"content"`
	ToolCalls    []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	Provider     string          `json:"provider,omitempty"`
	Model        string          `json:"model,omitempty"`
	Cost         float64         `json:"cost,omitempty"`
	InputTokens  int             `json:"input_tokens,omitempty"`
	OutputTokens int             `json:"output_tokens,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewMessageFields are the caller-supplied fields for AddMessage.
type NewMessageFields struct {
	SessionID    string
	Role         Role
	Content      string
	ToolCalls    []ToolCall
	ToolCallID   string
	Provider     string
	Model        string
	Cost         float64
	InputTokens  int
	OutputTokens int
	Metadata     json.RawMessage
}

// AddMessage appends a message to a session, bumping the session's
// updated_at, message_count, and total_cost in the same statement group.
// Both operations must succeed together, so this runs inside a transaction.
func (db *DB) AddMessage(fields NewMessageFields) (*Message, error) {
	var msg *Message
	err := db.WithTx(func(tx *Tx) error {
		m, err := tx.addMessage(fields)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	return msg, err
}

func (tx *Tx) addMessage(fields NewMessageFields) (*Message, error) {
	id := uuid.New().String()
	now := time.Now()

	var toolCallsJSON *string
	if len(fields.ToolCalls) > 0 {
		data, err := json.Marshal(fields.ToolCalls)
		if err != nil {
			return nil, err
		}
		s := string(data)
		toolCallsJSON = &s
	}

	var toolCallIDPtr *string
	if fields.ToolCallID != "" {
		toolCallIDPtr = &fields.ToolCallID
	}

	metadata := fields.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	_, err := tx.Exec(
		`INSERT INTO messages
			(id, session_id, role, content, tool_calls, tool_call_id, provider, model, cost, input_tokens, output_tokens, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fields.SessionID, string(fields.Role), fields.Content, toolCallsJSON, toolCallIDPtr,
		fields.Provider, fields.Model, fields.Cost, fields.InputTokens, fields.OutputTokens,
		string(metadata), now,
	)
	if err != nil {
		return nil, err
	}

	if err := touchSession(tx, fields.SessionID, now, fields.Cost); err != nil {
		return nil, err
	}

	return &Message{
		ID:           id,
		SessionID:    fields.SessionID,
		Role:         fields.Role,
		Content:      fields.Content,
		ToolCalls:    fields.ToolCalls,
		ToolCallID:   fields.ToolCallID,
		Provider:     fields.Provider,
		Model:        fields.Model,
		Cost:         fields.Cost,
		InputTokens:  fields.InputTokens,
		OutputTokens: fields.OutputTokens,
		Metadata:     metadata,
		CreatedAt:    now,
	}, nil
}

const messageColumns = `id, session_id, role, content, tool_calls, tool_call_id, COALESCE(provider, ''), COALESCE(model, ''), cost, input_tokens, output_tokens, metadata, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var role string
	var toolCallsJSON, toolCallID, metadataJSON sql.NullString

	err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &toolCallsJSON, &toolCallID,
		&m.Provider, &m.Model, &m.Cost, &m.InputTokens, &m.OutputTokens, &metadataJSON, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Role = Role(role)

	if toolCallsJSON.Valid && toolCallsJSON.String != "" {
		if err := json.Unmarshal([]byte(toolCallsJSON.String), &m.ToolCalls); err != nil {
			return nil, err
		}
	}
	if toolCallID.Valid {
		m.ToolCallID = toolCallID.String
	}
	if metadataJSON.Valid {
		m.Metadata = json.RawMessage(metadataJSON.String)
	}
	return &m, nil
}

// GetSessionMessages returns a session's messages ordered chronologically.
func (db *DB) GetSessionMessages(sessionID string, limit int) ([]*Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE session_id = ? ORDER BY created_at ASC"
	args := []any{sessionID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetMessage fetches a single message by id.
func (db *DB) GetMessage(id string) (*Message, error) {
	row := db.QueryRow("SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CountMessages returns the number of messages in a session.
func (db *DB) CountMessages(sessionID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&count)
	return count, err
}
