package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SessionStatus is the session lifecycle state. Transitions only move
// forward: active -> archived | error.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
	SessionError    SessionStatus = "error"
)

// Session is a single conversation thread.
type Session struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	ParentID     string          `json:"parent_id,omitempty"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	SystemPrompt string          `json:"system_prompt"`
	Metadata     json.RawMessage `json:"metadata"`
	Status       SessionStatus   `json:"status"`
	MessageCount int             `json:"message_count"`
	TotalCost    float64         `json:"total_cost"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewSessionFields are the caller-supplied fields for CreateSession.
// Everything else (id if empty, timestamps, counters, status) is derived.
type NewSessionFields struct {
	ID           string
	Title        string
	ParentID     string
	Provider     string
	Model        string
	SystemPrompt string
	Metadata     json.RawMessage
}

// CreateSession inserts a new session, rejecting a duplicate id.
func (db *DB) CreateSession(fields NewSessionFields) (*Session, error) {
	id := fields.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	metadata := fields.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	_, err := db.Exec(
		`INSERT INTO sessions
			(id, title, parent_id, provider, model, system_prompt, metadata, status, message_count, total_cost, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		id, fields.Title, nullableString(fields.ParentID), fields.Provider, fields.Model, fields.SystemPrompt,
		string(metadata), string(SessionActive), now, now,
	)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:           id,
		Title:        fields.Title,
		ParentID:     fields.ParentID,
		Provider:     fields.Provider,
		Model:        fields.Model,
		SystemPrompt: fields.SystemPrompt,
		Metadata:     metadata,
		Status:       SessionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const sessionColumns = `id, title, COALESCE(parent_id, ''), provider, model, system_prompt, metadata, status, message_count, total_cost, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var metadataStr, status string
	err := row.Scan(&s.ID, &s.Title, &s.ParentID, &s.Provider, &s.Model, &s.SystemPrompt,
		&metadataStr, &status, &s.MessageCount, &s.TotalCost, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Metadata = json.RawMessage(metadataStr)
	s.Status = SessionStatus(status)
	return &s, nil
}

// GetSession fetches a session by id.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SessionUpdate is a partial update to a session; zero-value fields are
// left untouched except where a pointer makes "unset" explicit.
type SessionUpdate struct {
	Title        *string
	Provider     *string
	Model        *string
	SystemPrompt *string
	Metadata     json.RawMessage
	Status       *SessionStatus
}

// UpdateSession applies a partial update, returning ErrNotFound if no row
// changed — either the session doesn't exist, or (for Status) the requested
// transition isn't forward-only.
func (db *DB) UpdateSession(id string, update SessionUpdate) error {
	current, err := db.GetSession(id)
	if err != nil {
		return err
	}

	title, provider, model, status := current.Title, current.Provider, current.Model, current.Status
	systemPrompt := current.SystemPrompt
	metadata := current.Metadata
	if update.Title != nil {
		title = *update.Title
	}
	if update.Provider != nil {
		provider = *update.Provider
	}
	if update.Model != nil {
		model = *update.Model
	}
	if update.SystemPrompt != nil {
		systemPrompt = *update.SystemPrompt
	}
	if update.Metadata != nil {
		metadata = update.Metadata
	}
	if update.Status != nil {
		if !validStatusTransition(current.Status, *update.Status) {
			return ErrNotFound
		}
		status = *update.Status
	}

	now := time.Now()
	result, err := db.Exec(
		`UPDATE sessions SET title = ?, provider = ?, model = ?, system_prompt = ?, metadata = ?, status = ?, updated_at = ? WHERE id = ?`,
		title, provider, model, systemPrompt, string(metadata), string(status), now, id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// validStatusTransition enforces that status only ever moves forward:
// active -> archived | error. Re-setting the same status is a no-op, allowed.
func validStatusTransition(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	return from == SessionActive && (to == SessionArchived || to == SessionError)
}

// DeleteSession removes a session; ON DELETE CASCADE takes messages and
// todos with it.
func (db *DB) DeleteSession(id string) error {
	result, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns sessions ordered by updated_at descending, optionally
// filtered by status.
func (db *DB) ListSessions(limit, offset int, status SessionStatus) ([]*Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// touchSession bumps updated_at and message_count for id within an open
// transaction-or-db executor, used by AddMessage.
func touchSession(exec interface {
	Exec(query string, args ...any) (sql.Result, error)
}, id string, now time.Time, costDelta float64) error {
	result, err := exec.Exec(
		"UPDATE sessions SET updated_at = ?, message_count = message_count + 1, total_cost = total_cost + ? WHERE id = ?",
		now, costDelta, id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
