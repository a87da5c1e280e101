package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TodoStatus is a todo item's lifecycle state.
type TodoStatus string

const (
	TodoPending   TodoStatus = "pending"
	TodoCompleted TodoStatus = "completed"
)

// Todo is a session-scoped or global checklist item, backing the `todo` tool.
type Todo struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id,omitempty"`
	Content   string     `json:"content"`
	Status    TodoStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AddTodo creates a todo, optionally scoped to a session. An empty
// sessionID makes it global.
func (db *DB) AddTodo(sessionID, content string) (*Todo, error) {
	id := uuid.New().String()
	now := time.Now()

	_, err := db.Exec(
		"INSERT INTO todos (id, session_id, content, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, nullableString(sessionID), content, string(TodoPending), now, now,
	)
	if err != nil {
		return nil, err
	}

	return &Todo{
		ID:        id,
		SessionID: sessionID,
		Content:   content,
		Status:    TodoPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ListTodos returns todos, optionally filtered by session and/or status, in
// insertion order within scope. An empty sessionID lists across all
// sessions (plus globals); pass status == "" to skip the status filter.
func (db *DB) ListTodos(sessionID string, status TodoStatus) ([]*Todo, error) {
	query := "SELECT id, COALESCE(session_id, ''), content, status, created_at, updated_at FROM todos"
	var conds []string
	var args []any

	if sessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, sessionID)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(status))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at ASC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var todos []*Todo
	for rows.Next() {
		var t Todo
		var statusStr string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Content, &statusStr, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = TodoStatus(statusStr)
		todos = append(todos, &t)
	}
	return todos, rows.Err()
}

// UpdateTodoStatus transitions a todo's status.
func (db *DB) UpdateTodoStatus(id string, status TodoStatus) error {
	result, err := db.Exec(
		"UPDATE todos SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now(), id,
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

// GetTodo fetches a single todo by id.
func (db *DB) GetTodo(id string) (*Todo, error) {
	var t Todo
	var statusStr string
	err := db.QueryRow(
		"SELECT id, COALESCE(session_id, ''), content, status, created_at, updated_at FROM todos WHERE id = ?",
		id,
	).Scan(&t.ID, &t.SessionID, &t.Content, &statusStr, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = TodoStatus(statusStr)
	return &t, nil
}
