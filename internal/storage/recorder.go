package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"loom/internal/tools"
)

// ExecutionRecorder persists a row in the tool_executions table describing
// each execute_tracked call, satisfying the Tool Registry's requirement to
// make tool activity visible in session replay even though a tool body
// never touches the store itself. It implements tools.ExecutionRecorder.
//
// tool_executions is a separate table from messages: execution records are
// side metadata about a call, not a conversational turn a provider should
// ever see, so they never compete with real messages for the Context
// Manager's token budget.
type ExecutionRecorder struct {
	db *DB
}

// NewExecutionRecorder wraps db as a tools.ExecutionRecorder.
func NewExecutionRecorder(db *DB) *ExecutionRecorder {
	return &ExecutionRecorder{db: db}
}

// RecordToolExecution inserts a tool_executions row for sessionID
// summarizing the call. Failures to persist are returned to the caller
// (the registry logs and continues rather than failing the tool call over
// it).
func (r *ExecutionRecorder) RecordToolExecution(sessionID, toolName string, args map[string]any, result tools.ExecutionResult) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO tool_executions
			(id, session_id, tool_name, args, success, output, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), sessionID, toolName, string(argsJSON),
		result.Success, result.Output, result.Error, result.DurationMs, time.Now(),
	)
	return err
}
