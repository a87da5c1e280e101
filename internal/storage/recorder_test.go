package storage

import (
	"encoding/json"
	"testing"
	"time"

	"loom/internal/tools"
)

func TestExecutionRecorderInsertsToolExecutionRow(t *testing.T) {
	db := openTestDB(t)
	session, err := db.CreateSession(NewSessionFields{Title: "t"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec := NewExecutionRecorder(db)
	result := tools.ExecutionResult{Success: true, Output: "ok", DurationMs: 12, Timestamp: time.Now()}
	if err := rec.RecordToolExecution(session.ID, "bash", map[string]any{"command": "ls"}, result); err != nil {
		t.Fatalf("RecordToolExecution: %v", err)
	}

	// Execution records never become conversational messages — they would
	// otherwise accumulate as unbudgeted role=system rows for every tool
	// call a session ever makes.
	messages, err := db.GetSessionMessages(session.ID, 0)
	if err != nil {
		t.Fatalf("GetSessionMessages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no messages written, got %d", len(messages))
	}

	row := db.QueryRow(
		`SELECT tool_name, args, success, output, duration_ms FROM tool_executions WHERE session_id = ?`,
		session.ID,
	)
	var toolName, argsJSON, output string
	var success bool
	var durationMs int64
	if err := row.Scan(&toolName, &argsJSON, &success, &output, &durationMs); err != nil {
		t.Fatalf("scan tool_executions row: %v", err)
	}
	if toolName != "bash" || !success || output != "ok" || durationMs != 12 {
		t.Errorf("unexpected row: tool=%q success=%v output=%q duration=%d", toolName, success, output, durationMs)
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args["command"] != "ls" {
		t.Errorf("unexpected args: %+v", args)
	}
}

func TestExecutionRecorderFailsOnUnknownSession(t *testing.T) {
	db := openTestDB(t)
	rec := NewExecutionRecorder(db)
	err := rec.RecordToolExecution("does-not-exist", "bash", nil, tools.ExecutionResult{Success: true})
	if err == nil {
		t.Error("expected an error for an unknown session id")
	}
}

func TestExecutionRecorderRecordsFailureDetails(t *testing.T) {
	db := openTestDB(t)
	session, err := db.CreateSession(NewSessionFields{Title: "t"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec := NewExecutionRecorder(db)
	result := tools.ExecutionResult{Success: false, Error: "boom", DurationMs: 3, Timestamp: time.Now()}
	if err := rec.RecordToolExecution(session.ID, "bash", nil, result); err != nil {
		t.Fatalf("RecordToolExecution: %v", err)
	}

	row := db.QueryRow(`SELECT success, error FROM tool_executions WHERE session_id = ?`, session.ID)
	var success bool
	var errText string
	if err := row.Scan(&success, &errText); err != nil {
		t.Fatalf("scan tool_executions row: %v", err)
	}
	if success || errText != "boom" {
		t.Errorf("success = %v, error = %q", success, errText)
	}
}
