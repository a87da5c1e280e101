package storage

import "testing"

func TestAddTodoGlobal(t *testing.T) {
	db := openTestDB(t)

	todo, err := db.AddTodo("", "ship the release notes")
	if err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}
	if todo.Status != TodoPending {
		t.Errorf("Status = %q, want pending", todo.Status)
	}
	if todo.SessionID != "" {
		t.Errorf("SessionID = %q, want empty (global)", todo.SessionID)
	}
}

func TestAddTodoSessionScoped(t *testing.T) {
	db := openTestDB(t)

	session, _ := db.CreateSession(NewSessionFields{Title: "t"})
	todo, err := db.AddTodo(session.ID, "write tests")
	if err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}
	if todo.SessionID != session.ID {
		t.Errorf("SessionID = %q, want %q", todo.SessionID, session.ID)
	}
}

func TestListTodosFiltersBySessionAndStatus(t *testing.T) {
	db := openTestDB(t)

	session, _ := db.CreateSession(NewSessionFields{Title: "t"})
	global, err := db.AddTodo("", "global task")
	if err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}
	scoped, err := db.AddTodo(session.ID, "scoped task")
	if err != nil {
		t.Fatalf("AddTodo failed: %v", err)
	}
	if err := db.UpdateTodoStatus(global.ID, TodoCompleted); err != nil {
		t.Fatalf("UpdateTodoStatus failed: %v", err)
	}

	all, err := db.ListTodos("", "")
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	scopedOnly, err := db.ListTodos(session.ID, "")
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if len(scopedOnly) != 1 || scopedOnly[0].ID != scoped.ID {
		t.Errorf("expected only the session-scoped todo, got %+v", scopedOnly)
	}

	pendingOnly, err := db.ListTodos("", TodoPending)
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if len(pendingOnly) != 1 || pendingOnly[0].ID != scoped.ID {
		t.Errorf("expected only the pending todo, got %+v", pendingOnly)
	}
}

func TestUpdateTodoStatusNotFound(t *testing.T) {
	db := openTestDB(t)

	if err := db.UpdateTodoStatus("nonexistent", TodoCompleted); err != ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}
