package builtin

import (
	"context"
	"fmt"
	"strings"

	"loom/internal/storage"
	"loom/internal/tools"
)

// TodoArgs defines the parameters for the todo tool.
type TodoArgs struct {
	Action  string `json:"action" jsonschema:"description=One of: add list complete,required,enum=add|list|complete"`
	Content string `json:"content" jsonschema:"description=Todo text. Required for action=add"`
	ID      string `json:"id" jsonschema:"description=Todo id. Required for action=complete"`
	Status  string `json:"status" jsonschema:"description=Filter for action=list: pending completed or empty for all"`
}

// TodoTool manages a session-scoped checklist backed by the session store.
type TodoTool struct {
	tools.BaseTool
	DB *storage.DB
}

// NewTodoTool creates a new todo tool backed by db.
func NewTodoTool(db *storage.DB) *TodoTool {
	return &TodoTool{
		BaseTool: tools.BaseTool{
			ToolName:        "todo",
			ToolDescription: "Track a checklist of tasks for the current session: add, list, or complete items.",
			ToolParameters:  tools.BuildSchema(TodoArgs{}),
		},
		DB: db,
	}
}

// Execute dispatches to the requested todo action.
func (t *TodoTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	if t.DB == nil {
		return tools.NewErrorResult("todo tool is not wired to a session store"), nil
	}

	action, _ := args["action"].(string)
	sessionID, _ := tools.SessionIDFromContext(ctx)

	switch action {
	case "add":
		content, _ := args["content"].(string)
		if content == "" {
			return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "content is required for action=add", nil)
		}
		item, err := t.DB.AddTodo(sessionID, content)
		if err != nil {
			return tools.NewErrorResult(fmt.Sprintf("failed to add todo: %v", err)), nil
		}
		return tools.NewResultWithMetadata(
			fmt.Sprintf("Added todo %s: %s", item.ID, item.Content),
			map[string]any{"id": item.ID},
		), nil

	case "list":
		status, _ := args["status"].(string)
		items, err := t.DB.ListTodos(sessionID, storage.TodoStatus(status))
		if err != nil {
			return tools.NewErrorResult(fmt.Sprintf("failed to list todos: %v", err)), nil
		}
		if len(items) == 0 {
			return tools.NewSuccessResult("(no todos)"), nil
		}
		var sb strings.Builder
		for i, item := range items {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("[%s] %s - %s", item.Status, item.ID, item.Content))
		}
		return tools.NewResultWithMetadata(sb.String(), map[string]any{"count": len(items)}), nil

	case "complete":
		id, _ := args["id"].(string)
		if id == "" {
			return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "id is required for action=complete", nil)
		}
		if err := t.DB.UpdateTodoStatus(id, storage.TodoCompleted); err != nil {
			return tools.NewErrorResult(fmt.Sprintf("failed to complete todo %s: %v", id, err)), nil
		}
		return tools.NewSuccessResult(fmt.Sprintf("Completed todo %s", id)), nil

	default:
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), fmt.Sprintf("unknown action %q (want add, list, or complete)", action), nil)
	}
}
