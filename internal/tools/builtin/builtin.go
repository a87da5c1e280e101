package builtin

import (
	"loom/internal/storage"
	"loom/internal/tools"
)

// RegisterBuiltins registers all built-in tools to the given registry. db
// backs the todo tool's persistence; pass nil if the session store has not
// been wired yet (the todo tool then reports a clear configuration error
// instead of registering a broken handler).
func RegisterBuiltins(r *tools.Registry, db *storage.DB) error {
	builtins := []tools.Tool{
		NewReadTool(),
		NewWriteTool(),
		NewEditTool(),
		NewMultiEditTool(),
		NewListTool(),
		NewGrepTool(),
		NewGlobTool(),
		NewBashTool(),
		NewWebFetchTool(),
		NewWebSearchTool(),
		NewTodoTool(db),
	}

	for _, tool := range builtins {
		if err := r.Register(tool); err != nil {
			return err
		}
	}

	return nil
}

// MustRegisterBuiltins registers all built-in tools and panics on error.
func MustRegisterBuiltins(r *tools.Registry, db *storage.DB) {
	if err := RegisterBuiltins(r, db); err != nil {
		panic(err)
	}
}

// NewRegistryWithBuiltins creates a new registry with all built-in tools registered.
func NewRegistryWithBuiltins(db *storage.DB) *tools.Registry {
	r := tools.NewRegistry()
	MustRegisterBuiltins(r, db)
	return r
}

// ToolNames returns the names of all built-in tools.
func ToolNames() []string {
	return []string{
		"read",
		"write",
		"edit",
		"multiedit",
		"list",
		"grep",
		"glob",
		"bash",
		"webfetch",
		"websearch",
		"todo",
	}
}
