package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"loom/internal/tools"
)

func TestBashTool(t *testing.T) {
	tool := NewBashTool()
	tool.WorkspaceRoot = t.TempDir()

	t.Run("Name and Description", func(t *testing.T) {
		if tool.Name() != "bash" {
			t.Errorf("expected name 'bash', got %q", tool.Name())
		}
		if tool.Description() == "" {
			t.Error("expected non-empty description")
		}
	})

	t.Run("Execute echo", func(t *testing.T) {
		args := map[string]any{"command": "echo hello"}
		result, err := tool.Execute(context.Background(), args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result.Content, "hello") {
			t.Errorf("expected output to contain 'hello', got %q", result.Content)
		}
	})

	t.Run("Execute with working directory inside root", func(t *testing.T) {
		subDir := filepath.Join(tool.WorkspaceRoot, "sub")
		if err := os.Mkdir(subDir, 0755); err != nil {
			t.Fatal(err)
		}
		args := map[string]any{
			"command":  "pwd",
			"work_dir": subDir,
		}
		if runtime.GOOS == "windows" {
			args["command"] = "cd"
		}

		result, err := tool.Execute(context.Background(), args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result.Content, "sub") {
			t.Errorf("expected output to contain sub dir, got %q", result.Content)
		}
	})

	t.Run("work_dir escaping workspace root is rejected", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{
			"command":  "pwd",
			"work_dir": "/etc",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result for work_dir outside workspace root")
		}
	})

	t.Run("Missing command", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), map[string]any{})
		if err == nil {
			t.Error("expected error for missing command")
		}
	})

	t.Run("Command failure", func(t *testing.T) {
		args := map[string]any{"command": "exit 1"}
		if runtime.GOOS == "windows" {
			args["command"] = "cmd /c exit 1"
		}

		result, err := tool.Execute(context.Background(), args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected IsError to be true for failed command")
		}
	})
}

func TestReadTool(t *testing.T) {
	tool := NewReadTool()

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "read" {
			t.Errorf("expected name 'read', got %q", tool.Name())
		}
	})

	t.Run("Read entire file", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "test.txt")
		content := "line1\nline2\nline3"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{"path": path})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Content != content {
			t.Errorf("expected %q, got %q", content, result.Content)
		}
	})

	t.Run("Read line range", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "lines.txt")
		content := "line1\nline2\nline3\nline4\nline5"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"path":       path,
			"start_line": float64(2),
			"end_line":   float64(4),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result.Content, "line2") || !strings.Contains(result.Content, "line4") {
			t.Errorf("expected lines 2-4, got %q", result.Content)
		}
	})

	t.Run("File not found", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{"path": "/nonexistent/file.txt"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result for nonexistent file")
		}
	})

	t.Run("Missing path", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), map[string]any{})
		if err == nil {
			t.Error("expected error for missing path")
		}
	})
}

func TestWriteTool(t *testing.T) {
	tool := NewWriteTool()

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "write" {
			t.Errorf("expected name 'write', got %q", tool.Name())
		}
	})

	t.Run("Write new file", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "new.txt")

		result, err := tool.Execute(context.Background(), map[string]any{
			"path":    path,
			"content": "hello world",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Errorf("unexpected error result: %s", result.Content)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "hello world" {
			t.Errorf("expected 'hello world', got %q", string(data))
		}
	})

	t.Run("Create parent directories", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "subdir", "nested", "file.txt")

		result, err := tool.Execute(context.Background(), map[string]any{
			"path":    path,
			"content": "nested content",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Errorf("unexpected error result: %s", result.Content)
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Error("expected file to exist")
		}
	})

	t.Run("Append mode", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "append.txt")
		if err := os.WriteFile(path, []byte("first"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"path":    path,
			"content": "second",
			"append":  true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Errorf("unexpected error result: %s", result.Content)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "firstsecond" {
			t.Errorf("expected 'firstsecond', got %q", string(data))
		}
	})
}

func TestEditTool(t *testing.T) {
	tool := NewEditTool()

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "edit" {
			t.Errorf("expected name 'edit', got %q", tool.Name())
		}
	})

	t.Run("Replace unique match", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "a.txt")
		if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"path":     path,
			"old_text": "world",
			"new_text": "loom",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected error result: %s", result.Content)
		}

		data, _ := os.ReadFile(path)
		if string(data) != "hello loom" {
			t.Errorf("expected 'hello loom', got %q", string(data))
		}
	})

	t.Run("Ambiguous match is rejected", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "b.txt")
		if err := os.WriteFile(path, []byte("aa aa"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"path":     path,
			"old_text": "aa",
			"new_text": "x",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result for ambiguous match")
		}
	})
}

func TestMultiEditTool(t *testing.T) {
	tool := NewMultiEditTool()

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "multiedit" {
			t.Errorf("expected name 'multiedit', got %q", tool.Name())
		}
	})

	t.Run("Applies edits in order", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "a.txt")
		if err := os.WriteFile(path, []byte("one two three"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"path": path,
			"edits": []any{
				map[string]any{"old_text": "one", "new_text": "1"},
				map[string]any{"old_text": "three", "new_text": "3"},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected error result: %s", result.Content)
		}

		data, _ := os.ReadFile(path)
		if string(data) != "1 two 3" {
			t.Errorf("expected '1 two 3', got %q", string(data))
		}
	})

	t.Run("Stops on ambiguous match without partial write", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "b.txt")
		original := "aa aa bb"
		if err := os.WriteFile(path, []byte(original), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"path": path,
			"edits": []any{
				map[string]any{"old_text": "aa", "new_text": "x"},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result for ambiguous match")
		}

		data, _ := os.ReadFile(path)
		if string(data) != original {
			t.Errorf("expected file unchanged, got %q", string(data))
		}
	})
}

func TestListTool(t *testing.T) {
	tool := NewListTool()

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "list" {
			t.Errorf("expected name 'list', got %q", tool.Name())
		}
	})

	t.Run("List directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		for _, name := range []string{"a.txt", "b.txt", "c.go"} {
			if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("test"), 0644); err != nil {
				t.Fatal(err)
			}
		}
		if err := os.Mkdir(filepath.Join(tmpDir, "subdir"), 0755); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{"path": tmpDir})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(result.Content, "a.txt") {
			t.Error("expected a.txt in output")
		}
		if !strings.Contains(result.Content, "subdir/") {
			t.Error("expected subdir/ in output")
		}
	})

	t.Run("List with pattern", func(t *testing.T) {
		tmpDir := t.TempDir()
		for _, name := range []string{"a.txt", "b.txt", "c.go"} {
			if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("test"), 0644); err != nil {
				t.Fatal(err)
			}
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"path":    tmpDir,
			"pattern": "*.txt",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(result.Content, "a.txt") {
			t.Error("expected a.txt in output")
		}
		if strings.Contains(result.Content, "c.go") {
			t.Error("c.go should be filtered out")
		}
	})

	t.Run("List recursive", func(t *testing.T) {
		tmpDir := t.TempDir()
		subDir := filepath.Join(tmpDir, "sub")
		if err := os.Mkdir(subDir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(subDir, "nested.txt"), []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"path":      tmpDir,
			"recursive": true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(result.Content, "nested.txt") {
			t.Error("expected nested.txt in output")
		}
	})

	t.Run("Directory not found", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{"path": "/nonexistent/dir"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result")
		}
	})
}

func TestGrepTool(t *testing.T) {
	tool := NewGrepTool()

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "grep" {
			t.Errorf("expected name 'grep', got %q", tool.Name())
		}
	})

	t.Run("Finds matches recursively", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(tmpDir, "a.go"), []byte("// TODO: fix\nfunc main() {}\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(tmpDir, "b.go"), []byte("func other() {}\n"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"pattern": "TODO",
			"path":    tmpDir,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result.Content, "a.go") {
			t.Errorf("expected a.go in matches, got %q", result.Content)
		}
		if strings.Contains(result.Content, "b.go") {
			t.Errorf("did not expect b.go in matches, got %q", result.Content)
		}
	})

	t.Run("No matches", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(tmpDir, "a.go"), []byte("nothing here\n"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"pattern": "NOPE",
			"path":    tmpDir,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Errorf("unexpected error result: %s", result.Content)
		}
	})

	t.Run("Invalid pattern", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{
			"pattern": "(",
			"path":    t.TempDir(),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result for invalid regex")
		}
	})
}

func TestGlobTool(t *testing.T) {
	tool := NewGlobTool()

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "glob" {
			t.Errorf("expected name 'glob', got %q", tool.Name())
		}
	})

	t.Run("Matches nested files with **", func(t *testing.T) {
		tmpDir := t.TempDir()
		nested := filepath.Join(tmpDir, "a", "b")
		if err := os.MkdirAll(nested, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(nested, "c.go"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(tmpDir, "root.txt"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"pattern": "**/*.go",
			"path":    tmpDir,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result.Content, "c.go") {
			t.Errorf("expected c.go in matches, got %q", result.Content)
		}
		if strings.Contains(result.Content, "root.txt") {
			t.Errorf("did not expect root.txt in matches, got %q", result.Content)
		}
	})

	t.Run("Flat pattern", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(tmpDir, "b.go"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		result, err := tool.Execute(context.Background(), map[string]any{
			"pattern": "*.txt",
			"path":    tmpDir,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result.Content, "a.txt") {
			t.Error("expected a.txt in matches")
		}
		if strings.Contains(result.Content, "b.go") {
			t.Error("did not expect b.go in matches")
		}
	})
}

func TestWebFetchTool(t *testing.T) {
	tool := NewWebFetchTool()
	tool.BlockPrivate = false // Disable SSRF check for local httptest servers

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "webfetch" {
			t.Errorf("expected name 'webfetch', got %q", tool.Name())
		}
	})

	t.Run("GET request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "GET" {
				t.Errorf("expected GET, got %s", r.Method)
			}
			w.Write([]byte("hello"))
		}))
		defer server.Close()

		result, err := tool.Execute(context.Background(), map[string]any{"url": server.URL})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(result.Content, "Status: 200") {
			t.Error("expected status 200")
		}
		if !strings.Contains(result.Content, "hello") {
			t.Error("expected body 'hello'")
		}
		if !strings.Contains(result.Content, "EXTERNAL CONTENT") {
			t.Error("expected external-content wrapper markers")
		}
	})

	t.Run("POST request with body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "POST" {
				t.Errorf("expected POST, got %s", r.Method)
			}
			w.Write([]byte("received"))
		}))
		defer server.Close()

		result, err := tool.Execute(context.Background(), map[string]any{
			"url":    server.URL,
			"method": "POST",
			"body":   "test body",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.IsError {
			t.Error("expected success result")
		}
	})

	t.Run("Error response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("not found"))
		}))
		defer server.Close()

		result, err := tool.Execute(context.Background(), map[string]any{"url": server.URL})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !result.IsError {
			t.Error("expected error result for 404")
		}
	})

	t.Run("Missing URL", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), map[string]any{})
		if err == nil {
			t.Error("expected error for missing URL")
		}
	})
}

func TestWebSearchTool(t *testing.T) {
	tool := NewWebSearchTool()
	tool.BlockPrivate = false

	t.Run("Name", func(t *testing.T) {
		if tool.Name() != "websearch" {
			t.Errorf("expected name 'websearch', got %q", tool.Name())
		}
	})

	t.Run("Missing endpoint configuration", func(t *testing.T) {
		result, err := tool.Execute(context.Background(), map[string]any{"query": "loom"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result when no endpoint is configured")
		}
	})

	t.Run("Returns ranked results", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"title":"Loom","url":"https://example.com","snippet":"a loom"}]`))
		}))
		defer server.Close()
		tool.Endpoint = server.URL

		result, err := tool.Execute(context.Background(), map[string]any{"query": "loom"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.IsError {
			t.Fatalf("unexpected error result: %s", result.Content)
		}
		if !strings.Contains(result.Content, "Loom") {
			t.Errorf("expected result title in output, got %q", result.Content)
		}
	})

	t.Run("Missing query", func(t *testing.T) {
		tool.Endpoint = "http://example.invalid"
		_, err := tool.Execute(context.Background(), map[string]any{})
		if err == nil {
			t.Error("expected error for missing query")
		}
	})
}

func TestTodoTool(t *testing.T) {
	t.Run("Name", func(t *testing.T) {
		tool := NewTodoTool(nil)
		if tool.Name() != "todo" {
			t.Errorf("expected name 'todo', got %q", tool.Name())
		}
	})

	t.Run("Not wired to a store", func(t *testing.T) {
		tool := NewTodoTool(nil)
		result, err := tool.Execute(context.Background(), map[string]any{"action": "list"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result when DB is nil")
		}
	})

}

func TestRegisterBuiltins(t *testing.T) {
	r := tools.NewRegistry()

	err := RegisterBuiltins(r, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedTools := ToolNames()
	for _, name := range expectedTools {
		if _, ok := r.Get(name); !ok {
			t.Errorf("expected tool %q to be registered", name)
		}
	}

	if r.Len() != len(expectedTools) {
		t.Errorf("expected %d tools, got %d", len(expectedTools), r.Len())
	}
}

func TestNewRegistryWithBuiltins(t *testing.T) {
	r := NewRegistryWithBuiltins(nil)

	// 11 builtin tools: read, write, edit, multiedit, list, grep, glob,
	// bash, webfetch, websearch, todo
	expected := len(ToolNames())
	if r.Len() != expected {
		t.Errorf("expected %d tools, got %d", expected, r.Len())
	}
}
