package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"loom/internal/tools"
)

// EditOp is one old_text/new_text replacement applied in sequence.
type EditOp struct {
	OldText string `json:"old_text" jsonschema:"description=The exact text to find and replace,required"`
	NewText string `json:"new_text" jsonschema:"description=The text to replace old_text with,required"`
}

// MultiEditArgs defines the parameters for the multiedit tool.
type MultiEditArgs struct {
	Path  string   `json:"path" jsonschema:"description=The file path to edit,required"`
	Edits []EditOp `json:"edits" jsonschema:"description=Ordered list of old_text/new_text replacements to apply,required"`
}

// MultiEditTool applies a sequence of exact-match text replacements to a
// single file as one atomic write, so a caller can restructure a file in one
// tool call instead of one edit per round trip.
type MultiEditTool struct {
	tools.BaseTool
}

// NewMultiEditTool creates a new multiedit tool.
func NewMultiEditTool() *MultiEditTool {
	return &MultiEditTool{
		BaseTool: tools.BaseTool{
			ToolName:        "multiedit",
			ToolDescription: "Apply a sequence of exact-match text replacements to a file in one atomic write. Each old_text must match exactly once at the point it is applied.",
			ToolParameters:  tools.BuildSchema(MultiEditArgs{}),
		},
	}
}

// Execute applies each edit in order against an in-memory copy of the file,
// and writes the result back only if every edit succeeds.
func (t *MultiEditTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "path is required", nil)
	}

	rawEdits, ok := args["edits"].([]any)
	if !ok || len(rawEdits) == 0 {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "edits must be a non-empty array", nil)
	}

	select {
	case <-ctx.Done():
		return tools.ToolResult{}, ctx.Err()
	default:
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tools.NewErrorResult(fmt.Sprintf("file not found: %s", path)), nil
		}
		return tools.NewErrorResult(fmt.Sprintf("failed to read file: %v", err)), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("failed to stat file: %v", err)), nil
	}

	contentStr := string(content)
	applied := 0

	for i, raw := range rawEdits {
		edit, ok := raw.(map[string]any)
		if !ok {
			return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), fmt.Sprintf("edits[%d] must be an object", i), nil)
		}
		oldText, _ := edit["old_text"].(string)
		newText, _ := edit["new_text"].(string)
		if oldText == "" {
			return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), fmt.Sprintf("edits[%d].old_text is required", i), nil)
		}

		count := strings.Count(contentStr, oldText)
		if count == 0 {
			return tools.NewErrorResult(fmt.Sprintf(
				"edits[%d]: old_text not found in file (after %d prior edit(s) applied)", i, applied,
			)), nil
		}
		if count > 1 {
			return tools.NewErrorResult(fmt.Sprintf(
				"edits[%d]: old_text matches %d locations; make it unique", i, count,
			)), nil
		}

		contentStr = strings.Replace(contentStr, oldText, newText, 1)
		applied++
	}

	if err := os.WriteFile(path, []byte(contentStr), info.Mode()); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	return tools.NewResultWithMetadata(
		fmt.Sprintf("Successfully applied %d edit(s) to %s", applied, path),
		map[string]any{"path": path, "edits_applied": applied, "total_length": len(contentStr)},
	), nil
}
