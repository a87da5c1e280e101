package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"loom/internal/tools"
)

// GlobArgs defines the parameters for the glob tool.
type GlobArgs struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern to match file paths against (e.g. **/*.go),required"`
	Path    string `json:"path" jsonschema:"description=Root directory to search from,required"`
}

// GlobTool finds file paths under a root directory matching a glob pattern,
// returned sorted by modification time (most recent first).
type GlobTool struct {
	tools.BaseTool
	// MaxResults caps the number of paths returned.
	MaxResults int
}

// NewGlobTool creates a new glob tool.
func NewGlobTool() *GlobTool {
	return &GlobTool{
		BaseTool: tools.BaseTool{
			ToolName:        "glob",
			ToolDescription: "Find file paths under a directory matching a glob pattern. Supports ** for recursive matching. Results are sorted most-recently-modified first.",
			ToolParameters:  tools.BuildSchema(GlobArgs{}),
		},
		MaxResults: 1000,
	}
}

type globMatch struct {
	path    string
	modTime int64
}

// Execute walks root and collects paths matching pattern.
func (t *GlobTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "pattern is required", nil)
	}
	root, _ := args["path"].(string)
	if root == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "path is required", nil)
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return tools.NewErrorResult(fmt.Sprintf("path not found: %s", root)), nil
		}
		return tools.NewErrorResult(fmt.Sprintf("failed to stat path: %v", err)), nil
	}
	if !info.IsDir() {
		return tools.NewErrorResult(fmt.Sprintf("path is not a directory: %s", root)), nil
	}

	var found []globMatch
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if !matchGlob(pattern, rel) {
			return nil
		}
		fi, statErr := d.Info()
		modTime := int64(0)
		if statErr == nil {
			modTime = fi.ModTime().UnixNano()
		}
		found = append(found, globMatch{path: p, modTime: modTime})
		return nil
	})
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("error walking directory: %v", err)), nil
	}

	sort.Slice(found, func(i, j int) bool { return found[i].modTime > found[j].modTime })

	truncated := false
	if len(found) > t.MaxResults {
		found = found[:t.MaxResults]
		truncated = true
	}

	if len(found) == 0 {
		return tools.NewSuccessResult(fmt.Sprintf("no files matching %q under %s", pattern, root)), nil
	}

	var sb strings.Builder
	for i, m := range found {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.path)
	}
	if truncated {
		sb.WriteString("\n... (more matches truncated)")
	}

	return tools.NewResultWithMetadata(sb.String(), map[string]any{"match_count": len(found)}), nil
}

// matchGlob matches a relative path against a pattern that may contain a
// "**" segment for recursive matching, falling back to filepath.Match when
// no "**" is present.
func matchGlob(pattern, relPath string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := filepath.Match(pattern, relPath)
		return err == nil && ok
	}

	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	if prefix != "" && !strings.HasPrefix(relPath, prefix) {
		return false
	}
	remainder := strings.TrimPrefix(strings.TrimPrefix(relPath, prefix), "/")

	if suffix == "" {
		return true
	}
	ok, err := filepath.Match(suffix, filepath.Base(remainder))
	if err == nil && ok {
		return true
	}
	// allow suffix to match any deeper path segment, not just the base name
	ok, err = filepath.Match("*/"+suffix, remainder)
	return err == nil && ok
}
