package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"loom/internal/tools"
)

// GrepArgs defines the parameters for the grep tool.
type GrepArgs struct {
	Pattern  string `json:"pattern" jsonschema:"description=Regular expression to search for,required"`
	Path     string `json:"path" jsonschema:"description=File or directory to search,required"`
	Glob     string `json:"glob" jsonschema:"description=Only search files matching this glob pattern (e.g. *.go)"`
	MaxDepth int    `json:"max_depth" jsonschema:"description=Maximum recursion depth when path is a directory (default: 20)"`
}

// GrepTool searches file contents for a regular expression.
type GrepTool struct {
	tools.BaseTool
	// MaxMatches caps the number of matching lines returned.
	MaxMatches int
}

// NewGrepTool creates a new grep tool.
func NewGrepTool() *GrepTool {
	return &GrepTool{
		BaseTool: tools.BaseTool{
			ToolName:        "grep",
			ToolDescription: "Search file contents for a regular expression. path may be a single file or a directory searched recursively.",
			ToolParameters:  tools.BuildSchema(GrepArgs{}),
		},
		MaxMatches: 500,
	}
}

// Execute runs the search.
func (t *GrepTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "pattern is required", nil)
	}
	path, _ := args["path"].(string)
	if path == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "path is required", nil)
	}
	globPattern, _ := args["glob"].(string)

	maxDepth := 20
	if v, ok := args["max_depth"].(float64); ok && v > 0 {
		maxDepth = int(v)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), fmt.Sprintf("invalid pattern: %v", err), err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tools.NewErrorResult(fmt.Sprintf("path not found: %s", path)), nil
		}
		return tools.NewErrorResult(fmt.Sprintf("failed to stat path: %v", err)), nil
	}

	var matches []string
	count := 0
	baseDepth := strings.Count(path, string(os.PathSeparator))

	search := func(filePath string) error {
		if globPattern != "" {
			matched, err := filepath.Match(globPattern, filepath.Base(filePath))
			if err != nil || !matched {
				return nil
			}
		}
		return grepFile(filePath, re, &matches, &count, t.MaxMatches)
	}

	if info.IsDir() {
		walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return nil
			}
			if count >= t.MaxMatches {
				return filepath.SkipAll
			}
			if d.IsDir() {
				depth := strings.Count(p, string(os.PathSeparator)) - baseDepth
				if depth > maxDepth {
					return filepath.SkipDir
				}
				return nil
			}
			return search(p)
		})
		if walkErr != nil && walkErr != filepath.SkipAll {
			return tools.NewErrorResult(fmt.Sprintf("error walking path: %v", walkErr)), nil
		}
	} else {
		if err := search(path); err != nil {
			return tools.NewErrorResult(fmt.Sprintf("error reading file: %v", err)), nil
		}
	}

	if len(matches) == 0 {
		return tools.NewSuccessResult(fmt.Sprintf("no matches for %q in %s", pattern, path)), nil
	}

	result := strings.Join(matches, "\n")
	if count >= t.MaxMatches {
		result += "\n... (more matches truncated)"
	}

	return tools.NewResultWithMetadata(result, map[string]any{"match_count": len(matches)}), nil
}

func grepFile(path string, re *regexp.Regexp, matches *[]string, count *int, maxMatches int) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // skip unreadable files (binaries, permissions)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if *count >= maxMatches {
			return nil
		}
		line := scanner.Text()
		if re.MatchString(line) {
			*matches = append(*matches, fmt.Sprintf("%s:%d: %s", path, lineNum, line))
			*count++
		}
	}
	return nil
}
