// Package builtin provides the built-in tool set for the conversation orchestrator.
package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"loom/internal/tools"
)

// BashArgs defines the parameters for the bash tool.
type BashArgs struct {
	Command string `json:"command" jsonschema:"description=The shell command to execute,required"`
	Timeout int    `json:"timeout" jsonschema:"description=Timeout in seconds (default: 30)"`
	WorkDir string `json:"work_dir" jsonschema:"description=Working directory for the command. Must stay within the workspace root"`
}

// BashTool runs shell commands confined to a workspace root and a wall-clock
// timeout. It does not provide process or filesystem sandboxing beyond that
// path check — callers that need stronger isolation must supply it upstream.
type BashTool struct {
	tools.BaseTool
	// MaxOutputSize is the maximum size of command output in bytes.
	MaxOutputSize int
	// WorkspaceRoot bounds where work_dir may point. Defaults to the
	// process's working directory if left empty.
	WorkspaceRoot string
}

// NewBashTool creates a new bash tool rooted at the current working directory.
func NewBashTool() *BashTool {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	return &BashTool{
		BaseTool: tools.BaseTool{
			ToolName:        "bash",
			ToolDescription: "Execute a shell command and return its output. Commands run with a wall-clock timeout, and work_dir (if given) must resolve inside the workspace root.",
			ToolParameters:  tools.BuildSchema(BashArgs{}),
		},
		MaxOutputSize: 1024 * 1024, // 1MB default
		WorkspaceRoot: root,
	}
}

// Execute runs the shell command.
func (t *BashTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "command is required", nil)
	}

	timeout := 30
	if v, ok := args["timeout"].(float64); ok && v > 0 {
		timeout = int(v)
	}

	workDir, _ := args["work_dir"].(string)
	if workDir != "" {
		resolved, err := t.resolveWorkDir(workDir)
		if err != nil {
			return tools.NewErrorResult(err.Error()), nil
		}
		workDir = resolved
	}

	// Create context with timeout
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	// Determine shell based on OS
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}

	if workDir != "" {
		cmd.Dir = workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// Build result
	var result strings.Builder
	if stdout.Len() > 0 {
		output := stdout.String()
		if len(output) > t.MaxOutputSize {
			output = output[:t.MaxOutputSize] + "\n... (output truncated)"
		}
		result.WriteString(output)
	}

	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		errOutput := stderr.String()
		if len(errOutput) > t.MaxOutputSize {
			errOutput = errOutput[:t.MaxOutputSize] + "\n... (output truncated)"
		}
		result.WriteString(errOutput)
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return tools.ToolResult{}, tools.NewToolTimeoutError(t.Name(), fmt.Sprintf("%ds", timeout))
		}

		// Include error info but still return output
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString(fmt.Sprintf("Exit error: %v", err))
		return tools.NewErrorResult(result.String()), nil
	}

	if result.Len() == 0 {
		return tools.NewSuccessResult("(no output)"), nil
	}

	return tools.NewSuccessResult(result.String()), nil
}

// resolveWorkDir checks that workDir is contained within the workspace root
// and returns its absolute path.
func (t *BashTool) resolveWorkDir(workDir string) (string, error) {
	root := t.WorkspaceRoot
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("workspace root: resolve %s: %w", root, err)
	}

	candidate := workDir
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(absRoot, candidate)
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("work_dir: resolve %s: %w", workDir, err)
	}

	rel, err := filepath.Rel(absRoot, absCandidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("work_dir %q escapes workspace root %q", workDir, absRoot)
	}

	return absCandidate, nil
}
