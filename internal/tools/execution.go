package tools

import (
	"context"
	"time"

	"loom/internal/apperr"
)

// ExecutionContext carries the per-call values the orchestrator supplies to
// execute_tracked. It is never persisted — only ExecutionResult is.
type ExecutionContext struct {
	SessionID        string
	UserID           string
	WorkingDirectory string
	Timeout          time.Duration
	Env              map[string]string
}

// ExecutionResult is the outcome of one execute_tracked call, suitable for
// embedding in the answering tool-message's metadata.
type ExecutionResult struct {
	Success    bool           `json:"success"`
	Output     string         `json:"output"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ExecutionRecorder persists a synthetic record of a tool call. The registry
// invokes it after every execute_tracked call that carries a session id, so
// the call is visible in session replay even though the tool body itself
// never touches the store.
type ExecutionRecorder interface {
	RecordToolExecution(sessionID, toolName string, args map[string]any, result ExecutionResult) error
}

// SetRecorder wires r to receive a synthetic record of every execute_tracked
// call made against a known session id. Pass nil to disable recording.
func (r *Registry) SetRecorder(rec ExecutionRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// ExecuteTracked is the only execution path the orchestrator is meant to
// use. It validates params against the tool's compiled schema, runs the
// tool body exactly once if validation passes, measures wall time, recovers
// panics as TOOL_EXECUTION_FAILED, and — when ec.SessionID is set — asks the
// registered ExecutionRecorder to persist a synthetic record of the call.
func (r *Registry) ExecuteTracked(ctx context.Context, name string, params map[string]any, ec ExecutionContext) (ExecutionResult, error) {
	tool, validator, ok := r.lookup(name)
	if !ok {
		return ExecutionResult{}, NewToolNotFoundError(name)
	}

	if validator != nil {
		if err := validator.Validate(toJSONValue(params)); err != nil {
			return ExecutionResult{}, apperr.Wrap(apperr.CodeToolInvalidArgs, err, "parameters for tool %s failed validation", name).WithContext("tool", name)
		}
	}

	if ec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ec.Timeout)
		defer cancel()
	}
	if ec.SessionID != "" {
		ctx = WithSessionID(ctx, ec.SessionID)
	}

	start := time.Now()
	result, execErr := r.safeExecute(ctx, tool, params)
	elapsed := time.Since(start)

	out := ExecutionResult{
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  start,
	}

	switch {
	case execErr != nil:
		if apperr.CodeOf(execErr) == apperr.CodeUnknown {
			execErr = NewToolExecutionFailedError(name, execErr)
		}
		out.Success = false
		out.Error = execErr.Error()
	case result.IsError:
		out.Success = false
		out.Output = result.Content
		out.Error = result.Content
		out.Metadata = result.Metadata
	default:
		out.Success = true
		out.Output = result.Content
		out.Metadata = result.Metadata
	}

	if ec.SessionID != "" {
		r.mu.RLock()
		rec := r.recorder
		r.mu.RUnlock()
		if rec != nil {
			_ = rec.RecordToolExecution(ec.SessionID, name, params, out)
		}
	}

	if execErr != nil {
		return out, execErr
	}
	return out, nil
}

// safeExecute runs tool.Execute, converting a panic into a TOOL_EXECUTION_FAILED error.
func (r *Registry) safeExecute(ctx context.Context, tool Tool, params map[string]any) (result ToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = NewToolExecutionFailedError(tool.Name(), apperr.New(apperr.CodeToolExecutionFailed, "panic: %v", p))
		}
	}()
	return tool.Execute(ctx, params)
}

// toJSONValue normalizes a map[string]any into the any-typed shape the
// jsonschema validator expects (it walks maps/slices structurally, so a
// plain map[string]any round-tripped through JSON already satisfies it).
func toJSONValue(v map[string]any) any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
