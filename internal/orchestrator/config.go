package orchestrator

// TurnConfig holds the generation parameters passed through to the
// provider on every request a turn makes. Unlike maxIterations and
// maxConcurrent (fixed at Orchestrator construction, since they bound
// this process's own loop and queue), these are forwarded verbatim to
// the model and can reasonably vary per deployment.
type TurnConfig struct {
	// MaxTokens caps the provider's generated output per request.
	MaxTokens int

	// Temperature controls the randomness of the model's output.
	Temperature float64
}

// DefaultTurnConfig returns the parameters used when an Orchestrator is
// constructed without an explicit SetTurnConfig call.
func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		MaxTokens:   8000,
		Temperature: 0.7,
	}
}

// Validate clamps out-of-range values rather than rejecting them — a
// turn shouldn't fail outright over a slightly malformed config.
func (c TurnConfig) Validate() TurnConfig {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 8000
	}
	if c.Temperature < 0 {
		c.Temperature = 0
	}
	if c.Temperature > 2 {
		c.Temperature = 2
	}
	return c
}
