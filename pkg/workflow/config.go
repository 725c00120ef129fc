package workflow

import "time"

// Config holds engine tuning parameters.
type Config struct {
	// MaxAttempts bounds the generate-execute cycles per task.
	// Defaults to 10.
	MaxAttempts int

	// ExecutionTimeout is the wall-clock limit for one sandbox run.
	// Defaults to 240s.
	ExecutionTimeout time.Duration

	// OptimizePrompt enables the instruction refinement step before the
	// first generation.
	OptimizePrompt bool

	// ScanRequirements enables deriving pip installs from the generated
	// script's import statements.
	ScanRequirements bool
}

// maxAttempts returns the configured attempt bound or the default.
func (c Config) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return 10
}

// executionTimeout returns the configured limit or the default.
func (c Config) executionTimeout() time.Duration {
	if c.ExecutionTimeout > 0 {
		return c.ExecutionTimeout
	}
	return 240 * time.Second
}
