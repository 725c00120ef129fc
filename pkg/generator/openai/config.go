package openai

import "time"

// Config holds configuration for the OpenAI-compatible generator adapter.
type Config struct {
	// BaseURL is the backend URL (e.g., "https://api.openai.com").
	BaseURL string

	// APIKey for backend authentication (optional for local backends).
	APIKey string

	// Model is the model name sent with every request.
	Model string

	// Temperature for generation. Zero keeps output deterministic.
	Temperature float64

	// Timeout for individual HTTP requests. Defaults to 120s.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, model string) Config {
	return Config{
		BaseURL: baseURL,
		Model:   model,
		Timeout: 120 * time.Second,
	}
}
