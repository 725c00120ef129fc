package sandbox

// Wire types for the sandbox server's POST /execute endpoint.

// ExecuteRequest is the request body for POST /execute.
type ExecuteRequest struct {
	Code           string   `json:"code"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Requirements   []string `json:"requirements,omitempty"`
}

// ExecuteResponse is the response from POST /execute. Status is one of
// "success", "error" or "timeout".
type ExecuteResponse struct {
	Status          string `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// Wire status values.
const (
	WireStatusSuccess = "success"
	WireStatusError   = "error"
	WireStatusTimeout = "timeout"
)
