package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/codeloop-dev/codeloop/pkg/generator"
)

// mapHTTPError converts a non-2xx response into a generator.Failure,
// pulling a descriptive message from the body when the backend provides
// one in the Chat Completions error format.
func mapHTTPError(resp *http.Response) *generator.Failure {
	message := extractErrorMessage(resp.Body)
	if message == "" {
		message = fmt.Sprintf("backend error (HTTP %d)", resp.StatusCode)
	}
	return generator.NewFailure(generator.ReasonUnavailable, "%s", message)
}

// mapNetworkError converts a network-level error (connection refused,
// timeout, DNS failure) into a generator.Failure.
func mapNetworkError(err error) *generator.Failure {
	return generator.NewFailure(generator.ReasonUnavailable, "backend connection error: %s", err.Error())
}

// extractErrorMessage tries to parse the response body as a
// chatErrorResponse and returns the error message if found.
func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp chatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
