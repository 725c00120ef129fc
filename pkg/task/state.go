package task

import "fmt"

// ValidateTransition checks whether a status transition is valid.
// Terminal states (succeeded, failed, aborted) allow no outgoing
// transitions, which makes task status monotonic.
func ValidateTransition(from, to Status) error {
	valid := map[Status][]Status{
		StatusPending: {StatusRunning, StatusAborted},
		StatusRunning: {StatusSucceeded, StatusFailed, StatusAborted},
	}

	allowed, exists := valid[from]
	if !exists {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("invalid transition from %s to %s", from, to)
}
