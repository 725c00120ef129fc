package task

import "testing"

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		wantErr  bool
	}{
		{StatusPending, StatusRunning, false},
		{StatusPending, StatusAborted, false},
		{StatusPending, StatusSucceeded, true},
		{StatusRunning, StatusSucceeded, false},
		{StatusRunning, StatusFailed, false},
		{StatusRunning, StatusAborted, false},
		{StatusRunning, StatusPending, true},
		{StatusSucceeded, StatusRunning, true},
		{StatusFailed, StatusRunning, true},
		{StatusAborted, StatusRunning, true},
		{StatusSucceeded, StatusFailed, true},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTransition(%s, %s) error = %v, wantErr %v",
				tt.from, tt.to, err, tt.wantErr)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []Status{StatusSucceeded, StatusFailed, StatusAborted}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
