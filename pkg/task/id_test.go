package task

import "testing"

func TestNewTaskID(t *testing.T) {
	id := NewTaskID()
	if !ValidateTaskID(id) {
		t.Errorf("NewTaskID() = %q, does not validate", id)
	}

	// IDs must be unique across calls.
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTaskID()
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}

func TestValidateTaskID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"task_abcdefghij1234567890ABCD", true},
		{"task_short", false},
		{"resp_abcdefghij1234567890ABCD", false},
		{"", false},
		{"task_abcdefghij1234567890ABCD!", false},
	}

	for _, tt := range tests {
		if got := ValidateTaskID(tt.id); got != tt.valid {
			t.Errorf("ValidateTaskID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}
