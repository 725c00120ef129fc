package task

import "testing"

func TestNew(t *testing.T) {
	tk := New("print the first 10 primes")

	if tk.Status != StatusPending {
		t.Errorf("status = %q, want pending", tk.Status)
	}
	if tk.Instruction != "print the first 10 primes" {
		t.Errorf("instruction = %q", tk.Instruction)
	}
	if !ValidateTaskID(tk.ID) {
		t.Errorf("invalid task ID %q", tk.ID)
	}
	if tk.CreatedAt == 0 {
		t.Error("expected created_at to be set")
	}
	if len(tk.Attempts) != 0 {
		t.Errorf("expected no attempts, got %d", len(tk.Attempts))
	}
}

func TestFullSource(t *testing.T) {
	tests := []struct {
		name string
		gen  GeneratedCode
		want string
	}{
		{
			name: "imports and code",
			gen:  GeneratedCode{Imports: "import math\n", Code: "print(math.pi)\n"},
			want: "import math\n\nprint(math.pi)",
		},
		{
			name: "code only",
			gen:  GeneratedCode{Code: "print('hi')"},
			want: "print('hi')",
		},
		{
			name: "whitespace imports",
			gen:  GeneratedCode{Imports: "  \n", Code: "x = 1"},
			want: "x = 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.gen.FullSource(); got != tt.want {
				t.Errorf("FullSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransition_Terminal(t *testing.T) {
	tk := New("x")
	if err := tk.Transition(StatusRunning); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	if err := tk.Transition(StatusSucceeded); err != nil {
		t.Fatalf("running -> succeeded: %v", err)
	}
	if tk.CompletedAt == 0 {
		t.Error("expected completed_at to be set on terminal transition")
	}

	// Terminal states must be sticky.
	if err := tk.Transition(StatusRunning); err == nil {
		t.Error("expected error leaving terminal state")
	}
	if tk.Status != StatusSucceeded {
		t.Errorf("status mutated to %q after rejected transition", tk.Status)
	}
}

func TestLastAttempt(t *testing.T) {
	tk := New("x")
	if tk.LastAttempt() != nil {
		t.Error("expected nil for empty attempts")
	}

	tk.Attempts = append(tk.Attempts, AttemptRecord{Index: 1}, AttemptRecord{Index: 2})
	if got := tk.LastAttempt(); got == nil || got.Index != 2 {
		t.Errorf("LastAttempt() = %+v, want index 2", got)
	}
}

func TestClone_Independence(t *testing.T) {
	tk := New("x")
	tk.Attempts = append(tk.Attempts, AttemptRecord{
		Index:     1,
		Generated: &GeneratedCode{Code: "print(1)"},
	})
	tk.FinalOutput = &FinalOutput{Code: "print(1)", Stdout: "1\n"}

	c := tk.Clone()
	c.Attempts[0].Generated.Code = "mutated"
	c.Attempts = append(c.Attempts, AttemptRecord{Index: 2})
	c.FinalOutput.Stdout = "mutated"

	if tk.Attempts[0].Generated.Code != "print(1)" {
		t.Error("clone shares generated code with original")
	}
	if len(tk.Attempts) != 1 {
		t.Error("clone shares attempts slice with original")
	}
	if tk.FinalOutput.Stdout != "1\n" {
		t.Error("clone shares final output with original")
	}
}
