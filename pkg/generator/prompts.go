package generator

import (
	"fmt"
	"strings"

	"github.com/codeloop-dev/codeloop/pkg/task"
)

// OptimizationSystemPrompt instructs the model to refine a raw user
// instruction into a detailed prompt for the code generator.
const OptimizationSystemPrompt = `You are an expert prompt engineer.
Your task is to refine a user's request into a detailed, clear, and
effective prompt for a Python code generation AI.
The refined prompt must guide the AI to generate a complete, standalone,
and executable Python script.
Crucially, ensure the generated code:
1. Includes all necessary imports.
2. Contains a 'if __name__ == "__main__":' block for execution.
3. Hardcodes any necessary inputs or uses placeholder variables; it must not ask for interactive user input.`

// GenerationSystemPrompt instructs the model to produce a complete,
// runnable script through the forced tool call.
const GenerationSystemPrompt = `You are an expert Python developer.
Your task is to write a complete, executable Python script to solve the user's
request.
Respond strictly through the provided tool with its declared fields.
The script must be self-contained, runnable, and include all necessary imports
and logic in the correct fields.
Pay close attention to any feedback from previous attempts to correct
your mistakes.`

// OptimizationUserPrompt wraps the raw instruction for the refinement call.
func OptimizationUserPrompt(instruction string) string {
	return fmt.Sprintf("Please refine the following user request into an optimized prompt for a code generation AI:\n\n---\nUSER REQUEST: %q\n---", instruction)
}

// GenerationUserPrompt builds the user prompt for a generation call,
// appending the feedback collected from prior attempts so the model can
// revise its approach.
func GenerationUserPrompt(prompt string, history []task.AttemptRecord) string {
	feedback := FeedbackLines(history)
	if len(feedback) == 0 {
		return "USER PROMPT:\n" + prompt
	}
	return fmt.Sprintf("USER PROMPT:\n%s\n\nPREVIOUS ATTEMPTS FEEDBACK:\n%s",
		prompt, strings.Join(feedback, "\n"))
}

// FeedbackLines derives one feedback line per failed prior attempt, in
// order. Successful attempts contribute nothing. The lines are rebuilt
// from each attempt's recorded outcome rather than its FeedbackConsumed
// field, which holds the feedback that attempt received, not produced.
func FeedbackLines(history []task.AttemptRecord) []string {
	var lines []string
	for _, rec := range history {
		switch {
		case rec.GenerationError != "":
			lines = append(lines, "Attempt "+itoa(rec.Index)+": code generation failed: "+rec.GenerationError)
		case rec.Execution.Status == task.ExecutionRuntimeError:
			lines = append(lines, "Attempt "+itoa(rec.Index)+": Your code failed to execute. Error:\n"+rec.Execution.Error)
		case rec.Execution.Status == task.ExecutionTimeout:
			lines = append(lines, "Attempt "+itoa(rec.Index)+": "+rec.Execution.Error)
		}
	}
	return lines
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
