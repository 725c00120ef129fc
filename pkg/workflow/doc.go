// Package workflow drives the generate-execute-retry cycle for a task:
// refine the instruction into a prompt, generate code, run it in the
// sandbox, classify the outcome, and either finish or feed the failure
// back into the next generation. The Engine runs one task synchronously;
// the Runner schedules engines on background goroutines and persists
// task snapshots after every state change.
package workflow
