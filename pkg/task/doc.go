// Package task defines the data model for a code-generation task: the
// immutable instruction, the ordered history of generation/execution
// attempts, and the task lifecycle states.
package task
