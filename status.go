package grader

import "strings"

// Run status state machine. Transitions are one-way:
//
//	queued -> running -> complete
//	                  -> complete-error          (graded, exit non-zero or limit hit)
//	                  -> complete-exception-run  (grader preconditions failed)
//	                  -> complete-exception-eval (score parse failed)
const (
	StatusQueued                = "queued"
	StatusRunning               = "running"
	StatusComplete              = "complete"
	StatusCompleteError         = "complete-error"
	StatusCompleteExceptionRun  = "complete-exception-run"
	StatusCompleteExceptionEval = "complete-exception-eval"
)

// IsCompleteStatus reports whether the status is terminal.
func IsCompleteStatus(s string) bool {
	return strings.HasPrefix(s, StatusComplete)
}
