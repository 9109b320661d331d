package grader

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// Input errors.
	MalformedInput
	SchemaViolation
	BadUUID
	// Auth errors.
	Unauthenticated
	Forbidden
	// Missing.
	ObjectDNE
	// Conflicts.
	InUse
	Busy
	Duplicate
	// Registry lookups.
	UnknownTester
	UnknownReporter
	// Sandbox failures. Surfaced on the Run record, not as HTTP errors.
	SpawnFailed
	Timeout
	LimitExceeded
	FileIOError
	// Reporter policy rejections & transport faults. Logged per reporter,
	// never fail the Run.
	DueDatePassed
	NotHigher
	PrereqNotMet
	PrereqMissing
	LMSUnreachable
)

// Grader custom error.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// IsErrorCode reports whether err carries the given grader error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var ge Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}
