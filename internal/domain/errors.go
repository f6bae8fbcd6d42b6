package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Subsystem-specific sentinels below wrap these so that
// errors.Is works at both granularities.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")
	ErrInvalidInput = errors.New("invalid input")
	ErrLimitReached = errors.New("limit reached")
	ErrPersistence  = errors.New("persistence failure")
)

// Subsystem sentinels.
var (
	ErrAgentNotFound = fmt.Errorf("agent: %w", ErrNotFound)
	ErrTaskNotFound  = fmt.Errorf("task: %w", ErrNotFound)
	ErrInvalidConfig = fmt.Errorf("pool config: %w", ErrInvalidInput)
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name, e.g. "Pool.CompleteTask"
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error. Returns nil if err is nil,
// enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAgentNotFound ErrorCode = "AGENT_NOT_FOUND"
	CodeTaskNotFound  ErrorCode = "TASK_NOT_FOUND"
	CodeDuplicate     ErrorCode = "DUPLICATE"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	CodeLimitReached  ErrorCode = "LIMIT_REACHED"
	CodePersistence   ErrorCode = "PERSISTENCE"
)

// errorCodeMap orders matter: specific sentinels first, category fallbacks
// last, since ErrorCodeOf walks the chain with errors.Is.
var errorCodeOrder = []struct {
	sentinel error
	code     ErrorCode
}{
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrTaskNotFound, CodeTaskNotFound},
	{ErrInvalidConfig, CodeInvalidConfig},
	{ErrNotFound, CodeNotFound},
	{ErrDuplicate, CodeDuplicate},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrLimitReached, CodeLimitReached},
	{ErrPersistence, CodePersistence},
}

// ErrorCodeOf returns the machine-parseable code for err, unwrapping
// DomainError and walking the chain with errors.Is. CodeUnknown if no
// sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, entry := range errorCodeOrder {
		if errors.Is(err, entry.sentinel) {
			return entry.code
		}
	}
	return CodeUnknown
}
