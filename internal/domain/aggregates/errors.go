package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode names how a write or lookup failed. Codes map one to one onto
// the DataONE exceptions a client sees.
type ErrorCode string

const (
	// CodeIdentifierConflict: a PID or SID is already in use, or a SID is bound to another chain.
	CodeIdentifierConflict ErrorCode = "identifier_conflict"
	CodeNotFound           ErrorCode = "not_found"
	// CodeChainIntegrity: a revision precondition or structural invariant does not hold.
	CodeChainIntegrity        ErrorCode = "chain_integrity"
	CodeInvalidSystemMetadata ErrorCode = "invalid_system_metadata"
	CodeNotAuthorized         ErrorCode = "not_authorized"
	CodeInvalidRequest        ErrorCode = "invalid_request"
	CodeConflict              ErrorCode = "conflict"
	CodeRetryable             ErrorCode = "retryable"
	CodeInternal              ErrorCode = "internal"
)

// Error carries a code, the operation that failed and the underlying cause.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return string(e.Code)
	}
	return fmt.Sprintf("%s (%s)", strings.Join(parts, ": "), e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: strings.TrimSpace(message), Cause: cause}
}

func Errorf(code ErrorCode, op, format string, args ...any) error {
	return NewError(code, op, fmt.Sprintf(format, args...), nil)
}

// Wrap codes err, keeping it reachable through errors.Is. Nil stays nil.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code && code != "" }

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
