package extraction

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies extraction failures.
type Kind string

const (
	RateLimited     Kind = "rate_limited"
	Timeout         Kind = "timeout"
	InvalidResponse Kind = "invalid_response"
	BudgetExceeded  Kind = "budget_exceeded"
	Unavailable     Kind = "unavailable"
)

// ErrBudgetExceeded matches any *Error of kind BudgetExceeded via errors.Is.
var ErrBudgetExceeded = errors.New("extraction credit budget exceeded")

// Error is returned by every Session call that fails.
type Error struct {
	Kind   Kind
	Op     Operation
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("extraction %s %s: %s", e.Op, e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == ErrBudgetExceeded && e.Kind == BudgetExceeded
}

// Retryable reports whether the failure is transient on the service side.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case RateLimited, Timeout, Unavailable:
		return true
	}
	return false
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func transportError(op Operation, target string, err error) *Error {
	kind := Unavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = Timeout
	}
	return &Error{Kind: kind, Op: op, URL: target, Err: err}
}
