package entity

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrKindGeneration     ErrorKind = "generation"
	ErrKindPersistence    ErrorKind = "persistence"
	ErrKindToolInvocation ErrorKind = "tool_invocation"
)

// OpError carries the failing operation and its kind up to the transport
// layer without losing the cause.
type OpError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *OpError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func GenerationError(op string, err error) error {
	return &OpError{Kind: ErrKindGeneration, Op: op, Err: err}
}

func PersistenceError(op string, err error) error {
	return &OpError{Kind: ErrKindPersistence, Op: op, Err: err}
}

func ToolInvocationError(op string, err error) error {
	return &OpError{Kind: ErrKindToolInvocation, Op: op, Err: err}
}

// KindOf returns the kind of the first OpError in err's chain, or "" when
// there is none.
func KindOf(err error) ErrorKind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return ""
}

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrGeneratorNotReady = errors.New("generator not loaded")
)
