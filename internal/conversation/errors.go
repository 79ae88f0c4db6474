package conversation

import (
	"errors"
	"fmt"
)

// Kind classifies a routing failure.
type Kind string

const (
	KindBadRequest      Kind = "BadRequest"
	KindDataUnavailable Kind = "DataUnavailable"
	KindAnalysisFailed  Kind = "AnalysisFailed"
	KindInternal        Kind = "InternalError"
)

// Error is returned by the router for every failed turn.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of err, or KindInternal for errors that did not come from the router.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
