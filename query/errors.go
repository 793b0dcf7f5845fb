package query

import (
	"context"
	"errors"

	"github.com/hazyhaar/domprobe/driver"
	"github.com/hazyhaar/domprobe/structure"
)

// Code classifies a failure.
type Code string

const (
	CodeNotFound        Code = "ELEMENT_NOT_FOUND"
	CodeNotVisible      Code = "ELEMENT_NOT_VISIBLE"
	CodeTimeout         Code = "OPERATION_TIMEOUT"
	CodeInvalidSelector Code = "INVALID_SELECTOR"
	CodeObserver        Code = "OBSERVER_ERROR"
)

// Reasons reported to clients.
const (
	ReasonNotFound   = "Element not found"
	ReasonNotElement = "Found node is not an element"
	ReasonNotVisible = "Element is not visible"
	ReasonNoCriteria = "No selector, role or text given"
)

// Error is a classified failure with a human-readable reason.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string { return e.Reason }

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error.
func NewError(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// Classify maps any error from a driver or the serializer to an *Error.
// Unknown errors keep their message and carry no code.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}
	var nf *structure.NotFoundError
	switch {
	case errors.As(err, &nf):
		return NewError(CodeNotFound, nf.Error(), err)
	case errors.Is(err, driver.ErrDetached):
		return NewError(CodeNotFound, ReasonNotFound, err)
	case errors.Is(err, driver.ErrInvalidSelector):
		return NewError(CodeInvalidSelector, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(CodeTimeout, err.Error(), err)
	}
	return &Error{Reason: err.Error(), Err: err}
}

// Failure converts err into a failed Result.
func Failure(err error) Result {
	e := Classify(err)
	if e == nil {
		return Result{Success: false, Error: "Unknown error"}
	}
	return Result{Success: false, Error: e.Reason, Code: e.Code}
}
