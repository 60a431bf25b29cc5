package api

import (
	"errors"
	"fmt"
)

// Kind classifies why a remote call failed.
type Kind string

const (
	KindNetwork  Kind = "network"  // transport failure, timeout, cancelled context
	KindStatus   Kind = "status"   // non-2xx HTTP status
	KindDecode   Kind = "decode"   // malformed response body
	KindRejected Kind = "rejected" // well-formed body with success=false
)

// Error is returned by every Client method.
type Error struct {
	Op     string
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("api %s: %s (%d): %v", e.Op, e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("api %s: %s (%d)", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("api %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("api %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}
