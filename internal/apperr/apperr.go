// Package apperr defines the error kinds shared by the loader, the pipeline
// stages and the outer surfaces. Callers match kinds with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrFormat     = errors.New("unsupported or unparseable format")
	ErrData       = errors.New("invalid data")
	ErrClustering = errors.New("clustering failed")
)

// Error carries the failing operation and, when known, the source it was
// reading (a file path or upload name).
type Error struct {
	Op     string
	Kind   error
	Source string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	} else if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

func NotFound(op, source string, err error) *Error {
	return &Error{Op: op, Kind: ErrNotFound, Source: source, Msg: "source does not exist", Err: err}
}

func Format(op, source, msg string, err error) *Error {
	return &Error{Op: op, Kind: ErrFormat, Source: source, Msg: msg, Err: err}
}

func Data(op, msg string) *Error {
	return &Error{Op: op, Kind: ErrData, Msg: msg}
}

func Clustering(op, msg string) *Error {
	return &Error{Op: op, Kind: ErrClustering, Msg: msg}
}

// Kind reports which of the known kinds err belongs to, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrFormat, ErrData, ErrClustering} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
