// Package fault defines the error kinds shared by every layer of the engine.
//
// Each fallible call returns an error that unwraps to exactly one kind sentinel,
// so callers branch with errors.Is (or the Is* helpers) instead of string checks.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrIO               = errors.New("io error")
	ErrFormat           = errors.New("format error")
	ErrOutOfMemory      = errors.New("out of memory")
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAlreadyStreaming = errors.New("already streaming")
	ErrInternal         = errors.New("internal error")
)

var kinds = []error{
	ErrIO,
	ErrFormat,
	ErrOutOfMemory,
	ErrInvalidHandle,
	ErrInvalidArgument,
	ErrAlreadyStreaming,
	ErrInternal,
}

// Error carries the kind, the failing operation and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind with a formatted message.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind sentinel err unwraps to, or ErrInternal for foreign errors.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

func IsIO(err error) bool               { return errors.Is(err, ErrIO) }
func IsFormat(err error) bool           { return errors.Is(err, ErrFormat) }
func IsOutOfMemory(err error) bool      { return errors.Is(err, ErrOutOfMemory) }
func IsInvalidHandle(err error) bool    { return errors.Is(err, ErrInvalidHandle) }
func IsInvalidArgument(err error) bool  { return errors.Is(err, ErrInvalidArgument) }
func IsAlreadyStreaming(err error) bool { return errors.Is(err, ErrAlreadyStreaming) }
func IsInternal(err error) bool         { return errors.Is(err, ErrInternal) }
