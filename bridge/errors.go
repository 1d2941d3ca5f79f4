package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUTF8 is returned when the backend sends a line that is not
	// valid UTF-8 and so cannot be carried in a text frame.
	ErrInvalidUTF8 = errors.New("line is not valid utf-8")

	// ErrBridgeClosed is the outcome of a bridge that was closed by Close
	// before either direction finished on its own.
	ErrBridgeClosed = errors.New("bridge closed")
)

// Side identifies which of the two connections an error came from.
type Side string

const (
	// Client is the WebSocket side of the bridge.
	Client Side = "client"
	// Backend is the line-oriented stream side of the bridge.
	Backend Side = "backend"
)

// Error is a transport or decode failure on one side of a bridge.
type Error struct {
	// Side of the bridge on which the failure happened
	Side Side
	// Op is the failed operation: "read", "write" or "decode"
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Side, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause returns the underlying error, for github.com/pkg/errors.Cause.
func (e *Error) Cause() error {
	return e.Err
}

func sideError(side Side, op string, err error) error {
	return &Error{Side: side, Op: op, Err: err}
}

// ErrorSide returns the side an error returned by Run originated from, or ""
// if err is nil or not tagged with a side.
func ErrorSide(err error) Side {
	var e *Error
	if errors.As(err, &e) {
		return e.Side
	}
	return ""
}
