package common

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	// ClosedError indicates an operation on a pool, buffer or view that has already been closed.
	ClosedError ErrorCode = iota
	// CapacityExceededError indicates that the configured storage maximum has been reached, or that
	// the scratch file no longer has the size its bookkeeping expects (internal corruption).
	CapacityExceededError
	// IOError wraps a failure of the underlying file: create, seek, read, write or grow.
	IOError
	// InvalidArgumentError indicates a negative position, a wrongly sized page buffer or a page
	// index outside the pool.
	InvalidArgumentError
	// ProtocolError indicates a call the object does not permit in its current state, such as seeking
	// past the end of a buffer that forbids sparse extension, or writing through a read-only view.
	ProtocolError
	// CorruptDataError is returned by decoders when the input matches no known code.
	CorruptDataError
)

func (ec ErrorCode) String() string {
	switch ec {
	case ClosedError:
		return "ClosedError"
	case CapacityExceededError:
		return "CapacityExceededError"
	case IOError:
		return "IOError"
	case InvalidArgumentError:
		return "InvalidArgumentError"
	case ProtocolError:
		return "ProtocolError"
	case CorruptDataError:
		return "CorruptDataError"
	}
	return "unknown"
}

// Error is the error type returned by every storage, view and decoder operation.
// It carries an ErrorCode so callers can decide between aborting and retrying with a
// more permissive memory setting, and optionally wraps the underlying cause.
type Error struct {
	Code      ErrorCode
	ErrString string
	Err       error
}

func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("err: %s; msg: %s: %v", e.Code.String(), e.ErrString, e.Err)
	}
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

func (e Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) error {
	return Error{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and message to an underlying error. A nil err yields nil.
func WrapError(code ErrorCode, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Error{Code: code, ErrString: fmt.Sprintf(format, args...), Err: err}
}

// IsCode reports whether any error in err's chain is an Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
