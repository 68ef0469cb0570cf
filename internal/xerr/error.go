// Package xerr provides a structured error type shared by the ring
// and httpd packages so that callers can distinguish fatal
// engine-level failures from ordinary per-connection errors.
package xerr

import (
	"errors"
	"fmt"
	"syscall"
)

// Code is a high-level error category.
type Code string

const (
	CodeRingInit        Code = "ring init failed"
	CodeBufferRingInit  Code = "buffer ring init failed"
	CodeBufferBorrowed  Code = "buffer already borrowed"
	CodeSubmissionQueue Code = "submission queue exhausted"
	CodeListenFailed    Code = "listen failed"
	CodeIOError         Code = "I/O error"
	CodeCanceled        Code = "operation canceled"
	CodeClosed          Code = "connection closed"
)

// Error is a structured error carrying the failing operation, an
// optional file descriptor, a high-level category and the wrapped
// cause.
type Error struct {
	Op    string // operation that failed, e.g. "ring.Accept", "engine.submitAndWait"
	FD    int    // file descriptor involved, -1 if not applicable
	Code  Code
	Errno syscall.Errno // 0 if not applicable
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.FD >= 0 {
		return fmt.Sprintf("xnet: %s: %s (fd=%d op=%s)", e.Code, msg, e.FD, e.Op)
	}
	return fmt.Sprintf("xnet: %s: %s (op=%s)", e.Code, msg, e.Op)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New creates a structured error with no wrapped cause.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, FD: -1, Code: code, Msg: msg}
}

// WithFD attaches a file descriptor to an error.
func WithFD(op string, fd int, code Code, msg string) *Error {
	return &Error{Op: op, FD: fd, Code: code, Msg: msg}
}

// FromErrno builds an Error from a completion's negative result,
// mapping common errnos to a high-level Code.
func FromErrno(op string, fd int, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		FD:    fd,
		Code:  mapErrno(errno),
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// Wrap attaches op context to an arbitrary error, preserving a
// structured error's fields when inner is already one.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		cp := *e
		cp.Op = op
		return &cp
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return FromErrno(op, -1, errno)
	}
	return &Error{Op: op, FD: -1, Code: CodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrno(errno syscall.Errno) Code {
	switch errno {
	case syscall.ECANCELED:
		return CodeCanceled
	case syscall.ECONNRESET, syscall.ENOTCONN, syscall.EPIPE:
		return CodeClosed
	default:
		return CodeIOError
	}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Temporary reports whether errno should be retried rather than
// treated as connection-fatal.
func Temporary(errno syscall.Errno) bool {
	return errno == syscall.EINTR || errno == syscall.EAGAIN ||
		errno == syscall.EWOULDBLOCK || errno == syscall.ENOBUFS
}
