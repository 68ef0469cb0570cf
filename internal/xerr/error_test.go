package xerr

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromErrnoMapsKnownCodes(t *testing.T) {
	require.Equal(t, CodeCanceled, FromErrno("ring.Recv", 3, syscall.ECANCELED).Code)
	require.Equal(t, CodeClosed, FromErrno("ring.Send", 3, syscall.ECONNRESET).Code)
	require.Equal(t, CodeIOError, FromErrno("ring.Send", 3, syscall.EINVAL).Code)
}

func TestWrapPreservesStructuredError(t *testing.T) {
	inner := FromErrno("ring.Recv", 4, syscall.ECONNRESET)
	wrapped := Wrap("httpd.Recv", inner)
	require.Equal(t, "httpd.Recv", wrapped.Op)
	require.Equal(t, CodeClosed, wrapped.Code)
	require.True(t, IsCode(wrapped, CodeClosed))
}

func TestWrapPlainErrorGetsIOCode(t *testing.T) {
	wrapped := Wrap("ring.Listen", errors.New("boom"))
	require.Equal(t, CodeIOError, wrapped.Code)
	require.ErrorIs(t, wrapped, &Error{Code: CodeIOError})
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.Nil(t, Wrap("op", nil))
}

func TestIsCodeFalseForUnrelatedError(t *testing.T) {
	require.False(t, IsCode(errors.New("plain"), CodeClosed))
}

func TestTemporary(t *testing.T) {
	require.True(t, Temporary(syscall.EAGAIN))
	require.False(t, Temporary(syscall.ECONNRESET))
}
