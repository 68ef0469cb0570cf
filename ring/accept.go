package ring

import (
	"github.com/pawelgaczynski/giouring"

	"github.com/ianic/xnet/internal/xerr"
)

// AcceptFuture streams accepted connection fds from one multishot
// accept submission on a listening socket, resubmitting automatically
// whenever the kernel's multishot accept terminates (no CQEFMore) so
// the caller only ever has to call Next in a loop.
type AcceptFuture struct {
	engine  *Engine
	fd      int
	results chan acceptResult
}

type acceptResult struct {
	fd  int
	err error
}

// Accept starts streaming accepted connections for a listening fd.
func (e *Engine) Accept(fd int) *AcceptFuture {
	af := &AcceptFuture{engine: e, fd: fd, results: make(chan acceptResult, 64)}
	af.submit()
	return af
}

func (af *AcceptFuture) submit() {
	af.engine.enqueue(
		func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareMultishotAccept(af.fd, 0, 0, 0)
		},
		func(res int32, flags uint32, err *Errno) {
			if err != nil {
				if !err.Canceled() {
					af.results <- acceptResult{err: xerr.FromErrno("ring.Accept", af.fd, err.Errno)}
					// an error completion still ends the multishot stream;
					// resubmit so a transient failure (e.g. EMFILE) doesn't
					// permanently silence future accepts
					af.submit()
				}
				return
			}
			af.results <- acceptResult{fd: int(res)}
			if !isMultiShot(flags) {
				// the kernel can terminate a multishot accept (e.g. when its
				// CQE slot is needed elsewhere); reissue it transparently
				af.submit()
			}
		},
	)
}

// Next blocks until a connection is accepted, the listener is closed,
// or an error occurs.
func (af *AcceptFuture) Next() (int, error) {
	r, ok := <-af.results
	if !ok {
		return 0, xerr.WithFD("ring.AcceptFuture.Next", af.fd, xerr.CodeClosed, "listener closed")
	}
	return r.fd, r.err
}

// Close cancels the outstanding multishot accept and unblocks any
// goroutine parked in Next.
func (af *AcceptFuture) Close() <-chan error {
	out := make(chan error, 1)
	cancel := af.engine.CancelFd(af.fd)
	go func() {
		err := <-cancel
		close(af.results)
		out <- err
	}()
	return out
}
