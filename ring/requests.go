package ring

import (
	"runtime"
	"unsafe"

	"github.com/pawelgaczynski/giouring"

	"github.com/ianic/xnet/internal/xerr"
)

// RecvResult carries a borrowed buffer-pool slice. Callers must call
// Release once they are done reading Data and before issuing the next
// Recv on the same connection.
type RecvResult struct {
	Data []byte
	Err  error

	pool *BufferPool
	id   uint16
	have bool
}

// Release republishes the borrowed buffer to the kernel. Safe to call
// on a zero-value result (e.g. one carrying only an error).
func (r RecvResult) Release() {
	if r.have {
		r.pool.release(r.id)
	}
}

// Recv issues a single-shot, buffer-select recv: the kernel chooses
// the destination buffer from the engine's BufferPool at completion
// time. Unlike a multishot recv this must be reissued by the caller
// after every result, which is what lets the echo handler treat each
// call as one iteration of its read-process-write loop.
func (e *Engine) Recv(fd int) <-chan RecvResult {
	ch := make(chan RecvResult, 1)
	e.enqueue(
		func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRecv(fd, 0, 0, 0)
			sqe.Flags = giouring.SqeBufferSelect
			sqe.BufIG = bufferGroupID
		},
		func(res int32, flags uint32, err *Errno) {
			if err != nil {
				ch <- RecvResult{Err: xerr.FromErrno("ring.Recv", fd, err.Errno)}
				return
			}
			if res == 0 {
				ch <- RecvResult{} // peer closed, zero bytes, no buffer was consumed
				return
			}
			buf, id := e.buffers.borrow(res, flags)
			ch <- RecvResult{Data: buf, pool: &e.buffers, id: id, have: true}
		},
	)
	return ch
}

// Send submits data and internally retries on short writes until the
// whole buffer has been sent or an error occurs, mirroring the
// partial-write retry loop used throughout this codebase's connection
// handling.
func (e *Engine) Send(fd int, data []byte) <-chan error {
	result := make(chan error, 1)
	if len(data) == 0 {
		result <- nil
		return result
	}
	var pinner runtime.Pinner
	pinner.Pin(&data[0])
	var sent int
	var step func(buf []byte)
	step = func(buf []byte) {
		e.enqueue(
			func(sqe *giouring.SubmissionQueueEntry) {
				sqe.PrepareSend(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), 0)
			},
			func(res int32, flags uint32, err *Errno) {
				if err != nil {
					pinner.Unpin()
					result <- xerr.FromErrno("ring.Send", fd, err.Errno)
					return
				}
				sent += int(res)
				if sent >= len(data) {
					pinner.Unpin()
					result <- nil
					return
				}
				rest := data[sent:]
				pinner.Pin(&rest[0])
				step(rest)
			},
		)
	}
	step(data)
	return result
}

// CancelFd cancels the first outstanding operation found on fd (no
// cancel-all flag is passed), used to unwind a listener's multishot
// accept during shutdown.
func (e *Engine) CancelFd(fd int) <-chan error {
	ch := make(chan error, 1)
	e.enqueue(
		func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareCancelFd(fd, 0)
		},
		func(res int32, flags uint32, err *Errno) {
			if err != nil && !err.Canceled() {
				ch <- xerr.FromErrno("ring.CancelFd", fd, err.Errno)
				return
			}
			ch <- nil
		},
	)
	return ch
}

// Shutdown issues SHUT_RDWR then closes fd, chaining the two
// submissions the way a connection's teardown path always must.
func (e *Engine) Shutdown(fd int) <-chan error {
	const shutRDWR = 2
	ch := make(chan error, 1)
	e.enqueue(
		func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareShutdown(fd, shutRDWR)
		},
		func(res int32, flags uint32, shutdownErr *Errno) {
			e.enqueue(
				func(sqe *giouring.SubmissionQueueEntry) {
					sqe.PrepareClose(fd)
				},
				func(res int32, flags uint32, closeErr *Errno) {
					if shutdownErr != nil && !shutdownErr.ConnectionReset() {
						ch <- xerr.FromErrno("ring.Shutdown", fd, shutdownErr.Errno)
						return
					}
					ch <- nil
				},
			)
		},
	)
	return ch
}
