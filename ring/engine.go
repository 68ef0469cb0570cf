// Package ring owns one Linux io_uring instance per worker OS thread
// and turns its completion stream into channel-based results that
// goroutines on any thread can await. Only the goroutine running
// Engine.Run ever touches the underlying *giouring.Ring; every other
// caller communicates with it by sending a request on an internal
// channel, mirroring how a single-threaded reactor is normally driven
// in this codebase but allowing many goroutines to share one ring.
package ring

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/pawelgaczynski/giouring"
)

const (
	batchSize   = 128
	defaultTS   = 333 * time.Millisecond
	incomingCap = 4096
)

type completionCallback = func(res int32, flags uint32, err *Errno)
type prepareFunc = func(*giouring.SubmissionQueueEntry)

type request struct {
	prepare prepareFunc
	cb      completionCallback
}

// Config controls the sizes of the ring and its buffer pool.
type Config struct {
	QueueDepth  uint32 // io_uring submission/completion queue depth
	BufferCount uint32 // number of provided recv buffers, must be a power of two
	BufferLen   uint32 // size in bytes of each provided buffer
}

// DefaultConfig carries the literal defaults this module was built
// against: a 2048-entry ring and a 1024x1024 provided buffer pool.
var DefaultConfig = Config{
	QueueDepth:  2048,
	BufferCount: 1024,
	BufferLen:   1024,
}

// Engine owns a single io_uring instance and its provided buffer
// pool. Create one Engine per worker OS thread.
type Engine struct {
	ring      *giouring.Ring
	callbacks callbacks
	buffers   BufferPool
	pending   []request
	incoming  chan request
}

// New creates the ring and registers its buffer pool. It does not
// start the event loop; call Run on the owning goroutine.
func New(cfg Config) (*Engine, error) {
	r, err := giouring.CreateRing(cfg.QueueDepth)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		ring:     r,
		incoming: make(chan request, incomingCap),
	}
	e.callbacks.init()
	if err := e.buffers.init(r, cfg.BufferCount, cfg.BufferLen); err != nil {
		r.QueueExit()
		return nil, err
	}
	return e, nil
}

// Close tears down the ring and its buffer pool. Call only after Run
// has returned.
func (e *Engine) Close() {
	e.ring.QueueExit()
	e.buffers.deinit()
}

// Run drives the event loop: submit pending operations, wait for at
// least one completion, dispatch completions, repeat until ctx is
// canceled. On cancellation it keeps running until every pending
// operation has completed so in-flight sends and closes are not lost.
func (e *Engine) Run(ctx context.Context) error {
	ts := syscall.NsecToTimespec(int64(defaultTS))
	for {
		e.drainIncoming()
		if err := e.submit(); err != nil {
			return err
		}
		if _, err := e.ring.WaitCQEs(1, &ts, nil); err != nil && !TemporaryError(err) {
			return err
		}
		e.flushCompletions()
		select {
		case <-ctx.Done():
			return e.drain()
		default:
		}
	}
}

// drain runs the loop until every outstanding callback has completed,
// used once ctx is canceled so callers that issued CancelFd/Shutdown
// see their completions delivered before Run returns.
func (e *Engine) drain() error {
	for e.callbacks.count() > 0 || len(e.pending) > 0 || len(e.incoming) > 0 {
		e.drainIncoming()
		if err := e.submit(); err != nil {
			return err
		}
		ts := syscall.NsecToTimespec(int64(defaultTS))
		if _, err := e.ring.WaitCQEs(1, &ts, nil); err != nil && !TemporaryError(err) {
			return err
		}
		e.flushCompletions()
	}
	return nil
}

func (e *Engine) drainIncoming() {
	for {
		select {
		case req := <-e.incoming:
			e.pending = append(e.pending, req)
		default:
			return
		}
	}
}

// TemporaryError reports whether a ring-level error (as opposed to a
// per-completion one) should be retried.
func TemporaryError(err error) bool {
	if errno, ok := err.(syscall.Errno); ok {
		return Temporary(errno)
	}
	return os.IsTimeout(err)
}

func (e *Engine) submitAndWait(waitNr uint32) error {
	for {
		if len(e.pending) > 0 {
			if _, err := e.ring.SubmitAndWait(0); err == nil {
				e.preparePending()
			}
		}
		_, err := e.ring.SubmitAndWait(waitNr)
		if err != nil && TemporaryError(err) {
			continue
		}
		return err
	}
}

func (e *Engine) preparePending() {
	done := 0
	for _, req := range e.pending {
		sqe := e.ring.GetSQE()
		if sqe == nil {
			break
		}
		req.prepare(sqe)
		e.callbacks.set(sqe, req.cb)
		done++
	}
	if done == len(e.pending) {
		e.pending = nil
	} else {
		e.pending = e.pending[done:]
	}
}

func (e *Engine) submit() error {
	return e.submitAndWait(0)
}

func (e *Engine) flushCompletions() uint32 {
	var cqes [batchSize]*giouring.CompletionQueueEvent
	var n uint32
	for {
		peeked := e.ring.PeekBatchCQE(cqes[:])
		for _, cqe := range cqes[:peeked] {
			if cqe.UserData == 0 {
				slog.Debug("cqe without userdata", "res", cqe.Res, "flags", cqe.Flags)
				continue
			}
			cb := e.callbacks.get(cqe)
			if cb == nil {
				continue
			}
			cb(cqe.Res, cqe.Flags, cqeErr(cqe))
		}
		e.ring.CQAdvance(peeked)
		n += peeked
		if peeked < uint32(len(cqes)) {
			return n
		}
	}
}

// enqueue hands a submission off to the engine's owning goroutine.
// Safe to call from any goroutine.
func (e *Engine) enqueue(prepare prepareFunc, cb completionCallback) {
	e.incoming <- request{prepare: prepare, cb: cb}
}

func cqeErr(c *giouring.CompletionQueueEvent) *Errno {
	if c.Res > -4096 && c.Res < 0 {
		return &Errno{Errno: syscall.Errno(-c.Res)}
	}
	return nil
}

// Errno wraps a completion's negative result as a syscall.Errno with
// the classification helpers this module's call sites need.
type Errno struct {
	Errno syscall.Errno
}

func (e *Errno) Error() string { return e.Errno.Error() }

func (e *Errno) Temporary() bool { return Temporary(e.Errno) }

func (e *Errno) Canceled() bool { return e.Errno == syscall.ECANCELED }

func (e *Errno) ConnectionReset() bool {
	return e.Errno == syscall.ECONNRESET || e.Errno == syscall.ENOTCONN
}

// Temporary reports whether errno represents a transient failure that
// a caller should simply retry.
func Temporary(errno syscall.Errno) bool {
	return errno == syscall.EINTR || errno == syscall.EMFILE || errno == syscall.ENFILE ||
		errno == syscall.ENOBUFS || errno == syscall.EAGAIN || errno == syscall.EWOULDBLOCK ||
		errno == syscall.ETIMEDOUT || errno == syscall.ETIME
}

// #region callbacks

type callbacks struct {
	m    map[uint64]completionCallback
	next uint64
}

func (c *callbacks) init() {
	c.m = make(map[uint64]completionCallback)
	c.next = 1<<16 - 1 // reserve low values for internal use
}

func (c *callbacks) set(sqe *giouring.SubmissionQueueEntry, cb completionCallback) {
	c.next++
	key := c.next
	c.m[key] = cb
	sqe.UserData = key
}

func (c *callbacks) get(cqe *giouring.CompletionQueueEvent) completionCallback {
	cb := c.m[cqe.UserData]
	if !isMultiShot(cqe.Flags) {
		delete(c.m, cqe.UserData)
	}
	return cb
}

func (c *callbacks) count() int { return len(c.m) }

// #endregion

func isMultiShot(flags uint32) bool {
	return flags&giouring.CQEFMore > 0
}
