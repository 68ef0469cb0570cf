// Package httpd implements the accept/recv/send connection loop that
// sits on top of one ring.Engine and hands each accepted connection to
// a Handler as a ClientConnection, opaque to any particular byte
// protocol.
package httpd

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ianic/xnet/internal/metrics"
	"github.com/ianic/xnet/internal/xerr"
	"github.com/ianic/xnet/ring"
	"github.com/ianic/xnet/task"
)

// ClientConnection is the surface a Handler sees for one accepted
// connection. Recv returns a caller-owned copy of whatever bytes
// arrived; the core never hands a Handler a buffer-pool slice it
// would need to know to release.
type ClientConnection interface {
	Recv(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, p []byte) error
	Close() error
}

// Handler processes one accepted connection until Recv returns an
// error (including io.EOF on peer close).
type Handler func(ClientConnection)

// WorkerConfig configures one Worker: the port it listens on and the
// ring.Engine backing it.
type WorkerConfig struct {
	Port    int
	Backlog int
	Ring    ring.Config
}

// DefaultWorkerConfig carries this module's literal defaults: backlog
// 512 and a 2048-entry ring with a 1024x1024 provided buffer pool.
var DefaultWorkerConfig = WorkerConfig{
	Backlog: 512,
	Ring:    ring.DefaultConfig,
}

// Worker owns one ring.Engine and the listener bound to it. Run it on
// an OS-thread-pinned goroutine (see task.Pool) since only that
// goroutine may ever drive the underlying ring.
type Worker struct {
	cfg     WorkerConfig
	engine  *ring.Engine
	metrics *metrics.Metrics
	port    atomic.Int32
}

// NewWorker creates the ring for a worker but does not yet bind or
// listen; call Run to do both.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	e, err := ring.New(cfg.Ring)
	if err != nil {
		return nil, err
	}
	return &Worker{cfg: cfg, engine: e, metrics: metrics.New()}, nil
}

// Metrics returns this worker's counters, safe to read concurrently.
func (w *Worker) Metrics() *metrics.Metrics { return w.metrics }

// Port returns the bound listening port once Run has started it; 0
// before that.
func (w *Worker) Port() int { return int(w.port.Load()) }

// Run binds the listening socket, starts the accept loop and drives
// the ring's event loop until ctx is canceled. Each accepted
// connection is handed to handler on its own detached task; Run does
// not wait for in-flight handlers before returning once the ring
// itself has drained.
func (w *Worker) Run(ctx context.Context, handler Handler) error {
	defer w.engine.Close()

	fd, port, err := ring.Listen(w.cfg.Port, w.cfg.Backlog)
	if err != nil {
		return err
	}
	w.port.Store(int32(port))
	slog.Info("worker listening", "port", port)

	accepted := w.engine.Accept(fd)

	acceptLoop := task.New(ctx, func(ctx context.Context) (struct{}, error) {
		for {
			connFD, err := accepted.Next()
			if err != nil {
				// CodeClosed is Next's own sentinel for "the listener was
				// closed", the only error that should end this loop; any
				// other completion error (e.g. a transient EMFILE) is
				// logged and retried since ring.AcceptFuture resubmits.
				if xerr.IsCode(err, xerr.CodeClosed) {
					return struct{}{}, nil
				}
				slog.Warn("accept error, continuing", "error", err)
				continue
			}
			w.metrics.Accept()
			conn := &clientConn{engine: w.engine, fd: connFD, metrics: w.metrics}
			handlerTask := task.New(ctx, func(ctx context.Context) (struct{}, error) {
				handler(conn)
				w.metrics.Close()
				return struct{}{}, nil
			})
			// resume then detach: the handler's goroutine runs to
			// completion unobserved, exactly like this module's task
			// model allows for fire-and-forget per-connection work.
			handlerTask.Resume()
			handlerTask.Detach()
		}
	})
	acceptLoop.Resume()

	closeErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		closeErr <- <-accepted.Close()
	}()

	// the event loop runs on the calling goroutine so the ring is driven
	// by the same (pinned) goroutine that created it
	err = w.engine.Run(ctx)
	<-closeErr
	snap := w.metrics.Snapshot()
	slog.Info("worker stopped", "port", w.Port(), "accepted", snap.Accepted,
		"recv_ops", snap.RecvOps, "send_ops", snap.SendOps, "errors", snap.Errors)
	return err
}

type clientConn struct {
	engine  *ring.Engine
	fd      int
	metrics *metrics.Metrics
}

func (c *clientConn) Recv(ctx context.Context) ([]byte, error) {
	start := time.Now()
	select {
	case res := <-c.engine.Recv(c.fd):
		if res.Err != nil {
			c.metrics.RecordError()
			return nil, res.Err
		}
		if len(res.Data) == 0 {
			res.Release()
			return nil, io.EOF
		}
		data := make([]byte, len(res.Data))
		copy(data, res.Data)
		res.Release()
		c.metrics.RecordRecv(len(data), time.Since(start))
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *clientConn) Send(ctx context.Context, p []byte) error {
	start := time.Now()
	select {
	case err := <-c.engine.Send(c.fd, p):
		if err != nil {
			c.metrics.RecordError()
			return err
		}
		c.metrics.RecordSend(len(p), time.Since(start))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *clientConn) Close() error {
	<-c.engine.Shutdown(c.fd)
	return nil
}
