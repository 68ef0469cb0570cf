// Package xnet wires ring, task and httpd together behind a single
// Serve entry point: N independent workers, each owning its own
// io_uring instance bound to the same port via SO_REUSEPORT, driven
// on its own OS-thread-pinned goroutine.
package xnet

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"github.com/ianic/xnet/httpd"
	"github.com/ianic/xnet/ring"
	"github.com/ianic/xnet/task"
)

// Options configures a Serve call.
type Options struct {
	Port       int
	Workers    int
	Backlog    int
	Ring       ring.Config
	PinWorkers bool  // pin worker i to CPU i (round-robin if Workers > NumCPU)
	CPUs       []int // explicit CPU list; overrides the round-robin default, used only when PinWorkers is set
}

// DefaultOptions carries this module's literal defaults: port 4242,
// a single worker, backlog 512 and a 2048-entry ring with a
// 1024x1024 provided buffer pool.
func DefaultOptions() Options {
	return Options{
		Port:    4242,
		Workers: 1,
		Backlog: 512,
		Ring:    ring.DefaultConfig,
	}
}

// Serve starts opts.Workers workers and blocks until ctx is canceled
// and every worker has finished draining its ring. A nil handler
// defaults to the literal echo reference behaviour.
func Serve(ctx context.Context, opts Options, handler httpd.Handler) error {
	if handler == nil {
		handler = httpd.Echo
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	cpus := opts.CPUs
	if opts.PinWorkers && len(cpus) == 0 {
		cpus = make([]int, opts.Workers)
		for i := range cpus {
			cpus[i] = i % runtime.NumCPU()
		}
	}
	if !opts.PinWorkers {
		cpus = nil
	}

	pool := task.NewPool(opts.Workers, cpus)
	defer pool.Close()

	errs := make([]error, opts.Workers)
	dones := make([]<-chan struct{}, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		worker := i
		dones[worker] = pool.Schedule(func() {
			w, err := httpd.NewWorker(httpd.WorkerConfig{
				Port:    opts.Port,
				Backlog: opts.Backlog,
				Ring:    opts.Ring,
			})
			if err != nil {
				errs[worker] = err
				return
			}
			if err := w.Run(ctx, handler); err != nil {
				slog.Error("worker exited", "worker", worker, "error", err)
				errs[worker] = err
			}
		})
	}
	for _, done := range dones {
		<-done
	}
	return errors.Join(errs...)
}
