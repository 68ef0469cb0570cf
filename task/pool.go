package task

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// Pool is a fixed set of OS-thread-pinned workers draining a FIFO
// queue of scheduled continuations, protected by a mutex and
// condition variable. This is the Go translation of the original
// thread_pool's std::queue<std::coroutine_handle<>> plus
// std::mutex/std::condition_variable: Go has no way to transplant a
// running goroutine onto a specific OS thread mid-flight the way
// resuming a coroutine_handle on another thread does, so Schedule
// takes the continuation whole and runs it, start to finish, on
// whichever worker dequeues it.
type Pool struct {
	cpus []int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts n worker goroutines, each pinned to its own OS
// thread via runtime.LockOSThread before it ever dequeues work.
// cpus, if non-empty, pins worker i to cpus[i%len(cpus)]; nil leaves
// affinity to the scheduler. Grounded on
// _examples/ehrlich-b-go-ublk/internal/queue/runner.go's ioLoop,
// which pins for the same reason: a kernel resource — there
// ublk_drv's per-thread FD ownership, here the giouring.Ring — may
// only be driven by the thread that created it.
func NewPool(n int, cpus []int) *Pool {
	p := &Pool{cpus: cpus}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop(i)
	}
	return p
}

func (p *Pool) loop(worker int) {
	defer p.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	p.setAffinity(worker)

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		fn()
	}
}

// Schedule enqueues fn and returns a channel that is closed once some
// worker has dequeued and run fn to completion, pinned to that
// worker's OS thread for fn's entire lifetime. A ring.Engine's event
// loop is scheduled exactly once per worker at startup in xnet.Serve
// and is expected to occupy that worker until its context is
// canceled and the engine has drained.
func (p *Pool) Schedule(fn func()) <-chan struct{} {
	done := make(chan struct{})
	p.mu.Lock()
	p.queue = append(p.queue, func() {
		defer close(done)
		fn()
	})
	p.mu.Unlock()
	p.cond.Signal()
	return done
}

// Close marks the pool closed and blocks until every worker has
// returned. Workers first run every fn still in the queue, and workers
// currently running a scheduled fn are not interrupted, so callers
// should have already arranged for every in-flight fn to observe
// cancellation before calling Close.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool) setAffinity(worker int) {
	if len(p.cpus) == 0 {
		return
	}
	cpu := p.cpus[worker%len(p.cpus)]
	var mask unix.CPUSet
	mask.Set(cpu)
	_ = unix.SchedSetaffinity(0, &mask) // best effort, not fatal if denied
}
