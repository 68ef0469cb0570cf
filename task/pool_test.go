package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleRunsFnAndClosesDone(t *testing.T) {
	p := NewPool(2, nil)
	defer p.Close()

	var ran atomic.Bool
	done := p.Schedule(func() { ran.Store(true) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Schedule's done channel was never closed")
	}
	require.True(t, ran.Load())
}

func TestScheduleDispatchesFIFO(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Close()

	var mu sync.Mutex
	var order []int
	dones := make([]<-chan struct{}, 5)
	for i := 0; i < 5; i++ {
		i := i
		dones[i] = p.Schedule(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	for _, d := range dones {
		<-d
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestScheduleUsesEveryWorker(t *testing.T) {
	const workers = 4
	p := NewPool(workers, nil)
	defer p.Close()

	release := make(chan struct{})
	var arrived sync.WaitGroup
	arrived.Add(workers)
	dones := make([]<-chan struct{}, workers)
	for i := 0; i < workers; i++ {
		dones[i] = p.Schedule(func() {
			arrived.Done()
			<-release
		})
	}

	waited := make(chan struct{})
	go func() { arrived.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("not every worker picked up a scheduled fn concurrently")
	}
	close(release)
	for _, d := range dones {
		<-d
	}
}

func TestCloseReturnsPromptlyWithNoPendingWork(t *testing.T) {
	p := NewPool(3, nil)
	done := make(chan struct{})
	go func() { p.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}
