package task

import "context"

// Wait blocks the calling goroutine until t completes. Unlike Await it
// offers no cancellation, which is the point: it is meant for a
// program's top level (a worker's main function waiting on its event
// loop task) where there is nothing left to cancel against.
func Wait[V any](t *Task[V]) (V, error) {
	return t.Await(context.Background())
}

// WaitAll starts every task in ts, then blocks until all of them have
// completed, returning each task's value and error in the same order.
func WaitAll[V any](ts []*Task[V]) ([]V, []error) {
	for _, t := range ts {
		t.Resume()
	}
	vals := make([]V, len(ts))
	errs := make([]error, len(ts))
	for i, t := range ts {
		vals[i], errs[i] = Wait(t)
	}
	return vals, errs
}
