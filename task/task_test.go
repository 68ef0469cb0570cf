package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskAwaitReturnsValue(t *testing.T) {
	tk := New(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	v, err := tk.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestTaskResumeIsIdempotent(t *testing.T) {
	runs := 0
	done := make(chan struct{})
	tk := New(context.Background(), func(ctx context.Context) (struct{}, error) {
		runs++
		close(done)
		return struct{}{}, nil
	})
	tk.Resume()
	tk.Resume()
	<-done
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, runs)
}

func TestTaskAwaitPropagatesError(t *testing.T) {
	sentinel := errors.New("boom")
	tk := New(context.Background(), func(ctx context.Context) (int, error) {
		return 0, sentinel
	})
	_, err := tk.Await(context.Background())
	require.ErrorIs(t, err, sentinel)
}

func TestTaskDetachDoesNotBlockCaller(t *testing.T) {
	started := make(chan struct{})
	tk := New(context.Background(), func(ctx context.Context) (int, error) {
		<-started
		return 1, nil
	})
	tk.Detach()
	close(started) // allow the detached goroutine to finish; nothing awaits it
}

func TestWaitAllReturnsInOrder(t *testing.T) {
	a := New(context.Background(), func(ctx context.Context) (int, error) { return 1, nil })
	b := New(context.Background(), func(ctx context.Context) (int, error) { return 2, nil })
	vals, errs := WaitAll([]*Task[int]{a, b})
	require.Equal(t, []int{1, 2}, vals)
	require.Nil(t, errs[0])
	require.Nil(t, errs[1])
}
