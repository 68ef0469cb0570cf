package xnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ianic/xnet/ring"
)

func TestServeStartsWorkersAndStopsOnCancel(t *testing.T) {
	opts := Options{
		Port:    0,
		Workers: 2,
		Backlog: 16,
		Ring:    ring.Config{QueueDepth: 64, BufferCount: 16, BufferLen: 1024},
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- Serve(ctx, opts, nil) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop within 5s of cancellation")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.Equal(t, 4242, opts.Port)
	require.Equal(t, 1, opts.Workers)
	require.Equal(t, 512, opts.Backlog)
}
