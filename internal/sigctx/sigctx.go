// Package sigctx turns SIGINT/SIGTERM into context cancellation for
// the CLI's serve command.
package sigctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WaitForInterrupt blocks until SIGINT or SIGTERM is received.
func WaitForInterrupt() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

// Context returns a context canceled on SIGINT/SIGTERM.
func Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		WaitForInterrupt()
		cancel()
	}()
	return ctx
}
