package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ianic/xnet"
	"github.com/ianic/xnet/internal/sigctx"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <port>",
		Short: "Start the echo server",
		Long: `Binds the given port with SO_REUSEADDR/SO_REUSEPORT and serves the
literal echo reference behaviour until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: runServe,
	}

	cmd.Flags().Int("threads", 1, "number of worker OS threads, each owning its own ring")
	cmd.Flags().Uint32("queue-depth", 2048, "io_uring submission/completion queue depth")
	cmd.Flags().Uint32("buffers", 1024, "number of provided recv buffers (must be a power of two)")
	cmd.Flags().Uint32("buffer-size", 1024, "size in bytes of each provided recv buffer")
	cmd.Flags().Int("backlog", 512, "listen backlog")
	cmd.Flags().Bool("pin-workers", false, "pin worker i to CPU i (modulo the CPU count)")
	cmd.Flags().BoolP("verbose", "v", false, "enable debug logging")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	threads, _ := cmd.Flags().GetInt("threads")
	queueDepth, _ := cmd.Flags().GetUint32("queue-depth")
	buffers, _ := cmd.Flags().GetUint32("buffers")
	bufferSize, _ := cmd.Flags().GetUint32("buffer-size")
	backlog, _ := cmd.Flags().GetInt("backlog")
	pinWorkers, _ := cmd.Flags().GetBool("pin-workers")

	opts := xnet.DefaultOptions()
	opts.Port = port
	opts.Workers = threads
	opts.Backlog = backlog
	opts.Ring.QueueDepth = queueDepth
	opts.Ring.BufferCount = buffers
	opts.Ring.BufferLen = bufferSize
	opts.PinWorkers = pinWorkers

	ctx := sigctx.Context()
	slog.Info("starting xnetd", "port", port, "threads", threads, "queue-depth", queueDepth)
	start := time.Now()
	err = xnet.Serve(ctx, opts, nil)
	slog.Info("xnetd stopped", "uptime", time.Since(start))
	return err
}
