// Command ason-executor runs scripts for an ason host over stdin/stdout.
//
// Every line on stdin is one protocol message from the host; replies and
// invocation requests are written to stdout, one per line. Logs go to stderr
// at the level named by ASON_LOG_LEVEL (info by default).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/executor"
)

func main() {
	logger := logging.New(logging.ParseLevel(os.Getenv("ASON_LOG_LEVEL")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := executor.NewServer(executor.LineWriter(os.Stdout), executor.WithLogger(logger))
	if err := srv.Serve(ctx, os.Stdin); err != nil {
		logger.Error("executor stopped", "error", err)
		stop()
		os.Exit(1)
	}
}
