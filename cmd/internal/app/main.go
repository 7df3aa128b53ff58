package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Main is the entrypoint used by cmd/docqa. It returns the process exit code.
func Main() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}
