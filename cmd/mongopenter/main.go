// Package main is the entry point for mongopenter, a declarative and
// idempotent MongoDB provisioner.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := Execute(ctx)
	stop()
	os.Exit(code)
}
