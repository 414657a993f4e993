// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/tablewise/tablepilot/cmd"
)

// main is the entry point for the tablepilot CLI application.
func main() {
	// Cancellation is cooperative: the loop checks this context between
	// iterations, so Ctrl-C halts the session at the next boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.ExecuteContext(ctx)
}
