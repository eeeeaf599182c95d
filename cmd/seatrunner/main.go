// File: cmd/seatrunner/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/seatrunner/cmd"
	"github.com/xkilldash9x/seatrunner/internal/observability"
)

// Allows mocking os.Exit in tests.
var osExit = os.Exit

func main() {
	defer flushOnPanic()

	// SIGINT and SIGTERM cancel the run; the runner still screenshots and closes the browser.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(cmd.Execute(ctx)))
}

// exitCode maps the command outcome to a process status. A flow failure is
// not an error here; only setup problems exit non-zero.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

func flushOnPanic() {
	if r := recover(); r != nil {
		observability.Sync()
		panic(r)
	}
}
