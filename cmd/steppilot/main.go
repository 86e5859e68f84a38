package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/jharden0x1/steppilot/cmd"
)

const panicLogFile = "panic.log"

// Allows mocking in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	// Listen for interrupt signals so a run in flight can shut down the
	// browser and flush its report before exiting.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}

// handlePanic writes a crash report to panic.log before exiting, so that a
// panic inside a long browser run is not lost to a closed terminal.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	report := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(report), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", panicLogFile, err)
	}
	fmt.Fprintf(os.Stderr, "steppilot crashed; details written to %s\n", panicLogFile)
	osExit(2)
}
