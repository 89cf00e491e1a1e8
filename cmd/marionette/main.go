// File: cmd/marionette/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/marionette-cli/cmd"
	"github.com/xkilldash9x/marionette-cli/internal/observability"
)

const panicLogFile = "panic.log"

const asciiArt = `
     _____
    |_____|         "Every desktop dances
     // \\           when you hold the strings."
    ||   ||
    o|   |o             [ marionette-cli v0.1.0 ]
    /|   |\          +------------------------+
   / |   | \         | 10 Desktop Actions     |
     |___|           | 01 Vision Agent Loop   |
                     +------------------------+

`

// Function variables for dependency injection in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
)

// main is the entry point of the application.
func main() {
	defer handlePanic()

	// Interrupt signals (SIGINT, SIGTERM) cancel the context so in-flight
	// commands unwind through the manager instead of being killed mid-action.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// If arguments are passed, execute the command directly and exit.
	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				osExit(0) // Clean exit on graceful shutdown.
			} else {
				osExit(1)
			}
		}
		return
	}

	// -- Interactive Mode --
	fmt.Print(asciiArt)
	if err := cmd.StartSession(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Session terminated with error:", err)
		osExit(1)
	}
}

// handlePanic writes uncaught panics to a dedicated log file so a crashed
// session leaves enough context to diagnose.
func handlePanic() {
	if r := recover(); r != nil {
		// Ensure buffered log output survives the crash.
		observability.Sync()

		stackTrace := debug.Stack()
		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, stackTrace)

		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
			// If logging fails, print to stderr as a fallback.
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(1)
			return // Return facilitates testing when osExit is mocked.
		}

		fmt.Fprintf(os.Stderr, "\n----------------------------------------------------------------\n")
		fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
		fmt.Fprintf(os.Stderr, "----------------------------------------------------------------\n")
		osExit(1)
	}
}
