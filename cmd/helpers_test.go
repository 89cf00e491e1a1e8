// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/observability"
)

// resetCmdState is the single source of truth for resetting package state
// between command tests.
func resetCmdState(t *testing.T) {
	t.Helper()

	// Reset package-level variables from root.go.
	cfgFile = ""
	loadedConfig = nil

	// Reset the logger to a silent state so command output stays readable.
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
}

// syncBuffer is a goroutine-safe bytes.Buffer for output written from the
// manager's worker goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// scriptedRunner emits a fixed chunk sequence and returns a fixed error.
type scriptedRunner struct {
	chunks []string
	err    error
}

func (r *scriptedRunner) Run(ctx context.Context, command string, emit func(string)) error {
	for _, chunk := range r.chunks {
		emit(chunk)
	}
	return r.err
}

// nullStats satisfies the manager's stats source without a real executor.
type nullStats struct{}

func (nullStats) Stats() schemas.ToolStats { return schemas.ToolStats{} }
