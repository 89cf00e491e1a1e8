// File: internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// Screenshotter produces the base64 PNG payload for the screenshot action.
// The capture pipeline implements it in production.
type Screenshotter interface {
	Capture(ctx context.Context) (string, error)
}

// ToolRunner executes a single tool-use request and keeps the running
// counters. The control loop depends on this boundary so tests can script
// tool outcomes without touching the OS.
type ToolRunner interface {
	Execute(ctx context.Context, toolUse schemas.ToolUse) (*schemas.ToolResult, error)
	Stats() schemas.ToolStats
}
