package schemas

import (
	"time"
)

// -- Command Lifecycle Schemas --

// CommandState tracks a submitted command through the execution pipeline.
type CommandState string

const (
	CommandQueued    CommandState = "QUEUED"    // Accepted, waiting its turn in the FIFO.
	CommandExecuting CommandState = "EXECUTING" // The single in-flight command.
	CommandCompleted CommandState = "COMPLETED" // Finished normally.
	CommandCancelled CommandState = "CANCELLED" // Stopped by request or shutdown.
	CommandFailed    CommandState = "FAILED"    // Terminated by an error.
)

// IsTerminal reports whether the state is final. Terminal commands are never
// resurrected.
func (s CommandState) IsTerminal() bool {
	switch s {
	case CommandCompleted, CommandCancelled, CommandFailed:
		return true
	}
	return false
}

// -- Tool Execution Schemas --

// ToolResult is the structured outcome of one successfully executed action.
type ToolResult struct {
	// Output is the human-readable confirmation line fed back to the model.
	Output string
	// Image carries the encoded screenshot for the screenshot action.
	Image *ImageSource
	// Duration is the wall-clock time the action took.
	Duration time.Duration
}

// ToolStats is a point-in-time snapshot of the executor's counters. The
// executor owns the live values; everyone else sees copies.
type ToolStats struct {
	TotalCalls   int64 `json:"total_calls"`
	SuccessCount int64 `json:"success_count"`
	ErrorCount   int64 `json:"error_count"`
	// AverageDuration is the incrementally updated mean duration in seconds
	// across successful calls.
	AverageDuration float64 `json:"average_duration"`
}

// -- Status Schemas --

// CommandInfo is a read-only summary of one command for status reporting.
type CommandInfo struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	State       CommandState `json:"state"`
	SubmittedAt time.Time    `json:"submitted_at"`
	Result      string       `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// DisplayInfo summarizes the coordinate mapping in effect.
type DisplayInfo struct {
	ScalingEnabled bool `json:"scaling_enabled"`
	LogicalWidth   int  `json:"logical_width"`
	LogicalHeight  int  `json:"logical_height"`
	RealWidth      int  `json:"real_width"`
	RealHeight     int  `json:"real_height"`
	OffsetX        int  `json:"offset_x"`
	OffsetY        int  `json:"offset_y"`
	DisplayNumber  int  `json:"display_number"`
}

// SystemStatus is the full status snapshot exposed at the submission
// boundary.
type SystemStatus struct {
	SessionID    string       `json:"session_id"`
	Running      bool         `json:"running"`
	QueueDepth   int          `json:"queue_depth"`
	Current      *CommandInfo `json:"current,omitempty"`
	HistoryCount int          `json:"history_count"`
	ToolStats    ToolStats    `json:"tool_stats"`
	Display      DisplayInfo  `json:"display"`
}
