package schemas

import (
	"context"
)

// MessageRequest is what one model turn needs beyond the client's own
// configuration: the system prompt, the pruned conversation, and the tool
// advertisement.
type MessageRequest struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
}

// Usage reports token consumption for one model turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessageResponse is the decoded model reply: ordered content blocks plus
// bookkeeping.
type MessageResponse struct {
	ID         string
	Content    []ContentBlock
	StopReason string
	Usage      Usage
}

// ModelClient abstracts the remote model transport so the control loop can
// be tested against a scripted double.
type ModelClient interface {
	// CreateMessage performs one turn. Implementations must honor ctx and
	// must not hang indefinitely.
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
	// Close releases any underlying transport resources.
	Close() error
}

// Accelerator rewrites a raw user command into a more explicit instruction
// before it reaches the control loop. Implementations are fail-open: callers
// fall back to the original text on error.
type Accelerator interface {
	Enhance(ctx context.Context, command string) (string, error)
	Close() error
}
