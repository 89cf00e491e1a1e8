// File: internal/agent/history.go
package agent

import (
	"sync"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// History keeps the rolling conversation tail carried across commands. The
// control loop seeds each turn from the tail and commits the surviving
// messages back when the turn ends.
type History struct {
	mu       sync.Mutex
	limit    int
	messages []schemas.Message
}

// NewHistory creates a History bounded to limit messages. A non-positive
// limit disables the bound.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Tail returns a copy of the retained messages, oldest first.
func (h *History) Tail() []schemas.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schemas.Message(nil), h.messages...)
}

// CommitTurn replaces the retained tail with the last limit messages of a
// finished turn. The input slice is not retained.
func (h *History) CommitTurn(messages []schemas.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.limit > 0 && len(messages) > h.limit {
		messages = messages[len(messages)-h.limit:]
	}
	h.messages = append(h.messages[:0:0], messages...)
}

// Len reports how many messages are currently retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Clear drops the retained tail.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// PruneScreenshots removes the oldest embedded screenshots across the whole
// message set, in place, keeping only the newest keep images. Removal happens
// in multiples of batch so prompt caching upstream breaks less often: the
// remainder below a full batch is left alone.
func PruneScreenshots(messages []schemas.Message, keep, batch int) {
	if keep < 0 {
		keep = 0
	}
	if batch < 1 {
		batch = 1
	}

	var results []*schemas.ContentBlock
	for mi := range messages {
		for bi := range messages[mi].Content {
			block := &messages[mi].Content[bi]
			if block.Type == schemas.ContentToolResult {
				results = append(results, block)
			}
		}
	}

	total := 0
	for _, block := range results {
		for _, c := range block.Content {
			if c.Type == schemas.ContentImage {
				total++
			}
		}
	}

	remove := total - keep
	if remove <= 0 {
		return
	}
	remove -= remove % batch

	// Tool-result blocks are in message order, so walking forward removes the
	// oldest images first.
	for _, block := range results {
		if remove <= 0 {
			break
		}
		kept := block.Content[:0:0]
		for _, c := range block.Content {
			if c.Type == schemas.ContentImage && remove > 0 {
				remove--
				continue
			}
			kept = append(kept, c)
		}
		block.Content = kept
	}
}

// dropDanglingAssistant strips a trailing assistant message. The model must
// never see an assistant turn with nothing after it.
func dropDanglingAssistant(messages []schemas.Message) []schemas.Message {
	if n := len(messages); n > 0 && messages[n-1].Role == schemas.RoleAssistant {
		return messages[:n-1]
	}
	return messages
}
