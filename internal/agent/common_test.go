// File: internal/agent/common_test.go
package agent

import (
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// textResponse builds a model response consisting of a single text block.
func textResponse(text string) *schemas.MessageResponse {
	return &schemas.MessageResponse{
		ID:      "msg_test",
		Content: []schemas.ContentBlock{{Type: schemas.ContentText, Text: text}},
	}
}

// toolUseResponse builds a model response with one tool-use block for the
// given action parameters, optionally followed by extra blocks.
func toolUseResponse(id string, params map[string]interface{}, extra ...schemas.ContentBlock) *schemas.MessageResponse {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	blocks := []schemas.ContentBlock{{
		Type:  schemas.ContentToolUse,
		ID:    id,
		Name:  schemas.ComputerToolName,
		Input: raw,
	}}
	return &schemas.MessageResponse{
		ID:      "msg_test",
		Content: append(blocks, extra...),
	}
}

// chunkRecorder collects streamed chunks. Safe for cross-goroutine use since
// manager-style callers emit from a worker.
type chunkRecorder struct {
	mu     sync.Mutex
	chunks []string
}

func (r *chunkRecorder) emit(chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *chunkRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.chunks...)
}

func (r *chunkRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.chunks) == 0 {
		return ""
	}
	return r.chunks[len(r.chunks)-1]
}
