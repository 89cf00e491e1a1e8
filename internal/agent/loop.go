// File: internal/agent/loop.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// completionPhrases end a turn when the latest response was text-only and
// one of them appears in the text (case-insensitive).
var completionPhrases = []string{"completed", "finished", "done", "task accomplished"}

// ControlLoop runs one command to completion against the remote model: it
// sends the conversation, executes requested tool actions in order, feeds
// results back, and streams progress chunks to the caller. A fresh Run call
// starts a fresh turn sequence over the rolling history.
type ControlLoop struct {
	logger       *zap.Logger
	client       schemas.ModelClient
	executor     ToolRunner
	history      *History
	historySize  int
	imagesToKeep int
	imageBatch   int
	systemPrompt string
	tools        []schemas.ToolDefinition
}

// NewControlLoop assembles the loop from its boundaries. The tool
// advertisement uses the configured display dimensions; coordinate scaling
// happens inside the executor.
func NewControlLoop(cfg config.Interface, client schemas.ModelClient, executor ToolRunner, logger *zap.Logger) *ControlLoop {
	agentCfg := cfg.Agent()
	display := cfg.Display()
	return &ControlLoop{
		logger:       logger.Named("control_loop"),
		client:       client,
		executor:     executor,
		history:      NewHistory(agentCfg.HistorySize),
		historySize:  agentCfg.HistorySize,
		imagesToKeep: agentCfg.ImagesToKeep,
		imageBatch:   agentCfg.ImageBatchSize,
		systemPrompt: buildSystemPrompt(cfg),
		tools: []schemas.ToolDefinition{
			schemas.NewComputerTool(display.Width, display.Height, display.Number),
		},
	}
}

// Run executes one command. Incremental chunks stream through emit; the
// return value is nil on normal completion, ErrCancelled on cancellation,
// and a descriptive error when the transport fails.
func (l *ControlLoop) Run(ctx context.Context, command string, emit func(string)) error {
	if emit == nil {
		emit = func(string) {}
	}
	command = strings.TrimSpace(command)
	if command == "" {
		l.logger.Warn("Received empty command.")
		return nil
	}

	messages := append(l.history.Tail(), schemas.NewTextMessage(schemas.RoleUser, command))

	err := l.converse(ctx, &messages, emit)
	switch {
	case err == nil:
		l.history.CommitTurn(messages)
		return nil
	case isCancellation(err):
		// The turn's messages are discarded; the pre-command tail survives.
		l.logger.Info("Command execution cancelled.")
		emit(CancellationMarker)
		return ErrCancelled
	default:
		l.history.CommitTurn(messages)
		return err
	}
}

// HistoryLen reports the current rolling-history length.
func (l *ControlLoop) HistoryLen() int { return l.history.Len() }

// Close clears local conversation state. The transport is owned by the
// caller and closed separately.
func (l *ControlLoop) Close() error {
	l.history.Clear()
	return nil
}

func (l *ControlLoop) converse(ctx context.Context, messages *[]schemas.Message, emit func(string)) error {
	for {
		if ctx.Err() != nil {
			return ErrCancelled
		}

		PruneScreenshots(*messages, l.imagesToKeep, l.imageBatch)
		*messages = dropDanglingAssistant(*messages)

		resp, err := l.client.CreateMessage(ctx, schemas.MessageRequest{
			System:   l.systemPrompt,
			Messages: *messages,
			Tools:    l.tools,
		})
		if err != nil {
			if isCancellation(err) || ctx.Err() != nil {
				return ErrCancelled
			}
			emit("Error: " + err.Error())
			return fmt.Errorf("model turn failed: %w", err)
		}

		hasToolUse := false
		complete := false

		for _, block := range resp.Content {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			switch block.Type {
			case schemas.ContentText:
				*messages = append(*messages, schemas.NewTextMessage(schemas.RoleAssistant, block.Text))
				emit(block.Text)
				if containsCompletionPhrase(block.Text) {
					complete = true
				}
			case schemas.ContentToolUse:
				hasToolUse = true
				if err := l.handleToolUse(ctx, block, messages, emit); err != nil {
					return err
				}
			default:
				l.logger.Debug("Ignoring unsupported content block.",
					zap.String("type", string(block.Type)))
			}
		}

		// A turn only ends on a text-only response carrying a completion
		// phrase. Anything else loops back for another model call.
		if !hasToolUse && complete {
			return nil
		}
		if len(*messages) > l.historySize*10 {
			emit("Warning: message limit reached. Terminating conversation.")
			return nil
		}
	}
}

// handleToolUse executes one tool-use block. Tool failures are fed back into
// the conversation as plain user text so the model can adapt; only
// cancellation aborts the turn.
func (l *ControlLoop) handleToolUse(ctx context.Context, block schemas.ContentBlock, messages *[]schemas.Message, emit func(string)) error {
	emit(fmt.Sprintf("Tool Use: %s\nInput: %s", block.Name, string(block.Input)))

	var params schemas.ActionParams
	if err := json.Unmarshal(block.Input, &params); err != nil {
		l.recordToolFailure(messages, emit, fmt.Errorf("decoding tool input: %w", err))
		return nil
	}

	result, err := l.executor.Execute(ctx, schemas.ToolUse{ID: block.ID, Name: block.Name, Params: params})
	if err != nil {
		if isCancellation(err) {
			return ErrCancelled
		}
		l.recordToolFailure(messages, emit, err)
		return nil
	}

	// Paired append: the assistant's tool_use request first, then the user
	// tool_result echoing its id. The next model call must see both.
	*messages = append(*messages, schemas.Message{
		Role: schemas.RoleAssistant,
		Content: []schemas.ContentBlock{{
			Type:  schemas.ContentToolUse,
			ID:    block.ID,
			Name:  block.Name,
			Input: block.Input,
		}},
	})
	*messages = append(*messages, schemas.NewToolResultMessage(block.ID, resultBlocks(result)...))
	emit("Tool executed: " + params.Action)
	return nil
}

func (l *ControlLoop) recordToolFailure(messages *[]schemas.Message, emit func(string), err error) {
	msg := "Tool execution error: " + err.Error()
	emit(msg)
	*messages = append(*messages, schemas.NewTextMessage(schemas.RoleUser, msg))
}

func resultBlocks(result *schemas.ToolResult) []schemas.ContentBlock {
	var blocks []schemas.ContentBlock
	if result.Image != nil {
		blocks = append(blocks, schemas.ImageBlock(result.Image.Data))
	}
	if result.Output != "" {
		blocks = append(blocks, schemas.TextBlock(result.Output))
	}
	return blocks
}

func containsCompletionPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// isCancellation folds the context sentinels and ErrCancelled into one check
// so cancellation always resolves to Cancelled, never Failed.
func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func buildSystemPrompt(cfg config.Interface) string {
	display := cfg.Display()

	var b strings.Builder
	fmt.Fprintf(&b, "You are controlling a desktop application on %s.\n\n", runtime.GOOS)
	b.WriteString("Important: Take a screenshot only at major checkpoints, such as when a page may have changed or a new application opens. Never take two screenshots in a row, and never take one for small actions like entering a URL.\n")
	b.WriteString("Important: Always click on the center of search bars and input fields for accuracy.\n")
	fmt.Fprintf(&b, "\nSystem Context:\n- OS: %s/%s\n- Display: %dx%d (display %d)\n- Model: %s\n",
		runtime.GOOS, runtime.GOARCH,
		display.Width, display.Height, display.Number,
		cfg.Model().ID)

	if custom := strings.TrimSpace(cfg.Agent().SystemPrompt); custom != "" {
		b.WriteString("\n")
		b.WriteString(custom)
		b.WriteString("\n")
	}
	return b.String()
}
