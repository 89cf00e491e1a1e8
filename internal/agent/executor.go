// File: internal/agent/executor.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
	"github.com/xkilldash9x/marionette-cli/internal/input"
	"github.com/xkilldash9x/marionette-cli/internal/screen"
)

// toolHandler defines the function signature for a specific action handler.
type toolHandler func(ctx context.Context, params schemas.ActionParams) (*schemas.ToolResult, error)

// ToolExecutor is the only component allowed to mutate the OS pointer,
// keyboard and screen. It dispatches through a closed handler map and keeps
// the call counters; callers read value snapshots via Stats. The executor is
// never invoked concurrently with itself (single in-flight command), but the
// counters are still mutex-guarded because Stats is served from other
// goroutines.
type ToolExecutor struct {
	logger   *zap.Logger
	injector input.Injector
	shot     Screenshotter
	mapper   *screen.Mapper
	pacing   config.InputConfig
	handlers map[schemas.ActionType]toolHandler

	mu    sync.Mutex
	stats schemas.ToolStats
}

var _ ToolRunner = (*ToolExecutor)(nil) // Verify interface compliance.

// NewToolExecutor creates a ToolExecutor wired to the given OS boundaries.
func NewToolExecutor(cfg config.Interface, injector input.Injector, shot Screenshotter, mapper *screen.Mapper, logger *zap.Logger) *ToolExecutor {
	e := &ToolExecutor{
		logger:   logger.Named("tool_executor"),
		injector: injector,
		shot:     shot,
		mapper:   mapper,
		pacing:   cfg.Input(),
		handlers: make(map[schemas.ActionType]toolHandler),
	}
	e.registerHandlers()
	return e
}

func (e *ToolExecutor) registerHandlers() {
	e.handlers[schemas.ActionScreenshot] = e.handleScreenshot
	e.handlers[schemas.ActionMouseMove] = e.handleMouseMove
	e.handlers[schemas.ActionLeftClickDrag] = e.handleDrag
	for _, t := range []schemas.ActionType{
		schemas.ActionLeftClick,
		schemas.ActionRightClick,
		schemas.ActionMiddleClick,
		schemas.ActionDoubleClick,
	} {
		action := t
		e.handlers[action] = func(ctx context.Context, _ schemas.ActionParams) (*schemas.ToolResult, error) {
			return e.handleClick(ctx, action)
		}
	}
	e.handlers[schemas.ActionKey] = e.handleKey
	e.handlers[schemas.ActionTypeText] = e.handleType
	e.handlers[schemas.ActionCursorPosition] = e.handleCursorPosition
}

// Execute validates, dispatches and accounts for one tool-use request.
// The total-call counter moves at call start; the success bookkeeping only
// moves when the handler returns cleanly.
func (e *ToolExecutor) Execute(ctx context.Context, toolUse schemas.ToolUse) (*schemas.ToolResult, error) {
	start := time.Now()
	e.mu.Lock()
	e.stats.TotalCalls++
	e.mu.Unlock()

	action, ok := schemas.ParseActionType(toolUse.Params.Action)
	if !ok {
		err := newActionError(ErrCodeUnknownAction, toolUse.Params.Action, "not in the supported action set", nil)
		e.recordFailure(toolUse.Params.Action, err)
		return nil, err
	}

	result, err := e.handlers[action](ctx, toolUse.Params)
	if err != nil {
		// An aborted command is not a tool failure; the error counter only
		// tracks actions that actually went wrong.
		if isCancellation(err) {
			return nil, err
		}
		e.recordFailure(string(action), err)
		return nil, err
	}

	result.Duration = time.Since(start)
	e.recordSuccess(result.Duration)
	e.logger.Debug("Tool action executed.",
		zap.String("action", string(action)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Stats returns a point-in-time copy of the counters.
func (e *ToolExecutor) Stats() schemas.ToolStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *ToolExecutor) recordSuccess(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.SuccessCount++
	n := float64(e.stats.SuccessCount)
	e.stats.AverageDuration = (e.stats.AverageDuration*(n-1) + d.Seconds()) / n
}

func (e *ToolExecutor) recordFailure(action string, err error) {
	e.mu.Lock()
	e.stats.ErrorCount++
	e.mu.Unlock()
	e.logger.Warn("Tool action failed.",
		zap.String("action", action),
		zap.String("error_code", string(actionErrorCode(err))),
		zap.Error(err))
}

// -- Handlers --

func (e *ToolExecutor) handleScreenshot(ctx context.Context, _ schemas.ActionParams) (*schemas.ToolResult, error) {
	data, err := e.shot.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newActionError(ErrCodeCaptureFailure, string(schemas.ActionScreenshot), "capture failed", err)
	}
	return &schemas.ToolResult{
		Image: &schemas.ImageSource{Type: "base64", MediaType: "image/png", Data: data},
	}, nil
}

func (e *ToolExecutor) handleMouseMove(ctx context.Context, params schemas.ActionParams) (*schemas.ToolResult, error) {
	x, y, err := params.Point()
	if err != nil {
		return nil, newActionError(ErrCodeInvalidParameters, string(schemas.ActionMouseMove), "invalid coordinate", err)
	}
	sx, sy := e.mapper.ToScreen(x, y)
	if err := e.injector.MoveMouse(sx, sy); err != nil {
		return nil, newActionError(ErrCodeInputFailure, string(schemas.ActionMouseMove), "moving pointer", err)
	}
	if err := pauseCtx(ctx, e.pacing.PostActionPause); err != nil {
		return nil, err
	}
	return &schemas.ToolResult{Output: fmt.Sprintf("Moved mouse to (%d, %d)", x, y)}, nil
}

func (e *ToolExecutor) handleDrag(ctx context.Context, params schemas.ActionParams) (*schemas.ToolResult, error) {
	const action = string(schemas.ActionLeftClickDrag)

	x, y, err := params.Point()
	if err != nil {
		return nil, newActionError(ErrCodeInvalidParameters, action, "invalid coordinate", err)
	}
	sx, sy, err := e.injector.CursorPosition()
	if err != nil {
		return nil, newActionError(ErrCodeInputFailure, action, "reading pointer position", err)
	}
	tx, ty := e.mapper.ToScreen(x, y)

	if err := e.injector.ToggleMouse(input.ButtonLeft, true); err != nil {
		return nil, newActionError(ErrCodeInputFailure, action, "pressing mouse button", err)
	}
	glideErr := e.glide(ctx, sx, sy, tx, ty)
	// The button is released even when the glide fails so the desktop is not
	// left with a stuck drag.
	if err := e.injector.ToggleMouse(input.ButtonLeft, false); err != nil && glideErr == nil {
		glideErr = newActionError(ErrCodeInputFailure, action, "releasing mouse button", err)
	}
	if glideErr != nil {
		return nil, glideErr
	}
	return &schemas.ToolResult{
		Output: fmt.Sprintf("Dragged mouse from (%d, %d) to (%d, %d)", sx, sy, tx, ty),
	}, nil
}

// glide walks the pointer to the target in small steps across the drag
// duration so drop targets see continuous motion.
func (e *ToolExecutor) glide(ctx context.Context, fromX, fromY, toX, toY int) error {
	const steps = 12
	dur := e.pacing.DragDuration
	if dur <= 0 {
		if err := e.injector.MoveMouse(toX, toY); err != nil {
			return newActionError(ErrCodeInputFailure, string(schemas.ActionLeftClickDrag), "moving pointer", err)
		}
		return nil
	}
	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ix := fromX + (toX-fromX)*i/steps
		iy := fromY + (toY-fromY)*i/steps
		if err := e.injector.MoveMouse(ix, iy); err != nil {
			return newActionError(ErrCodeInputFailure, string(schemas.ActionLeftClickDrag), "moving pointer", err)
		}
		if err := pauseCtx(ctx, dur/steps); err != nil {
			return err
		}
	}
	return nil
}

func (e *ToolExecutor) handleClick(ctx context.Context, action schemas.ActionType) (*schemas.ToolResult, error) {
	button := input.ButtonLeft
	switch action {
	case schemas.ActionRightClick:
		button = input.ButtonRight
	case schemas.ActionMiddleClick:
		button = input.ButtonMiddle
	}
	if err := e.injector.Click(button, action == schemas.ActionDoubleClick); err != nil {
		return nil, newActionError(ErrCodeInputFailure, string(action), "clicking", err)
	}
	if err := pauseCtx(ctx, e.pacing.PostActionPause); err != nil {
		return nil, err
	}
	return &schemas.ToolResult{Output: fmt.Sprintf("Performed %s", action)}, nil
}

func (e *ToolExecutor) handleKey(ctx context.Context, params schemas.ActionParams) (*schemas.ToolResult, error) {
	const action = string(schemas.ActionKey)

	if params.Text == "" {
		return nil, newActionError(ErrCodeInvalidParameters, action, "no text provided", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := strings.Split(params.Text, "+")
	for i := range keys {
		keys[i] = strings.ToLower(strings.TrimSpace(keys[i]))
	}

	// Press in order; release in reverse so modifier combos land correctly.
	var pressed []string
	for _, k := range keys {
		if err := e.injector.ToggleKey(k, true); err != nil {
			for j := len(pressed) - 1; j >= 0; j-- {
				_ = e.injector.ToggleKey(pressed[j], false)
			}
			return nil, newActionError(ErrCodeInputFailure, action, fmt.Sprintf("pressing %q", k), err)
		}
		pressed = append(pressed, k)
	}
	var releaseErr error
	for j := len(pressed) - 1; j >= 0; j-- {
		if err := e.injector.ToggleKey(pressed[j], false); err != nil && releaseErr == nil {
			releaseErr = newActionError(ErrCodeInputFailure, action, fmt.Sprintf("releasing %q", pressed[j]), err)
		}
	}
	if releaseErr != nil {
		return nil, releaseErr
	}
	return &schemas.ToolResult{Output: "Pressed keys: " + params.Text}, nil
}

func (e *ToolExecutor) handleType(ctx context.Context, params schemas.ActionParams) (*schemas.ToolResult, error) {
	const action = string(schemas.ActionTypeText)

	if params.Text == "" {
		return nil, newActionError(ErrCodeInvalidParameters, action, "no text provided", nil)
	}
	for _, chunk := range chunkString(params.Text, e.pacing.TypingChunkSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.injector.TypeText(chunk, e.pacing.TypingDelay); err != nil {
			return nil, newActionError(ErrCodeInputFailure, action, "typing text", err)
		}
		if err := pauseCtx(ctx, e.pacing.ChunkPause); err != nil {
			return nil, err
		}
	}
	return &schemas.ToolResult{Output: "Input text: " + params.Text}, nil
}

func (e *ToolExecutor) handleCursorPosition(_ context.Context, _ schemas.ActionParams) (*schemas.ToolResult, error) {
	x, y, err := e.injector.CursorPosition()
	if err != nil {
		return nil, newActionError(ErrCodeInputFailure, string(schemas.ActionCursorPosition), "reading pointer position", err)
	}
	lx, ly := e.mapper.ToLogical(x, y)
	return &schemas.ToolResult{Output: fmt.Sprintf("Cursor position: (%d, %d)", lx, ly)}, nil
}

// -- Helpers --

// chunkString splits s into runs of at most size characters. A non-positive
// size disables chunking.
func chunkString(s string, size int) []string {
	runes := []rune(s)
	if size <= 0 || len(runes) <= size {
		return []string{s}
	}
	var chunks []string
	for len(runes) > size {
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}
	return append(chunks, string(runes))
}

// pauseCtx sleeps for d unless the context ends first.
func pauseCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
