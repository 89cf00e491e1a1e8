// File: internal/manager/manager_test.go
package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/agent"
)

// scriptedRunner records the commands it receives and delegates behavior to
// a per-test function.
type scriptedRunner struct {
	mu   sync.Mutex
	runs []string
	fn   func(ctx context.Context, command string, emit func(string)) error
}

func (r *scriptedRunner) Run(ctx context.Context, command string, emit func(string)) error {
	r.mu.Lock()
	r.runs = append(r.runs, command)
	fn := r.fn
	r.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, command, emit)
}

func (r *scriptedRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.runs))
	copy(out, r.runs)
	return out
}

// callbackRecorder captures every callback invocation as a state/result pair.
type callbackRecorder struct {
	mu      sync.Mutex
	states  []schemas.CommandState
	results []string
}

func (c *callbackRecorder) record(cmd *Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, cmd.State())
	c.results = append(c.results, cmd.Result())
}

func (c *callbackRecorder) finalState() schemas.CommandState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.states) == 0 {
		return ""
	}
	return c.states[len(c.states)-1]
}

func (c *callbackRecorder) resultCount(chunk string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.results {
		if r == chunk {
			n++
		}
	}
	return n
}

type fixedStats struct {
	stats schemas.ToolStats
}

func (f fixedStats) Stats() schemas.ToolStats { return f.stats }

func testDisplayInfo() schemas.DisplayInfo {
	return schemas.DisplayInfo{
		ScalingEnabled: true,
		LogicalWidth:   1024,
		LogicalHeight:  768,
		RealWidth:      1920,
		RealHeight:     1080,
		DisplayNumber:  1,
	}
}

func newTestManager(t *testing.T, runner CommandRunner) *Manager {
	t.Helper()
	m, err := NewManager(runner, nil, nil, testDisplayInfo(), zap.NewNop())
	require.NoError(t, err)
	return m
}

func waitDone(t *testing.T, cmd *Command) {
	t.Helper()
	select {
	case <-cmd.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("command %s did not reach a terminal state", cmd.ID)
	}
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(nil, nil, nil, schemas.DisplayInfo{}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewManager(&scriptedRunner{}, nil, nil, schemas.DisplayInfo{}, nil)
	assert.Error(t, err)
}

func TestSubmitExecutesInFIFOOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &scriptedRunner{}
	m := newTestManager(t, runner)
	m.Start()

	first := m.Submit("open the browser", nil)
	second := m.Submit("take a screenshot", nil)
	third := m.Submit("close the window", nil)

	waitDone(t, third)
	m.Shutdown()

	assert.Equal(t, []string{"open the browser", "take a screenshot", "close the window"}, runner.commands())
	for _, cmd := range []*Command{first, second, third} {
		assert.Equal(t, schemas.CommandCompleted, cmd.State())
		assert.Empty(t, cmd.Err())
	}

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, third.ID, history[2].ID)
}

func TestSingleFlightAcrossOverlappingSubmissions(t *testing.T) {
	defer goleak.VerifyNone(t)

	var inFlight, peak atomic.Int32
	runner := &scriptedRunner{
		fn: func(_ context.Context, _ string, _ func(string)) error {
			n := inFlight.Add(1)
			for {
				seen := peak.Load()
				if n <= seen || peak.CompareAndSwap(seen, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		},
	}
	m := newTestManager(t, runner)
	m.Start()

	var cmds []*Command
	for i := 0; i < 8; i++ {
		cmds = append(cmds, m.Submit(fmt.Sprintf("step %d", i), nil))
	}
	for _, cmd := range cmds {
		waitDone(t, cmd)
	}
	m.Shutdown()

	assert.EqualValues(t, 1, peak.Load(), "overlapping submissions must never execute concurrently")
}

func TestCallbackStreamsChunksAndTerminalState(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &scriptedRunner{
		fn: func(_ context.Context, _ string, emit func(string)) error {
			emit("Tool Use: computer")
			emit("Task completed")
			return nil
		},
	}
	m := newTestManager(t, runner)
	m.Start()

	rec := &callbackRecorder{}
	cmd := m.Submit("click the button", rec.record)
	waitDone(t, cmd)
	m.Shutdown()

	assert.Equal(t, schemas.CommandCompleted, cmd.State())
	assert.Equal(t, "Task completed", cmd.Result())
	assert.Equal(t, schemas.CommandCompleted, rec.finalState())
	assert.Equal(t, 1, rec.resultCount("Tool Use: computer"))
}

func TestCancellationMarkerYieldsCancelledState(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &scriptedRunner{
		fn: func(_ context.Context, _ string, emit func(string)) error {
			emit(agent.CancellationMarker)
			return nil
		},
	}
	m := newTestManager(t, runner)
	m.Start()

	cmd := m.Submit("do something slow", nil)
	waitDone(t, cmd)
	m.Shutdown()

	assert.Equal(t, schemas.CommandCancelled, cmd.State())
	assert.Equal(t, "Command cancelled by user", cmd.Err())
}

func TestRunnerErrorYieldsFailedState(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &scriptedRunner{
		fn: func(_ context.Context, _ string, emit func(string)) error {
			emit("Error: api returned status 500")
			return assert.AnError
		},
	}
	m := newTestManager(t, runner)
	m.Start()

	rec := &callbackRecorder{}
	cmd := m.Submit("fetch the report", rec.record)
	waitDone(t, cmd)
	m.Shutdown()

	assert.Equal(t, schemas.CommandFailed, cmd.State())
	assert.Equal(t, assert.AnError.Error(), cmd.Err())
	assert.Equal(t, schemas.CommandFailed, rec.finalState())
}

func TestCancelCurrentStopsExecutingCommand(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	runner := &scriptedRunner{
		fn: func(ctx context.Context, _ string, emit func(string)) error {
			close(started)
			<-ctx.Done()
			emit(agent.CancellationMarker)
			return agent.ErrCancelled
		},
	}
	m := newTestManager(t, runner)
	m.Start()

	rec := &callbackRecorder{}
	cmd := m.Submit("loop forever", rec.record)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("command never started executing")
	}

	m.CancelCurrent()

	assert.Equal(t, schemas.CommandCancelled, cmd.State())
	assert.Equal(t, "Command cancelled by user", cmd.Err())
	// CancelCurrent fires the callback synchronously, so the terminal state
	// is visible the moment it returns.
	assert.Equal(t, schemas.CommandCancelled, rec.finalState())

	m.Shutdown()
}

func TestCancelCurrentIsNoOpWhenIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(t, &scriptedRunner{})
	m.Start()
	m.CancelCurrent()
	m.Shutdown()
}

func TestShutdownDrainsQueuedCommands(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	runner := &scriptedRunner{
		fn: func(ctx context.Context, _ string, _ func(string)) error {
			close(started)
			<-ctx.Done()
			return agent.ErrCancelled
		},
	}
	m := newTestManager(t, runner)
	m.Start()

	inflight := m.Submit("long running task", nil)
	queuedA := m.Submit("queued task a", nil)
	queuedB := m.Submit("queued task b", nil)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("command never started executing")
	}

	m.Shutdown()

	assert.Equal(t, schemas.CommandCancelled, inflight.State())
	for _, cmd := range []*Command{queuedA, queuedB} {
		assert.Equal(t, schemas.CommandCancelled, cmd.State())
		assert.Equal(t, "Command manager shutdown", cmd.Err())
	}
	// Only the in-flight command ever reached the runner.
	assert.Len(t, runner.commands(), 1)
}

func TestSubmitAfterShutdownIsCancelledImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(t, &scriptedRunner{})
	m.Start()
	m.Shutdown()

	cmd := m.Submit("too late", nil)
	waitDone(t, cmd)

	assert.Equal(t, schemas.CommandCancelled, cmd.State())
	assert.Equal(t, "Command manager shutdown", cmd.Err())
}

func TestShutdownIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(t, &scriptedRunner{})
	m.Start()
	m.Shutdown()
	m.Shutdown()
}

func TestDuplicateChunksAreCollapsed(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &scriptedRunner{
		fn: func(_ context.Context, _ string, emit func(string)) error {
			emit("Taking a screenshot")
			emit("Taking a screenshot")
			emit("Analyzing the result")
			return nil
		},
	}
	m := newTestManager(t, runner)
	m.Start()

	rec := &callbackRecorder{}
	cmd := m.Submit("look at the screen", rec.record)
	waitDone(t, cmd)
	m.Shutdown()

	assert.Equal(t, 1, rec.resultCount("Taking a screenshot"))
	assert.GreaterOrEqual(t, rec.resultCount("Analyzing the result"), 1)
}

func TestDispatchSurvivesRunnerPanic(t *testing.T) {
	defer goleak.VerifyNone(t)

	prevBackoff := dispatchBackoff
	dispatchBackoff = 10 * time.Millisecond
	defer func() { dispatchBackoff = prevBackoff }()

	calls := 0
	var mu sync.Mutex
	runner := &scriptedRunner{}
	runner.fn = func(_ context.Context, _ string, _ func(string)) error {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			panic("executor blew up")
		}
		return nil
	}
	m := newTestManager(t, runner)
	m.Start()

	bad := m.Submit("explode", nil)
	good := m.Submit("recover", nil)

	waitDone(t, bad)
	waitDone(t, good)
	m.Shutdown()

	assert.Equal(t, schemas.CommandFailed, bad.State())
	assert.Contains(t, bad.Err(), "internal error")
	assert.Equal(t, schemas.CommandCompleted, good.State())
}

func TestHistoryEvictsOldestBeyondCapacity(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := newTestManager(t, &scriptedRunner{})
	m.Start()

	var last *Command
	for i := 0; i < historyCapacity+5; i++ {
		last = m.Submit("noop", nil)
	}
	waitDone(t, last)
	m.Shutdown()

	history := m.History()
	assert.Len(t, history, historyCapacity)
	assert.Equal(t, last.ID, history[len(history)-1].ID)
}

func TestStatusSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	runner := &scriptedRunner{
		fn: func(ctx context.Context, _ string, _ func(string)) error {
			close(started)
			<-ctx.Done()
			return agent.ErrCancelled
		},
	}
	display := testDisplayInfo()
	stats := fixedStats{stats: schemas.ToolStats{TotalCalls: 7, SuccessCount: 5, ErrorCount: 2}}
	m, err := NewManager(runner, nil, stats, display, zap.NewNop())
	require.NoError(t, err)
	m.Start()

	executing := m.Submit("watch the screen", nil)
	m.Submit("queued work", nil)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("command never started executing")
	}

	status := m.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.QueueDepth)
	assert.Equal(t, 0, status.HistoryCount)
	assert.Equal(t, int64(7), status.ToolStats.TotalCalls)
	assert.Equal(t, display, status.Display)
	require.NotNil(t, status.Current)
	assert.Equal(t, executing.ID, status.Current.ID)
	assert.Equal(t, schemas.CommandExecuting, status.Current.State)
	assert.NotEmpty(t, status.SessionID)

	m.Shutdown()

	status = m.Status()
	assert.False(t, status.Running)
	assert.Nil(t, status.Current)
}

// fixedAccelerator rewrites every command to a canned string.
type fixedAccelerator struct {
	enhanced string
	err      error
}

func (f fixedAccelerator) Enhance(_ context.Context, _ string) (string, error) {
	return f.enhanced, f.err
}

func (f fixedAccelerator) Close() error { return nil }

func TestAcceleratorRewritesCommandText(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &scriptedRunner{}
	accel := fixedAccelerator{enhanced: "1. Open the browser. 2. Navigate to the page."}
	m, err := NewManager(runner, accel, nil, schemas.DisplayInfo{}, zap.NewNop())
	require.NoError(t, err)
	m.Start()

	cmd := m.Submit("open page", nil)
	waitDone(t, cmd)
	m.Shutdown()

	require.Len(t, runner.commands(), 1)
	assert.Equal(t, accel.enhanced, runner.commands()[0])
}

func TestAcceleratorFailureFallsBackToOriginalText(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &scriptedRunner{}
	accel := fixedAccelerator{err: assert.AnError}
	m, err := NewManager(runner, accel, nil, schemas.DisplayInfo{}, zap.NewNop())
	require.NoError(t, err)
	m.Start()

	cmd := m.Submit("open page", nil)
	waitDone(t, cmd)
	m.Shutdown()

	require.Len(t, runner.commands(), 1)
	assert.Equal(t, "open page", runner.commands()[0])
}
