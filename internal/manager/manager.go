// File: internal/manager/manager.go
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/agent"
)

// uuidNewString is aliased so tests can pin identifiers.
var uuidNewString = uuid.NewString

// dispatchBackoff throttles the dispatch loop after an unexpected failure so
// a hot fault cannot spin it. Tests shorten it.
var dispatchBackoff = time.Second

const (
	// historyCapacity bounds the terminal-command history; oldest evicted.
	historyCapacity = 100
	// dedupWindow suppresses identical consecutive chunks arriving within
	// this interval.
	dedupWindow = time.Second

	// cancelledByUser is the standard error recorded on cancelled commands.
	cancelledByUser = "Command cancelled by user"
	// shutdownError is recorded on commands drained by Shutdown.
	shutdownError = "Command manager shutdown"
)

// CommandRunner drives one command to its end, streaming chunks through
// emit. The control loop implements it in production.
type CommandRunner interface {
	Run(ctx context.Context, command string, emit func(string)) error
}

// StatsSource supplies tool-counter snapshots for status reporting.
type StatsSource interface {
	Stats() schemas.ToolStats
}

// Command is one submitted unit of work moving through the state machine
// Queued -> Executing -> {Completed | Cancelled | Failed}. Terminal states
// are final.
type Command struct {
	ID          string
	Text        string
	SubmittedAt time.Time

	mu          sync.Mutex
	state       schemas.CommandState
	result      string
	errText     string
	callback    func(*Command)
	cancel      context.CancelFunc
	lastChunk   string
	lastChunkAt time.Time

	done chan struct{}
}

// State returns the current lifecycle state.
func (c *Command) State() schemas.CommandState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the most recent streamed chunk.
func (c *Command) Result() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Err returns the recorded error text, empty unless Failed or Cancelled.
func (c *Command) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

// Done is closed once the command reaches a terminal state.
func (c *Command) Done() <-chan struct{} { return c.done }

// Info returns a read-only snapshot for status reporting.
func (c *Command) Info() schemas.CommandInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return schemas.CommandInfo{
		ID:          c.ID,
		Text:        c.Text,
		State:       c.state,
		SubmittedAt: c.SubmittedAt,
		Result:      c.result,
		Error:       c.errText,
	}
}

// Manager owns the single-flight FIFO command queue. One worker goroutine
// executes commands strictly in submission order; at most one command is
// Executing system-wide.
type Manager struct {
	logger    *zap.Logger
	runner    CommandRunner
	accel     schemas.Accelerator
	stats     StatsSource
	display   schemas.DisplayInfo
	sessionID string

	mu       sync.Mutex
	queue    []*Command
	current  *Command
	history  []*Command
	running  bool
	shutdown bool

	wake     chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager creates a Manager. The accelerator and stats source are
// optional; runner and logger are not.
func NewManager(runner CommandRunner, accel schemas.Accelerator, stats StatsSource, display schemas.DisplayInfo, logger *zap.Logger) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("command runner cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Manager{
		logger:    logger.With(zap.String("component", "command_manager")),
		runner:    runner,
		accel:     accel,
		stats:     stats,
		display:   display,
		sessionID: uuidNewString(),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the dispatch worker. Calling Start on a running or shut
// down manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running || m.shutdown {
		m.mu.Unlock()
		m.logger.Warn("Start called, but manager is already running or shut down.")
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.dispatchLoop()
	m.logger.Info("Command manager started.", zap.String("session_id", m.sessionID))
}

// Submit enqueues a command. It always succeeds and never blocks; after
// Shutdown the command is immediately finalized as Cancelled.
func (m *Manager) Submit(text string, cb func(*Command)) *Command {
	cmd := &Command{
		ID:          uuidNewString(),
		Text:        text,
		SubmittedAt: time.Now(),
		state:       schemas.CommandQueued,
		callback:    cb,
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		m.finalize(cmd, schemas.CommandCancelled, shutdownError)
		return cmd
	}
	m.queue = append(m.queue, cmd)
	depth := len(m.queue)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	m.logger.Info("Command queued.",
		zap.String("command_id", cmd.ID),
		zap.Int("queue_depth", depth))
	return cmd
}

// CancelCurrent stops the executing command, if any. It awaits the worker's
// teardown of that command, forces the Cancelled state, and invokes the
// callback synchronously from the caller's goroutine so observers update
// immediately. Calling it with nothing executing is a no-op.
func (m *Manager) CancelCurrent() {
	m.mu.Lock()
	cmd := m.current
	m.mu.Unlock()
	if cmd == nil {
		m.logger.Debug("Cancel requested with no executing command.")
		return
	}

	m.logger.Info("Cancelling current command.", zap.String("command_id", cmd.ID))

	cmd.mu.Lock()
	cancel := cmd.cancel
	cmd.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	<-cmd.done

	cmd.mu.Lock()
	if cmd.state != schemas.CommandCancelled {
		cmd.state = schemas.CommandCancelled
		cmd.errText = cancelledByUser
	}
	cb := cmd.callback
	cmd.mu.Unlock()
	if cb != nil {
		cb(cmd)
	}
}

// Shutdown stops the manager: the in-flight command is cancelled, the worker
// exits, and every still-queued command is finalized as Cancelled without
// executing. Idempotent and safe to call from any state.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.shutdown = true
		queued := m.queue
		m.queue = nil
		cmd := m.current
		started := m.running
		m.mu.Unlock()

		if cmd != nil {
			cmd.mu.Lock()
			cancel := cmd.cancel
			cmd.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		}

		close(m.stopCh)
		if started {
			m.wg.Wait()
		}

		for _, qc := range queued {
			m.finalize(qc, schemas.CommandCancelled, shutdownError)
		}

		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.logger.Info("Command manager shut down.")
	})
}

// Status returns a point-in-time snapshot of the manager and its tooling.
func (m *Manager) Status() schemas.SystemStatus {
	m.mu.Lock()
	status := schemas.SystemStatus{
		SessionID:    m.sessionID,
		Running:      m.running && !m.shutdown,
		QueueDepth:   len(m.queue),
		HistoryCount: len(m.history),
		Display:      m.display,
	}
	if m.current != nil {
		info := m.current.Info()
		status.Current = &info
	}
	m.mu.Unlock()

	if m.stats != nil {
		status.ToolStats = m.stats.Stats()
	}
	return status
}

// History returns snapshots of terminal commands, oldest first.
func (m *Manager) History() []schemas.CommandInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]schemas.CommandInfo, 0, len(m.history))
	for _, cmd := range m.history {
		infos = append(infos, cmd.Info())
	}
	return infos
}

// dispatchLoop is the single worker. It drains the queue strictly in FIFO
// order and suspends on the wake channel when idle. It never exits except
// via Shutdown; unexpected failures are logged and backed off.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()
	for {
		cmd := m.dequeue()
		if cmd == nil {
			select {
			case <-m.wake:
				continue
			case <-m.stopCh:
				return
			}
		}

		if err := m.execute(cmd); err != nil {
			m.logger.Error("Dispatch failure, backing off.", zap.Error(err))
			select {
			case <-time.After(dispatchBackoff):
			case <-m.stopCh:
				return
			}
		}
	}
}

func (m *Manager) dequeue() *Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	cmd := m.queue[0]
	m.queue = m.queue[1:]
	return cmd
}

// execute runs one command to a terminal state. Panics are recovered so the
// dispatch loop survives any single bad command.
func (m *Manager) execute(cmd *Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while executing command %s: %v", cmd.ID, r)
			m.finalize(cmd, schemas.CommandFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd.mu.Lock()
	cmd.state = schemas.CommandExecuting
	cmd.cancel = cancel
	cb := cmd.callback
	cmd.mu.Unlock()

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		m.finalize(cmd, schemas.CommandCancelled, shutdownError)
		return nil
	}
	m.current = cmd
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		if m.current == cmd {
			m.current = nil
		}
		m.mu.Unlock()
	}()

	if cb != nil {
		cb(cmd)
	}
	m.logger.Info("Command executing.", zap.String("command_id", cmd.ID))

	runErr := m.runner.Run(ctx, m.accelerate(ctx, cmd.Text), m.emitFunc(cmd))

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	cmd.mu.Lock()
	last := cmd.result
	cmd.mu.Unlock()

	// The literal cancellation marker as the final chunk means the turn was
	// cut short, with or without an explicit cancel request.
	switch {
	case errors.Is(runErr, agent.ErrCancelled) || last == agent.CancellationMarker:
		m.finalize(cmd, schemas.CommandCancelled, cancelledByUser)
	case runErr != nil:
		m.finalize(cmd, schemas.CommandFailed, runErr.Error())
	default:
		m.finalize(cmd, schemas.CommandCompleted, "")
	}
	return nil
}

// accelerate rewrites the command text when an accelerator is wired in.
// Failures fall back to the original text; a slow or broken accelerator must
// never block the pipeline.
func (m *Manager) accelerate(ctx context.Context, text string) string {
	if m.accel == nil {
		return text
	}
	enhanced, err := m.accel.Enhance(ctx, text)
	if err != nil {
		m.logger.Warn("Accelerator failed, using original command.", zap.Error(err))
		return text
	}
	if strings.TrimSpace(enhanced) == "" {
		return text
	}
	return enhanced
}

// emitFunc adapts one command into the runner's emit callback, collapsing
// identical consecutive chunks inside the dedup window.
func (m *Manager) emitFunc(cmd *Command) func(string) {
	return func(chunk string) {
		if chunk == "" {
			return
		}
		now := time.Now()

		cmd.mu.Lock()
		if chunk == cmd.lastChunk && now.Sub(cmd.lastChunkAt) <= dedupWindow {
			cmd.mu.Unlock()
			return
		}
		cmd.lastChunk = chunk
		cmd.lastChunkAt = now
		cmd.result = chunk
		cb := cmd.callback
		cmd.mu.Unlock()

		m.logger.Info("Command progress.",
			zap.String("command_id", cmd.ID),
			zap.String("chunk", strings.TrimSpace(chunk)))
		if cb != nil {
			cb(cmd)
		}
	}
}

// finalize moves a command to a terminal state exactly once, closes its done
// channel, notifies the callback, and appends it to history. History
// failures never block queue progress.
func (m *Manager) finalize(cmd *Command, state schemas.CommandState, errText string) {
	cmd.mu.Lock()
	if cmd.state.IsTerminal() {
		cmd.mu.Unlock()
		return
	}
	cmd.state = state
	cmd.errText = errText
	cb := cmd.callback
	cmd.mu.Unlock()

	close(cmd.done)
	if cb != nil {
		cb(cmd)
	}
	m.appendHistory(cmd)

	m.logger.Info("Command finished.",
		zap.String("command_id", cmd.ID),
		zap.String("state", string(state)),
		zap.String("error", errText))
}

func (m *Manager) appendHistory(cmd *Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, cmd)
	if len(m.history) > historyCapacity {
		m.history = m.history[len(m.history)-historyCapacity:]
	}
}
