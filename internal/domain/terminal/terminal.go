package terminal

import (
	"errors"
	"io"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/shared/id"
)

// Where the process behind a terminal runs.
const (
	LocationLocal  = "local"
	LocationRemote = "remote"
)

const (
	DefaultCols uint16 = 80
	DefaultRows uint16 = 24

	readBufferSize = 4096
)

// Options configure a terminal independently of its Spec.
type Options struct {
	Cols     uint16
	Rows     uint16
	Location string
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Cols == 0 {
		o.Cols = DefaultCols
	}
	if o.Rows == 0 {
		o.Rows = DefaultRows
	}
	if o.Location == "" {
		o.Location = LocationLocal
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Terminal is a running terminal session.
type Terminal struct {
	id        id.TerminalID
	kind      Kind
	location  string
	spec      Spec
	createdAt time.Time
	log       *zap.Logger

	pty     Pty
	history *History
	display Display
	task    *task.State

	writeMu sync.Mutex

	mu     sync.RWMutex
	cols   uint16
	rows   uint16
	closed bool
	exit   *task.ExitStatus

	outputDone chan struct{}
	exited     chan struct{}
	closeOnce  sync.Once
}

// New wraps a started pty. It begins pumping output immediately and, when
// the spec has a completion receiver, watches it for the exit status.
func New(spec Spec, p Pty, opts Options) *Terminal {
	opts = opts.withDefaults()

	display := spec.Display
	if display == nil {
		display = NopDisplay()
	}

	t := &Terminal{
		id:         spec.ID,
		kind:       spec.Kind,
		location:   opts.Location,
		spec:       spec,
		createdAt:  time.Now(),
		log:        opts.Logger.With(logging.TerminalID(spec.ID.String())),
		pty:        p,
		history:    NewHistory(spec.MaxScrollHistoryLines),
		display:    display,
		task:       spec.Task,
		cols:       opts.Cols,
		rows:       opts.Rows,
		outputDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}

	go t.pumpOutput()
	if spec.Completion != nil || spec.Task != nil {
		go t.watchExit()
	}
	return t
}

func (t *Terminal) pumpOutput() {
	defer close(t.outputDone)

	buf := make([]byte, readBufferSize)
	for {
		n, err := t.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.history.Write(chunk)
			t.display.Send(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Debug("Terminal output ended", zap.Error(err))
			}
			break
		}
	}

	if t.spec.Completion == nil && t.spec.Task == nil {
		t.markExited(nil)
	}
}

func (t *Terminal) watchExit() {
	var exit *task.ExitStatus
	if t.task != nil {
		t.task.Watch()
		exit = t.task.Exit()
	} else if e, ok := t.spec.Completion.Recv(); ok {
		exit = e
	}
	t.markExited(exit)
}

func (t *Terminal) markExited(exit *task.ExitStatus) {
	t.mu.Lock()
	t.exit = exit
	t.mu.Unlock()
	close(t.exited)

	fields := []zap.Field{zap.String("kind", t.kind.String())}
	if exit != nil {
		fields = append(fields, zap.Int("exit_code", exit.Code))
	}
	t.log.Debug("Terminal process exited", fields...)
}

func (t *Terminal) ID() id.TerminalID { return t.id }
func (t *Terminal) Kind() Kind        { return t.kind }
func (t *Terminal) Location() string  { return t.location }

// Task is the task state, or nil for a shell.
func (t *Terminal) Task() *task.State { return t.task }

// History is the scrollback buffer.
func (t *Terminal) History() *History { return t.history }

// Display is the surface the terminal renders into.
func (t *Terminal) Display() Display { return t.display }

// Env returns a copy of the environment the terminal was built with.
func (t *Terminal) Env() map[string]string { return maps.Clone(t.spec.Env) }

// Spec returns the spec the terminal was built from.
func (t *Terminal) Spec() Spec { return t.spec }

// InputBytes writes raw bytes to the terminal's input.
func (t *Terminal) InputBytes(data []byte) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.pty.Write(data)
	return err
}

// Resize changes the terminal dimensions.
func (t *Terminal) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return errors.New("terminal dimensions must be positive")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := t.pty.Resize(cols, rows); err != nil {
		return err
	}
	t.cols, t.rows = cols, rows
	return nil
}

// Size returns the current dimensions.
func (t *Terminal) Size() (cols, rows uint16) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cols, t.rows
}

// Done is closed when all output has been read from the pty.
func (t *Terminal) Done() <-chan struct{} { return t.outputDone }

// Exited is closed when the process exit is known.
func (t *Terminal) Exited() <-chan struct{} { return t.exited }

// ExitStatus returns the exit status once known.
func (t *Terminal) ExitStatus() *task.ExitStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.exit == nil {
		return nil
	}
	e := *t.exit
	return &e
}

// Closed reports whether Close has been called.
func (t *Terminal) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Close closes the pty, which ends the process for local terminals. It is
// safe to call more than once.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		err = t.pty.Close()
	})
	return err
}

// TaskInfo is the public view of a task state.
type TaskInfo struct {
	ID           string `json:"id"`
	FullLabel    string `json:"full_label"`
	Label        string `json:"label"`
	CommandLabel string `json:"command_label"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

// Info is the public representation of a terminal.
type Info struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Location         string    `json:"location"`
	WindowID         string    `json:"window_id"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
	Command          string    `json:"command"`
	Cols             uint16    `json:"cols"`
	Rows             uint16    `json:"rows"`
	Blinking         string    `json:"blinking"`
	AlternateScroll  bool      `json:"alternate_scroll"`
	HistoryLines     int       `json:"history_lines"`
	CreatedAt        time.Time `json:"created_at"`
	Active           bool      `json:"active"`
	ExitCode         *int      `json:"exit_code,omitempty"`
	Task             *TaskInfo `json:"task,omitempty"`
}

// Info snapshots the terminal.
func (t *Terminal) Info() Info {
	t.mu.RLock()
	info := Info{
		ID:               t.id.String(),
		Kind:             t.kind.String(),
		Location:         t.location,
		WindowID:         t.display.WindowID().String(),
		WorkingDirectory: t.spec.WorkingDirectory,
		Command:          t.spec.Command.String(),
		Cols:             t.cols,
		Rows:             t.rows,
		Blinking:         t.spec.Blinking.String(),
		AlternateScroll:  t.spec.AlternateScroll,
		HistoryLines:     t.history.Len(),
		CreatedAt:        t.createdAt,
		Active:           !t.closed,
	}
	if t.exit != nil {
		code := t.exit.Code
		info.ExitCode = &code
	}
	t.mu.RUnlock()

	select {
	case <-t.exited:
		info.Active = false
	default:
	}

	if t.task != nil {
		status, success := t.task.Status()
		info.Task = &TaskInfo{
			ID:           t.task.ID,
			FullLabel:    t.task.FullLabel,
			Label:        t.task.Label,
			CommandLabel: t.task.CommandLabel,
			Status:       status.String(),
			Success:      success,
		}
	}
	return info
}
