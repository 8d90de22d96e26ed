// Package task describes commands spawned inside a terminal and tracks
// their completion.
package task

import (
	"maps"
	"slices"
	"sync"
)

// SpawnInTerminal describes a task command to run in a fresh terminal.
type SpawnInTerminal struct {
	ID           string            `json:"id"`
	FullLabel    string            `json:"full_label"`
	Label        string            `json:"label"`
	CommandLabel string            `json:"command_label"`
	Command      string            `json:"command"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Cwd          string            `json:"cwd,omitempty"`
}

// Clone returns a copy that shares no maps or slices with t.
func (t *SpawnInTerminal) Clone() *SpawnInTerminal {
	if t == nil {
		return nil
	}
	out := *t
	out.Args = slices.Clone(t.Args)
	out.Env = maps.Clone(t.Env)
	return &out
}

// Status is the lifecycle state of a task.
type Status int

const (
	Running Status = iota
	Completed
)

func (s Status) String() string {
	if s == Completed {
		return "completed"
	}
	return "running"
}

// ExitStatus is what a finished process reports.
type ExitStatus struct {
	Code int `json:"code"`
}

// Success reports whether the process exited with code zero.
func (e ExitStatus) Success() bool {
	return e.Code == 0
}

// State tracks a task running in a terminal.
type State struct {
	ID           string
	FullLabel    string
	Label        string
	CommandLabel string

	mu       sync.RWMutex
	status   Status
	exit     *ExitStatus
	receiver *Receiver
	done     chan struct{}
}

// NewState creates a running state for t that listens on rx.
func NewState(t *SpawnInTerminal, rx *Receiver) *State {
	return &State{
		ID:           t.ID,
		FullLabel:    t.FullLabel,
		Label:        t.Label,
		CommandLabel: t.CommandLabel,
		status:       Running,
		receiver:     rx,
		done:         make(chan struct{}),
	}
}

// Status returns the current status and, when completed, whether the task
// succeeded.
func (s *State) Status() (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == Completed {
		return Completed, s.exit != nil && s.exit.Success()
	}
	return Running, false
}

// Exit returns the exit status, or nil while running or when the process
// was lost without one.
func (s *State) Exit() *ExitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.exit == nil {
		return nil
	}
	e := *s.exit
	return &e
}

// Receiver is the completion receiver the state was created with.
func (s *State) Receiver() *Receiver {
	return s.receiver
}

// Complete records the exit status. Later calls are ignored.
func (s *State) Complete(exit *ExitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Completed {
		return
	}
	s.status = Completed
	s.exit = exit
	close(s.done)
}

// Done is closed once the task completes.
func (s *State) Done() <-chan struct{} {
	return s.done
}

// Watch completes the state from its receiver. It blocks until the producer
// sends or goes away.
func (s *State) Watch() {
	if s.receiver == nil {
		return
	}
	exit, ok := s.receiver.Recv()
	if !ok {
		s.Complete(nil)
		return
	}
	s.Complete(exit)
}
