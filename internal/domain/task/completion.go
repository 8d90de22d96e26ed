package task

import "sync/atomic"

// Sender is the producing side of a completion channel. It is used exactly
// once: by the process monitor for local terminals or by the output pump for
// remote ones.
type Sender struct {
	ch   chan *ExitStatus
	sent atomic.Bool
}

// Receiver is the consuming side of a completion channel.
type Receiver struct {
	ch <-chan *ExitStatus
}

// NewCompletion creates a completion channel with room for one status.
func NewCompletion() (*Sender, *Receiver) {
	ch := make(chan *ExitStatus, 1)
	return &Sender{ch: ch}, &Receiver{ch: ch}
}

// Send delivers the exit status and closes the channel. exit may be nil when
// the process disappeared without reporting one. A second Send panics.
func (s *Sender) Send(exit *ExitStatus) {
	if !s.sent.CompareAndSwap(false, true) {
		panic("task: completion sent twice")
	}
	s.ch <- exit
	close(s.ch)
}

// Drop closes the channel without a status if nothing was sent yet.
func (s *Sender) Drop() {
	if s.sent.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Sent reports whether Send or Drop has been called.
func (s *Sender) Sent() bool {
	return s.sent.Load()
}

// Recv blocks for the status. ok is false when the sender dropped.
func (r *Receiver) Recv() (*ExitStatus, bool) {
	exit, ok := <-r.ch
	if !ok {
		return nil, false
	}
	return exit, true
}

// C exposes the underlying channel for select statements.
func (r *Receiver) C() <-chan *ExitStatus {
	return r.ch
}
