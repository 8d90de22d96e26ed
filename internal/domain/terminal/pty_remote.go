package terminal

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// ControlFlow tells the forwarding loop whether to keep going.
type ControlFlow int

const (
	Continue ControlFlow = iota
	Break
)

func (c ControlFlow) String() string {
	if c == Break {
		return "break"
	}
	return "continue"
}

// ForwardFunc delivers one input chunk to the remote host.
type ForwardFunc func(ctx context.Context, data []byte) ControlFlow

// RemotePty proxies a terminal running on a remote host. Input is queued and
// handed to the forward function strictly in order by a single goroutine.
// Output is read from the inbound channel.
type RemotePty struct {
	forward ForwardFunc
	inbound <-chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   [][]byte
	notify  chan struct{}
	pending []byte
	onBreak []func()

	closed    atomic.Bool
	broken    atomic.Bool
	breakOnce sync.Once
	loopDone  chan struct{}
}

// NewRemotePty starts the forwarding loop.
func NewRemotePty(forward ForwardFunc, inbound <-chan []byte) *RemotePty {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RemotePty{
		forward:  forward,
		inbound:  inbound,
		ctx:      ctx,
		cancel:   cancel,
		notify:   make(chan struct{}, 1),
		loopDone: make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *RemotePty) loop() {
	defer close(p.loopDone)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notify:
		}

		for {
			chunk, ok := p.next()
			if !ok {
				break
			}
			if p.forward(p.ctx, chunk) == Break {
				p.breakLoop()
				return
			}
		}
	}
}

func (p *RemotePty) next() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 || p.ctx.Err() != nil {
		return nil, false
	}
	chunk := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return chunk, true
}

func (p *RemotePty) breakLoop() {
	p.breakOnce.Do(func() {
		p.broken.Store(true)
		p.closed.Store(true)
		p.cancel()

		p.mu.Lock()
		p.queue = nil
		observers := p.onBreak
		p.onBreak = nil
		p.mu.Unlock()

		for _, fn := range observers {
			fn()
		}
	})
}

// OnBreak registers fn to run once when forwarding stops because the
// forward function returned Break. If that already happened fn runs now.
func (p *RemotePty) OnBreak(fn func()) {
	p.mu.Lock()
	if !p.broken.Load() {
		p.onBreak = append(p.onBreak, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

// Write queues input for forwarding. It never blocks on the network.
func (p *RemotePty) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	chunk := make([]byte, len(b))
	copy(chunk, b)

	p.mu.Lock()
	p.queue = append(p.queue, chunk)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return len(b), nil
}

// Read returns output delivered through the inbound channel. It returns
// io.EOF when the channel closes or the pty is closed.
func (p *RemotePty) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case data, ok := <-p.inbound:
			if !ok {
				return 0, io.EOF
			}
			p.pending = data
		case <-p.ctx.Done():
			return 0, io.EOF
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Resize is accepted but not forwarded; the host keeps its own size.
func (p *RemotePty) Resize(cols, rows uint16) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close stops forwarding. Queued input that was not forwarded is dropped.
func (p *RemotePty) Close() error {
	p.closed.Store(true)
	p.cancel()
	return nil
}

// IsClosed reports whether the pty accepts input.
func (p *RemotePty) IsClosed() bool { return p.closed.Load() }

// Wait blocks until the forwarding loop has exited.
func (p *RemotePty) Wait() { <-p.loopDone }
