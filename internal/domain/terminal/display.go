package terminal

import (
	"sync"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/shared/id"
)

// Display is the surface a terminal renders into. Send must not block for
// long: it is called from the output pump.
type Display interface {
	WindowID() id.WindowID
	Send(data []byte)
}

// subscriberBuffer is the number of chunks a slow subscriber may lag behind
// before chunks are dropped for it.
const subscriberBuffer = 256

// Broadcaster is a Display that fans output out to any number of
// subscribers, such as attached websocket clients.
type Broadcaster struct {
	window id.WindowID

	mu     sync.Mutex
	subs   map[int]chan []byte
	nextID int
	closed bool
}

// NewBroadcaster creates a display with a fresh window id.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		window: id.NewWindowID(),
		subs:   make(map[int]chan []byte),
	}
}

func (b *Broadcaster) WindowID() id.WindowID { return b.window }

// Send delivers a copy of data to every subscriber without blocking.
func (b *Broadcaster) Send(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		select {
		case ch <- chunk:
		default:
		}
	}
}

// Subscribe returns a channel of output chunks and a function that ends the
// subscription. The channel is closed when either is called or the
// broadcaster closes.
func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	key := b.nextID
	b.nextID++
	b.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[key]; ok {
				delete(b.subs, key)
				close(sub)
			}
		})
	}
}

// Subscribers is the number of active subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, ch := range b.subs {
		delete(b.subs, key)
		close(ch)
	}
}

// nopDisplay discards output.
type nopDisplay struct {
	window id.WindowID
}

// NopDisplay returns a display that discards output.
func NopDisplay() Display {
	return nopDisplay{window: id.NewWindowID()}
}

func (d nopDisplay) WindowID() id.WindowID { return d.window }
func (nopDisplay) Send([]byte)             {}
