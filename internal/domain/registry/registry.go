// Package registry tracks the terminals of a project.
//
// Local terminals are held weakly in a generation-checked arena: the
// registry never keeps a terminal alive, and a stale key can never remove a
// newer terminal that reused its slot. Remote terminals are tracked by their
// host-assigned id together with the channel their output is delivered on;
// the registry is the only writer to those channels.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"weak"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
)

var (
	// ErrDuplicateRemote is returned when a remote id is inserted twice.
	ErrDuplicateRemote = errors.New("remote terminal already registered")
	// ErrUnknownRemote is returned for output addressed to an id that is not
	// registered.
	ErrUnknownRemote = errors.New("remote terminal not registered")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry closed")
)

// RemoteBuffer is how many output chunks may be queued for a remote
// terminal before delivery waits for the reader.
const RemoteBuffer = 64

// Key identifies a local entry.
type Key struct {
	Index      int
	Generation uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%d@%d", k.Index, k.Generation)
}

type slot struct {
	generation uint64
	occupied   bool
	term       weak.Pointer[terminal.Terminal]
}

type remoteEntry struct {
	ch   chan []byte
	done chan struct{}
	// senders counts deliveries in flight, so removal waits for them
	// before closing ch.
	senders sync.WaitGroup
}

// Terminals is the registry of one project.
type Terminals struct {
	mu     sync.Mutex
	slots  []slot
	free   []int
	count  int
	remote map[uint64]*remoteEntry
	closed bool
}

// New creates an empty registry.
func New() *Terminals {
	return &Terminals{remote: make(map[uint64]*remoteEntry)}
}

// InsertLocal registers a weak reference to t.
func (r *Terminals) InsertLocal(t *terminal.Terminal) Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx int
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = len(r.slots) - 1
	}

	s := &r.slots[idx]
	s.generation++
	s.occupied = true
	s.term = weak.Make(t)
	r.count++
	return Key{Index: idx, Generation: s.generation}
}

// RemoveLocal drops the entry for key. It reports false when the key is
// stale or already removed.
func (r *Terminals) RemoveLocal(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key.Index < 0 || key.Index >= len(r.slots) {
		return false
	}
	s := &r.slots[key.Index]
	if !s.occupied || s.generation != key.Generation {
		return false
	}
	s.occupied = false
	s.term = weak.Pointer[terminal.Terminal]{}
	r.free = append(r.free, key.Index)
	r.count--
	return true
}

// GetLocal returns the terminal for key while it is registered and alive.
func (r *Terminals) GetLocal(key Key) (*terminal.Terminal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key.Index < 0 || key.Index >= len(r.slots) {
		return nil, false
	}
	s := r.slots[key.Index]
	if !s.occupied || s.generation != key.Generation {
		return nil, false
	}
	t := s.term.Value()
	return t, t != nil
}

// Local returns the live local terminals in slot order.
func (r *Terminals) Local() []*terminal.Terminal {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*terminal.Terminal, 0, r.count)
	for _, s := range r.slots {
		if !s.occupied {
			continue
		}
		if t := s.term.Value(); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Len is the number of registered local entries.
func (r *Terminals) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// InsertRemote registers a remote terminal and returns the channel its
// output will be delivered on.
func (r *Terminals) InsertRemote(remoteID uint64) (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if _, ok := r.remote[remoteID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateRemote, remoteID)
	}
	e := &remoteEntry{
		ch:   make(chan []byte, RemoteBuffer),
		done: make(chan struct{}),
	}
	r.remote[remoteID] = e
	return e.ch, nil
}

// DeliverRemote queues output for a remote terminal. It blocks while the
// channel is full until the reader catches up, ctx ends, or the entry is
// removed.
func (r *Terminals) DeliverRemote(ctx context.Context, remoteID uint64, data []byte) error {
	r.mu.Lock()
	e, ok := r.remote[remoteID]
	if ok {
		e.senders.Add(1)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRemote, remoteID)
	}
	defer e.senders.Done()

	select {
	case e.ch <- data:
		return nil
	case <-e.done:
		return fmt.Errorf("%w: %d", ErrUnknownRemote, remoteID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveRemote drops a remote entry and closes its channel. It reports false
// when the id was not registered.
func (r *Terminals) RemoveRemote(remoteID uint64) bool {
	r.mu.Lock()
	e, ok := r.remote[remoteID]
	if ok {
		delete(r.remote, remoteID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	close(e.done)
	e.senders.Wait()
	close(e.ch)
	return true
}

// HasRemote reports whether remoteID is registered.
func (r *Terminals) HasRemote(remoteID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.remote[remoteID]
	return ok
}

// RemoteIDs returns the registered remote ids in ascending order.
func (r *Terminals) RemoteIDs() []uint64 {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.remote))
	for remoteID := range r.remote {
		ids = append(ids, remoteID)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// Close removes every entry. Remote channels are closed; local terminals are
// left to their owners.
func (r *Terminals) Close() {
	r.mu.Lock()
	r.closed = true
	ids := make([]uint64, 0, len(r.remote))
	for remoteID := range r.remote {
		ids = append(ids, remoteID)
	}
	for i := range r.slots {
		if r.slots[i].occupied {
			r.slots[i].occupied = false
			r.slots[i].term = weak.Pointer[terminal.Terminal]{}
			r.free = append(r.free, i)
		}
	}
	r.count = 0
	r.mu.Unlock()

	for _, remoteID := range ids {
		r.RemoveRemote(remoteID)
	}
}
