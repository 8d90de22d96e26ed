package terminal

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Handle is one holder's reference to a Terminal. Each holder gets its own
// Handle through Clone and releases it when done. The terminal closes when
// the last Handle is released.
type Handle struct {
	core     *handleCore
	released atomic.Bool
}

type handleCore struct {
	term *Terminal
	refs atomic.Int64

	mu        sync.Mutex
	observers []func(*Terminal)
	finalized bool
	once      sync.Once
}

// NewHandle creates the first handle of t.
func NewHandle(t *Terminal) *Handle {
	core := &handleCore{term: t}
	core.refs.Store(1)
	return &Handle{core: core}
}

// Terminal returns the owned terminal.
func (h *Handle) Terminal() *Terminal { return h.core.term }

// Clone adds a holder. It returns nil once the terminal has been released by
// every holder, or when h itself was released.
func (h *Handle) Clone() *Handle {
	if h.released.Load() {
		return nil
	}
	for {
		n := h.core.refs.Load()
		if n <= 0 {
			return nil
		}
		if h.core.refs.CompareAndSwap(n, n+1) {
			return &Handle{core: h.core}
		}
	}
}

// OnRelease registers fn to run once when the last holder releases. If that
// already happened fn runs immediately.
func (h *Handle) OnRelease(fn func(*Terminal)) {
	c := h.core
	c.mu.Lock()
	if !c.finalized {
		c.observers = append(c.observers, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(c.term)
}

// Release drops this holder. Releasing the same Handle twice is a no-op.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	if h.core.refs.Add(-1) == 0 {
		h.core.finalize()
	}
}

// Released reports whether this Handle was released.
func (h *Handle) Released() bool { return h.released.Load() }

// Refs is the number of live holders.
func (h *Handle) Refs() int64 { return h.core.refs.Load() }

func (c *handleCore) finalize() {
	c.once.Do(func() {
		c.mu.Lock()
		c.finalized = true
		observers := c.observers
		c.observers = nil
		c.mu.Unlock()

		for _, fn := range observers {
			fn(c.term)
		}
		if err := c.term.Close(); err != nil {
			c.term.log.Debug("Closing released terminal failed", zap.Error(err))
		}
	})
}
