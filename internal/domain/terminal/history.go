package terminal

import (
	"bytes"
	"sync"
)

// History is a thread-safe circular buffer of output lines. Only the last
// max complete lines are kept, plus the line still being written.
type History struct {
	mu      sync.RWMutex
	lines   []string
	head    int
	count   int
	partial []byte
}

// NewHistory creates a history holding up to max lines.
func NewHistory(max int) *History {
	if max < 0 {
		max = 0
	}
	return &History{lines: make([]string, max)}
}

// Write appends output. Lines are split on '\n'; a trailing '\r' is dropped.
func (h *History) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rest := p
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			h.partial = append(h.partial, rest...)
			break
		}
		h.partial = append(h.partial, rest[:i]...)
		h.push(string(bytes.TrimSuffix(h.partial, []byte{'\r'})))
		h.partial = h.partial[:0]
		rest = rest[i+1:]
	}
	return len(p), nil
}

func (h *History) push(line string) {
	size := len(h.lines)
	if size == 0 {
		return
	}
	tail := (h.head + h.count) % size
	h.lines[tail] = line
	if h.count < size {
		h.count++
		return
	}
	// Full: overwrite the oldest line.
	h.head = (h.head + 1) % size
}

// Lines returns the buffered lines, oldest first. An unterminated last line
// is included.
func (h *History) Lines() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, h.count+1)
	for i := 0; i < h.count; i++ {
		out = append(out, h.lines[(h.head+i)%len(h.lines)])
	}
	if len(h.partial) > 0 {
		out = append(out, string(h.partial))
	}
	return out
}

// Len is the number of complete lines held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Cap is the maximum number of complete lines held.
func (h *History) Cap() int {
	return len(h.lines)
}
