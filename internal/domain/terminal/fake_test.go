package terminal

import (
	"io"
	"sync"
)

// fakePty replays output chunks and records input.
type fakePty struct {
	out chan []byte

	mu      sync.Mutex
	input   [][]byte
	closed  bool
	resized [2]uint16
	pending []byte
}

func newFakePty() *fakePty {
	return &fakePty{out: make(chan []byte, 16)}
}

func (f *fakePty) Read(b []byte) (int, error) {
	if len(f.pending) == 0 {
		data, ok := <-f.out
		if !ok {
			return 0, io.EOF
		}
		f.pending = data
	}
	n := copy(b, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakePty) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}
	f.input = append(f.input, append([]byte(nil), b...))
	return len(b), nil
}

func (f *fakePty) Resize(cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resized = [2]uint16{cols, rows}
	return nil
}

func (f *fakePty) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.out)
	}
	return nil
}

func (f *fakePty) inputs() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.input...)
}

func (f *fakePty) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// recordingDisplay collects everything sent to it.
type recordingDisplay struct {
	nopDisplay
	mu   sync.Mutex
	data []byte
}

func (d *recordingDisplay) Send(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = append(d.data, b...)
}

func (d *recordingDisplay) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.data)
}
