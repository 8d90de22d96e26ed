package terminal

import (
	"errors"
	"io"
)

// ErrClosed is returned for input to a terminal whose pty has closed.
var ErrClosed = errors.New("terminal closed")

// Pty is the byte stream behind a terminal. Read yields output and returns
// io.EOF once no more output will arrive; Write sends input.
type Pty interface {
	io.ReadWriteCloser
	Resize(cols, rows uint16) error
}
