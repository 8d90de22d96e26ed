// Package id provides centralized ID generation for the terminal service.
//
// IDs are prefixed ULIDs:
//   - Lexicographic sortability: terminals list in creation order
//   - Prefixed types: term_*, req_*, win_* are readable in logs
//   - Type safety: separate types prevent passing a window ID as a terminal ID
//
// Remote terminals additionally carry a numeric id assigned by the host; see
// Sequence.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// TerminalID identifies a terminal session
type TerminalID string

// RequestID identifies an API request or trace span
type RequestID string

// WindowID identifies the display surface a terminal renders into
type WindowID string

const (
	TerminalPrefix = "term"
	RequestPrefix  = "req"
	WindowPrefix   = "win"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewTerminalID generates a new terminal ID
func NewTerminalID() TerminalID {
	return TerminalID(Default().GenerateWithPrefix(TerminalPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewWindowID generates a new window ID
func NewWindowID() WindowID {
	return WindowID(Default().GenerateWithPrefix(WindowPrefix))
}

func (id TerminalID) String() string { return string(id) }
func (id RequestID) String() string  { return string(id) }
func (id WindowID) String() string   { return string(id) }

// Parse splits a prefixed ID and parses its ULID part.
func Parse(prefixed string) (string, ulid.ULID, error) {
	prefix, raw, ok := strings.Cut(prefixed, "_")
	if !ok {
		return "", ulid.ULID{}, fmt.Errorf("missing prefix in %q", prefixed)
	}
	u, err := ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("invalid id %q: %w", prefixed, err)
	}
	return prefix, u, nil
}

// IsTerminalID reports whether s is a well-formed terminal ID.
func IsTerminalID(s string) bool {
	prefix, _, err := Parse(s)
	return err == nil && prefix == TerminalPrefix
}

// Timestamp extracts the creation time from a prefixed ID
func Timestamp(prefixed string) (time.Time, error) {
	_, u, err := Parse(prefixed)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

// Sequence hands out numeric ids for remote terminals. Zero is never issued,
// so it can mean "unassigned" on the wire.
type Sequence struct {
	next atomic.Uint64
}

// Next returns the next id, starting at 1.
func (s *Sequence) Next() uint64 {
	return s.next.Add(1)
}
