// Package testutil provides testing utilities and helpers shared by package
// tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/protocol"
)

// MockRemoteClient is a mock implementation of the remote terminal client.
// Output is not mocked: tests push chunks with Emit and end streams with
// Finish.
type MockRemoteClient struct {
	mock.Mock

	mu      sync.Mutex
	streams map[uint64]chan protocol.OutputChunk
	inputs  map[uint64][][]byte
	closes  map[uint64]int
}

// OpenTerminal mocks the OpenTerminal method.
func (m *MockRemoteClient) OpenTerminal(ctx context.Context, req *protocol.OpenTerminalRequest) (*protocol.OpenTerminalResponse, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, *protocol.OpenTerminalRequest) *protocol.OpenTerminalResponse); ok {
		return fn(ctx, req), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*protocol.OpenTerminalResponse), args.Error(1)
}

// InputTerminal mocks the InputTerminal method and records the data.
func (m *MockRemoteClient) InputTerminal(ctx context.Context, req *protocol.InputTerminalRequest) error {
	args := m.Called(ctx, req)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inputs == nil {
		m.inputs = make(map[uint64][][]byte)
	}
	m.inputs[req.TerminalID] = append(m.inputs[req.TerminalID], append([]byte(nil), req.Data...))
	return nil
}

// CloseTerminal mocks the CloseTerminal method.
func (m *MockRemoteClient) CloseTerminal(ctx context.Context, req *protocol.CloseTerminalRequest) error {
	args := m.Called(ctx, req)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closes == nil {
		m.closes = make(map[uint64]int)
	}
	m.closes[req.TerminalID]++
	return args.Error(0)
}

// CloseCount is how many times a terminal was closed.
func (m *MockRemoteClient) CloseCount(terminalID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes[terminalID]
}

// SubscribeOutput returns the stream for the requested terminal.
func (m *MockRemoteClient) SubscribeOutput(ctx context.Context, req *protocol.OutputTerminalRequest) (<-chan protocol.OutputChunk, <-chan error) {
	src := m.stream(req.TerminalID)
	out := make(chan protocol.OutputChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case chunk, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()
	return out, errs
}

func (m *MockRemoteClient) stream(terminalID uint64) chan protocol.OutputChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streams == nil {
		m.streams = make(map[uint64]chan protocol.OutputChunk)
	}
	ch, ok := m.streams[terminalID]
	if !ok {
		ch = make(chan protocol.OutputChunk, 16)
		m.streams[terminalID] = ch
	}
	return ch
}

// Emit pushes an output chunk to the terminal's stream.
func (m *MockRemoteClient) Emit(terminalID uint64, chunk protocol.OutputChunk) {
	m.stream(terminalID) <- chunk
}

// Finish ends the terminal's output stream without an exit chunk.
func (m *MockRemoteClient) Finish(terminalID uint64) {
	close(m.stream(terminalID))
}

// Inputs returns the data forwarded to a terminal, in order.
func (m *MockRemoteClient) Inputs(terminalID uint64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.inputs[terminalID]...)
}

// NewMockRemoteClient creates a mock remote client whose calls succeed by
// default. OpenTerminal hands out ids starting at 1.
func NewMockRemoteClient(t *testing.T) *MockRemoteClient {
	t.Helper()
	m := new(MockRemoteClient)

	var mu sync.Mutex
	var next uint64
	m.On("OpenTerminal", mock.Anything, mock.Anything).
		Return(func(context.Context, *protocol.OpenTerminalRequest) *protocol.OpenTerminalResponse {
			mu.Lock()
			defer mu.Unlock()
			next++
			return &protocol.OpenTerminalResponse{TerminalID: next}
		}, nil).
		Maybe()

	m.On("InputTerminal", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("CloseTerminal", mock.Anything, mock.Anything).Return(nil).Maybe()

	return m
}
