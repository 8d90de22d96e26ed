package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/task"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/testutil"
)

func newRemoteProject(t *testing.T, client RemoteClient, projectID uint64) *Project {
	t.Helper()
	p := New(Options{ID: projectID, Remote: client, CallTimeout: time.Second})
	t.Cleanup(p.Close)
	return p
}

func TestRemoteWithoutIDFails(t *testing.T) {
	client := testutil.NewMockRemoteClient(t)
	p := newRemoteProject(t, client, 0)

	h, err := p.CreateTerminal(context.Background(), CreateRequest{})

	assert.ErrorIs(t, err, ErrMissingRemoteID)
	assert.Nil(t, h)
	assert.Empty(t, p.Registry().RemoteIDs())
	client.AssertNotCalled(t, "OpenTerminal", mock.Anything, mock.Anything)
}

func TestRemoteForwardsInputInOrder(t *testing.T) {
	client := testutil.NewMockRemoteClient(t)
	p := newRemoteProject(t, client, 42)

	h, err := p.CreateTerminal(context.Background(), CreateRequest{WorkingDirectory: "/srv/app"})
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, []uint64{1}, p.Registry().RemoteIDs())
	assert.Equal(t, terminal.LocationRemote, h.Terminal().Location())

	for _, in := range []string{"ls\n", "cd src\n", "pwd\n"} {
		require.NoError(t, h.Terminal().InputBytes([]byte(in)))
	}

	assert.Eventually(t, func() bool { return len(client.Inputs(1)) == 3 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, [][]byte{[]byte("ls\n"), []byte("cd src\n"), []byte("pwd\n")}, client.Inputs(1))

	client.AssertCalled(t, "OpenTerminal", mock.Anything, mock.MatchedBy(func(req *protocol.OpenTerminalRequest) bool {
		return req.ProjectID == 42 && req.WorkingDirectory == "/srv/app"
	}))
	client.AssertCalled(t, "InputTerminal", mock.Anything, mock.MatchedBy(func(req *protocol.InputTerminalRequest) bool {
		return req.ProjectID == 42 && req.TerminalID == 1
	}))
}

func TestRemoteOutputAndExit(t *testing.T) {
	client := testutil.NewMockRemoteClient(t)
	p := newRemoteProject(t, client, 7)

	h, err := p.CreateTerminal(context.Background(), CreateRequest{
		Task: &task.SpawnInTerminal{ID: "t", Label: "test", Command: "make", Args: []string{"test"}},
	})
	require.NoError(t, err)
	defer h.Release()

	client.Emit(1, protocol.OutputChunk{Data: []byte("ok 1\nok 2\n")})
	client.Emit(1, protocol.OutputChunk{Exited: true, HasExitCode: true, ExitCode: 0})

	term := h.Terminal()
	select {
	case <-term.Done():
	case <-time.After(waitFor):
		t.Fatal("remote output never ended")
	}
	select {
	case <-term.Exited():
	case <-time.After(waitFor):
		t.Fatal("remote task never completed")
	}

	assert.Equal(t, []string{"ok 1", "ok 2"}, term.History().Lines())
	status, success := term.Task().Status()
	assert.Equal(t, task.Completed, status)
	assert.True(t, success)
	assert.False(t, p.Registry().HasRemote(1), "stream end removes the remote entry")
}

func TestRemoteForwardFailureBreaks(t *testing.T) {
	client := new(testutil.MockRemoteClient)
	client.On("OpenTerminal", mock.Anything, mock.Anything).Return(&protocol.OpenTerminalResponse{TerminalID: 3}, nil)
	client.On("InputTerminal", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	client.On("CloseTerminal", mock.Anything, mock.Anything).Return(nil).Maybe()

	p := newRemoteProject(t, client, 9)
	h, err := p.CreateTerminal(context.Background(), CreateRequest{})
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, h.Terminal().InputBytes([]byte("first\n")))

	assert.Eventually(t, func() bool { return !p.Registry().HasRemote(3) }, waitFor, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return errors.Is(h.Terminal().InputBytes([]byte("second\n")), terminal.ErrClosed)
	}, waitFor, 10*time.Millisecond)

	client.AssertNumberOfCalls(t, "InputTerminal", 1)

	term := h.Terminal()
	select {
	case <-term.Exited():
	case <-time.After(waitFor):
		t.Fatal("broken remote terminal never exited")
	}
	assert.True(t, term.Closed())
	assert.False(t, term.Info().Active)
	assert.Empty(t, p.Terminals())
	assert.Eventually(t, func() bool { return client.CloseCount(3) == 1 }, waitFor, 10*time.Millisecond)

	h.Release()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, client.CloseCount(3), "host is told to close once")
}

func TestRemoteReleaseClosesHostTerminal(t *testing.T) {
	client := testutil.NewMockRemoteClient(t)
	p := newRemoteProject(t, client, 5)

	h, err := p.CreateTerminal(context.Background(), CreateRequest{})
	require.NoError(t, err)
	assert.Len(t, p.Terminals(), 1)

	h.Release()
	h.Release()

	assert.False(t, p.Registry().HasRemote(1))
	assert.Empty(t, p.Terminals())
	assert.Eventually(t, func() bool { return client.CloseCount(1) == 1 }, waitFor, 10*time.Millisecond)
}

func TestRemoteDuplicateID(t *testing.T) {
	client := new(testutil.MockRemoteClient)
	client.On("OpenTerminal", mock.Anything, mock.Anything).Return(&protocol.OpenTerminalResponse{TerminalID: 11}, nil)
	client.On("CloseTerminal", mock.Anything, mock.Anything).Return(nil)

	p := newRemoteProject(t, client, 1)
	first, err := p.CreateTerminal(context.Background(), CreateRequest{})
	require.NoError(t, err)
	defer first.Release()

	_, err = p.CreateTerminal(context.Background(), CreateRequest{})
	assert.ErrorIs(t, err, registry.ErrDuplicateRemote)
	client.AssertCalled(t, "CloseTerminal", mock.Anything, mock.MatchedBy(func(req *protocol.CloseTerminalRequest) bool {
		return req.TerminalID == 11
	}))
	assert.True(t, p.Registry().HasRemote(11), "the first terminal keeps its entry")
}

func TestRemoteOpenFailure(t *testing.T) {
	client := new(testutil.MockRemoteClient)
	client.On("OpenTerminal", mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))

	p := newRemoteProject(t, client, 1)
	_, err := p.CreateTerminal(context.Background(), CreateRequest{})

	assert.Error(t, err)
	assert.Empty(t, p.Registry().RemoteIDs())
}
