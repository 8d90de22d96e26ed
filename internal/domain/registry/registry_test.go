package registry

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/settings"
	"github.com/GriffinCanCode/AgentOS/terminals/internal/domain/terminal"
)

// eofPty is a pty with no output that accepts and discards input.
type eofPty struct{}

func (eofPty) Read([]byte) (int, error)    { return 0, io.EOF }
func (eofPty) Write(b []byte) (int, error) { return len(b), nil }
func (eofPty) Resize(uint16, uint16) error { return nil }
func (eofPty) Close() error                { return nil }

func newTerminal(t *testing.T) *terminal.Terminal {
	t.Helper()
	spec := terminal.BuildSpec(terminal.BuildInput{Settings: settings.Default()})
	return terminal.New(spec, eofPty{}, terminal.Options{})
}

func TestInsertAndRemoveLocal(t *testing.T) {
	r := New()
	a, b := newTerminal(t), newTerminal(t)

	ka := r.InsertLocal(a)
	kb := r.InsertLocal(b)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []*terminal.Terminal{a, b}, r.Local())

	got, ok := r.GetLocal(ka)
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, r.RemoveLocal(ka))
	assert.False(t, r.RemoveLocal(ka), "removal is idempotent")
	assert.Equal(t, []*terminal.Terminal{b}, r.Local())

	assert.True(t, r.RemoveLocal(kb))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Local())
}

func TestStaleKeyDoesNotRemoveReusedSlot(t *testing.T) {
	r := New()
	first := r.InsertLocal(newTerminal(t))
	require.True(t, r.RemoveLocal(first))

	second := newTerminal(t)
	reused := r.InsertLocal(second)
	assert.Equal(t, first.Index, reused.Index)
	assert.NotEqual(t, first.Generation, reused.Generation)

	assert.False(t, r.RemoveLocal(first))
	assert.Equal(t, []*terminal.Terminal{second}, r.Local())

	_, ok := r.GetLocal(first)
	assert.False(t, ok)
}

func TestInvalidKey(t *testing.T) {
	r := New()
	assert.False(t, r.RemoveLocal(Key{Index: 5, Generation: 1}))
	assert.False(t, r.RemoveLocal(Key{Index: -1}))
}

func TestCreateReleaseSequences(t *testing.T) {
	r := New()
	handles := make([]*terminal.Handle, 0, 4)
	for i := 0; i < 4; i++ {
		term := newTerminal(t)
		key := r.InsertLocal(term)
		h := terminal.NewHandle(term)
		h.OnRelease(func(*terminal.Terminal) { r.RemoveLocal(key) })
		handles = append(handles, h)
	}
	assert.Equal(t, 4, r.Len())

	handles[1].Release()
	handles[3].Release()
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []*terminal.Terminal{handles[0].Terminal(), handles[2].Terminal()}, r.Local())

	handles[0].Release()
	handles[0].Release()
	handles[2].Release()
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentDoubleRelease(t *testing.T) {
	r := New()
	const n = 50

	handles := make([]*terminal.Handle, 0, n)
	for i := 0; i < n; i++ {
		term := newTerminal(t)
		key := r.InsertLocal(term)
		h := terminal.NewHandle(term)
		h.OnRelease(func(*terminal.Terminal) { r.RemoveLocal(key) })
		handles = append(handles, h, h.Clone())
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(h *terminal.Handle) {
				defer wg.Done()
				h.Release()
			}(h)
		}
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Local())

	// Slots were all freed exactly once, so they are reused without growth.
	for i := 0; i < n; i++ {
		r.InsertLocal(newTerminal(t))
	}
	assert.Equal(t, n, r.Len())
	assert.Len(t, r.slots, n)
}

func TestRemoteLifecycle(t *testing.T) {
	r := New()
	ch, err := r.InsertRemote(7)
	require.NoError(t, err)
	assert.True(t, r.HasRemote(7))

	_, err = r.InsertRemote(7)
	assert.ErrorIs(t, err, ErrDuplicateRemote)

	ctx := context.Background()
	require.NoError(t, r.DeliverRemote(ctx, 7, []byte("a")))
	require.NoError(t, r.DeliverRemote(ctx, 7, []byte("b")))
	assert.Equal(t, []byte("a"), <-ch)
	assert.Equal(t, []byte("b"), <-ch)

	assert.ErrorIs(t, r.DeliverRemote(ctx, 8, []byte("x")), ErrUnknownRemote)

	assert.True(t, r.RemoveRemote(7))
	assert.False(t, r.RemoveRemote(7))
	_, ok := <-ch
	assert.False(t, ok, "removal closes the channel")
	assert.ErrorIs(t, r.DeliverRemote(ctx, 7, []byte("late")), ErrUnknownRemote)
}

func TestRemoveRemoteUnblocksDelivery(t *testing.T) {
	r := New()
	_, err := r.InsertRemote(1)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < RemoteBuffer; i++ {
		require.NoError(t, r.DeliverRemote(ctx, 1, []byte{byte(i)}))
	}

	errs := make(chan error, 1)
	go func() { errs <- r.DeliverRemote(ctx, 1, []byte("blocked")) }()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, r.RemoveRemote(1))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrUnknownRemote)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked delivery was not released")
	}
}

func TestDeliverRemoteHonorsContext(t *testing.T) {
	r := New()
	_, err := r.InsertRemote(1)
	require.NoError(t, err)
	for i := 0; i < RemoteBuffer; i++ {
		require.NoError(t, r.DeliverRemote(context.Background(), 1, nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.DeliverRemote(ctx, 1, nil), context.DeadlineExceeded)
}

func TestRemoteIDsAndClose(t *testing.T) {
	r := New()
	for _, remoteID := range []uint64{3, 1, 2} {
		_, err := r.InsertRemote(remoteID)
		require.NoError(t, err)
	}
	local := r.InsertLocal(newTerminal(t))
	assert.Equal(t, []uint64{1, 2, 3}, r.RemoteIDs())

	r.Close()
	assert.Empty(t, r.RemoteIDs())
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.RemoveLocal(local))

	_, err := r.InsertRemote(4)
	assert.ErrorIs(t, err, ErrClosed)
}
