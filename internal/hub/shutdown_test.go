package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownDisposesEverything(t *testing.T) {
	h := New(DefaultConfig())
	a := register(t, h)
	b := register(t, h)
	require.NoError(t, h.JoinChannel(a.ID(), "room"))
	require.NoError(t, h.JoinChannel(b.ID(), "room"))

	h.mu.RLock()
	room := h.channels["room"]
	h.mu.RUnlock()

	require.NoError(t, h.Shutdown(context.Background()))

	assert.Equal(t, StateClosed, h.State())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.True(t, room.disposed)
	assert.Equal(t, 0, room.Len())

	stats := h.Stats()
	assert.Equal(t, 0, stats.Clients)
	assert.Empty(t, stats.Channels)
}

func TestShutdownIsIdempotent(t *testing.T) {
	h := New(DefaultConfig())
	register(t, h)

	require.NoError(t, h.Shutdown(context.Background()))
	assert.NoError(t, h.Shutdown(context.Background()))
	assert.Equal(t, StateClosed, h.State())
}

func TestConcurrentShutdownRunsOnce(t *testing.T) {
	h := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		c := register(t, h)
		require.NoError(t, h.JoinChannel(c.ID(), "room"))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Shutdown(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, StateClosed, h.State())
}

func TestOperationsAfterShutdownFail(t *testing.T) {
	h := New(DefaultConfig())
	c := register(t, h)
	require.NoError(t, h.JoinChannel(c.ID(), "room"))
	require.NoError(t, h.Shutdown(context.Background()))

	_, err := h.Register(ClientInfo{})
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.ErrorIs(t, h.Unregister(c.ID()), ErrHubClosed)
	assert.ErrorIs(t, h.JoinChannel(c.ID(), "room"), ErrHubClosed)
	assert.ErrorIs(t, h.LeaveChannel(c.ID(), "room"), ErrHubClosed)
	_, err = h.Publish("room", Message{Payload: []byte("x")})
	assert.ErrorIs(t, err, ErrHubClosed)
	_, err = h.ChannelMembers("room")
	assert.ErrorIs(t, err, ErrHubClosed)

	got, ok := h.GetClient(c.ID())
	assert.False(t, ok)
	assert.Nil(t, got)
}

// Draining waits for in-flight publishes, and gives up when ctx expires.
func TestShutdownAbandonsStuckPublishAfterTimeout(t *testing.T) {
	h := New(DefaultConfig())
	c := register(t, h)

	h.inflight.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := h.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateClosed, h.State())
	assert.True(t, c.Closed())

	h.inflight.Done()
}

func TestShutdownWaitsForInflightPublish(t *testing.T) {
	h := New(DefaultConfig())

	h.inflight.Add(1)
	released := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		close(released)
		h.inflight.Done()
	}()

	require.NoError(t, h.Shutdown(context.Background()))
	select {
	case <-released:
	default:
		t.Fatal("shutdown returned before the in-flight publish finished")
	}
}

func TestDrainingRejectsNewWork(t *testing.T) {
	h := New(DefaultConfig())
	c := register(t, h)
	require.NoError(t, h.JoinChannel(c.ID(), "room"))

	h.inflight.Add(1)
	done := make(chan error, 1)
	go func() { done <- h.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool { return h.State() == StateDraining }, time.Second, time.Millisecond)

	_, err := h.Register(ClientInfo{})
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.ErrorIs(t, h.JoinChannel(c.ID(), "other"), ErrHubClosed)
	_, err = h.Publish("room", Message{Payload: []byte("x"), Origin: uuid.New()})
	assert.ErrorIs(t, err, ErrHubClosed)

	h.inflight.Done()
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, h.State())
}
