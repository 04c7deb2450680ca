package hub

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelJoinIsIdempotentByDefault(t *testing.T) {
	ch := newChannel("room")
	c := newClient(ClientInfo{}, 1)

	require.NoError(t, ch.join(c, false))
	require.NoError(t, ch.join(c, false))

	assert.Equal(t, 1, ch.Len())
}

func TestChannelJoinRejectsDuplicate(t *testing.T) {
	ch := newChannel("room")
	c := newClient(ClientInfo{}, 1)

	require.NoError(t, ch.join(c, true))
	assert.ErrorIs(t, ch.join(c, true), ErrAlreadyMember)
	assert.Equal(t, 1, ch.Len())
}

func TestChannelLeave(t *testing.T) {
	ch := newChannel("room")
	a := newClient(ClientInfo{}, 1)
	b := newClient(ClientInfo{}, 1)
	require.NoError(t, ch.join(a, false))
	require.NoError(t, ch.join(b, false))

	remaining, err := ch.leave(a.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = ch.leave(a.ID())
	assert.ErrorIs(t, err, ErrNotMember)
	assert.Equal(t, 1, remaining)

	remaining, err = ch.leave(b.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestChannelDispose(t *testing.T) {
	ch := newChannel("room")
	c := newClient(ClientInfo{}, 1)
	require.NoError(t, ch.join(c, false))

	ch.dispose()
	assert.Equal(t, 0, ch.Len())
	assert.NotPanics(t, ch.dispose)

	assert.ErrorIs(t, ch.join(c, false), errChannelDisposed)
	assert.Empty(t, ch.snapshot())
}

func TestChannelDisposeWhenEmpty(t *testing.T) {
	ch := newChannel("room")
	assert.NotPanics(t, ch.dispose)
	assert.NotPanics(t, ch.dispose)
}

func TestChannelPublishSkipsOrigin(t *testing.T) {
	ch := newChannel("room")
	a := newClient(ClientInfo{}, 2)
	b := newClient(ClientInfo{}, 2)
	require.NoError(t, ch.join(a, false))
	require.NoError(t, ch.join(b, false))

	report := ch.publish(Message{Channel: "room", Payload: []byte("hi"), Origin: a.ID()}, false)
	assert.Equal(t, 1, report.Recipients)
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, a.outbox, 0)
	assert.Len(t, b.outbox, 1)

	report = ch.publish(Message{Channel: "room", Payload: []byte("echo"), Origin: a.ID()}, true)
	assert.Equal(t, 2, report.Recipients)
	assert.Equal(t, 2, report.Delivered)
	assert.Len(t, a.outbox, 1)
	assert.Len(t, b.outbox, 2)
}

// One full outbox must not stop delivery to the other members.
func TestChannelPublishIsolatesFullOutbox(t *testing.T) {
	ch := newChannel("room")
	slow := newClient(ClientInfo{}, 1)
	fast := newClient(ClientInfo{}, 4)
	gone := newClient(ClientInfo{}, 4)
	require.NoError(t, ch.join(slow, false))
	require.NoError(t, ch.join(fast, false))
	require.NoError(t, ch.join(gone, false))
	gone.Dispose()

	ch.publish(Message{Payload: []byte("m1")}, false)
	report := ch.publish(Message{Payload: []byte("m2")}, false)

	assert.Equal(t, 3, report.Recipients)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Failures, 2)
	assert.Len(t, fast.outbox, 2)

	byClient := map[uuid.UUID]error{}
	for _, f := range report.Failures {
		byClient[f.ClientID] = f.Err
	}
	assert.ErrorIs(t, byClient[slow.ID()], ErrBackpressureExceeded)
	assert.ErrorIs(t, byClient[gone.ID()], ErrClientClosed)
}

func TestValidateChannelName(t *testing.T) {
	assert.NoError(t, validateChannelName("room1"))
	assert.NoError(t, validateChannelName(strings.Repeat("a", MaxChannelNameLength)))
	assert.ErrorIs(t, validateChannelName(""), ErrInvalidChannel)
	assert.ErrorIs(t, validateChannelName(strings.Repeat("a", MaxChannelNameLength+1)), ErrInvalidChannel)
	assert.ErrorIs(t, validateChannelName("bad\xff"), ErrInvalidChannel)
}
