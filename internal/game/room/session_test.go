package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxPush(t *testing.T) {
	o := NewOutbox("p1", 4)
	require.NoError(t, o.Push([]byte("hello")))

	data := <-o.Messages()
	assert.Equal(t, []byte("hello"), data)
}

func TestOutboxPushClosed(t *testing.T) {
	o := NewOutbox("p1", 4)
	require.NoError(t, o.Close())
	assert.True(t, o.IsClosed())
	assert.Error(t, o.Push([]byte("fail")))
}

func TestOutboxPushFull(t *testing.T) {
	o := NewOutbox("p1", 1)
	require.NoError(t, o.Push([]byte("first")))
	err := o.Push([]byte("overflow"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "buffer full")
}

func TestOutboxCloseIdempotent(t *testing.T) {
	o := NewOutbox("p1", 4)
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.True(t, o.IsClosed())
}

func TestSessionAttachDetach(t *testing.T) {
	now := time.Now()
	sess := &PlayerSession{PlayerID: "p1"}
	assert.False(t, sess.Connected())

	first := NewOutbox("p1", 4)
	sess.attach(first, now)
	assert.True(t, sess.Connected())
	assert.Equal(t, StatusConnected, sess.Status)

	// Reattaching closes the previous outbox.
	second := NewOutbox("p1", 4)
	sess.attach(second, now)
	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())

	sess.detach(now)
	assert.Equal(t, StatusPending, sess.Status)
	assert.False(t, sess.Connected())
	assert.True(t, second.IsClosed())
	assert.Equal(t, now, sess.DisconnectedAt)
}

func TestSessionSendWhenDisconnected(t *testing.T) {
	sess := &PlayerSession{PlayerID: "p1"}
	assert.Error(t, sess.send([]byte("data")))
}
