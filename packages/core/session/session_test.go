package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch(t *testing.T) {
	l := NewLatch()
	assert.Equal(t, 1, l.Count())

	require.True(t, l.TryAdd())
	assert.Equal(t, 2, l.Count())

	l.Signal()
	l.Signal()
	assert.Equal(t, 0, l.Count())
	assert.NoError(t, l.Wait(context.Background()))

	assert.False(t, l.TryAdd(), "a drained latch accepts nothing")
	l.Signal()
	assert.Equal(t, 0, l.Count())
}

func TestLatch_WaitHonoursContext(t *testing.T) {
	l := NewLatch()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestManager_CloseBlocksUntilRequestsFinish(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Create("s1"))

	done, err := m.Begin("s1")
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() {
		closed <- m.Close(context.Background(), "s1")
	}()

	select {
	case <-closed:
		t.Fatal("close returned while a request was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = m.Begin("s1")
	assert.EqualError(t, err, "attempt to execute request against unknown session UID s1")

	done()
	done()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("close did not return after the request finished")
	}
	assert.False(t, m.Open("s1"))
}

func TestManager_Errors(t *testing.T) {
	m := NewManager()

	assert.EqualError(t, m.Close(context.Background(), "nope"), "attempt to close unknown session UID nope")

	_, err := m.Begin("nope")
	assert.EqualError(t, err, "attempt to execute request against unknown session UID nope")

	require.NoError(t, m.Create("s"))
	assert.EqualError(t, m.Create("s"), "attempted to reuse session UID s already in progress")
	assert.True(t, m.Open("s"))

	require.NoError(t, m.Close(context.Background(), "s"))
	assert.NoError(t, m.Create("s"), "a closed id may be reused")
}
