package queue

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arach/transcribe-dispatch/internal/protocol"
)

func chunkID(c protocol.AudioChunk) uuid.UUID { return c.ID }

func newChunk() protocol.AudioChunk {
	return protocol.AudioChunk{ID: uuid.New(), Samples: []float32{0, 0.1}, SampleRate: 16000, Channels: 1}
}

func TestBoltQueueFIFOOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenDurable(path, chunkID, 0)
	require.NoError(t, err)
	defer q.Close()

	c1, c2, c3 := newChunk(), newChunk(), newChunk()
	require.NoError(t, q.Push(c1))
	require.NoError(t, q.Push(c2))
	require.NoError(t, q.Push(c3))

	got1, ok, err := q.Pop()
	require.NoError(t, err)
	require.True(t, ok)
	got2, _, _ := q.Pop()
	got3, _, _ := q.Pop()

	assert.Equal(t, c1.ID, got1.ID)
	assert.Equal(t, c2.ID, got2.ID)
	assert.Equal(t, c3.ID, got3.ID)
}

func TestBoltQueuePopEmptyReturnsNotOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenDurable(path, chunkID, 0)
	require.NoError(t, err)
	defer q.Close()

	_, ok, err := q.Pop()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltQueueGetAndRemoveByID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenDurable(path, chunkID, 0)
	require.NoError(t, err)
	defer q.Close()

	c := newChunk()
	require.NoError(t, q.Push(c))

	got, ok := q.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)

	assert.True(t, q.Remove(c.ID))
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Remove(c.ID))
}

func TestBoltQueueDurabilityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenDurable(path, chunkID, 0)
	require.NoError(t, err)

	c1, c2 := newChunk(), newChunk()
	require.NoError(t, q.Push(c1))
	require.NoError(t, q.Push(c2))
	require.NoError(t, q.Close())

	reopened, err := OpenDurable(path, chunkID, 0)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	got1, _, _ := reopened.Pop()
	got2, _, _ := reopened.Pop()
	assert.Equal(t, c1.ID, got1.ID)
	assert.Equal(t, c2.ID, got2.ID)
}

func TestBoltQueuePushFullWhenAtCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenDurable(path, chunkID, 1)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Push(newChunk()))
	err = q.Push(newChunk())
	assert.ErrorIs(t, err, ErrFull)
}

func TestWireQueueFIFOAndCapacity(t *testing.T) {
	q := NewWire(chunkID, 2)
	c1, c2 := newChunk(), newChunk()

	require.NoError(t, q.Push(c1))
	require.NoError(t, q.Push(c2))
	assert.ErrorIs(t, q.Push(newChunk()), ErrFull)

	got, ok, err := q.Pop()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c1.ID, got.ID)
}

func TestWireQueuePopWaitTimesOutWhenEmpty(t *testing.T) {
	q := NewWire(chunkID, 0)
	ctx := context.Background()

	_, ok, err := q.PopWait(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWireQueuePopWaitReturnsWhenItemArrives(t *testing.T) {
	q := NewWire(chunkID, 0)
	c := newChunk()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Push(c)
	}()

	got, ok, err := q.PopWait(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)
}

func TestWireQueueClosedRejectsPush(t *testing.T) {
	q := NewWire(chunkID, 0)
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Push(newChunk()), ErrClosed)
}

func TestWirePushPullRoundTripOverTCP(t *testing.T) {
	q := NewWire(chunkID, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pushAddr := ln.Addr().String()
	ln.Close()

	go func() { _ = q.ServePush(ctx, pushAddr, nil) }()
	time.Sleep(20 * time.Millisecond)

	pusher, err := DialPush[protocol.AudioChunk](pushAddr)
	require.NoError(t, err)
	defer pusher.Close()

	c := newChunk()
	require.NoError(t, pusher.Push(c))

	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, 10*time.Millisecond)

	got, ok, err := q.Pop()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)
}

func TestWirePushRoutesThroughOnItemHook(t *testing.T) {
	q := NewWire(chunkID, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pushAddr := ln.Addr().String()
	ln.Close()

	var hooked protocol.AudioChunk
	done := make(chan struct{})
	go func() {
		_ = q.ServePush(ctx, pushAddr, func(item protocol.AudioChunk) error {
			hooked = item
			close(done)
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	pusher, err := DialPush[protocol.AudioChunk](pushAddr)
	require.NoError(t, err)
	defer pusher.Close()

	c := newChunk()
	require.NoError(t, pusher.Push(c))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onItem hook was not invoked")
	}

	assert.Equal(t, c.ID, hooked.ID)
	assert.Equal(t, 0, q.Len(), "hook replaces the default push, not adds to it")
}
