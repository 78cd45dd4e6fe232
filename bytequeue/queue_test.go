package bytequeue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrdering(t *testing.T) {
	q := New()
	require.NoError(t, q.Put([]byte("a")))
	require.NoError(t, q.Put([]byte("b")))
	q.End()

	ctx := context.Background()
	first, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), first)

	second, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), second)

	eof, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, eof)
}

func TestQueueGetBlocksUntilPut(t *testing.T) {
	q := New()
	done := make(chan []byte, 1)
	go func() {
		chunk, err := q.Get(context.Background())
		require.NoError(t, err)
		done <- chunk
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Put([]byte("late")))

	select {
	case chunk := <-done:
		assert.Equal(t, []byte("late"), chunk)
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Put")
	}
}

func TestQueuePutAfterEndFails(t *testing.T) {
	q := New()
	q.End()
	assert.ErrorIs(t, q.Put([]byte("x")), ErrClosed)
}

func TestQueueClearResetsForReuse(t *testing.T) {
	q := New()
	require.NoError(t, q.Put([]byte("a")))
	q.End()
	q.Clear()

	require.NoError(t, q.Put([]byte("b")))
	chunk, err := q.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), chunk)
}

func TestQueueGetRespectsContextCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
