package subscription

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDeliversInOrderThenEOF(t *testing.T) {
	s := NewStream[int]()
	s.Push(1)
	s.Push(2)
	assert.True(t, s.Finish(nil))
	assert.False(t, s.Push(3))

	got, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	_, err = s.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, s.Pushed())
}

func TestStreamTerminalError(t *testing.T) {
	boom := errors.New("boom")
	s := NewStream[string]()
	s.Push("a")
	s.Finish(boom)
	assert.False(t, s.Finish(nil))

	v, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Err(), boom)
}

func TestFailedStream(t *testing.T) {
	boom := errors.New("invalid")
	s := Failed[int](boom)
	assert.True(t, s.Finished())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed")
	}
	_, err := s.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestStreamNextBlocksUntilPush(t *testing.T) {
	s := NewStream[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Push(42)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestStreamNextHonorsContext(t *testing.T) {
	s := NewStream[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Finished())
}

func TestStreamConcurrentProducers(t *testing.T) {
	s := NewStream[int]()
	const n = 100
	for i := 0; i < n; i++ {
		go s.Push(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	seen := 0
	for seen < n {
		_, err := s.Next(ctx)
		require.NoError(t, err)
		seen++
	}
	s.Finish(nil)
	_, err := s.Next(ctx)
	assert.Equal(t, io.EOF, err)
}
