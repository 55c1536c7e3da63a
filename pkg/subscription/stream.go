package subscription

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Stream delivers values followed by a single terminal outcome.
// Producers call Push and Finish; consumers call Next, Done, Err or Collect.
type Stream[T any] struct {
	mu     sync.Mutex
	items  []T
	pushed int
	done   bool
	err    error
	wake   chan struct{}
	doneCh chan struct{}
}

// NewStream creates an open stream.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{
		wake:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Failed returns a stream that has already ended with err.
func Failed[T any](err error) *Stream[T] {
	s := NewStream[T]()
	s.Finish(err)
	return s
}

// Push appends v. It reports false if the stream has already finished.
func (s *Stream[T]) Push(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.items = append(s.items, v)
	s.pushed++
	s.broadcastLocked()
	return true
}

// Finish ends the stream. A nil err is success. Only the first call has an
// effect; it reports whether this call finished the stream.
func (s *Stream[T]) Finish(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	s.err = err
	close(s.doneCh)
	s.broadcastLocked()
	return true
}

func (s *Stream[T]) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

// Next returns the next value. After the last value it returns io.EOF if
// the stream succeeded, or the terminal error. It blocks until a value
// arrives, the stream finishes, or ctx is done.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			v := s.items[0]
			var zero T
			s.items[0] = zero
			s.items = s.items[1:]
			s.mu.Unlock()
			return v, nil
		}
		if s.done {
			err := s.err
			s.mu.Unlock()
			var zero T
			if err == nil {
				return zero, io.EOF
			}
			return zero, err
		}
		wake := s.wake
		s.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Done is closed when the stream finishes. Queued values may remain.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.doneCh
}

// Finished reports whether the stream has finished.
func (s *Stream[T]) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the terminal error, or nil while open or after success.
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Pushed returns the number of values pushed so far.
func (s *Stream[T]) Pushed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

// Collect drains the stream and returns every value with the terminal
// error (nil on success).
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}
