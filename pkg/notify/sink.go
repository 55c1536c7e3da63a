package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/channelize/channelize-go/pkg/hub"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Config configures a Sink.
type Config struct {
	// Buffer is the per-subscriber channel capacity. Defaults to DefaultBuffer.
	Buffer int

	// Logger receives drop warnings. Defaults to slog.Default().
	Logger *slog.Logger

	// OnDrop is called for every value dropped because a subscriber was full.
	OnDrop func(event, tag string)
}

// Sink multicasts decoded notifications to buffered subscribers.
type Sink[T any] struct {
	events *hub.EventChannel[T]
	buffer int
	logger *slog.Logger
	onDrop func(event, tag string)

	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool

	dropped atomic.Uint64
}

// New creates a Sink for frames named event whose RequestFor equals tag.
func New[T any](r *hub.Router, event, tag string, decode func(hub.Frame) (T, error), cfg Config) *Sink[T] {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sink[T]{
		events: hub.NewEventChannel(r, event, tag, decode),
		buffer: cfg.Buffer,
		logger: cfg.Logger,
		onDrop: cfg.OnDrop,
		subs:   make(map[*Subscription[T]]struct{}),
	}
}

// Event returns the hub event name.
func (k *Sink[T]) Event() string { return k.events.Event() }

// Tag returns the notification tag.
func (k *Sink[T]) Tag() string { return k.events.Tag() }

// Subscribe returns a new subscription. On a closed sink the subscription's
// channel is already closed.
func (k *Sink[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{sink: k, ch: make(chan T, k.buffer)}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	k.subs[s] = struct{}{}
	s.cancel = k.events.Subscribe(s.deliver)
	return s
}

// Subscribers returns the number of open subscriptions.
func (k *Sink[T]) Subscribers() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.subs)
}

// Delivered returns the number of notifications decoded and fanned out.
func (k *Sink[T]) Delivered() uint64 { return k.events.Delivered() }

// DecodeErrors returns the number of notifications that failed to decode.
func (k *Sink[T]) DecodeErrors() uint64 { return k.events.DecodeErrors() }

// Dropped returns the number of values dropped across all subscribers.
func (k *Sink[T]) Dropped() uint64 { return k.dropped.Load() }

// Close detaches the sink from the router and closes every subscription.
func (k *Sink[T]) Close() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	subs := k.subs
	k.subs = nil
	k.mu.Unlock()

	k.events.Close()
	for s := range subs {
		s.shut()
	}
}

func (k *Sink[T]) remove(s *Subscription[T]) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.subs, s)
}

func (k *Sink[T]) drop() {
	k.dropped.Add(1)
	if k.onDrop != nil {
		k.onDrop(k.Event(), k.Tag())
	}
}

// Subscription is one consumer of a Sink.
type Subscription[T any] struct {
	sink   *Sink[T]
	cancel func()

	mu      sync.Mutex
	ch      chan T
	closed  bool
	dropped atomic.Uint64
}

// C returns the notification channel. It is closed by Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped returns the number of values this subscriber missed.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription[T]) deliver(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- v:
	default:
		n := s.dropped.Add(1)
		s.sink.drop()
		if n == 1 || n%100 == 0 {
			s.sink.logger.Warn("notify: subscriber full, dropping",
				"event", s.sink.Event(),
				"tag", s.sink.Tag(),
				"dropped", n)
		}
	}
}

// Close stops delivery and closes the channel. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.sink.remove(s)
	s.shut()
}

func (s *Subscription[T]) shut() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
