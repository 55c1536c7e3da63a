package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// EventChannel is a typed multicast stream over one event name and
// optional RequestFor tag. Each frame is decoded once; every subscriber
// receives the same value.
type EventChannel[T any] struct {
	event  string
	tag    string
	decode func(Frame) (T, error)
	logger *slog.Logger

	mu     sync.RWMutex
	subs   []*subscriber[T]
	nextID uint64
	cancel func()
	closed bool

	delivered    atomic.Uint64
	decodeErrors atomic.Uint64
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// NewEventChannel taps the router for event, filtered by tag when tag is
// non-empty, and decodes frames with decode.
func NewEventChannel[T any](r *Router, event, tag string, decode func(Frame) (T, error)) *EventChannel[T] {
	c := &EventChannel[T]{
		event:  event,
		tag:    tag,
		decode: decode,
		logger: r.logger,
	}
	c.cancel = r.Listen(event, tag, c.handle)
	return c
}

// Event returns the hub event name.
func (c *EventChannel[T]) Event() string { return c.event }

// Tag returns the RequestFor filter, empty if unfiltered.
func (c *EventChannel[T]) Tag() string { return c.tag }

func (c *EventChannel[T]) handle(f Frame) {
	c.mu.RLock()
	subs := c.subs
	c.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	v, err := c.decode(f)
	if err != nil {
		c.decodeErrors.Add(1)
		c.logger.Warn("hub: failed to decode frame",
			"event", f.Event,
			"request_for", f.Header.RequestFor,
			"error", err)
		return
	}

	for _, s := range subs {
		s.fn(v)
	}
	c.delivered.Add(1)
}

// Subscribe registers fn to receive every decoded value. fn runs on the
// dispatching goroutine and must not block. The returned function
// unsubscribes.
func (c *EventChannel[T]) Subscribe(fn func(T)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return func() {}
	}

	c.nextID++
	s := &subscriber[T]{id: c.nextID, fn: fn}
	subs := make([]*subscriber[T], len(c.subs), len(c.subs)+1)
	copy(subs, c.subs)
	c.subs = append(subs, s)

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(s.id) })
	}
}

func (c *EventChannel[T]) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]*subscriber[T], 0, len(c.subs))
	for _, s := range c.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	c.subs = subs
}

// Subscribers returns the current subscriber count.
func (c *EventChannel[T]) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Delivered returns the number of frames decoded and delivered.
func (c *EventChannel[T]) Delivered() uint64 { return c.delivered.Load() }

// DecodeErrors returns the number of frames dropped because decoding failed.
func (c *EventChannel[T]) DecodeErrors() uint64 { return c.decodeErrors.Load() }

// Close detaches the channel from the router and drops all subscribers.
func (c *EventChannel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.subs = nil
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
}
