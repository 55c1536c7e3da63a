package subscription

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Context errors.
var (
	ErrNoKeys        = errors.New("multi-reply context requires at least one key")
	ErrDuplicateKey  = errors.New("duplicate requested key")
	ErrUnexpectedKey = errors.New("reply for key not requested")
	ErrTerminated    = errors.New("context already terminated")
)

// Reply is one reply delivered on a context's stream.
type Reply[R any] struct {
	// Key is the correlation key. Empty for single-reply contexts unless
	// the frame carried one.
	Key string

	// Value is the decoded reply.
	Value R
}

// singleSlot is the implicit key of a single-reply context.
const singleSlot = ""

// Context tracks one outstanding request.
type Context[R any] struct {
	id      string
	keys    []string
	keySet  map[string]struct{}
	single  bool
	created time.Time

	mu         sync.Mutex
	replies    map[string]R
	terminated bool

	stream *Stream[Reply[R]]
}

// NewSingle creates a single-reply context.
func NewSingle[R any](id string) *Context[R] {
	return &Context[R]{
		id:      id,
		single:  true,
		created: time.Now(),
		replies: make(map[string]R, 1),
		stream:  NewStream[Reply[R]](),
	}
}

// NewMulti creates a multi-reply context expecting one reply per key.
func NewMulti[R any](id string, keys []string) (*Context[R], error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := set[k]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, k)
		}
		set[k] = struct{}{}
	}
	return &Context[R]{
		id:      id,
		keys:    append([]string(nil), keys...),
		keySet:  set,
		created: time.Now(),
		replies: make(map[string]R, len(keys)),
		stream:  NewStream[Reply[R]](),
	}, nil
}

// ID returns the context identifier.
func (c *Context[R]) ID() string { return c.id }

// IsSingle reports whether this is a single-reply context.
func (c *Context[R]) IsSingle() bool { return c.single }

// Created returns the creation time.
func (c *Context[R]) Created() time.Time { return c.created }

// RequestedKeys returns a copy of the requested keys. Nil for single-reply.
func (c *Context[R]) RequestedKeys() []string {
	if c.single {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Expects reports whether a reply for key would be accepted.
func (c *Context[R]) Expects(key string) bool {
	if c.single {
		return true
	}
	_, ok := c.keySet[key]
	return ok
}

// Stream returns the output stream.
func (c *Context[R]) Stream() *Stream[Reply[R]] { return c.stream }

// SetReply records a reply and pushes it to the stream. The first reply for
// a key is kept; later ones are still pushed. When the context becomes
// complete the stream finishes successfully and complete is true.
func (c *Context[R]) SetReply(key string, v R) (complete bool, err error) {
	if !c.Expects(key) {
		return false, fmt.Errorf("%w: %q", ErrUnexpectedKey, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated {
		return c.completeLocked(), ErrTerminated
	}

	slot := key
	if c.single {
		slot = singleSlot
	}
	if _, seen := c.replies[slot]; !seen {
		c.replies[slot] = v
	}
	c.stream.Push(Reply[R]{Key: key, Value: v})

	if c.completeLocked() {
		c.terminated = true
		c.stream.Finish(nil)
		return true, nil
	}
	return false, nil
}

// Fail terminates the context with err. It reports false if the context
// had already terminated.
func (c *Context[R]) Fail(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return false
	}
	c.terminated = true
	return c.stream.Finish(err)
}

// IsComplete reports whether every expected reply has been recorded.
func (c *Context[R]) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completeLocked()
}

func (c *Context[R]) completeLocked() bool {
	if c.single {
		return len(c.replies) == 1
	}
	return len(c.replies) == len(c.keys)
}

// Terminated reports whether the context completed or failed.
func (c *Context[R]) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Received returns the number of distinct keys with a reply.
func (c *Context[R]) Received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.replies)
}

// Missing returns the requested keys that have no reply yet, in request order.
func (c *Context[R]) Missing() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.single {
		if len(c.replies) == 0 {
			return []string{singleSlot}
		}
		return nil
	}
	var out []string
	for _, k := range c.keys {
		if _, ok := c.replies[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Replies returns a copy of the recorded replies.
func (c *Context[R]) Replies() map[string]R {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]R, len(c.replies))
	for k, v := range c.replies {
		out[k] = v
	}
	return out
}
