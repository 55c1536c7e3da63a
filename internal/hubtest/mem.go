// Package hubtest provides in-memory and HTTP fakes of the channelize
// backend for tests and local development.
package hubtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/channelize/channelize-go/pkg/connection"
	"github.com/channelize/channelize-go/pkg/wire"
)

// ErrTransportClosed is returned by MemTransport after Close or Drop.
var ErrTransportClosed = errors.New("transport closed")

// MemDialer hands out MemTransports. Dial failures and blocking can be
// scripted.
type MemDialer struct {
	mu       sync.Mutex
	codec    wire.Codec
	dials    int
	nextID   int
	failErr  error
	failN    int
	gate     chan struct{}
	current  *MemTransport
	dialed   chan *MemTransport
	attempts chan struct{}
}

// NewMemDialer creates a dialer producing transports that use codec.
// A nil codec selects wire.JSON.
func NewMemDialer(codec wire.Codec) *MemDialer {
	if codec == nil {
		codec = wire.JSON
	}
	return &MemDialer{
		codec:    codec,
		dialed:   make(chan *MemTransport, 64),
		attempts: make(chan struct{}, 64),
	}
}

// Dial implements connection.Dialer.
func (d *MemDialer) Dial(ctx context.Context) (connection.Transport, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()

	select {
	case d.attempts <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failN > 0 {
		d.failN--
		return nil, d.failErr
	}

	d.nextID++
	t := newMemTransport(fmt.Sprintf("conn-%d", d.nextID), d.codec)
	d.current = t
	select {
	case d.dialed <- t:
	default:
	}
	return t, nil
}

// FailNext makes the next n dials fail with err.
func (d *MemDialer) FailNext(err error, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = err
	d.failN = n
}

// Block makes subsequent dials wait until the returned release function is
// called or the dial context ends.
func (d *MemDialer) Block() (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	gate := make(chan struct{})
	d.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.gate == gate {
				d.gate = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

// Dials returns the number of Dial calls so far.
func (d *MemDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Current returns the most recently established transport.
func (d *MemDialer) Current() *MemTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Dialed delivers each established transport.
func (d *MemDialer) Dialed() <-chan *MemTransport {
	return d.dialed
}

// Attempts receives a value at the start of every Dial call.
func (d *MemDialer) Attempts() <-chan struct{} {
	return d.attempts
}

// MemTransport is an in-memory connection.Transport. The test drives the
// server side through Push, PushEvent and Drop.
type MemTransport struct {
	id    string
	codec wire.Codec
	in    chan *wire.Message

	mu        sync.Mutex
	sent      []*wire.Message
	closed    chan struct{}
	closeErr  error
	closeOnce sync.Once
	reason    string
}

func newMemTransport(id string, codec wire.Codec) *MemTransport {
	return &MemTransport{
		id:     id,
		codec:  codec,
		in:     make(chan *wire.Message, 256),
		closed: make(chan struct{}),
	}
}

// ConnectionID implements connection.Transport.
func (t *MemTransport) ConnectionID() string { return t.id }

// Codec implements connection.Transport.
func (t *MemTransport) Codec() wire.Codec { return t.codec }

// Read implements connection.Transport.
func (t *MemTransport) Read(ctx context.Context) (*wire.Message, error) {
	select {
	case msg := <-t.in:
		return msg, nil
	case <-t.closed:
		t.mu.Lock()
		defer t.mu.Unlock()
		return nil, t.closeErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements connection.Transport.
func (t *MemTransport) Write(_ context.Context, msg *wire.Message) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}
	data, err := t.codec.EncodeMessage(msg)
	if err != nil {
		return err
	}
	decoded, err := t.codec.DecodeMessage(data)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, decoded)
	return nil
}

// Close implements connection.Transport.
func (t *MemTransport) Close(reason string) error {
	t.shutdown(ErrTransportClosed, reason)
	return nil
}

// Drop simulates losing the socket with cause.
func (t *MemTransport) Drop(cause error) {
	if cause == nil {
		cause = ErrTransportClosed
	}
	t.shutdown(cause, "dropped")
}

func (t *MemTransport) shutdown(cause error, reason string) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closeErr = cause
		t.reason = reason
		t.mu.Unlock()
		close(t.closed)
	})
}

// Closed reports whether the transport was closed or dropped.
func (t *MemTransport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// CloseReason returns the reason passed to Close.
func (t *MemTransport) CloseReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Push delivers a message to the client after a codec round trip.
func (t *MemTransport) Push(msg *wire.Message) error {
	data, err := t.codec.EncodeMessage(msg)
	if err != nil {
		return err
	}
	decoded, err := t.codec.DecodeMessage(data)
	if err != nil {
		return err
	}
	select {
	case t.in <- decoded:
		return nil
	case <-t.closed:
		return ErrTransportClosed
	}
}

// PushEvent encodes v as the payload of an event message and delivers it.
func (t *MemTransport) PushEvent(event string, v any) error {
	msg, err := wire.EncodeEvent(t.codec, event, v)
	if err != nil {
		return err
	}
	return t.Push(msg)
}

// Sent returns the messages written by the client.
func (t *MemTransport) Sent() []*wire.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*wire.Message, len(t.sent))
	copy(out, t.sent)
	return out
}

// Compile-time interface satisfaction checks.
var (
	_ connection.Dialer    = (*MemDialer)(nil)
	_ connection.Transport = (*MemTransport)(nil)
)
