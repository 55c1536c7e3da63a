package connection

import (
	"context"

	"github.com/channelize/channelize-go/pkg/wire"
)

// Transport is one established push-channel socket.
type Transport interface {
	// ConnectionID returns the identifier assigned in the handshake.
	ConnectionID() string

	// Codec returns the negotiated codec.
	Codec() wire.Codec

	// Read blocks until the next message arrives. It returns an error once
	// the socket is closed or lost.
	Read(ctx context.Context) (*wire.Message, error)

	// Write sends a message.
	Write(ctx context.Context, msg *wire.Message) error

	// Close closes the socket. It is safe to call more than once.
	Close(reason string) error
}

// Dialer establishes transports.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialFunc adapts a function to a Dialer.
type DialFunc func(ctx context.Context) (Transport, error)

// Dial calls f.
func (f DialFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}
