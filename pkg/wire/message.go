package wire

import (
	"errors"
	"fmt"
)

// Message errors.
var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMissingEvent       = errors.New("event message without event name")
	ErrMissingConnection  = errors.New("handshake without connection ID")
)

// MessageType identifies the kind of hub message.
type MessageType uint8

const (
	// MessageHandshake is the first message sent by the server on a new
	// connection. It carries the connection ID.
	MessageHandshake MessageType = 1

	// MessageEvent is a named event frame pushed by the server.
	MessageEvent MessageType = 2

	// MessagePing is a liveness probe.
	MessagePing MessageType = 3

	// MessagePong answers a ping.
	MessagePong MessageType = 4

	// MessageClose announces that the sender is closing the connection.
	MessageClose MessageType = 5

	// MessageInvoke is a client to server hub method call.
	MessageInvoke MessageType = 6
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageHandshake:
		return "HANDSHAKE"
	case MessageEvent:
		return "EVENT"
	case MessagePing:
		return "PING"
	case MessagePong:
		return "PONG"
	case MessageClose:
		return "CLOSE"
	case MessageInvoke:
		return "INVOKE"
	default:
		return "UNKNOWN"
	}
}

// Message is the hub envelope.
type Message struct {
	// Type is the message kind.
	Type MessageType

	// Event is the event or method name (Event and Invoke messages).
	Event string

	// ConnectionID is set on Handshake messages.
	ConnectionID string

	// Payload holds the codec-encoded body. It is left undecoded.
	Payload []byte

	// Error carries the close reason on Close messages.
	Error string
}

// Validate checks the structural requirements of each message type.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageHandshake:
		if m.ConnectionID == "" {
			return ErrMissingConnection
		}
	case MessageEvent, MessageInvoke:
		if m.Event == "" {
			return ErrMissingEvent
		}
	case MessagePing, MessagePong, MessageClose:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidMessageType, m.Type)
	}
	return nil
}

// Header holds the correlation fields present on every inbound event frame.
type Header struct {
	// RequestID matches the ID of the subscription context that caused this frame.
	// Empty on unsolicited notifications.
	RequestID string `json:"RequestId" cbor:"RequestId"`

	// RequestFor discriminates logical subscription kinds that share one event name.
	RequestFor string `json:"RequestFor" cbor:"RequestFor"`

	// ErrorCode is zero on success.
	ErrorCode int `json:"ErrorCode" cbor:"ErrorCode"`
}

// IsError reports whether the frame signals a failure.
func (h Header) IsError() bool {
	return h.ErrorCode != 0
}
