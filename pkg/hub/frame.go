package hub

import (
	"errors"
	"time"

	"github.com/channelize/channelize-go/pkg/wire"
)

// ErrNoCodec is returned by Frame.Decode when the frame carries no codec.
var ErrNoCodec = errors.New("frame has no codec")

// Frame is one inbound hub event.
type Frame struct {
	// Event is the hub event name.
	Event string

	// Header is the decoded correlation header.
	Header wire.Header

	// Payload is the undecoded event body.
	Payload []byte

	// Codec decodes Payload.
	Codec wire.Codec

	// ConnectionID is the connection the frame arrived on.
	ConnectionID string

	// Received is the local receive time.
	Received time.Time
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v any) error {
	if f.Codec == nil {
		return ErrNoCodec
	}
	return f.Codec.Unmarshal(f.Payload, v)
}

// NewFrame decodes the header of an Event message and builds a Frame.
func NewFrame(codec wire.Codec, msg *wire.Message, connID string) (Frame, error) {
	h, err := wire.DecodeHeader(codec, msg.Payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Event:        msg.Event,
		Header:       h,
		Payload:      msg.Payload,
		Codec:        codec,
		ConnectionID: connID,
		Received:     time.Now(),
	}, nil
}

// DecodeAs returns a decoder that unmarshals frames into a T.
func DecodeAs[T any]() func(Frame) (T, error) {
	return func(f Frame) (T, error) {
		var v T
		err := f.Decode(&v)
		return v, err
	}
}
