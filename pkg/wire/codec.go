package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnknownCodec is returned by CodecByName for unsupported names.
var ErrUnknownCodec = errors.New("unknown codec")

// Subprotocol names negotiated on the websocket upgrade.
const (
	SubprotocolJSON = "channelize.json"
	SubprotocolCBOR = "channelize.cbor"
)

// Codec encodes hub envelopes and the payloads they carry.
type Codec interface {
	// Name is the short codec name used in configuration ("json", "cbor").
	Name() string

	// Subprotocol is the websocket subprotocol that selects this codec.
	Subprotocol() string

	// Binary reports whether encoded messages are sent as binary websocket
	// messages rather than text.
	Binary() bool

	// EncodeMessage encodes an envelope.
	EncodeMessage(m *Message) ([]byte, error)

	// DecodeMessage decodes and validates an envelope.
	DecodeMessage(data []byte) (*Message, error)

	// Marshal encodes a payload value.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes a payload produced by Marshal.
	Unmarshal(data []byte, v any) error
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// CodecBySubprotocol returns the codec for a negotiated websocket subprotocol.
// An empty subprotocol selects JSON.
func CodecBySubprotocol(proto string) (Codec, error) {
	switch proto {
	case "", SubprotocolJSON:
		return JSON, nil
	case SubprotocolCBOR:
		return CBOR, nil
	default:
		return nil, fmt.Errorf("%w: subprotocol %q", ErrUnknownCodec, proto)
	}
}

// Default codecs.
var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// jsonMessage is the JSON envelope layout.
type jsonMessage struct {
	Type         MessageType     `json:"type"`
	Event        string          `json:"event,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) Subprotocol() string { return SubprotocolJSON }
func (jsonCodec) Binary() bool        { return false }

func (jsonCodec) EncodeMessage(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return json.Marshal(jsonMessage{
		Type:         m.Type,
		Event:        m.Event,
		ConnectionID: m.ConnectionID,
		Payload:      json.RawMessage(m.Payload),
		Error:        m.Error,
	})
}

func (jsonCodec) DecodeMessage(data []byte) (*Message, error) {
	var jm jsonMessage
	if err := json.Unmarshal(data, &jm); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	m := &Message{
		Type:         jm.Type,
		Event:        jm.Event,
		ConnectionID: jm.ConnectionID,
		Payload:      []byte(jm.Payload),
		Error:        jm.Error,
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return m, nil
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// cborMessage is the CBOR envelope layout with integer keys.
type cborMessage struct {
	Type         MessageType     `cbor:"1,keyasint"`
	Event        string          `cbor:"2,keyasint,omitempty"`
	ConnectionID string          `cbor:"3,keyasint,omitempty"`
	Payload      cbor.RawMessage `cbor:"4,keyasint,omitempty"`
	Error        string          `cbor:"5,keyasint,omitempty"`
}

// encMode is the CBOR encoder mode for hub messages.
// Configured for deterministic encoding.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for hub messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

type cborCodec struct{}

func (cborCodec) Name() string        { return "cbor" }
func (cborCodec) Subprotocol() string { return SubprotocolCBOR }
func (cborCodec) Binary() bool        { return true }

func (cborCodec) EncodeMessage(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return encMode.Marshal(cborMessage{
		Type:         m.Type,
		Event:        m.Event,
		ConnectionID: m.ConnectionID,
		Payload:      cbor.RawMessage(m.Payload),
		Error:        m.Error,
	})
}

func (cborCodec) DecodeMessage(data []byte) (*Message, error) {
	var cm cborMessage
	if err := decMode.Unmarshal(data, &cm); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	m := &Message{
		Type:         cm.Type,
		Event:        cm.Event,
		ConnectionID: cm.ConnectionID,
		Payload:      []byte(cm.Payload),
		Error:        cm.Error,
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return m, nil
}

func (cborCodec) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeEvent builds an Event message whose payload is v encoded with c.
func EncodeEvent(c Codec, event string, v any) (*Message, error) {
	payload, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return &Message{Type: MessageEvent, Event: event, Payload: payload}, nil
}

// DecodeHeader extracts the correlation header from an event payload.
func DecodeHeader(c Codec, payload []byte) (Header, error) {
	var h Header
	if len(payload) == 0 {
		return h, nil
	}
	if err := c.Unmarshal(payload, &h); err != nil {
		return Header{}, fmt.Errorf("failed to decode frame header: %w", err)
	}
	return h, nil
}
