package log

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A capture is a plain concatenation of CBOR-encoded events, so files can be
// appended to across runs and truncated files stay readable up to the
// damaged record.
var (
	captureEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})

	// Captures from newer builds may carry fields this one ignores.
	captureDec = mustDecMode(cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic("log: capture encoder: " + err.Error())
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic("log: capture decoder: " + err.Error())
	}
	return m
}

// EncodeEvent returns the capture record for event.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEnc.Marshal(event)
}

// DecodeEvent parses a single capture record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := captureDec.Unmarshal(data, &event)
	return event, err
}

// NewDecoder returns a decoder reading consecutive capture records from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return captureDec.NewDecoder(r)
}
