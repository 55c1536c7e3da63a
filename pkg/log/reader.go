package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero-valued fields match everything.
type Filter struct {
	ConnectionID string
	Domain       string
	RequestID    string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Matches reports whether event satisfies every set criterion.
func (f *Filter) Matches(event Event) bool {
	switch {
	case f.ConnectionID != "" && f.ConnectionID != event.ConnectionID,
		f.Domain != "" && f.Domain != event.Domain,
		f.RequestID != "" && f.RequestID != event.RequestID,
		f.Direction != nil && *f.Direction != event.Direction,
		f.Layer != nil && *f.Layer != event.Layer,
		f.Category != nil && *f.Category != event.Category,
		f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader iterates over the events of a capture.
type Reader struct {
	src    io.ReadCloser
	dec    *cbor.Decoder
	filter Filter
}

// NewReader opens the capture at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the capture at path, yielding only events that
// match filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(f, filter), nil
}

// NewStreamReader reads a capture from src. Close closes src.
func NewStreamReader(src io.ReadCloser, filter Filter) *Reader {
	return &Reader{src: src, dec: NewDecoder(src), filter: filter}
}

// Next returns the next matching event, or io.EOF at the end of the
// capture. A record cut short by a crash also ends the capture.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.dec.Decode(&event)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		if err != nil {
			return Event{}, err
		}
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// ForEach calls fn for every remaining matching event. It stops at the end
// of the capture or at the first error from fn.
func (r *Reader) ForEach(fn func(Event) error) error {
	for {
		event, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// Close closes the source.
func (r *Reader) Close() error {
	return r.src.Close()
}
