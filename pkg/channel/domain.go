package channel

import (
	"errors"
	"net/url"

	"github.com/channelize/channelize-go/pkg/hub"
)

// Domain errors.
var (
	ErrNoDomainName  = errors.New("domain name is required")
	ErrNoDomainEvent = errors.New("domain event is required")
	ErrNoDecoder     = errors.New("domain decoder is required")
)

// Request carries the domain-specific parts of a subscribe call.
type Request struct {
	// Path is appended after the connection ID.
	Path []string

	// Query is the URL query.
	Query url.Values

	// Body is JSON-encoded as the request body when non-nil.
	Body any
}

// Domain configures a Manager for one subscription domain.
type Domain[A, R any] struct {
	// Name is the URL segment, for example "operator-tasks".
	Name string

	// Event is the hub event carrying confirmations.
	Event string

	// Tag is the RequestFor value of confirmation frames. Empty accepts all.
	Tag string

	// Validate rejects malformed arguments. Optional.
	Validate func(A) error

	// Keys returns the correlation keys to expect. A nil Keys makes the
	// domain single-reply.
	Keys func(A) []string

	// Request builds the extra path, query and body. Optional.
	Request func(A) Request

	// Decode extracts the correlation key and reply from a confirmation frame.
	Decode func(hub.Frame) (key string, reply R, err error)
}

func (d Domain[A, R]) validate() error {
	switch {
	case d.Name == "":
		return ErrNoDomainName
	case d.Event == "":
		return ErrNoDomainEvent
	case d.Decode == nil:
		return ErrNoDecoder
	}
	return nil
}

// DecodeSingle decodes the whole frame as R with an empty key.
func DecodeSingle[R any]() func(hub.Frame) (string, R, error) {
	return func(f hub.Frame) (string, R, error) {
		var r R
		err := f.Decode(&r)
		return "", r, err
	}
}

// DecodeKeyed decodes the frame as R and takes the key from keyOf.
func DecodeKeyed[R any](keyOf func(R) string) func(hub.Frame) (string, R, error) {
	return func(f hub.Frame) (string, R, error) {
		var r R
		if err := f.Decode(&r); err != nil {
			return "", r, err
		}
		return keyOf(r), r, nil
	}
}
