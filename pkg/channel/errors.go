package channel

import (
	"errors"
	"fmt"
)

// Manager errors.
var (
	// ErrInvalidArgument is returned for malformed caller input. No network
	// call is made.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransportRejected wraps the error of a failed HTTP call.
	ErrTransportRejected = errors.New("transport rejected")

	// ErrChannelDisconnected fails every invoked context when the hub drops.
	ErrChannelDisconnected = errors.New("channel disconnected")

	// ErrCorrelationMiss describes a frame that matched no invoked context.
	// It is only logged and reported, never returned to a caller.
	ErrCorrelationMiss = errors.New("correlation miss")

	// ErrAbandoned fails a context whose caller context ended.
	ErrAbandoned = errors.New("subscription abandoned")

	// ErrManagerClosed fails every context when the manager is closed.
	ErrManagerClosed = errors.New("manager closed")

	// ErrMalformedReply fails a context whose confirmation frame could not be decoded.
	ErrMalformedReply = errors.New("malformed reply")
)

// ReplyError is a confirmation frame with a non-zero ErrorCode.
type ReplyError struct {
	Domain     string
	RequestID  string
	RequestFor string
	Code       int
}

func (e *ReplyError) Error() string {
	if e.RequestFor != "" {
		return fmt.Sprintf("%s request %s (%s) failed with code %d", e.Domain, e.RequestID, e.RequestFor, e.Code)
	}
	return fmt.Sprintf("%s request %s failed with code %d", e.Domain, e.RequestID, e.Code)
}

// ErrorReporter receives terminal errors for presentation to users.
type ErrorReporter interface {
	Report(domain string, err error)
}

// ErrorReporterFunc adapts a function to an ErrorReporter.
type ErrorReporterFunc func(domain string, err error)

// Report calls f.
func (f ErrorReporterFunc) Report(domain string, err error) {
	f(domain, err)
}
