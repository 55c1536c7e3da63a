// Package commands implements the channelize-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/channelize/channelize-go/pkg/log"
)

const timeFormat = "2006-01-02T15:04:05.000000Z"

// eventType returns the label of the type-specific payload of event.
func eventType(event log.Event) string {
	switch {
	case event.HubFrame != nil:
		return "Frame"
	case event.HTTP != nil:
		return "HTTP"
	case event.StateChange != nil:
		return "State"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timeFormat)
	connID := shortenConnID(event.ConnectionID)
	if connID == "" {
		connID = "-"
	}

	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s", ts, connID, event.Direction.String(), layer, eventType(event))
	if event.Domain != "" {
		fmt.Fprintf(w, " %s", event.Domain)
	}
	if event.RequestID != "" {
		fmt.Fprintf(w, " #%s", event.RequestID)
	}
	fmt.Fprintln(w)

	switch {
	case event.HubFrame != nil:
		formatFrameDetails(w, event.HubFrame)
	case event.HTTP != nil:
		formatHTTPDetails(w, event.HTTP)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		if event.ControlMsg.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", event.ControlMsg.Reason)
		}
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, f *log.HubFrameEvent) {
	fmt.Fprintf(w, "  Event: %s\n", f.Event)
	if f.RequestFor != "" {
		fmt.Fprintf(w, "  RequestFor: %s\n", f.RequestFor)
	}
	if f.RequestID != "" {
		fmt.Fprintf(w, "  RequestId: %s\n", f.RequestID)
	}
	if f.ErrorCode != 0 {
		fmt.Fprintf(w, "  ErrorCode: %d\n", f.ErrorCode)
	}
	fmt.Fprintf(w, "  Size: %d bytes\n", f.Size)
	if len(f.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s", payloadString(f.Payload))
		if f.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// payloadString prints JSON payloads as text and anything else as hex.
func payloadString(p []byte) string {
	for _, b := range p {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' || b > 0x7e {
			return fmt.Sprintf("%x", p)
		}
	}
	return string(p)
}

func formatHTTPDetails(w io.Writer, h *log.HTTPCallEvent) {
	fmt.Fprintf(w, "  %s %s\n", h.Method, h.Path)
	if h.Status != 0 {
		fmt.Fprintf(w, "  Status: %d\n", h.Status)
	}
	if h.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(h.Duration))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	if l, ok := log.ParseLayer(strings.ToUpper(s)); ok {
		return l, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be transport, hub, http, or manager)", s)
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	case "none", "-":
		return log.DirectionNone, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in, out, or none)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	if c, ok := log.ParseCategory(strings.ToUpper(s)); ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
}

// FilterOptions are the textual filter criteria shared by the commands.
type FilterOptions struct {
	ConnID    string
	Domain    string
	RequestID string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// Build parses the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: o.ConnID,
		Domain:       o.Domain,
		RequestID:    o.RequestID,
	}
	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayerFlag(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirectionFlag(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// RunView prints the events of the capture file at path matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
