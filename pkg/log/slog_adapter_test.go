package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterLogsHubFrame(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	frame := NewHubFrameEvent("systems", []byte("{}"))
	frame.RequestFor = "channelizeSystems"
	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerHub,
		Category:     CategoryMessage,
		RequestID:    "4",
		HubFrame:     frame,
	})

	entry := decodeLine(t, &buf)
	if entry["conn_id"] != "conn-123" {
		t.Errorf("conn_id: got %v", entry["conn_id"])
	}
	if entry["layer"] != "HUB" {
		t.Errorf("layer: got %v", entry["layer"])
	}
	if entry["event"] != "systems" || entry["request_for"] != "channelizeSystems" {
		t.Errorf("frame attrs: %v", entry)
	}
	if entry["request_id"] != "4" {
		t.Errorf("request_id: got %v", entry["request_id"])
	}
}

func TestSlogAdapterLogsHTTPCall(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		Timestamp: time.Now(),
		Direction: DirectionOut,
		Layer:     LayerHTTP,
		HTTP:      &HTTPCallEvent{Method: "POST", Path: "/events/subscriptions", Status: 202},
	})

	entry := decodeLine(t, &buf)
	if entry["method"] != "POST" || entry["status"] != float64(202) {
		t.Errorf("http attrs: %v", entry)
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	adapter.Log(Event{Timestamp: time.Now(), Layer: LayerManager})
	if buf.Len() != 0 {
		t.Errorf("debug event logged at info level: %s", buf.String())
	}

	adapter.WithLevel(slog.LevelWarn).Log(Event{
		Timestamp: time.Now(),
		Layer:     LayerManager,
		Category:  CategoryError,
		Error:     &ErrorEventData{Layer: LayerManager, Message: "correlation miss"},
	})
	entry := decodeLine(t, &buf)
	if entry["error_msg"] != "correlation miss" {
		t.Errorf("error_msg: got %v", entry["error_msg"])
	}
}
