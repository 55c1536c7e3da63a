package log

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerHub,
		Category:     CategoryMessage,
		Domain:       "systems",
		RequestID:    "7",
		HubFrame:     NewHubFrameEvent("systems", []byte(`{"RequestId":"7"}`)),
	}

	logger.Log(event)
	if logger.Size() == 0 {
		t.Error("Size() = 0 after Log")
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read capture file: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}

	if decoded.ConnectionID != event.ConnectionID {
		t.Errorf("ConnectionID: got %q, want %q", decoded.ConnectionID, event.ConnectionID)
	}
	if decoded.RequestID != "7" || decoded.Domain != "systems" {
		t.Errorf("unexpected identifiers: %+v", decoded)
	}
	if decoded.HubFrame == nil {
		t.Fatal("HubFrame is nil")
	}
	if decoded.HubFrame.Size != event.HubFrame.Size {
		t.Errorf("HubFrame.Size: got %d, want %d", decoded.HubFrame.Size, event.HubFrame.Size)
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, event.Timestamp)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")

	for _, id := range []string{"conn-1", "conn-2"} {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: id, Layer: LayerTransport})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var ids []string
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		ids = append(ids, event.ConnectionID)
	}

	if len(ids) != 2 || ids[0] != "conn-1" || ids[1] != "conn-2" {
		t.Errorf("got %v, want [conn-1 conn-2]", ids)
	}
}

func TestFileLoggerThreadSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(Event{Timestamp: time.Now(), Layer: LayerManager, Category: CategoryState})
			}
		}()
	}
	wg.Wait()

	written, failed := logger.Stats()
	if written != 200 || failed != 0 {
		t.Errorf("Stats() = %d, %d; want 200, 0", written, failed)
	}
	logger.Close()
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.clog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Close()
	logger.Log(Event{Timestamp: time.Now()})

	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	if written, _ := logger.Stats(); written != 0 {
		t.Errorf("written = %d after close", written)
	}
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestNewHubFrameEventTruncates(t *testing.T) {
	big := bytes.Repeat([]byte{'x'}, MaxCapturedPayload+10)
	f := NewHubFrameEvent("events", big)
	if !f.Truncated || len(f.Payload) != MaxCapturedPayload || f.Size != len(big) {
		t.Errorf("unexpected frame: truncated=%v len=%d size=%d", f.Truncated, len(f.Payload), f.Size)
	}

	small := NewHubFrameEvent("events", []byte("ok"))
	if small.Truncated || string(small.Payload) != "ok" {
		t.Errorf("unexpected small frame: %+v", small)
	}
}
