package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelize/channelize-go/internal/hubtest"
	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/connection"
)

func TestObserverCounters(t *testing.T) {
	c := New()

	c.Sizes("events", 2, 1)
	c.HTTPCall("events", "subscribe", nil)
	c.HTTPCall("events", "subscribe", errors.New("500"))
	c.Reply("events")
	c.Reply("events")
	c.CorrelationMiss("systems")
	c.Terminated("events", nil)
	c.Terminated("events", channel.ErrChannelDisconnected)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.contexts.WithLabelValues("events", "pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.contexts.WithLabelValues("events", "invoked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpCalls.WithLabelValues("events", "subscribe", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpCalls.WithLabelValues("events", "subscribe", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.replies.WithLabelValues("events")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.misses.WithLabelValues("systems")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.terminated.WithLabelValues("events", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.terminated.WithLabelValues("events", "disconnected")))
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "completed"},
		{fmt.Errorf("%w: bad", channel.ErrInvalidArgument), "invalid_argument"},
		{fmt.Errorf("%w: %w", channel.ErrTransportRejected, io.EOF), "transport_rejected"},
		{channel.ErrChannelDisconnected, "disconnected"},
		{fmt.Errorf("%w: %w", channel.ErrAbandoned, context.Canceled), "abandoned"},
		{channel.ErrManagerClosed, "closed"},
		{fmt.Errorf("%w: x", channel.ErrMalformedReply), "malformed_reply"},
		{&channel.ReplyError{Code: 403}, "reply_error"},
		{io.EOF, "other"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestWatchConnection(t *testing.T) {
	d := hubtest.NewMemDialer(nil)
	conn := connection.New(connection.Config{Dialer: d, DisableReconnect: true})
	defer conn.Close()

	c := New()
	cancel := c.WatchConnection(conn)
	defer cancel()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connState.WithLabelValues("DISCONNECTED")))

	require.NoError(t, conn.Start(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connState.WithLabelValues("CONNECTED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.connState.WithLabelValues("DISCONNECTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("DISCONNECTED", "CONNECTING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("CONNECTING", "CONNECTED")))

	conn.Stop()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connState.WithLabelValues("DISCONNECTED")))
}

func TestHandler(t *testing.T) {
	c := New()
	c.NotificationDropped("systems", "notifySystemChanged")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `channelize_notifications_dropped_total{event="systems",tag="notifySystemChanged"} 1`))
	assert.True(t, strings.Contains(text, "go_goroutines"))
}
