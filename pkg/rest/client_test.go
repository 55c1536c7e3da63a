package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelize/channelize-go/pkg/auth"
	"github.com/channelize/channelize-go/pkg/log"
)

type recorded struct {
	Method string
	Path   string
	Raw    string
	Query  url.Values
	Auth   string
	Body   []byte
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, func() []recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Raw:    r.URL.EscapedPath(),
			Query:  r.URL.Query(),
			Auth:   r.Header.Get("Authorization"),
			Body:   data,
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), calls...)
	}
}

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/events/subscriptions/channelize/42/conn-1", SubscribePath("events", "42", "conn-1"))
	assert.Equal(t, "/events/subscriptions/channelize/42/conn-1/sys-a/x", SubscribePath("events", "42", "conn-1", "sys-a", "x"))
	assert.Equal(t, "/user-roles/subscriptions/conn%2F1", UnsubscribePath("user-roles", "conn/1"))
}

func TestSubscribe(t *testing.T) {
	srv, calls := newServer(t, http.StatusAccepted, "")
	capture := &captureLogger{}
	c, err := New(Config{BaseURL: srv.URL + "/api/", Tokens: auth.StaticToken("tok"), ProtocolLogger: capture})
	require.NoError(t, err)

	err = c.Subscribe(context.Background(), SubscribeCall{
		Domain:       "events",
		RequestID:    "42",
		ConnectionID: "conn-1",
		Extra:        []string{"live"},
		Query:        url.Values{"limit": {"10"}},
		Body:         map[string][]string{"systemIds": {"A", "B"}},
	})
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].Method)
	assert.Equal(t, "/api/events/subscriptions/channelize/42/conn-1/live", got[0].Path)
	assert.Equal(t, "10", got[0].Query.Get("limit"))
	assert.Equal(t, "Bearer tok", got[0].Auth)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(got[0].Body, &body))
	assert.Equal(t, []string{"A", "B"}, body["systemIds"])

	require.Len(t, capture.events, 1)
	ev := capture.events[0]
	assert.Equal(t, log.LayerHTTP, ev.Layer)
	assert.Equal(t, "42", ev.RequestID)
	assert.Equal(t, "events", ev.Domain)
	assert.Equal(t, http.StatusAccepted, ev.HTTP.Status)
}

func TestSubscribeEscapesSegments(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, "")
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, c.Subscribe(context.Background(), SubscribeCall{Domain: "systems", RequestID: "1", ConnectionID: "a/b c"}))
	assert.Equal(t, "/systems/subscriptions/channelize/1/a%2Fb%20c", calls()[0].Raw)
}

func TestUnsubscribe(t *testing.T) {
	srv, calls := newServer(t, http.StatusNoContent, "")
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.Unsubscribe(context.Background(), UnsubscribeCall{
		Domain:       "operator-tasks",
		ConnectionID: "conn-9",
		Query:        url.Values{"taskId": {"t1"}},
	})
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodDelete, got[0].Method)
	assert.Equal(t, "/operator-tasks/subscriptions/conn-9", got[0].Path)
	assert.Equal(t, "t1", got[0].Query.Get("taskId"))
	assert.Empty(t, got[0].Auth)
}

func TestStatusError(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden, `{"message":"license expired"}`)
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.Subscribe(context.Background(), SubscribeCall{Domain: "licenses", RequestID: "1", ConnectionID: "c"})
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusForbidden, serr.Status)
	assert.Equal(t, "license expired", serr.Message)
	assert.Contains(t, serr.Error(), "403")
}

func TestStatusErrorPlainBody(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway, "upstream down\n")
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.Unsubscribe(context.Background(), UnsubscribeCall{Domain: "systems", ConnectionID: "c"})
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "upstream down", serr.Message)
}

func TestTokenFailureStopsCall(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, "")
	c, err := New(Config{BaseURL: srv.URL, Tokens: auth.StaticToken("")})
	require.NoError(t, err)

	err = c.Subscribe(context.Background(), SubscribeCall{Domain: "systems", RequestID: "1", ConnectionID: "c"})
	assert.ErrorIs(t, err, auth.ErrNoToken)
	assert.Empty(t, calls())
}

func TestValidation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoBaseURL)
	_, err = New(Config{BaseURL: "ftp://x"})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "http://localhost"})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Subscribe(context.Background(), SubscribeCall{Domain: "x", RequestID: "1"}), ErrBadPath)
	assert.ErrorIs(t, c.Subscribe(context.Background(), SubscribeCall{Domain: "x", RequestID: "1", ConnectionID: "c", Extra: []string{""}}), ErrBadPath)
	assert.ErrorIs(t, c.Unsubscribe(context.Background(), UnsubscribeCall{Domain: "x"}), ErrBadPath)
}
