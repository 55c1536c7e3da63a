package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/channelize/channelize-go/pkg/auth"
	"github.com/channelize/channelize-go/pkg/log"
)

// Client errors.
var (
	ErrNoBaseURL = errors.New("base URL is required")
	ErrBadPath   = errors.New("path segment must not be empty")
)

// DefaultTimeout bounds a single HTTP call.
const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds the bytes read from a failed response.
const maxErrorBody = 4096

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, for example https://api.example.com/v1.
	BaseURL string

	// HTTPClient defaults to a client with DefaultTimeout.
	HTTPClient *http.Client

	// Tokens supplies the bearer token. Optional.
	Tokens auth.TokenSource

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives a capture event per call.
	ProtocolLogger log.Logger
}

// Client issues subscribe and unsubscribe calls.
type Client struct {
	base    *url.URL
	http    *http.Client
	tokens  auth.TokenSource
	logger  *slog.Logger
	capture log.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme %q", base.Scheme)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		base:    base,
		http:    cfg.HTTPClient,
		tokens:  cfg.Tokens,
		logger:  cfg.Logger,
		capture: log.OrNoop(cfg.ProtocolLogger),
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// SubscribeCall describes one correlated subscribe request.
type SubscribeCall struct {
	Domain       string
	RequestID    string
	ConnectionID string
	Extra        []string
	Query        url.Values
	Body         any
}

// UnsubscribeCall describes one unsubscribe request.
type UnsubscribeCall struct {
	Domain       string
	RequestID    string
	ConnectionID string
	Query        url.Values
}

// Subscribe issues the correlated POST.
func (c *Client) Subscribe(ctx context.Context, call SubscribeCall) error {
	if call.Domain == "" || call.RequestID == "" || call.ConnectionID == "" {
		return ErrBadPath
	}
	for _, e := range call.Extra {
		if e == "" {
			return ErrBadPath
		}
	}
	path := SubscribePath(call.Domain, call.RequestID, call.ConnectionID, call.Extra...)
	return c.do(ctx, http.MethodPost, path, call.Query, call.Body, call.Domain, call.RequestID, call.ConnectionID)
}

// Unsubscribe issues the DELETE.
func (c *Client) Unsubscribe(ctx context.Context, call UnsubscribeCall) error {
	if call.Domain == "" || call.ConnectionID == "" {
		return ErrBadPath
	}
	path := UnsubscribePath(call.Domain, call.ConnectionID)
	return c.do(ctx, http.MethodDelete, path, call.Query, nil, call.Domain, call.RequestID, call.ConnectionID)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, domain, requestID, connID string) error {
	u := *c.base
	u.RawPath = ""
	escaped := c.base.EscapedPath() + path
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return err
	}
	u.Path = unescaped
	u.RawPath = escaped
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := auth.Apply(ctx, c.tokens, req.Header); err != nil {
		return fmt.Errorf("token: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.capture.Log(log.Event{
		Timestamp:    start,
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerHTTP,
		Category:     log.CategoryMessage,
		Domain:       domain,
		RequestID:    requestID,
		HTTP:         &log.HTTPCallEvent{Method: method, Path: path, Status: status, Duration: elapsed},
	})

	if err != nil {
		c.logger.Warn("rest: request failed", "method", method, "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug("rest: request accepted", "method", method, "path", path, "status", resp.StatusCode, "duration", elapsed)
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serr := &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: errorMessage(data)}
	c.logger.Warn("rest: request rejected", "method", method, "path", path, "status", resp.StatusCode)
	return serr
}

// errorMessage extracts a message from a JSON error body, or returns the
// trimmed body text.
func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
