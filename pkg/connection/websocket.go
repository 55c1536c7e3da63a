package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/channelize/channelize-go/pkg/auth"
	"github.com/channelize/channelize-go/pkg/wire"
)

// ErrHandshake is returned when the server does not open with a valid handshake.
var ErrHandshake = errors.New("hub handshake failed")

// Default websocket limits.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadLimit        = 1 << 20
)

// WebSocketDialer dials the hub over websocket.
type WebSocketDialer struct {
	// URL is the hub endpoint (ws:// or wss://).
	URL string

	// Codec selects the preferred subprotocol. Defaults to wire.JSON.
	Codec wire.Codec

	// Tokens supplies the bearer token for the upgrade request.
	Tokens auth.TokenSource

	// HTTPClient is used for the upgrade request. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// HandshakeTimeout bounds the wait for the server handshake message.
	HandshakeTimeout time.Duration

	// ReadLimit bounds the size of a single inbound message.
	ReadLimit int64
}

// Dial opens the websocket, negotiates the codec and reads the handshake.
func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	codec := d.Codec
	if codec == nil {
		codec = wire.JSON
	}

	header := http.Header{}
	if err := auth.Apply(ctx, d.Tokens, header); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	c, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   header,
		Subprotocols: []string{codec.Subprotocol()},
	})
	if err != nil {
		return nil, err
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)

	negotiated, err := wire.CodecBySubprotocol(c.Subprotocol())
	if err != nil {
		c.Close(websocket.StatusPolicyViolation, "unsupported subprotocol")
		return nil, err
	}

	t := &wsTransport{conn: c, codec: negotiated}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := t.Read(hctx)
	if err != nil {
		c.Close(websocket.StatusProtocolError, "no handshake")
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if msg.Type != wire.MessageHandshake {
		c.Close(websocket.StatusProtocolError, "expected handshake")
		return nil, fmt.Errorf("%w: got %s", ErrHandshake, msg.Type)
	}
	t.connID = msg.ConnectionID
	return t, nil
}

// wsTransport is a Transport over a websocket connection.
type wsTransport struct {
	conn   *websocket.Conn
	codec  wire.Codec
	connID string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (t *wsTransport) ConnectionID() string { return t.connID }
func (t *wsTransport) Codec() wire.Codec    { return t.codec }

func (t *wsTransport) Read(ctx context.Context) (*wire.Message, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return t.codec.DecodeMessage(data)
}

func (t *wsTransport) Write(ctx context.Context, msg *wire.Message) error {
	data, err := t.codec.EncodeMessage(msg)
	if err != nil {
		return err
	}
	typ := websocket.MessageText
	if t.codec.Binary() {
		typ = websocket.MessageBinary
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.Write(ctx, typ, data)
}

func (t *wsTransport) Close(reason string) error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close(websocket.StatusNormalClosure, reason)
	})
	return err
}
