package connection_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelize/channelize-go/internal/hubtest"
	"github.com/channelize/channelize-go/pkg/auth"
	"github.com/channelize/channelize-go/pkg/connection"
	"github.com/channelize/channelize-go/pkg/hub"
	"github.com/channelize/channelize-go/pkg/wire"
)

func startHub(t *testing.T, cfg hubtest.ServerConfig) (*hubtest.Server, string) {
	t.Helper()
	srv := hubtest.NewServer(cfg)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/hub"
}

func TestWebSocketDialer(t *testing.T) {
	for _, codec := range []wire.Codec{wire.JSON, wire.CBOR} {
		t.Run(codec.Name(), func(t *testing.T) {
			srv, url := startHub(t, hubtest.ServerConfig{Token: "secret"})

			c := connection.New(connection.Config{
				Dialer: &connection.WebSocketDialer{
					URL:    url,
					Codec:  codec,
					Tokens: auth.StaticToken("secret"),
				},
				DisableReconnect: true,
			})
			defer c.Close()

			frames := make(chan hub.Frame, 4)
			c.Router().Listen("systems", "", func(f hub.Frame) { frames <- f })

			require.NoError(t, c.Start(context.Background()))
			id, ok := c.ConnectionID()
			require.True(t, ok)

			select {
			case accepted := <-srv.Connected():
				assert.Equal(t, accepted, id)
			case <-time.After(2 * time.Second):
				t.Fatal("server saw no connection")
			}

			require.NoError(t, srv.Push(id, "systems", map[string]any{"RequestId": "7", "RequestFor": "channelizeSystems"}))
			select {
			case f := <-frames:
				assert.Equal(t, "7", f.Header.RequestID)
				assert.Equal(t, "channelizeSystems", f.Header.RequestFor)
				assert.Equal(t, id, f.ConnectionID)
				assert.Equal(t, codec.Name(), f.Codec.Name())
			case <-time.After(2 * time.Second):
				t.Fatal("frame not routed")
			}

			require.NoError(t, srv.Ping(id))
			require.Eventually(t, func() bool { return srv.Pongs() == 1 }, 2*time.Second, 5*time.Millisecond)

			require.NoError(t, c.Send(context.Background(), "JoinGroup", map[string]string{"group": "systems"}))
			require.Eventually(t, func() bool { return len(srv.Invokes()) == 1 }, 2*time.Second, 5*time.Millisecond)
			assert.Equal(t, "JoinGroup", srv.Invokes()[0].Event)
		})
	}
}

func TestWebSocketDialerRejectsBadToken(t *testing.T) {
	_, url := startHub(t, hubtest.ServerConfig{Token: "secret"})

	c := connection.New(connection.Config{
		Dialer:           &connection.WebSocketDialer{URL: url, Tokens: auth.StaticToken("wrong")},
		DisableReconnect: true,
	})
	defer c.Close()

	assert.Error(t, c.Start(context.Background()))
	assert.Equal(t, connection.StateDisconnected, c.State())
}

func TestWebSocketServerDrop(t *testing.T) {
	srv, url := startHub(t, hubtest.ServerConfig{})

	c := connection.New(connection.Config{
		Dialer:           &connection.WebSocketDialer{URL: url},
		DisableReconnect: true,
	})
	defer c.Close()

	causes := make(chan error, 1)
	c.OnDisconnected(func(cause error) { causes <- cause })

	require.NoError(t, c.Start(context.Background()))
	id, _ := c.ConnectionID()
	require.NoError(t, srv.Disconnect(id))

	select {
	case cause := <-causes:
		assert.Error(t, cause)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not observed")
	}
	assert.Equal(t, connection.StateDisconnected, c.State())
}

func TestWebSocketServerClose(t *testing.T) {
	srv, url := startHub(t, hubtest.ServerConfig{})

	c := connection.New(connection.Config{
		Dialer:           &connection.WebSocketDialer{URL: url},
		DisableReconnect: true,
	})
	defer c.Close()

	require.NoError(t, c.Start(context.Background()))
	id, _ := c.ConnectionID()
	require.NoError(t, srv.Close(id, "maintenance"))

	require.Eventually(t, func() bool { return !c.IsConnected() }, 2*time.Second, 5*time.Millisecond)
}
