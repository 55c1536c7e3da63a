package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelize/channelize-go/pkg/hub"
	"github.com/channelize/channelize-go/pkg/wire"
)

type systemChanged struct {
	wire.Header
	SystemID string `json:"SystemId"`
}

func dispatch(t *testing.T, r *hub.Router, tag, id string) {
	t.Helper()
	msg, err := wire.EncodeEvent(wire.JSON, "systems", systemChanged{Header: wire.Header{RequestFor: tag}, SystemID: id})
	require.NoError(t, err)
	f, err := hub.NewFrame(wire.JSON, msg, "conn-1")
	require.NoError(t, err)
	r.Dispatch(f)
}

func newSink(r *hub.Router, cfg Config) *Sink[systemChanged] {
	return New(r, "systems", "notifySystemChanged", hub.DecodeAs[systemChanged](), cfg)
}

func TestSinkFanOut(t *testing.T) {
	r := hub.NewRouter(hub.RouterConfig{})
	sink := newSink(r, Config{})
	defer sink.Close()

	a := sink.Subscribe()
	b := sink.Subscribe()
	assert.Equal(t, 2, sink.Subscribers())

	dispatch(t, r, "notifySystemChanged", "s1")
	dispatch(t, r, "channelizeSystems", "ignored")

	for _, s := range []*Subscription[systemChanged]{a, b} {
		require.Len(t, s.C(), 1)
		v := <-s.C()
		assert.Equal(t, "s1", v.SystemID)
	}
	assert.Equal(t, uint64(1), sink.Delivered())
}

func TestSinkDropsWhenFull(t *testing.T) {
	r := hub.NewRouter(hub.RouterConfig{})
	var mu sync.Mutex
	drops := 0
	sink := newSink(r, Config{Buffer: 2, OnDrop: func(event, tag string) {
		mu.Lock()
		drops++
		mu.Unlock()
		assert.Equal(t, "systems", event)
		assert.Equal(t, "notifySystemChanged", tag)
	}})
	defer sink.Close()

	slow := sink.Subscribe()
	fast := sink.Subscribe()

	for i := 0; i < 5; i++ {
		dispatch(t, r, "notifySystemChanged", "s")
		<-fast.C()
	}

	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, uint64(3), sink.Dropped())
	assert.Equal(t, 3, drops)
	assert.Len(t, slow.C(), 2)
}

func TestSubscriptionClose(t *testing.T) {
	r := hub.NewRouter(hub.RouterConfig{})
	sink := newSink(r, Config{})
	defer sink.Close()

	s := sink.Subscribe()
	s.Close()
	s.Close()

	_, ok := <-s.C()
	assert.False(t, ok)
	assert.Equal(t, 0, sink.Subscribers())

	// Delivery after close is a no-op.
	dispatch(t, r, "notifySystemChanged", "s1")
	assert.Equal(t, uint64(0), s.Dropped())
}

func TestSinkClose(t *testing.T) {
	r := hub.NewRouter(hub.RouterConfig{})
	sink := newSink(r, Config{})

	s := sink.Subscribe()
	sink.Close()
	sink.Close()

	_, ok := <-s.C()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Taps("systems"))

	late := sink.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestSinkDecodeErrorsCounted(t *testing.T) {
	r := hub.NewRouter(hub.RouterConfig{})
	sink := newSink(r, Config{})
	defer sink.Close()
	s := sink.Subscribe()

	r.Dispatch(hub.Frame{Event: "systems", Header: wire.Header{RequestFor: "notifySystemChanged"}, Payload: []byte("{"), Codec: wire.JSON})

	assert.Equal(t, uint64(1), sink.DecodeErrors())
	assert.Len(t, s.C(), 0)
}
