package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance string, port int, txt []string, ips ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{ServiceRecord: zeroconf.ServiceRecord{Instance: instance, Service: ServiceType, Domain: Domain}}
	e.HostName = instance + ".local."
	e.Port = port
	e.Text = txt
	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		if parsed.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, parsed)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, parsed)
		}
	}
	return e
}

// fakeBrowse replaces the zeroconf browse with a scripted one.
func fakeBrowse(t *testing.T, script func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry)) {
	t.Helper()
	orig := browse
	browse = func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, _ []zeroconf.ClientOption) error {
		assert.Equal(t, ServiceType, service)
		assert.Equal(t, Domain, domain)
		script(ctx, entries, removed)
		<-ctx.Done()
		return nil
	}
	t.Cleanup(func() { browse = orig })
}

func send(ctx context.Context, ch chan *zeroconf.ServiceEntry, e *zeroconf.ServiceEntry) {
	select {
	case ch <- e:
	case <-ctx.Done():
	}
}

func TestBrowseAggregatesByInstance(t *testing.T) {
	fakeBrowse(t, func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) {
		txt := []string{"ver=1", "codecs=json,cbor"}
		send(ctx, entries, entry("devhub", 8080, txt, "192.168.1.5"))
		send(ctx, entries, entry("devhub", 8080, txt, "fe80::1"))
		send(ctx, entries, entry("broken", 8080, []string{"path=/x"}, "10.0.0.1"))
		send(ctx, entries, entry("other", 9090, []string{"ver=1", "tls=1"}, "10.0.0.2"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out := NewBrowser(DefaultBrowserConfig()).Browse(ctx)

	first := <-out
	require.NotNil(t, first)
	assert.Equal(t, "devhub", first.InstanceName)
	assert.Equal(t, []string{"192.168.1.5"}, first.Addresses)
	assert.Equal(t, []string{"json", "cbor"}, first.Info.Codecs)
	assert.Equal(t, uint16(8080), first.Info.Port)

	second := <-out
	require.NotNil(t, second)
	assert.Equal(t, "other", second.InstanceName)
	assert.True(t, second.Info.TLS)

	cancel()
	for range out {
	}
}

func TestBrowseReemitsAfterRemoval(t *testing.T) {
	fakeBrowse(t, func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) {
		e := entry("devhub", 8080, []string{"ver=1"}, "192.168.1.5")
		send(ctx, entries, e)
		send(ctx, removed, e)
		send(ctx, entries, entry("devhub", 8081, []string{"ver=1"}, "192.168.1.6"))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out := NewBrowser(BrowserConfig{}).Browse(ctx)

	first := <-out
	require.NotNil(t, first)
	second := <-out
	require.NotNil(t, second)
	assert.Equal(t, uint16(8081), second.Port)
	assert.Equal(t, []string{"192.168.1.6"}, second.Addresses)
}

func TestFind(t *testing.T) {
	fakeBrowse(t, func(ctx context.Context, entries, removed chan *zeroconf.ServiceEntry) {
		send(ctx, entries, entry("devhub", 8080, []string{"ver=1", "path=/api"}, "127.0.0.1"))
	})

	svc, err := NewBrowser(BrowserConfig{}).Find(context.Background())
	require.NoError(t, err)
	base, err := svc.BaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/api", base)
}

func TestFindTimesOut(t *testing.T) {
	fakeBrowse(t, func(context.Context, chan *zeroconf.ServiceEntry, chan *zeroconf.ServiceEntry) {})

	b := NewBrowser(BrowserConfig{BrowseTimeout: 20 * time.Millisecond})
	_, err := b.Find(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBrowseFailureClosesChannel(t *testing.T) {
	orig := browse
	browse = func(context.Context, string, string, chan *zeroconf.ServiceEntry, chan *zeroconf.ServiceEntry, []zeroconf.ClientOption) error {
		return errors.New("no multicast")
	}
	t.Cleanup(func() { browse = orig })

	out := NewBrowser(BrowserConfig{}).Browse(context.Background())
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("browse channel not closed")
	}
}

func TestBrowserStop(t *testing.T) {
	fakeBrowse(t, func(context.Context, chan *zeroconf.ServiceEntry, chan *zeroconf.ServiceEntry) {})

	b := NewBrowser(BrowserConfig{})
	out := b.Browse(context.Background())
	b.Stop()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not end the browse")
	}
}
