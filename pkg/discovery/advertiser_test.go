package discovery

import (
	"errors"
	"net"
	"sort"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistration struct {
	instance string
	port     int
	txt      []string
	shutdown int
}

func (r *fakeRegistration) Shutdown() { r.shutdown++ }

func fakeRegister(t *testing.T, fail error) *[]*fakeRegistration {
	t.Helper()
	var regs []*fakeRegistration
	orig := register
	register = func(instance, service, domain string, port int, txt []string, _ []net.Interface, _ []zeroconf.ServerOption) (registration, error) {
		if fail != nil {
			return nil, fail
		}
		assert.Equal(t, ServiceType, service)
		assert.Equal(t, Domain, domain)
		r := &fakeRegistration{instance: instance, port: port, txt: txt}
		regs = append(regs, r)
		return r, nil
	}
	t.Cleanup(func() { register = orig })
	return &regs
}

func TestAdvertise(t *testing.T) {
	regs := fakeRegister(t, nil)
	a := NewAdvertiser(DefaultAdvertiserConfig())

	require.NoError(t, a.Advertise(&Info{Name: "devhub", Codecs: []string{"json"}}))
	require.Len(t, *regs, 1)
	r := (*regs)[0]
	assert.Equal(t, "devhub", r.instance)
	assert.Equal(t, DefaultPort, r.port)
	sort.Strings(r.txt)
	assert.Equal(t, []string{"codecs=json", "ver=1"}, r.txt)

	cur, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, uint16(DefaultPort), cur.Port)

	// Re-advertising replaces the registration.
	require.NoError(t, a.Advertise(&Info{Name: "devhub", Port: 9000}))
	require.Len(t, *regs, 2)
	assert.Equal(t, 1, r.shutdown)

	a.Stop()
	assert.Equal(t, 1, (*regs)[1].shutdown)
	_, ok = a.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, a.Advertise(&Info{Name: "devhub"}), ErrStopped)
}

func TestAdvertiseErrors(t *testing.T) {
	boom := errors.New("bind failed")
	fakeRegister(t, boom)
	a := NewAdvertiser(AdvertiserConfig{})

	assert.ErrorIs(t, a.Advertise(&Info{}), ErrEmptyInstanceName)
	assert.ErrorIs(t, a.Advertise(&Info{Name: "devhub"}), boom)
	_, ok := a.Current()
	assert.False(t, ok)
}
