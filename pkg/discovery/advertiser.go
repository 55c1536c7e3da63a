package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL: 120 * time.Second,
	}
}

type registration interface {
	Shutdown()
}

// register is replaced in tests.
var register = func(instance, service, domain string, port int, txt []string, ifaces []net.Interface, opts []zeroconf.ServerOption) (registration, error) {
	server, err := zeroconf.Register(instance, service, domain, port, txt, ifaces, opts...)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// Advertiser announces one backend instance.
type Advertiser struct {
	config AdvertiserConfig
	logger *slog.Logger

	mu      sync.Mutex
	server  registration
	info    *Info
	stopped bool
}

// NewAdvertiser creates an advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Advertiser{config: config, logger: logger}
}

// Advertise starts announcing info, replacing any earlier announcement.
func (a *Advertiser) Advertise(info *Info) error {
	if err := ValidateInstanceName(info.Name); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrStopped
	}
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := register(info.Name, ServiceType, Domain, port, TXTRecordsToStrings(EncodeTXT(info)), a.interfaces(), opts)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}

	stored := *info
	stored.Port = uint16(port)
	a.server = server
	a.info = &stored
	a.logger.Info("discovery: advertising", "instance", info.Name, "port", port)
	return nil
}

// Current returns the advertised info, if any.
func (a *Advertiser) Current() (Info, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.info == nil {
		return Info{}, false
	}
	return *a.info, true
}

// Stop withdraws the announcement. Advertise fails afterwards.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	a.info = nil
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// interfaces returns nil to use all interfaces.
func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
