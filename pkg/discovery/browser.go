package discovery

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// Logger receives malformed-entry warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// browse is replaced in tests.
var browse = func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts []zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
}

// Browser searches for channelize backends.
type Browser struct {
	config BrowserConfig
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{
		config:  config,
		logger:  logger,
		cancels: make(map[int]context.CancelFunc),
	}
}

// Browse emits every backend found until ctx ends or Stop is called.
// Each instance name is emitted once. Addresses seen later on other
// interfaces are tracked internally, and a service that loses all its
// addresses is forgotten so that it is emitted again when it reappears.
func (b *Browser) Browse(ctx context.Context) <-chan *Service {
	ctx, cancel := context.WithCancel(ctx)
	id := b.track(cancel)

	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		defer b.untrack(id)

		services := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := b.entryToService(entry)
				if svc == nil {
					continue
				}
				if existing, found := services[svc.InstanceName]; found {
					// The emitted value belongs to the consumer now.
					merged := *existing
					merged.Addresses = mergeAddresses(append([]string(nil), existing.Addresses...), svc.Addresses)
					services[svc.InstanceName] = &merged
					continue
				}
				services[svc.InstanceName] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if existing, found := services[entry.Instance]; found {
					remaining := *existing
					remaining.Addresses = removeAddresses(existing.Addresses, entry)
					if len(remaining.Addresses) == 0 {
						delete(services, entry.Instance)
					} else {
						services[entry.Instance] = &remaining
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := browse(ctx, ServiceType, Domain, entries, removed, b.options()); err != nil {
			b.logger.Warn("discovery: browse failed", "error", err)
			cancel()
		}
	}()

	return out
}

// Find returns the first backend found. It returns ErrNotFound if none
// answers before ctx ends or the browse timeout elapses.
func (b *Browser) Find(ctx context.Context) (*Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, ok := <-b.Browse(ctx)
	if !ok {
		return nil, ErrNotFound
	}
	return svc, nil
}

// Stop ends every active browse.
func (b *Browser) Stop() {
	b.mu.Lock()
	cancels := b.cancels
	b.cancels = make(map[int]context.CancelFunc)
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (b *Browser) track(cancel context.CancelFunc) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.cancels[b.nextID] = cancel
	return b.nextID
}

func (b *Browser) untrack(id int) {
	b.mu.Lock()
	cancel := b.cancels[id]
	delete(b.cancels, id)
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryToService converts a zeroconf entry, returning nil if its TXT
// records are unusable.
func (b *Browser) entryToService(entry *zeroconf.ServiceEntry) *Service {
	info, err := DecodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		b.logger.Debug("discovery: ignoring entry", "instance", entry.Instance, "error", err)
		return nil
	}
	info.Name = entry.Instance
	info.Port = uint16(entry.Port)

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Service{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    addrs,
		Info:         *info,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range add {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses of entry from addresses.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
