package discovery

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of channelize backends.
	ServiceType = "_channelize._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is used when an Info carries no port.
	DefaultPort = 8080

	// ProtocolVersion is advertised in the ver TXT key.
	ProtocolVersion = "1"
)

// TXT record keys.
const (
	TXTKeyVersion = "ver"
	TXTKeyPath    = "path"
	TXTKeyHub     = "hub"
	TXTKeyCodecs  = "codecs"
	TXTKeyTLS     = "tls"
)

// Timing and size limits.
const (
	// BrowseTimeout bounds Find when the caller's context has no deadline.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// Errors.
var (
	ErrMissingRequired     = errors.New("missing required field")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrEmptyInstanceName   = errors.New("instance name is empty")
	ErrNotFound            = errors.New("backend not found")
	ErrNoAddress           = errors.New("service has no address")
	ErrStopped             = errors.New("advertiser stopped")
)

// Info is what a backend advertises.
type Info struct {
	// Name is the instance name.
	Name string

	Port     uint16
	BasePath string
	HubPath  string
	Codecs   []string
	TLS      bool
	Version  string
}

// Service is a discovered backend.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16

	// Addresses holds IPv4 addresses before IPv6 ones.
	Addresses []string

	Info Info
}

// BaseURL returns the HTTP API root of the service, using its first address
// and falling back to the host name.
func (s *Service) BaseURL() (string, error) {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", ErrNoAddress
	}

	scheme := "http"
	if s.Info.TLS {
		scheme = "https"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(int(s.Port))),
		Path:   s.Info.BasePath,
	}
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String(), nil
}

// SupportsCodec reports whether the backend advertises codec. A backend
// advertising no codecs is assumed to speak json only.
func (s *Service) SupportsCodec(codec string) bool {
	if len(s.Info.Codecs) == 0 {
		return codec == "json"
	}
	for _, c := range s.Info.Codecs {
		if c == codec {
			return true
		}
	}
	return false
}
