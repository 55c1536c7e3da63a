package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/channelize/channelize-go/pkg/auth"
	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/connection"
	"github.com/channelize/channelize-go/pkg/hub"
	"github.com/channelize/channelize-go/pkg/log"
	"github.com/channelize/channelize-go/pkg/notify"
	"github.com/channelize/channelize-go/pkg/rest"
	"github.com/channelize/channelize-go/pkg/wire"
)

// ErrNoHubURL is returned by New when neither HubURL nor Dialer is set.
var ErrNoHubURL = errors.New("hub URL is required")

// Config configures a Client.
type Config struct {
	// BaseURL is the REST API root. Required.
	BaseURL string

	// HubURL is the websocket endpoint. Required unless Dialer is set.
	HubURL string

	// Codec is the preferred wire codec. Defaults to wire.JSON.
	Codec wire.Codec

	// Tokens supplies the bearer token for both the hub and REST calls.
	Tokens auth.TokenSource

	// HTTPClient is shared by the REST client and the websocket upgrade.
	HTTPClient *http.Client

	// Dialer overrides the websocket dialer.
	Dialer connection.Dialer

	// DisableReconnect turns off the automatic reconnect.
	DisableReconnect bool

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives capture events.
	ProtocolLogger log.Logger

	// Observer receives manager metrics. Optional.
	Observer channel.Observer

	// Reporter receives terminal subscription errors. Optional.
	Reporter channel.ErrorReporter

	// NotifyBuffer is the per-subscriber notification buffer.
	NotifyBuffer int

	// OnDrop is called for every notification dropped on a full subscriber.
	OnDrop func(event, tag string)
}

// Client wires one hub connection and one REST client to every domain proxy.
type Client struct {
	conn *connection.Connection
	rest *rest.Client

	Events        *Events
	Commands      *Commands
	Systems       *Systems
	Sessions      *Sessions
	Licenses      *Licenses
	OperatorTasks *OperatorTasks
	UserRoles     *UserRoles

	handles map[string]Handle
	closers []func()
}

// New creates a Client. The connection is started lazily by the first
// subscribe call, or explicitly with Start.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Codec == nil {
		cfg.Codec = wire.JSON
	}

	dialer := cfg.Dialer
	if dialer == nil {
		if cfg.HubURL == "" {
			return nil, ErrNoHubURL
		}
		// The upgrade is bounded by the dial context; websocket rejects
		// clients with a Timeout.
		upgrade := cfg.HTTPClient
		if upgrade != nil && upgrade.Timeout > 0 {
			cp := *upgrade
			cp.Timeout = 0
			upgrade = &cp
		}
		dialer = &connection.WebSocketDialer{
			URL:        cfg.HubURL,
			Codec:      cfg.Codec,
			Tokens:     cfg.Tokens,
			HTTPClient: upgrade,
		}
	}

	rc, err := rest.New(rest.Config{
		BaseURL:        cfg.BaseURL,
		HTTPClient:     cfg.HTTPClient,
		Tokens:         cfg.Tokens,
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("rest client: %w", err)
	}

	conn := connection.New(connection.Config{
		Dialer:           dialer,
		DisableReconnect: cfg.DisableReconnect,
		Logger:           cfg.Logger,
		ProtocolLogger:   cfg.ProtocolLogger,
	})

	c := &Client{
		conn:    conn,
		rest:    rc,
		handles: make(map[string]Handle),
	}

	events, err := newProxy(c, cfg, EventsDomain(), NotifyEvents, eventsFromKeys)
	if err != nil {
		return nil, c.abort(err)
	}
	events.resub = NewResubscriber(events.mgr, conn, cfg.Logger)
	c.Events = &Events{
		Proxy:    events,
		messages: hub.NewEventChannel(conn.Router(), EventEvents, "", EventsUnion().Decode),
	}
	c.closers = append(c.closers, c.Events.messages.Close)

	commands, err := newProxy(c, cfg, CommandsDomain(), NotifyCommands, commandsFromKeys)
	if err != nil {
		return nil, c.abort(err)
	}
	c.Commands = &Commands{commands}

	systems, err := newProxy(c, cfg, SystemsDomain(), NotifySystems, noKeys[SystemsArgs])
	if err != nil {
		return nil, c.abort(err)
	}
	systems.resub = NewResubscriber(systems.mgr, conn, cfg.Logger)
	c.Systems = &Systems{systems}

	sessions, err := newProxy(c, cfg, SessionsDomain(), NotifySessions, sessionsFromKeys)
	if err != nil {
		return nil, c.abort(err)
	}
	c.Sessions = &Sessions{sessions}

	licenses, err := newProxy(c, cfg, LicensesDomain(), NotifyLicenses, noKeys[LicensesArgs])
	if err != nil {
		return nil, c.abort(err)
	}
	c.Licenses = &Licenses{licenses}

	tasks, err := newProxy(c, cfg, OperatorTasksDomain(), NotifyOperatorTasks, operatorTasksFromKeys)
	if err != nil {
		return nil, c.abort(err)
	}
	c.OperatorTasks = &OperatorTasks{tasks}

	roles, err := newProxy(c, cfg, UserRolesDomain(), NotifyUserRoles, noKeys[UserRolesArgs])
	if err != nil {
		return nil, c.abort(err)
	}
	c.UserRoles = &UserRoles{roles}

	return c, nil
}

func newProxy[A, R any](c *Client, cfg Config, d channel.Domain[A, R], notifyTag string, fromKeys func([]string) (A, error)) (*Proxy[A, R], error) {
	mgr, err := channel.New(d, channel.Config{
		Conn:           c.conn,
		Requester:      c.rest,
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
		Observer:       cfg.Observer,
		Reporter:       cfg.Reporter,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	p := &Proxy[A, R]{
		mgr: mgr,
		sink: notify.New(c.conn.Router(), d.Event, notifyTag, hub.DecodeAs[Change](), notify.Config{
			Buffer: cfg.NotifyBuffer,
			Logger: cfg.Logger,
			OnDrop: cfg.OnDrop,
		}),
		fromKeys: fromKeys,
	}
	c.handles[d.Name] = p
	c.closers = append(c.closers, p.close)
	return p, nil
}

func (c *Client) abort(err error) error {
	_ = c.Close()
	return err
}

// Connection returns the hub connection.
func (c *Client) Connection() *connection.Connection { return c.conn }

// Start connects to the hub.
func (c *Client) Start(ctx context.Context) error {
	return c.conn.Start(ctx)
}

// Close fails every outstanding operation, closes the notification sinks
// and the hub connection.
func (c *Client) Close() error {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	return c.conn.Close()
}

// Domains returns the domain names in sorted order.
func (c *Client) Domains() []string {
	names := make([]string, 0, len(c.handles))
	for name := range c.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle returns the proxy for the domain name.
func (c *Client) Handle(name string) (Handle, error) {
	h, ok := c.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return h, nil
}
