package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/channelize/channelize-go/pkg/hub"
	"github.com/channelize/channelize-go/pkg/log"
	"github.com/channelize/channelize-go/pkg/wire"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotConnected     = errors.New("not connected")
	ErrStopped          = errors.New("connection stopped")
	ErrNoDialer         = errors.New("no dialer configured")
)

// ReconnectDelay is the fixed delay between entering StateDisconnected and
// the automatic Start.
const ReconnectDelay = 5 * time.Second

// Config configures a Connection.
type Config struct {
	// Dialer establishes the transport. Required.
	Dialer Dialer

	// Router receives inbound event frames. A new router is created if nil.
	Router *hub.Router

	// DisableReconnect turns off the automatic reconnect timer.
	DisableReconnect bool

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives capture events.
	ProtocolLogger log.Logger
}

// Connection is the hub push channel with its state machine.
type Connection struct {
	dialer  Dialer
	router  *hub.Router
	logger  *slog.Logger
	capture log.Logger

	// emitMu serializes transitions and the listener calls they trigger.
	emitMu sync.Mutex

	mu         sync.Mutex
	state      State
	connID     string
	transport  Transport
	gen        uint64
	stopping   bool
	closed     bool
	dialCancel context.CancelFunc
	timer      *time.Timer
	listeners  []*listener
	waiters    map[uint64]*Waiter
	nextID     uint64

	autoReconnect  bool
	reconnectDelay time.Duration

	reconnects atomic.Uint64
}

type listener struct {
	id             uint64
	onStateChange  func(old, new State)
	onConnected    func(connID string)
	onDisconnected func(cause error)
}

// New creates a disconnected Connection.
func New(cfg Config) *Connection {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Router == nil {
		cfg.Router = hub.NewRouter(hub.RouterConfig{
			Logger:         cfg.Logger,
			ProtocolLogger: cfg.ProtocolLogger,
		})
	}
	return &Connection{
		dialer:         cfg.Dialer,
		router:         cfg.Router,
		logger:         cfg.Logger,
		capture:        log.OrNoop(cfg.ProtocolLogger),
		waiters:        make(map[uint64]*Waiter),
		autoReconnect:  !cfg.DisableReconnect,
		reconnectDelay: ReconnectDelay,
	}
}

// Router returns the router that receives inbound frames.
func (c *Connection) Router() *hub.Router {
	return c.router
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the state is StateConnected.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// ConnectionID returns the connection identifier. ok is false unless connected.
func (c *Connection) ConnectionID() (id string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return "", false
	}
	return c.connID, true
}

// Reconnects returns the number of timer-initiated start attempts.
func (c *Connection) Reconnects() uint64 {
	return c.reconnects.Load()
}

// Start connects if the state is StateDisconnected and is a no-op otherwise.
// A dial failure is returned to this caller only; it still moves the
// connection back to StateDisconnected and schedules a reconnect.
func (c *Connection) Start(ctx context.Context) error {
	return c.start(ctx, StateConnecting)
}

func (c *Connection) start(ctx context.Context, via State) error {
	c.emitMu.Lock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.emitMu.Unlock()
		return ErrConnectionClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		c.emitMu.Unlock()
		return nil
	}
	if c.dialer == nil {
		c.mu.Unlock()
		c.emitMu.Unlock()
		return ErrNoDialer
	}
	c.stopTimerLocked()
	c.stopping = false
	dialCtx, cancel := context.WithCancel(ctx)
	c.dialCancel = cancel
	c.mu.Unlock()

	c.transition(via, nil)
	c.emitMu.Unlock()

	t, err := c.dialer.Dial(dialCtx)

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.dialCancel = nil
	stopping := c.stopping
	cancel()

	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("connection: dial failed", "error", err)
		c.transition(StateDisconnected, err)
		if !stopping {
			c.scheduleReconnect()
		}
		return fmt.Errorf("dial: %w", err)
	}

	if stopping || c.closed {
		c.mu.Unlock()
		_ = t.Close("stopped")
		c.transition(StateDisconnected, ErrStopped)
		return ErrStopped
	}

	c.gen++
	gen := c.gen
	c.transport = t
	c.connID = t.ConnectionID()
	c.mu.Unlock()

	c.capture.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.ConnectionID(),
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgHandshake},
	})
	c.transition(StateConnected, nil)

	go c.readLoop(t, gen)
	return nil
}

// Stop disconnects without scheduling a reconnect. A dial in progress is
// cancelled. Stop on a disconnected connection cancels any pending
// reconnect timer.
func (c *Connection) Stop() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.stopLocked("client stop")
}

// stopLocked requires emitMu.
func (c *Connection) stopLocked(reason string) {
	c.mu.Lock()
	c.stopping = true
	c.stopTimerLocked()
	if c.dialCancel != nil {
		c.dialCancel()
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	t := c.transport
	c.transport = nil
	c.gen++
	c.mu.Unlock()

	_ = t.Close(reason)
	c.transition(StateDisconnected, ErrStopped)
}

// Close stops the connection permanently. Outstanding waiters are cancelled
// and listeners are dropped.
func (c *Connection) Close() error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopLocked("client close")

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = make(map[uint64]*Waiter)
	c.listeners = nil
	c.mu.Unlock()

	for _, w := range waiters {
		w.cancel()
	}
	return nil
}

// Send invokes a hub method on the server.
func (c *Connection) Send(ctx context.Context, method string, payload any) error {
	c.mu.Lock()
	t := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || t == nil {
		return ErrNotConnected
	}

	msg, err := wire.EncodeEvent(t.Codec(), method, payload)
	if err != nil {
		return err
	}
	msg.Type = wire.MessageInvoke

	c.capture.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.ConnectionID(),
		Direction:    log.DirectionOut,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		HubFrame:     log.NewHubFrameEvent(method, msg.Payload),
	})
	return t.Write(ctx, msg)
}

// WaitConnected registers a one-shot waiter for StateConnected.
func (c *Connection) WaitConnected() *Waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	w := &Waiter{id: c.nextID, conn: c, ch: make(chan string, 1)}

	switch {
	case c.closed:
		w.cancel()
	case c.state == StateConnected:
		w.fire(c.connID)
	default:
		c.waiters[w.id] = w
	}
	return w
}

// Waiters returns the number of registered, unfired waiters.
func (c *Connection) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Connection) detachWaiter(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.waiters[id]; !ok {
		return false
	}
	delete(c.waiters, id)
	return true
}

// OnStateChange registers fn for every state transition.
func (c *Connection) OnStateChange(fn func(old, new State)) (cancel func()) {
	return c.addListener(&listener{onStateChange: fn})
}

// OnConnected registers fn for every entry into StateConnected.
func (c *Connection) OnConnected(fn func(connID string)) (cancel func()) {
	return c.addListener(&listener{onConnected: fn})
}

// OnDisconnected registers fn for every entry into StateDisconnected.
func (c *Connection) OnDisconnected(fn func(cause error)) (cancel func()) {
	return c.addListener(&listener{onDisconnected: fn})
}

func (c *Connection) addListener(l *listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	l.id = c.nextID
	ls := make([]*listener, len(c.listeners), len(c.listeners)+1)
	copy(ls, c.listeners)
	c.listeners = append(ls, l)

	var once sync.Once
	return func() {
		once.Do(func() { c.removeListener(l.id) })
	}
}

func (c *Connection) removeListener(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ls := make([]*listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		if l.id != id {
			ls = append(ls, l)
		}
	}
	c.listeners = ls
}

// transition requires emitMu.
func (c *Connection) transition(to State, cause error) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	if to != StateConnected {
		c.connID = ""
	}
	connID := c.connID

	var fired []*Waiter
	if to == StateConnected {
		for id, w := range c.waiters {
			delete(c.waiters, id)
			fired = append(fired, w)
		}
	}
	listeners := c.listeners
	c.mu.Unlock()

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	c.logger.Info("connection: state change",
		"from", from.String(),
		"to", to.String(),
		"conn_id", connID,
		"reason", reason)
	c.capture.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionNone,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})

	for _, w := range fired {
		w.fire(connID)
	}

	for _, l := range listeners {
		if l.onStateChange != nil {
			l.onStateChange(from, to)
		}
		if to == StateConnected && l.onConnected != nil {
			l.onConnected(connID)
		}
		if to == StateDisconnected && l.onDisconnected != nil {
			l.onDisconnected(cause)
		}
	}
}

// scheduleReconnect requires emitMu.
func (c *Connection) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.autoReconnect || c.closed {
		return
	}
	c.stopTimerLocked()

	var t *time.Timer
	t = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		if c.timer != t {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.mu.Unlock()

		c.reconnects.Add(1)
		if err := c.start(context.Background(), StateReconnecting); err != nil {
			c.logger.Warn("connection: reconnect failed", "error", err)
		}
	})
	c.timer = t
}

func (c *Connection) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) readLoop(t Transport, gen uint64) {
	ctx := context.Background()
	for {
		msg, err := t.Read(ctx)
		if err != nil {
			c.dropped(gen, err)
			return
		}

		switch msg.Type {
		case wire.MessageEvent:
			f, err := hub.NewFrame(t.Codec(), msg, t.ConnectionID())
			if err != nil {
				c.logger.Warn("connection: malformed event frame", "event", msg.Event, "error", err)
				c.capture.Log(log.Event{
					Timestamp:    time.Now(),
					ConnectionID: t.ConnectionID(),
					Direction:    log.DirectionIn,
					Layer:        log.LayerTransport,
					Category:     log.CategoryError,
					Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error(), Context: msg.Event},
				})
				continue
			}
			c.router.Dispatch(f)

		case wire.MessagePing:
			c.captureControl(t, log.DirectionIn, log.ControlMsgPing, "")
			if err := t.Write(ctx, &wire.Message{Type: wire.MessagePong}); err != nil {
				c.logger.Debug("connection: failed to answer ping", "error", err)
			}
			c.captureControl(t, log.DirectionOut, log.ControlMsgPong, "")

		case wire.MessagePong:
			c.captureControl(t, log.DirectionIn, log.ControlMsgPong, "")

		case wire.MessageClose:
			c.captureControl(t, log.DirectionIn, log.ControlMsgClose, msg.Error)
			_ = t.Close(msg.Error)
			c.dropped(gen, fmt.Errorf("server closed connection: %s", msg.Error))
			return

		default:
			c.logger.Debug("connection: ignoring message", "type", msg.Type.String())
		}
	}
}

func (c *Connection) captureControl(t Transport, dir log.Direction, typ log.ControlMsgType, reason string) {
	c.capture.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.ConnectionID(),
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: typ, Reason: reason},
	})
}

// dropped handles loss of the transport of generation gen.
func (c *Connection) dropped(gen uint64, cause error) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	t := c.transport
	c.transport = nil
	stopping := c.stopping
	c.mu.Unlock()

	if t != nil {
		_ = t.Close("lost")
	}
	c.transition(StateDisconnected, cause)
	if !stopping {
		c.scheduleReconnect()
	}
}
