package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/channelize/channelize-go/pkg/connection"
	"github.com/channelize/channelize-go/pkg/hub"
	"github.com/channelize/channelize-go/pkg/log"
	"github.com/channelize/channelize-go/pkg/rest"
	"github.com/channelize/channelize-go/pkg/subscription"
)

// Connection is the part of the hub connection a Manager uses.
type Connection interface {
	ConnectionID() (string, bool)
	Start(ctx context.Context) error
	WaitConnected() *connection.Waiter
	OnDisconnected(fn func(cause error)) (cancel func())
	Router() *hub.Router
}

// Requester issues the HTTP calls.
type Requester interface {
	Subscribe(ctx context.Context, call rest.SubscribeCall) error
	Unsubscribe(ctx context.Context, call rest.UnsubscribeCall) error
}

// Config wires a Manager to its collaborators.
type Config struct {
	// Conn is the hub connection. Required.
	Conn Connection

	// Requester issues HTTP calls. Required.
	Requester Requester

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives context lifecycle and correlation events.
	ProtocolLogger log.Logger

	// Observer receives metrics events. Optional.
	Observer Observer

	// Reporter receives terminal errors. Optional.
	Reporter ErrorReporter
}

// Config errors.
var (
	ErrNoConnection = errors.New("connection is required")
	ErrNoRequester  = errors.New("requester is required")
)

type opKind uint8

const (
	opSubscribe opKind = iota
	opUnsubscribe
)

func (k opKind) String() string {
	if k == opUnsubscribe {
		return "unsubscribe"
	}
	return "subscribe"
}

// op is one tracked request.
type op[A, R any] struct {
	seq     uint64
	id      string
	kind    opKind
	args    A
	query   url.Values
	created time.Time

	sub   *subscription.Context[R]
	unsub *subscription.Stream[bool]

	waiter      *connection.Waiter
	stopAbandon func() bool
}

func (o *op[A, R]) fail(err error) bool {
	if o.sub != nil {
		return o.sub.Fail(err)
	}
	return o.unsub.Finish(err)
}

// Manager orchestrates subscribe and unsubscribe calls for one domain.
type Manager[A, R any] struct {
	domain    Domain[A, R]
	conn      Connection
	requester Requester
	logger    *slog.Logger
	capture   log.Logger
	observer  Observer
	reporter  ErrorReporter

	seq atomic.Uint64

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	pending  map[string]*op[A, R]
	invoked  map[string]*op[A, R]
	closed   bool
	detaches []func()

	misses atomic.Uint64
}

// New creates a Manager and attaches it to the connection's router.
func New[A, R any](d Domain[A, R], cfg Config) (*Manager[A, R], error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if cfg.Conn == nil {
		return nil, ErrNoConnection
	}
	if cfg.Requester == nil {
		return nil, ErrNoRequester
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager[A, R]{
		domain:     d,
		conn:       cfg.Conn,
		requester:  cfg.Requester,
		logger:     cfg.Logger.With("domain", d.Name),
		capture:    log.OrNoop(cfg.ProtocolLogger),
		observer:   cfg.Observer,
		reporter:   cfg.Reporter,
		baseCtx:    ctx,
		cancelBase: cancel,
		pending:    make(map[string]*op[A, R]),
		invoked:    make(map[string]*op[A, R]),
	}

	m.detaches = append(m.detaches,
		cfg.Conn.Router().Listen(d.Event, d.Tag, m.handleFrame),
		cfg.Conn.OnDisconnected(m.onDisconnected),
	)
	return m, nil
}

// Domain returns the domain name.
func (m *Manager[A, R]) Domain() string {
	return m.domain.Name
}

func (m *Manager[A, R]) nextID() (uint64, string) {
	seq := m.seq.Add(1)
	return seq, strconv.FormatUint(seq, 10)
}

// Subscribe issues a correlated subscribe call for args and returns the
// stream of confirmations. The stream ends successfully once every
// expected confirmation has arrived. Ending ctx abandons the request.
func (m *Manager[A, R]) Subscribe(ctx context.Context, args A) *subscription.Stream[subscription.Reply[R]] {
	if m.domain.Validate != nil {
		if err := m.domain.Validate(args); err != nil {
			return subscription.Failed[subscription.Reply[R]](fmt.Errorf("%w: %v", ErrInvalidArgument, err))
		}
	}

	seq, id := m.nextID()
	var sctx *subscription.Context[R]
	if m.domain.Keys == nil {
		sctx = subscription.NewSingle[R](id)
	} else {
		var err error
		sctx, err = subscription.NewMulti[R](id, m.domain.Keys(args))
		if err != nil {
			return subscription.Failed[subscription.Reply[R]](fmt.Errorf("%w: %v", ErrInvalidArgument, err))
		}
	}

	o := &op[A, R]{seq: seq, id: id, kind: opSubscribe, args: args, sub: sctx, created: sctx.Created()}
	m.track(ctx, o)
	return sctx.Stream()
}

// Unsubscribe issues the unsubscribe call for this connection. The stream
// yields true and ends when the HTTP call succeeds, or ends with an error.
func (m *Manager[A, R]) Unsubscribe(ctx context.Context, query url.Values) *subscription.Stream[bool] {
	seq, id := m.nextID()
	o := &op[A, R]{
		seq:     seq,
		id:      id,
		kind:    opUnsubscribe,
		query:   query,
		unsub:   subscription.NewStream[bool](),
		created: time.Now(),
	}
	m.track(ctx, o)
	return o.unsub
}

// track places o in the invoked or pending set and starts the HTTP call or
// the wait for the connection.
func (m *Manager[A, R]) track(ctx context.Context, o *op[A, R]) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		o.fail(ErrManagerClosed)
		return
	}

	connID, connected := m.conn.ConnectionID()
	var waiter *connection.Waiter
	if connected {
		m.invoked[o.id] = o
	} else {
		waiter = m.conn.WaitConnected()
		o.waiter = waiter
		m.pending[o.id] = o
	}
	m.sizesLocked()
	o.stopAbandon = context.AfterFunc(ctx, func() { m.abandon(ctx, o) })
	m.mu.Unlock()

	if connected {
		m.captureState(o, connID, "", "INVOKED", "")
		m.logger.Debug("channel: invoking", "request_id", o.id, "op", o.kind.String(), "conn_id", connID)
		go m.invoke(o, connID)
		return
	}

	m.captureState(o, "", "", "PENDING", "not connected")
	m.logger.Debug("channel: parked until connected", "request_id", o.id, "op", o.kind.String())
	go m.park(o, waiter)
	go m.ensureStarted()
}

func (m *Manager[A, R]) ensureStarted() {
	err := m.conn.Start(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrConnectionClosed):
		// park fails the request.
		m.logger.Debug("channel: connection closed, not starting")
	default:
		m.logger.Warn("channel: start failed", "error", err)
	}
}

// park waits for the connected pulse and moves o to the invoked set. A
// waiter closed without a pulse means o was abandoned, the manager closed
// or the connection closed; only the last leaves o pending.
func (m *Manager[A, R]) park(o *op[A, R], w *connection.Waiter) {
	for {
		connID, ok := <-w.C()
		if !ok {
			m.mu.Lock()
			if !m.removeLocked(o) {
				m.mu.Unlock()
				return
			}
			o.waiter = nil
			err := fmt.Errorf("%w: %w", ErrChannelDisconnected, connection.ErrConnectionClosed)
			m.terminateLocked(o, err)
			m.mu.Unlock()
			m.finished(o, "", err)
			return
		}

		m.mu.Lock()
		if m.pending[o.id] != o {
			m.mu.Unlock()
			return
		}
		cur, connected := m.conn.ConnectionID()
		if !connected {
			// Dropped again between the pulse and here.
			w = m.conn.WaitConnected()
			o.waiter = w
			m.mu.Unlock()
			continue
		}
		// A later connect may have replaced the pulsed identifier.
		connID = cur
		delete(m.pending, o.id)
		m.invoked[o.id] = o
		o.waiter = nil
		m.sizesLocked()
		m.mu.Unlock()

		m.captureState(o, connID, "PENDING", "INVOKED", "")
		m.logger.Debug("channel: invoking parked request", "request_id", o.id, "op", o.kind.String(), "conn_id", connID)
		m.invoke(o, connID)
		return
	}
}

// invoke issues the HTTP call for o on connection connID.
func (m *Manager[A, R]) invoke(o *op[A, R], connID string) {
	var err error
	switch o.kind {
	case opSubscribe:
		var req Request
		if m.domain.Request != nil {
			req = m.domain.Request(o.args)
		}
		err = m.requester.Subscribe(m.baseCtx, rest.SubscribeCall{
			Domain:       m.domain.Name,
			RequestID:    o.id,
			ConnectionID: connID,
			Extra:        req.Path,
			Query:        req.Query,
			Body:         req.Body,
		})
	case opUnsubscribe:
		err = m.requester.Unsubscribe(m.baseCtx, rest.UnsubscribeCall{
			Domain:       m.domain.Name,
			RequestID:    o.id,
			ConnectionID: connID,
			Query:        o.query,
		})
	}
	m.observer.HTTPCall(m.domain.Name, o.kind.String(), err)

	m.mu.Lock()
	if err != nil {
		if !m.removeLocked(o) {
			m.mu.Unlock()
			return
		}
		rejected := fmt.Errorf("%w: %w", ErrTransportRejected, err)
		m.terminateLocked(o, rejected)
		m.mu.Unlock()
		m.finished(o, connID, rejected)
		return
	}

	if o.kind == opUnsubscribe {
		if !m.removeLocked(o) {
			m.mu.Unlock()
			return
		}
		o.unsub.Push(true)
		m.terminateLocked(o, nil)
		m.mu.Unlock()
		m.finished(o, connID, nil)
		return
	}
	m.mu.Unlock()
}

// handleFrame routes a confirmation frame to its invoked context.
func (m *Manager[A, R]) handleFrame(f hub.Frame) {
	id := f.Header.RequestID
	if id == "" {
		return
	}

	m.mu.Lock()
	o, ok := m.invoked[id]
	if !ok {
		m.mu.Unlock()
		m.correlationMiss(f)
		return
	}
	if o.kind == opUnsubscribe {
		m.mu.Unlock()
		m.logger.Debug("channel: ignoring frame for unsubscribe request", "request_id", id)
		return
	}

	if f.Header.IsError() {
		delete(m.invoked, id)
		rerr := &ReplyError{Domain: m.domain.Name, RequestID: id, RequestFor: f.Header.RequestFor, Code: f.Header.ErrorCode}
		m.terminateLocked(o, rerr)
		m.mu.Unlock()
		m.finished(o, f.ConnectionID, rerr)
		return
	}

	key, reply, err := m.domain.Decode(f)
	if err != nil {
		delete(m.invoked, id)
		merr := fmt.Errorf("%w: %v", ErrMalformedReply, err)
		m.terminateLocked(o, merr)
		m.mu.Unlock()
		m.finished(o, f.ConnectionID, merr)
		return
	}

	complete, err := o.sub.SetReply(key, reply)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("channel: reply rejected", "request_id", id, "key", key, "error", err)
		return
	}
	if complete {
		delete(m.invoked, id)
		m.terminateLocked(o, nil)
	}
	m.mu.Unlock()

	m.observer.Reply(m.domain.Name)
	if complete {
		m.finished(o, f.ConnectionID, nil)
	}
}

func (m *Manager[A, R]) correlationMiss(f hub.Frame) {
	m.misses.Add(1)
	m.observer.CorrelationMiss(m.domain.Name)
	m.logger.Warn("channel: correlation miss",
		"request_id", f.Header.RequestID,
		"request_for", f.Header.RequestFor,
		"conn_id", f.ConnectionID)
	m.capture.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: f.ConnectionID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerManager,
		Category:     log.CategoryError,
		Domain:       m.domain.Name,
		RequestID:    f.Header.RequestID,
		Error: &log.ErrorEventData{
			Layer:   log.LayerManager,
			Message: ErrCorrelationMiss.Error(),
			Context: f.Event,
		},
	})
}

// onDisconnected fails every invoked context. Pending contexts stay parked.
func (m *Manager[A, R]) onDisconnected(error) {
	m.mu.Lock()
	failed := make([]*op[A, R], 0, len(m.invoked))
	for id, o := range m.invoked {
		delete(m.invoked, id)
		failed = append(failed, o)
	}
	for _, o := range failed {
		m.terminateLocked(o, ErrChannelDisconnected)
	}
	m.mu.Unlock()

	if len(failed) > 0 {
		m.logger.Info("channel: failed invoked requests on disconnect", "count", len(failed))
	}
	for _, o := range failed {
		m.finished(o, "", ErrChannelDisconnected)
	}
}

// abandon fails o when the caller's context ends.
func (m *Manager[A, R]) abandon(ctx context.Context, o *op[A, R]) {
	m.mu.Lock()
	if !m.removeLocked(o) {
		m.mu.Unlock()
		return
	}
	if o.waiter != nil {
		o.waiter.Stop()
		o.waiter = nil
	}
	err := fmt.Errorf("%w: %w", ErrAbandoned, context.Cause(ctx))
	m.terminateLocked(o, err)
	m.mu.Unlock()

	m.finished(o, "", err)
}

// removeLocked removes o from whichever set holds it and reports whether it was tracked.
func (m *Manager[A, R]) removeLocked(o *op[A, R]) bool {
	if m.invoked[o.id] == o {
		delete(m.invoked, o.id)
		return true
	}
	if m.pending[o.id] == o {
		delete(m.pending, o.id)
		return true
	}
	return false
}

// terminateLocked ends o after it has been removed from both sets.
func (m *Manager[A, R]) terminateLocked(o *op[A, R], err error) {
	if err != nil {
		o.fail(err)
	} else if o.unsub != nil {
		o.unsub.Finish(nil)
	}
	if o.stopAbandon != nil {
		o.stopAbandon()
	}
	m.sizesLocked()
}

func (m *Manager[A, R]) sizesLocked() {
	m.observer.Sizes(m.domain.Name, len(m.pending), len(m.invoked))
}

// finished records the outcome of o outside the lock.
func (m *Manager[A, R]) finished(o *op[A, R], connID string, err error) {
	m.observer.Terminated(m.domain.Name, err)
	if err == nil {
		m.captureState(o, connID, "INVOKED", "COMPLETED", "")
		m.logger.Debug("channel: request completed", "request_id", o.id, "op", o.kind.String())
		return
	}
	m.captureState(o, connID, "", "FAILED", err.Error())
	m.logger.Info("channel: request failed", "request_id", o.id, "op", o.kind.String(), "error", err)
	if m.reporter != nil && !errors.Is(err, ErrAbandoned) {
		m.reporter.Report(m.domain.Name, err)
	}
}

func (m *Manager[A, R]) captureState(o *op[A, R], connID, from, to, reason string) {
	m.capture.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionNone,
		Layer:        log.LayerManager,
		Category:     log.CategoryState,
		Domain:       m.domain.Name,
		RequestID:    o.id,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

// PendingCount returns the number of parked contexts.
func (m *Manager[A, R]) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// InvokedCount returns the number of contexts awaiting confirmation.
func (m *Manager[A, R]) InvokedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoked)
}

// CorrelationMisses returns the number of frames that matched no context.
func (m *Manager[A, R]) CorrelationMisses() uint64 {
	return m.misses.Load()
}

// ContextInfo describes one tracked request.
type ContextInfo struct {
	ID       string
	Op       string
	State    string
	Keys     []string
	Received int
	Age      time.Duration
}

// Snapshot lists tracked requests ordered by ID.
func (m *Manager[A, R]) Snapshot() []ContextInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	type tracked struct {
		o     *op[A, R]
		state string
	}
	all := make([]tracked, 0, len(m.pending)+len(m.invoked))
	for _, o := range m.pending {
		all = append(all, tracked{o, "pending"})
	}
	for _, o := range m.invoked {
		all = append(all, tracked{o, "invoked"})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].o.seq < all[j].o.seq })

	now := time.Now()
	out := make([]ContextInfo, len(all))
	for i, t := range all {
		out[i] = ContextInfo{ID: t.o.id, Op: t.o.kind.String(), State: t.state, Age: now.Sub(t.o.created)}
		if t.o.sub != nil {
			out[i].Keys = t.o.sub.RequestedKeys()
			out[i].Received = t.o.sub.Received()
		}
	}
	return out
}

// Close fails every tracked context with ErrManagerClosed and detaches the
// manager from the connection.
func (m *Manager[A, R]) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	all := make([]*op[A, R], 0, len(m.pending)+len(m.invoked))
	for _, o := range m.pending {
		all = append(all, o)
	}
	for _, o := range m.invoked {
		all = append(all, o)
	}
	m.pending = make(map[string]*op[A, R])
	m.invoked = make(map[string]*op[A, R])
	for _, o := range all {
		if o.waiter != nil {
			o.waiter.Stop()
			o.waiter = nil
		}
		m.terminateLocked(o, ErrManagerClosed)
	}
	detaches := m.detaches
	m.detaches = nil
	m.mu.Unlock()

	for _, d := range detaches {
		d()
	}
	m.cancelBase()
	for _, o := range all {
		m.finished(o, "", ErrManagerClosed)
	}
	return nil
}
