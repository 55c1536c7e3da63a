package proxy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/subscription"
)

// ReconnectSource reports connection pulses.
type ReconnectSource interface {
	OnConnected(fn func(connID string)) (cancel func())
	OnDisconnected(fn func(cause error)) (cancel func())
}

// Resubscriber re-issues the last successful subscription of a domain on
// the first connect after the connection was lost. Subscriptions that never
// completed are not re-issued; callers see their failure instead.
type Resubscriber[A, R any] struct {
	mgr    *channel.Manager[A, R]
	logger *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	detach  []func()
	onRetry func(s *subscription.Stream[subscription.Reply[R]])

	mu     sync.Mutex
	args   A
	active bool
	lost   bool
	gen    uint64

	reissued atomic.Uint64
}

// NewResubscriber attaches a Resubscriber for mgr to src.
func NewResubscriber[A, R any](mgr *channel.Manager[A, R], src ReconnectSource, logger *slog.Logger) *Resubscriber[A, R] {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resubscriber[A, R]{
		mgr:    mgr,
		logger: logger.With("domain", mgr.Domain()),
		ctx:    ctx,
		cancel: cancel,
	}
	r.detach = []func(){
		src.OnDisconnected(r.onDisconnected),
		src.OnConnected(r.onConnected),
	}
	return r
}

// OnReissue registers fn to receive the stream of every re-issued
// subscription. It replaces any earlier registration.
func (r *Resubscriber[A, R]) OnReissue(fn func(s *subscription.Stream[subscription.Reply[R]])) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRetry = fn
}

// Subscribe subscribes through the manager and remembers args once the
// subscription completes.
func (r *Resubscriber[A, R]) Subscribe(ctx context.Context, args A) *subscription.Stream[subscription.Reply[R]] {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	s := r.mgr.Subscribe(ctx, args)
	go r.watch(s, args, gen)
	return s
}

func (r *Resubscriber[A, R]) watch(s *subscription.Stream[subscription.Reply[R]], args A, gen uint64) {
	select {
	case <-s.Done():
	case <-r.ctx.Done():
		return
	}
	if s.Err() != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen == gen {
		r.args = args
		r.active = true
	}
}

// Active reports whether a subscription is remembered.
func (r *Resubscriber[A, R]) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Reissued returns how many subscriptions were re-issued.
func (r *Resubscriber[A, R]) Reissued() uint64 {
	return r.reissued.Load()
}

// Forget stops re-issuing the remembered subscription.
func (r *Resubscriber[A, R]) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.active = false
	r.lost = false
	var zero A
	r.args = zero
}

// Close detaches from the connection.
func (r *Resubscriber[A, R]) Close() {
	r.cancel()
	for _, d := range r.detach {
		d()
	}
}

func (r *Resubscriber[A, R]) onDisconnected(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.lost = true
	}
}

func (r *Resubscriber[A, R]) onConnected(connID string) {
	r.mu.Lock()
	if !r.active || !r.lost || r.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.lost = false
	args := r.args
	onRetry := r.onRetry
	r.mu.Unlock()

	r.reissued.Add(1)
	r.logger.Info("proxy: re-issuing subscription after reconnect", "conn_id", connID)

	// Connection listeners must not block; the manager call only parks or
	// starts the HTTP call on its own goroutine.
	s := r.mgr.Subscribe(r.ctx, args)
	if onRetry != nil {
		onRetry(s)
	}
	go func() {
		select {
		case <-s.Done():
		case <-r.ctx.Done():
			return
		}
		if err := s.Err(); err != nil {
			r.logger.Warn("proxy: re-issued subscription failed", "error", err)
		}
	}()
}
