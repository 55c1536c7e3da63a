package proxy

import (
	"context"
	"net/url"

	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/notify"
	"github.com/channelize/channelize-go/pkg/subscription"
)

// Handle is the type-erased view of a proxy used by tools that address
// domains by name.
type Handle interface {
	// Name returns the domain URL segment.
	Name() string

	// SubscribeKeys subscribes with arguments built from keys and waits for
	// the outcome. It returns the confirmed keys in arrival order.
	SubscribeKeys(ctx context.Context, keys []string) ([]string, error)

	// UnsubscribeAll unsubscribes the connection from the domain and waits.
	UnsubscribeAll(ctx context.Context) error

	// Watch subscribes to change notifications.
	Watch() *notify.Subscription[Change]

	// Stats returns the manager counters.
	Stats() Stats
}

// Stats summarizes one domain manager.
type Stats struct {
	Pending           int
	Invoked           int
	CorrelationMisses uint64
	Contexts          []channel.ContextInfo
}

// Proxy couples a channel manager with the notification sink of its domain.
type Proxy[A, R any] struct {
	mgr      *channel.Manager[A, R]
	sink     *notify.Sink[Change]
	fromKeys func([]string) (A, error)

	// resub is set for domains that re-issue their subscription after a reconnect.
	resub *Resubscriber[A, R]
}

// Name returns the domain URL segment.
func (p *Proxy[A, R]) Name() string { return p.mgr.Domain() }

// Manager returns the underlying manager.
func (p *Proxy[A, R]) Manager() *channel.Manager[A, R] { return p.mgr }

// Resubscriber returns the reconnect policy of the domain, or nil if the
// domain does not re-issue subscriptions.
func (p *Proxy[A, R]) Resubscriber() *Resubscriber[A, R] { return p.resub }

// Subscribe issues a correlated subscribe call.
func (p *Proxy[A, R]) Subscribe(ctx context.Context, args A) *subscription.Stream[subscription.Reply[R]] {
	if p.resub != nil {
		return p.resub.Subscribe(ctx, args)
	}
	return p.mgr.Subscribe(ctx, args)
}

// Unsubscribe ends the domain subscription of this connection.
func (p *Proxy[A, R]) Unsubscribe(ctx context.Context, query url.Values) *subscription.Stream[bool] {
	if p.resub != nil {
		p.resub.Forget()
	}
	return p.mgr.Unsubscribe(ctx, query)
}

// Notifications returns the change notification sink.
func (p *Proxy[A, R]) Notifications() *notify.Sink[Change] { return p.sink }

// Watch implements Handle.
func (p *Proxy[A, R]) Watch() *notify.Subscription[Change] { return p.sink.Subscribe() }

// SubscribeKeys implements Handle.
func (p *Proxy[A, R]) SubscribeKeys(ctx context.Context, keys []string) ([]string, error) {
	args, err := p.fromKeys(keys)
	if err != nil {
		return nil, err
	}
	replies, err := p.Subscribe(ctx, args).Collect(ctx)
	out := make([]string, 0, len(replies))
	for _, r := range replies {
		out = append(out, r.Key)
	}
	return out, err
}

// UnsubscribeAll implements Handle.
func (p *Proxy[A, R]) UnsubscribeAll(ctx context.Context) error {
	_, err := p.Unsubscribe(ctx, nil).Collect(ctx)
	return err
}

// Stats implements Handle.
func (p *Proxy[A, R]) Stats() Stats {
	return Stats{
		Pending:           p.mgr.PendingCount(),
		Invoked:           p.mgr.InvokedCount(),
		CorrelationMisses: p.mgr.CorrelationMisses(),
		Contexts:          p.mgr.Snapshot(),
	}
}

func (p *Proxy[A, R]) close() {
	if p.resub != nil {
		p.resub.Close()
	}
	_ = p.mgr.Close()
	p.sink.Close()
}
