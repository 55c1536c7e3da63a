package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/channelize/channelize-go/pkg/channel"
	"github.com/channelize/channelize-go/pkg/connection"
)

const namespace = "channelize"

// Collector holds the channelize metrics.
type Collector struct {
	registry *prometheus.Registry

	contexts      *prometheus.GaugeVec
	httpCalls     *prometheus.CounterVec
	replies       *prometheus.CounterVec
	misses        *prometheus.CounterVec
	terminated    *prometheus.CounterVec
	connState     *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	notifyDropped *prometheus.CounterVec
}

// New creates a Collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		contexts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "contexts",
				Help:      "Number of subscription contexts by domain and set (pending, invoked)",
			},
			[]string{"domain", "set"},
		),
		httpCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_calls_total",
				Help:      "Total number of subscribe and unsubscribe HTTP calls by result",
			},
			[]string{"domain", "op", "result"},
		),
		replies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replies_total",
				Help:      "Total number of accepted confirmation frames",
			},
			[]string{"domain"},
		),
		misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "correlation_misses_total",
				Help:      "Total number of frames that matched no invoked context",
			},
			[]string{"domain"},
		),
		terminated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "contexts_terminated_total",
				Help:      "Total number of terminated contexts by reason",
			},
			[]string{"domain", "reason"},
		),
		connState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_state",
				Help:      "Current hub connection state (1 = current)",
			},
			[]string{"state"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_transitions_total",
				Help:      "Total number of hub connection state transitions",
			},
			[]string{"from", "to"},
		),
		notifyDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Total number of notifications dropped for full subscribers",
			},
			[]string{"event", "tag"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.contexts,
		c.httpCalls,
		c.replies,
		c.misses,
		c.terminated,
		c.connState,
		c.transitions,
		c.notifyDropped,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Sizes implements channel.Observer.
func (c *Collector) Sizes(domain string, pending, invoked int) {
	c.contexts.WithLabelValues(domain, "pending").Set(float64(pending))
	c.contexts.WithLabelValues(domain, "invoked").Set(float64(invoked))
}

// HTTPCall implements channel.Observer.
func (c *Collector) HTTPCall(domain, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.httpCalls.WithLabelValues(domain, op, result).Inc()
}

// Reply implements channel.Observer.
func (c *Collector) Reply(domain string) {
	c.replies.WithLabelValues(domain).Inc()
}

// CorrelationMiss implements channel.Observer.
func (c *Collector) CorrelationMiss(domain string) {
	c.misses.WithLabelValues(domain).Inc()
}

// Terminated implements channel.Observer.
func (c *Collector) Terminated(domain string, err error) {
	c.terminated.WithLabelValues(domain, Reason(err)).Inc()
}

// NotificationDropped counts a value dropped by a notify.Sink. Its
// signature matches notify.Config.OnDrop.
func (c *Collector) NotificationDropped(event, tag string) {
	c.notifyDropped.WithLabelValues(event, tag).Inc()
}

// StateSource is the part of a connection the collector watches.
type StateSource interface {
	State() connection.State
	OnStateChange(fn func(old, new connection.State)) (cancel func())
}

var states = []connection.State{
	connection.StateDisconnected,
	connection.StateConnecting,
	connection.StateConnected,
	connection.StateReconnecting,
}

// WatchConnection tracks the state of conn until the returned function is called.
func (c *Collector) WatchConnection(conn StateSource) (cancel func()) {
	cancel = conn.OnStateChange(func(old, new connection.State) {
		c.transitions.WithLabelValues(old.String(), new.String()).Inc()
		c.setState(new)
	})
	c.setState(conn.State())
	return cancel
}

func (c *Collector) setState(cur connection.State) {
	for _, s := range states {
		v := 0.0
		if s == cur {
			v = 1
		}
		c.connState.WithLabelValues(s.String()).Set(v)
	}
}

// Reason maps a terminal context error to a metric label.
func Reason(err error) string {
	var rerr *channel.ReplyError
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, channel.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, channel.ErrTransportRejected):
		return "transport_rejected"
	case errors.Is(err, channel.ErrChannelDisconnected):
		return "disconnected"
	case errors.Is(err, channel.ErrAbandoned):
		return "abandoned"
	case errors.Is(err, channel.ErrManagerClosed):
		return "closed"
	case errors.Is(err, channel.ErrMalformedReply):
		return "malformed_reply"
	case errors.As(err, &rerr):
		return "reply_error"
	default:
		return "other"
	}
}

var _ channel.Observer = (*Collector)(nil)
