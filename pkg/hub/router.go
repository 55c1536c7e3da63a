package hub

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/channelize/channelize-go/pkg/log"
)

// Handler receives routed frames.
type Handler func(Frame)

// RouterConfig configures a Router.
type RouterConfig struct {
	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives capture events for every dispatched frame.
	ProtocolLogger log.Logger
}

// Router demultiplexes inbound frames by event name.
type Router struct {
	mu     sync.RWMutex
	routes map[string]*route
	nextID uint64

	logger  *slog.Logger
	capture log.Logger
}

// route is the single handler for one event name.
// taps is replaced, never mutated in place, so Dispatch can iterate a snapshot.
type route struct {
	event string
	taps  []*tap
}

type tap struct {
	id  uint64
	tag string
	fn  Handler
}

// NewRouter creates an empty router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		routes:  make(map[string]*route),
		logger:  cfg.Logger,
		capture: log.OrNoop(cfg.ProtocolLogger),
	}
}

// Listen registers fn for frames named event. If tag is non-empty, only
// frames whose RequestFor equals tag are delivered. The returned function
// removes the registration; the route itself is kept.
func (r *Router) Listen(event, tag string, fn Handler) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.routes[event]
	if !ok {
		rt = &route{event: event}
		r.routes[event] = rt
	}

	r.nextID++
	t := &tap{id: r.nextID, tag: tag, fn: fn}
	taps := make([]*tap, len(rt.taps), len(rt.taps)+1)
	copy(taps, rt.taps)
	rt.taps = append(taps, t)

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(event, t.id) })
	}
}

func (r *Router) remove(event string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.routes[event]
	if !ok {
		return
	}
	taps := make([]*tap, 0, len(rt.taps))
	for _, t := range rt.taps {
		if t.id != id {
			taps = append(taps, t)
		}
	}
	rt.taps = taps
}

// Dispatch delivers f to every matching tap in registration order and
// returns the number of taps that received it. Handlers run on the
// caller's goroutine.
func (r *Router) Dispatch(f Frame) int {
	r.mu.RLock()
	rt, ok := r.routes[f.Event]
	var taps []*tap
	if ok {
		taps = rt.taps
	}
	r.mu.RUnlock()

	hf := log.NewHubFrameEvent(f.Event, f.Payload)
	hf.RequestID = f.Header.RequestID
	hf.RequestFor = f.Header.RequestFor
	hf.ErrorCode = f.Header.ErrorCode
	r.capture.Log(log.Event{
		Timestamp:    f.Received,
		ConnectionID: f.ConnectionID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerHub,
		Category:     log.CategoryMessage,
		RequestID:    f.Header.RequestID,
		HubFrame:     hf,
	})

	if !ok {
		r.logger.Debug("hub: no route for event", "event", f.Event)
		return 0
	}

	delivered := 0
	for _, t := range taps {
		if t.tag != "" && t.tag != f.Header.RequestFor {
			continue
		}
		t.fn(f)
		delivered++
	}
	return delivered
}

// Events returns the registered event names in sorted order.
func (r *Router) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Taps returns the number of taps registered for event.
func (r *Router) Taps(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rt, ok := r.routes[event]; ok {
		return len(rt.taps)
	}
	return 0
}
