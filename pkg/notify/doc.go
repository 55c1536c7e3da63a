// Package notify delivers continuous change notifications for a domain.
//
// A Sink taps the hub router for one event name and notification tag and
// fans decoded values out to buffered subscriber channels. Publishing never
// blocks the hub: when a subscriber's buffer is full the value is dropped
// for that subscriber and counted.
//
// Sinks are independent of the subscribe and unsubscribe lifecycle of the
// channel manager. They keep working across reconnects because the router
// belongs to the connection, not to a single socket.
package notify
