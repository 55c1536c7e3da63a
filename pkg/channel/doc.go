// Package channel implements the subscription channel manager.
//
// A Manager correlates HTTP subscribe and unsubscribe calls with the hub
// connection and routes the asynchronous confirmations that come back over
// the push channel to the request that caused them.
//
// # Lifecycle of a request
//
// Each Subscribe or Unsubscribe call creates a context with a fresh,
// manager-scoped identifier. If the connection is not connected the context
// is parked in the pending set and a one-shot waiter is registered; the
// connection is started if needed. When the waiter fires the context moves
// to the invoked set and only then is the HTTP call issued, so the URL
// always carries the current connection identifier. If the connection is
// already connected the context goes straight to the invoked set.
//
// An HTTP failure fails the context with ErrTransportRejected. An HTTP
// success only means the request was accepted; a subscribe context
// completes when every expected confirmation frame has arrived. An
// unsubscribe completes as soon as the HTTP call succeeds.
//
// When the connection enters DISCONNECTED every invoked context fails with
// ErrChannelDisconnected. Pending contexts are kept and proceed after the
// next connect. The connection itself schedules the reconnect.
//
// Frames whose RequestId matches no invoked context are correlation misses:
// they are logged, counted and dropped.
//
// # Domains
//
// A Domain value configures one Manager: URL segment, hub event, the
// RequestFor tag of confirmation frames, argument validation, the
// requested keys (nil for single-reply domains), extra request parts and
// the frame decoder.
package channel
