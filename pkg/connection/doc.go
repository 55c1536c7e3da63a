// Package connection manages the lifecycle of the hub push channel.
//
// A Connection wraps a Transport produced by a Dialer and exposes a small
// state machine:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTED
//	DISCONNECTED -> RECONNECTING -> CONNECTED
//
// DISCONNECTED is both the initial state and re-enterable. While CONNECTED
// the connection has a stable identifier assigned by the server in the
// handshake; correlated HTTP calls embed it.
//
// # Notifications
//
// State changes are delivered to listeners in transition order. Listeners
// for the same transition run before the next transition begins.
//
// WaitConnected returns a one-shot Waiter. It fires at most once, detaches
// itself before firing, and fires immediately if the connection is already
// connected when it is registered.
//
// # Reconnection
//
// Every entry into DISCONNECTED that was not caused by Stop schedules
// exactly one delayed Start after ReconnectDelay (5 seconds). There is no
// backoff and no attempt cap: a failed reconnect is itself a new entry into
// DISCONNECTED and schedules the next one.
//
// # Inbound Traffic
//
// Event messages are decoded into hub frames and dispatched through the
// connection's Router, which outlives individual sockets. Ping messages
// are answered with Pong.
package connection
