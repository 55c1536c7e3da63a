/*
Package metrics exposes Prometheus metrics for channelize clients.

A Collector owns its own registry. It implements channel.Observer so every
Manager can report into it, follows a Connection's state transitions via
WatchConnection, and counts notifications dropped by slow sink subscribers.

# Metrics

	channelize_contexts{domain,set}                    pending and invoked context counts
	channelize_http_calls_total{domain,op,result}      subscribe and unsubscribe calls
	channelize_replies_total{domain}                   accepted confirmation frames
	channelize_correlation_misses_total{domain}        frames matching no invoked context
	channelize_contexts_terminated_total{domain,reason} terminal outcomes
	channelize_connection_state{state}                 1 for the current state
	channelize_connection_transitions_total{from,to}   state transitions
	channelize_notifications_dropped_total{event,tag}  values dropped for full subscribers

Serve Handler on the metrics address to let Prometheus scrape them.
*/
package metrics
