// Package rest is the HTTP side of the subscription protocol.
//
// A subscribe call correlates an HTTP request with a live hub connection:
//
//	POST {base}/{domain}/subscriptions/channelize/{requestId}/{connectionId}[/extra...]
//
// and an unsubscribe call removes every subscription of a connection:
//
//	DELETE {base}/{domain}/subscriptions/{connectionId}[?query]
//
// A 2xx status only means the request was accepted; confirmations arrive
// later over the hub. Any other status is returned as a *StatusError.
package rest
