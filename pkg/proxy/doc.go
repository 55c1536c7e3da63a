// Package proxy provides the per-domain subscription proxies.
//
// Every domain (events, commands, systems, sessions, licenses, operator
// tasks, user roles) is a value object handed to the generic
// channel.Manager, plus a notify.Sink for its change notifications. Client
// wires one hub connection and one REST client to all of them.
//
//	c, err := proxy.New(proxy.Config{BaseURL: base, HubURL: hubURL})
//	...
//	s := c.Events.Subscribe(ctx, proxy.EventsArgs{SystemIDs: []string{"A", "B"}})
//	for {
//		r, err := s.Next(ctx)
//		if err == io.EOF {
//			break // both systems confirmed
//		}
//		...
//	}
//
// Payload schemas beyond the correlation header are owned by the backend;
// notifications are delivered as Change values carrying the entity ID.
package proxy
