package rest

import (
	"net/url"
	"strings"
)

// SubscribePath builds the correlated subscribe path. Every segment is
// path-escaped.
func SubscribePath(domain, requestID, connID string, extra ...string) string {
	segs := []string{domain, "subscriptions", "channelize", requestID, connID}
	segs = append(segs, extra...)
	return joinSegments(segs)
}

// UnsubscribePath builds the unsubscribe path.
func UnsubscribePath(domain, connID string) string {
	return joinSegments([]string{domain, "subscriptions", connID})
}

func joinSegments(segs []string) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
