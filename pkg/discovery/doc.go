// Package discovery finds channelize backends on the local network with
// mDNS/DNS-SD.
//
// Backends advertise the _channelize._tcp service. The instance name is the
// user-facing backend name. TXT records describe how to reach the API:
//
//	ver     protocol version (required)
//	path    HTTP API base path, default "/"
//	hub     hub websocket path below the base path, default "/hub"
//	codecs  comma-separated hub codecs, for example "json,cbor"
//	tls     "1" when the API is served over HTTPS
//
// A client with no configured base URL uses Browser.Find to pick the first
// backend that answers and derives its base URL with Service.BaseURL.
package discovery
