// Package wire defines the hub message envelope and the codecs used on the
// push channel.
//
// Every websocket message carries exactly one Message. The envelope is
// codec-neutral: the payload of an Event message stays in the codec's own
// encoding until a consumer decodes it into a domain type, so routing code
// never touches business fields.
//
// # Message Types
//
//   - Handshake: server to client, first message, carries the connection ID
//   - Event: server to client, a named event frame
//   - Ping / Pong: liveness probes in either direction
//   - Close: server to client, the server is about to drop the connection
//   - Invoke: client to server, a named hub method call
//
// # Codecs
//
// Two codecs are provided. JSON is the default and is sent as websocket text
// messages. CBOR (RFC 8949) is sent as binary messages and uses integer keys
// for the envelope. The codec is negotiated through the websocket
// subprotocol, see Codec.Subprotocol.
//
// # Frame Header
//
// Inbound event payloads always start with the correlation Header fields
// (RequestId, RequestFor, ErrorCode). Domain fields follow and are ignored
// by the header decoder.
package wire
