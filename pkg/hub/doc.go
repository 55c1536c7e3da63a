// Package hub routes inbound push-channel frames to typed event channels.
//
// A Router owns exactly one route per hub event name. Each route fans a
// frame out to every tap registered for that name; a tap with a non-empty
// tag only sees frames whose RequestFor header equals the tag.
//
// EventChannel builds on a tap: it decodes each frame once into a Go type
// and multicasts the value to any number of independent subscribers. Union
// is a tagged-union decoder that selects the variant by RequestFor, so
// consumers switch over concrete types instead of untyped maps.
package hub
