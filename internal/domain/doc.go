// Package domain defines the core domain types and interfaces.
//
// Location messages, position samples and viewer identities live here along with
// the PositionSource contract. No implementation code, just contracts shared by
// the codec, relay, telemetry and gps packages.
package domain
