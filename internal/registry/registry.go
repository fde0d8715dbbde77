// Package registry maps live connections to the identity their viewer claimed.
//
// A Registry is owned by exactly one goroutine (the relay hub) and is not safe
// for concurrent use.
package registry

import "github.com/pscheid92/gpsrelay/internal/domain"

// Registry holds connection id -> identity. It is per connection, not per
// identity: two connections may claim the same participant id.
type Registry struct {
	identities map[string]domain.Identity
}

func New() *Registry {
	return &Registry{identities: make(map[string]domain.Identity)}
}

// Associate records or overwrites the identity for connID. Last write wins.
func (r *Registry) Associate(connID string, identity domain.Identity) {
	r.identities[connID] = identity
}

// Resolve returns the identity for connID, if any.
func (r *Registry) Resolve(connID string) (domain.Identity, bool) {
	identity, ok := r.identities[connID]
	return identity, ok
}

// Remove deletes the mapping. Removing an unknown connection is a no-op.
func (r *Registry) Remove(connID string) {
	delete(r.identities, connID)
}

// Len returns the number of connections with an identity.
func (r *Registry) Len() int {
	return len(r.identities)
}

// Clear drops every mapping.
func (r *Registry) Clear() {
	clear(r.identities)
}
