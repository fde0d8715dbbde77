// Package relay implements the location broadcast hub using the actor pattern.
//
// One goroutine owns the attached connections and the identity registry; Attach,
// HandleInbound, Publish and Detach are commands sent to it. Fan-out only enqueues
// onto per-connection buffers, and per-connection writer goroutines do the I/O, so a
// slow viewer is evicted instead of stalling the others.
package relay
