// Package bridge turns the venue's push-based socket session into a
// request/response broker facade.
//
// The Bridge owns exactly one venue session at a time and composes:
//   - a Correlator matching responses to in-flight requests by id
//   - a connection state machine (disconnected/connecting/connected/degraded)
//   - a keepalive monitor probing the session through the Correlator
//   - a circuit breaker and reconnection scheduler restoring lost sessions
//   - an event dispatcher routing pushes to per-topic subscriptions
//
// All public methods are safe for concurrent use; only the dispatcher
// goroutine touches the socket's inbound side.
package bridge
