// Package breaker implements the circuit breaker that guards venue
// connection attempts. After a configured number of consecutive failures
// the breaker opens and rejects attempts until a cooldown elapses; the
// first attempt after cooldown runs half-open, closing the breaker on
// success and re-opening it with a doubled cooldown on failure.
package breaker
