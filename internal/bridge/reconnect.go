package bridge

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// reconnectLoop re-establishes a lost session with exponentially growing,
// jittered delays. It runs after involuntary loss only; Disconnect and
// Close never trigger it. At most one loop runs at a time.
func (b *Bridge) reconnectLoop() {
	if !b.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer b.reconnecting.Store(false)

	delay := b.cfg.ReconnectBaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 1; ; attempt++ {
		if b.isClosed() || b.State() != StateDisconnected {
			return
		}

		if until := b.brk.CooldownUntil(); time.Now().Before(until) {
			wait := time.Until(until)
			b.logger.Info("reconnect waiting for breaker cooldown", "wait", wait.Round(time.Millisecond))
			if !b.sleep(wait) {
				return
			}
			continue
		}

		b.logger.Info("reconnecting", "attempt", attempt)

		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ConnectTimeout)
		err := b.Connect(ctx)
		cancel()

		switch {
		case err == nil:
			b.logger.Info("reconnected", "attempt", attempt)
			return
		case errors.Is(err, ErrBridgeClosed), errors.Is(err, ErrConnClosing):
			return
		case fatalConnectError(err):
			b.logger.Error("reconnect abandoned, credentials rejected", "error", err)
			return
		case errors.Is(err, ErrCircuitOpen):
			// Does not consume an attempt; loop back to the cooldown wait.
			attempt--
			continue
		}

		b.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)

		if max := b.cfg.ReconnectMaxAttempts; max > 0 && attempt >= max {
			b.logger.Error("reconnect budget exhausted", "attempts", attempt)
			return
		}

		if !b.sleep(jitter(delay)) {
			return
		}
		delay = nextDelay(delay, b.cfg.ReconnectMultiplier, b.cfg.ReconnectMaxDelay)
	}
}

// sleep waits for d unless the bridge closes first.
func (b *Bridge) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-b.done:
		return false
	}
}

// jitter spreads d over [d/2, 3d/2) so restarts across processes do not
// reconnect in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func nextDelay(d time.Duration, multiplier float64, max time.Duration) time.Duration {
	if multiplier <= 1 {
		multiplier = 2
	}
	next := time.Duration(float64(d) * multiplier)
	if max > 0 && next > max {
		return max
	}
	return next
}
