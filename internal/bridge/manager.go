package bridge

import (
	"context"
	"errors"
	"fmt"

	"tradebridge/internal/venue"
)

// State is the bridge connection state.
type State string

const (
	// StateDisconnected means no session. The initial and terminal state.
	StateDisconnected State = "disconnected"

	// StateConnecting means a dial and auth handshake is in progress.
	StateConnecting State = "connecting"

	// StateConnected means the session is live and healthy.
	StateConnected State = "connected"

	// StateDegraded means the session is live but missed one keepalive
	// probe. Requests still flow; new orders are rejected.
	StateDegraded State = "degraded"
)

// StateListener observes state transitions. Listeners run on a dedicated
// goroutine, so a slow listener delays notifications but never blocks the
// state machine itself.
type StateListener func(old, new State)

type stateChange struct {
	old State
	new State
}

// connectAttempt coalesces concurrent Connect calls into one dial.
type connectAttempt struct {
	done chan struct{}
	err  error
}

func (a *connectAttempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OnStateChange registers a transition listener. Must be called before
// Connect; listeners cannot be removed.
func (b *Bridge) OnStateChange(fn StateListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// setStateLocked transitions the state and queues listener notification.
// Caller holds b.mu.
func (b *Bridge) setStateLocked(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.logger.Info("connection state changed", "from", prev, "to", next)

	select {
	case b.stateCh <- stateChange{old: prev, new: next}:
	default:
		b.logger.Warn("state notification dropped", "from", prev, "to", next)
	}
}

// notifyLoop delivers state transitions to listeners in order.
func (b *Bridge) notifyLoop() {
	defer b.wg.Done()
	for {
		select {
		case ch := <-b.stateCh:
			b.mu.Lock()
			listeners := make([]StateListener, len(b.listeners))
			copy(listeners, b.listeners)
			b.mu.Unlock()
			for _, fn := range listeners {
				fn(ch.old, ch.new)
			}
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) currentSession() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Connect establishes the venue session: dial, auth, then start the
// dispatcher and keepalive monitor. Concurrent calls share one attempt;
// calling on a live session is a no-op.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	if b.state == StateConnected || b.state == StateDegraded {
		b.mu.Unlock()
		return nil
	}
	if b.attempt != nil {
		att := b.attempt
		b.mu.Unlock()
		return att.wait(ctx)
	}
	if !b.brk.Allow() {
		b.mu.Unlock()
		return fmt.Errorf("%w until %s", ErrCircuitOpen, b.brk.CooldownUntil().Format("15:04:05"))
	}
	att := &connectAttempt{done: make(chan struct{})}
	b.attempt = att
	b.setStateLocked(StateConnecting)
	b.mu.Unlock()

	go b.establish(ctx, att)
	return att.wait(ctx)
}

// establish performs one dial and, on success, installs the session.
func (b *Bridge) establish(ctx context.Context, att *connectAttempt) {
	client := b.newClient()
	err := client.Connect(ctx)

	b.mu.Lock()
	if b.attempt != att || b.closed {
		// Superseded by Disconnect or Close while dialing.
		b.mu.Unlock()
		if err == nil {
			client.Close()
		}
		att.err = ErrConnClosing
		close(att.done)
		return
	}
	b.attempt = nil

	if err != nil {
		b.setStateLocked(StateDisconnected)
		b.mu.Unlock()
		b.brk.RecordFailure()
		att.err = err
		close(att.done)
		return
	}

	b.client = client
	b.session++
	session := b.session
	b.sessStop = make(chan struct{})
	stop := b.sessStop
	b.setStateLocked(StateConnected)
	// Add while holding the lock: closed is known false here, so Close
	// cannot be inside wg.Wait concurrently with this Add.
	b.wg.Add(2)
	b.mu.Unlock()

	b.brk.RecordSuccess()

	go b.runDispatcher(session, client, stop)
	go b.runKeepalive(session, stop)

	b.resubscribe(session)

	b.logger.Info("session established", "session", session, "url", b.cfg.VenueURL)
	att.err = nil
	close(att.done)
}

// Disconnect closes the session deliberately. In-flight requests fail
// with ErrConnClosing; no reconnection is scheduled. Idempotent.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.attempt = nil
	b.session++
	if b.sessStop != nil {
		close(b.sessStop)
		b.sessStop = nil
	}
	b.setStateLocked(StateDisconnected)
	b.mu.Unlock()

	b.corr.FailAll(ErrConnClosing)

	if client != nil {
		client.Close()
	}
}

// connectionLost handles involuntary session death: transport error or
// keepalive hard timeout. Stale notifications from an already replaced
// session are ignored.
func (b *Bridge) connectionLost(session int64, cause error) {
	b.mu.Lock()
	if b.session != session || b.closed {
		b.mu.Unlock()
		return
	}
	client := b.client
	b.client = nil
	b.session++
	if b.sessStop != nil {
		close(b.sessStop)
		b.sessStop = nil
	}
	b.setStateLocked(StateDisconnected)
	b.mu.Unlock()

	b.logger.Error("connection lost", "session", session, "cause", cause)

	b.corr.FailAll(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
	b.brk.RecordFailure()

	if client != nil {
		client.Close()
	}

	go b.reconnectLoop()
}

// markDegraded downgrades a healthy session after one missed probe.
func (b *Bridge) markDegraded(session int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != session || b.state != StateConnected {
		return
	}
	b.setStateLocked(StateDegraded)
}

// markHealthy restores Connected after a probe succeeds.
func (b *Bridge) markHealthy(session int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != session || b.state != StateDegraded {
		return
	}
	b.setStateLocked(StateConnected)
}

// fatalConnectError reports whether err should stop automatic
// reconnection; credentials do not fix themselves.
func fatalConnectError(err error) bool {
	return errors.Is(err, venue.ErrAuthFailed)
}
