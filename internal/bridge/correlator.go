package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tradebridge/internal/venue"
)

// correlatorIDBase keeps request ids clear of the venue client's reserved
// auth handshake id.
const correlatorIDBase = 1

// Correlator tracks in-flight requests by id and delivers exactly one
// terminal outcome (result, venue error, timeout, or sweep failure) per
// request. It is the only structure in the bridge mutated from multiple
// caller goroutines; a single mutex guards the whole table.
type Correlator struct {
	logger *slog.Logger
	send   func([]byte) error

	mu      sync.Mutex
	pending map[int64]*Call
	nextID  int64
}

// Call is the wait handle for one dispatched request.
type Call struct {
	ID        int64
	Op        string
	CreatedAt time.Time

	corr  *Correlator
	timer *time.Timer

	// result and err are written exactly once, before done is closed.
	done   chan struct{}
	result json.RawMessage
	err    error
}

// newCorrelator creates a Correlator that issues requests through send.
func newCorrelator(send func([]byte) error, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		logger:  logger,
		send:    send,
		pending: make(map[int64]*Call),
		nextID:  correlatorIDBase,
	}
}

// Dispatch allocates a fresh id, registers the pending request, sends the
// venue call, and arms the deadline timer. Ids increase monotonically for
// the life of the process and are never reused while a prior request with
// that id could still be in flight.
func (c *Correlator) Dispatch(op string, params any, timeout time.Duration) (*Call, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	call := &Call{
		ID:        id,
		Op:        op,
		CreatedAt: time.Now(),
		corr:      c,
		done:      make(chan struct{}),
	}
	c.pending[id] = call
	c.mu.Unlock()

	data, err := json.Marshal(venue.Request{ID: id, Op: op, Params: params})
	if err != nil {
		c.take(id)
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	if err := c.send(data); err != nil {
		c.take(id)
		return nil, err
	}

	// The response may already have been routed between send and here;
	// only arm the timer if the request is still pending.
	c.mu.Lock()
	if _, still := c.pending[id]; still {
		call.timer = time.AfterFunc(timeout, func() { c.expire(id) })
	}
	c.mu.Unlock()

	return call, nil
}

// Wait blocks until the request resolves or ctx is done. Cancelling marks
// the request abandoned so a late response is discarded, not misdelivered.
func (ca *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ca.done:
		return ca.result, ca.err
	case <-ctx.Done():
		if ca.corr.abandon(ca.ID) {
			return nil, ctx.Err()
		}
		// Lost the race: the request resolved first.
		<-ca.done
		return ca.result, ca.err
	}
}

// take removes and returns the pending call for id, or nil if it already
// resolved. The winner of take is the only goroutine allowed to resolve
// the call, which makes complete/fail/expire idempotent.
func (c *Correlator) take(id int64) *Call {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if call.timer != nil {
		call.timer.Stop()
	}
	return call
}

// complete resolves id with a result payload. Late or unknown ids are
// logged and discarded.
func (c *Correlator) complete(id int64, msg json.RawMessage) {
	call := c.take(id)
	if call == nil {
		c.logger.Debug("discarding late or unknown response", "id", id)
		return
	}
	call.result = msg
	close(call.done)
}

// fail resolves id with an error.
func (c *Correlator) fail(id int64, err error) {
	call := c.take(id)
	if call == nil {
		c.logger.Debug("discarding late or unknown error", "id", id, "error", err)
		return
	}
	call.err = err
	close(call.done)
}

// expire resolves id with ErrRequestTimeout when its deadline fires.
func (c *Correlator) expire(id int64) {
	call := c.take(id)
	if call == nil {
		return
	}
	call.err = ErrRequestTimeout
	close(call.done)
	c.logger.Debug("request deadline expired",
		"id", id,
		"op", call.Op,
		"age", time.Since(call.CreatedAt),
	)
}

// abandon removes id after caller cancellation. Returns false if the
// request had already resolved.
func (c *Correlator) abandon(id int64) bool {
	call := c.take(id)
	if call == nil {
		return false
	}
	call.err = context.Canceled
	close(call.done)
	return true
}

// FailAll sweeps every pending request with err. Called on disconnect and
// connection loss so no caller is left hanging.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	calls := make([]*Call, 0, len(c.pending))
	for _, call := range c.pending {
		calls = append(calls, call)
	}
	c.pending = make(map[int64]*Call)
	c.mu.Unlock()

	for _, call := range calls {
		if call.timer != nil {
			call.timer.Stop()
		}
		call.err = err
		close(call.done)
	}

	if len(calls) > 0 {
		c.logger.Warn("failed in-flight requests", "count", len(calls), "error", err)
	}
}

// PendingCount returns the number of requests in flight.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
