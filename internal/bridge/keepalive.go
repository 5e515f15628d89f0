package bridge

import (
	"context"
	"time"

	"tradebridge/internal/venue"
)

// runKeepalive probes the venue at a fixed interval over the live
// session. One missed probe downgrades to Degraded; a second consecutive
// miss declares the connection lost. Any success restores full health.
func (b *Bridge) runKeepalive(session int64, stop chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.KeepaliveInterval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-stop:
			return
		case <-b.done:
			return
		case <-ticker.C:
		}

		if err := b.probe(); err != nil {
			misses++
			b.logger.Warn("keepalive probe missed",
				"session", session,
				"misses", misses,
				"error", err,
			)
			switch misses {
			case 1:
				b.markDegraded(session)
			default:
				b.connectionLost(session, ErrKeepaliveTimeout)
				return
			}
			continue
		}

		if misses > 0 {
			b.logger.Info("keepalive recovered", "session", session)
			b.markHealthy(session)
		}
		misses = 0
	}
}

// probe sends one ping through the normal request path so it exercises
// the full write-read-correlate round trip, not just the socket.
func (b *Bridge) probe() error {
	call, err := b.corr.Dispatch(venue.OpPing, nil, b.cfg.KeepaliveProbeTimeout)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.KeepaliveProbeTimeout)
	defer cancel()
	_, err = call.Wait(ctx)
	return err
}
