package bridge

import (
	"encoding/json"

	"tradebridge/internal/venue"
)

// runDispatcher is the single reader of one session's inbound frames. It
// correlates responses, routes pushes to subscriptions, and converts a
// transport error into connection loss. Exactly one dispatcher runs per
// session; it exits when the session's stop channel closes.
func (b *Bridge) runDispatcher(session int64, client venue.Client, stop chan struct{}) {
	defer b.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-b.done:
			return
		case err, ok := <-client.Errors():
			if !ok {
				return
			}
			b.connectionLost(session, err)
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			b.route(msg)
		}
	}
}

// route decodes one frame and hands it to the correlator or a push sink.
func (b *Bridge) route(msg venue.Message) {
	var frame venue.Frame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		b.logger.Warn("dropping unparseable frame", "error", err)
		return
	}

	switch frame.Type {
	case venue.FrameResult:
		b.corr.complete(frame.ID, frame.Msg)

	case venue.FrameError:
		var em venue.ErrorMsg
		if err := json.Unmarshal(frame.Msg, &em); err != nil {
			b.logger.Warn("dropping malformed error frame", "id", frame.ID, "error", err)
			return
		}
		b.corr.fail(frame.ID, &VenueError{Code: em.Code, Message: em.Message})

	case venue.FrameQuote, venue.FrameOrderStatus, venue.FrameAccount:
		b.routePush(frame)

	default:
		b.logger.Warn("dropping frame of unknown type", "type", frame.Type, "id", frame.ID)
	}
}

// routePush delivers an unsolicited frame to its topic's sink. Pushes for
// topics nobody holds are normal during unsubscribe races; drop quietly.
func (b *Bridge) routePush(frame venue.Frame) {
	b.subsMu.Lock()
	sink := b.subs[frame.Topic]
	b.subsMu.Unlock()

	if sink == nil {
		b.logger.Debug("dropping push with no subscriber", "topic", frame.Topic, "seq", frame.Seq)
		return
	}
	sink(frame)
}
