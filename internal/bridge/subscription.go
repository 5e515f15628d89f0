package bridge

import (
	"context"
	"fmt"
	"sync"

	"tradebridge/internal/venue"
)

// Subscription is a live push stream for one topic. Events are delivered
// in the order the venue emits them; a slow consumer buffers rather than
// stalling the dispatcher. A subscription survives reconnection: the
// bridge re-issues the venue-side subscribe after restoring the session.
type Subscription[T any] struct {
	topic   string
	queue   *growableQueue[T]
	events  chan T
	stop    chan struct{}
	closeFn func()
	once    sync.Once
}

func newSubscription[T any](topic string, closeFn func()) *Subscription[T] {
	s := &Subscription[T]{
		topic:   topic,
		queue:   newGrowableQueue[T](16),
		events:  make(chan T),
		stop:    make(chan struct{}),
		closeFn: closeFn,
	}
	go s.pump()
	return s
}

// pump drains the queue into the events channel, preserving order.
func (s *Subscription[T]) pump() {
	defer close(s.events)
	for {
		v, ok := s.queue.Next()
		if !ok {
			return
		}
		select {
		case s.events <- v:
		case <-s.stop:
			return
		}
	}
}

// Events returns the delivery channel. It is closed after Close.
func (s *Subscription[T]) Events() <-chan T {
	return s.events
}

// Topic returns the subscription's topic.
func (s *Subscription[T]) Topic() string {
	return s.topic
}

// Close stops delivery and releases the venue-side subscription
// (best effort). Idempotent.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
		close(s.stop)
		s.queue.Close()
	})
}

// abort tears down local resources without the venue round trip. Used
// when the venue rejects the subscribe.
func (s *Subscription[T]) abort() {
	s.once.Do(func() {
		close(s.stop)
		s.queue.Close()
	})
}

func (s *Subscription[T]) push(v T) {
	s.queue.Push(v)
}

// subscribe registers a decoded push stream for topic and issues the
// venue-side subscribe through the Correlator.
func subscribe[T any](b *Bridge, ctx context.Context, topic string, decode func(venue.Frame) (T, bool)) (*Subscription[T], error) {
	if st := b.State(); st != StateConnected && st != StateDegraded {
		return nil, ErrNotConnected
	}

	sub := newSubscription[T](topic, func() { b.unsubscribe(topic) })

	b.subsMu.Lock()
	if _, exists := b.subs[topic]; exists {
		b.subsMu.Unlock()
		sub.abort()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubscription, topic)
	}
	b.subs[topic] = func(f venue.Frame) {
		if v, ok := decode(f); ok {
			sub.push(v)
		}
	}
	b.subsMu.Unlock()

	call, err := b.corr.Dispatch(venue.OpSubscribe, venue.SubscribeParams{Topic: topic}, b.cfg.RequestTimeout)
	if err == nil {
		_, err = call.Wait(ctx)
	}
	if err != nil {
		b.subsMu.Lock()
		delete(b.subs, topic)
		b.subsMu.Unlock()
		sub.abort()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.logger.Debug("subscribed", "topic", topic)
	return sub, nil
}

// unsubscribe removes the topic's sink and notifies the venue, best
// effort: routing stops immediately either way.
func (b *Bridge) unsubscribe(topic string) {
	b.subsMu.Lock()
	delete(b.subs, topic)
	b.subsMu.Unlock()

	call, err := b.corr.Dispatch(venue.OpUnsubscribe, venue.SubscribeParams{Topic: topic}, b.cfg.RequestTimeout)
	if err != nil {
		b.logger.Debug("unsubscribe not sent", "topic", topic, "error", err)
		return
	}
	go func() {
		if _, err := call.Wait(context.Background()); err != nil {
			b.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
		}
	}()
}

// resubscribe re-issues venue-side subscribes for all held subscriptions
// after a session is (re)established.
func (b *Bridge) resubscribe(session int64) {
	b.subsMu.Lock()
	topics := make([]string, 0, len(b.subs))
	for t := range b.subs {
		topics = append(topics, t)
	}
	b.subsMu.Unlock()

	if len(topics) == 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, topic := range topics {
			if b.currentSession() != session {
				return
			}
			call, err := b.corr.Dispatch(venue.OpSubscribe, venue.SubscribeParams{Topic: topic}, b.cfg.RequestTimeout)
			if err == nil {
				_, err = call.Wait(context.Background())
			}
			if err != nil {
				b.logger.Warn("resubscribe failed", "topic", topic, "error", err)
				continue
			}
			b.logger.Debug("resubscribed", "topic", topic)
		}
	}()
}
