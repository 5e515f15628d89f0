package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tradebridge/internal/breaker"
	"tradebridge/internal/domain"
	"tradebridge/internal/venue"
)

// Config holds bridge tunables. Values map one-to-one onto the
// config file's venue/keepalive/breaker/reconnect sections.
type Config struct {
	VenueURL       string
	SessionID      string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	KeepaliveInterval     time.Duration
	KeepaliveProbeTimeout time.Duration

	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
	BreakerCooldownMax      time.Duration

	ReconnectMaxAttempts int // 0 = unbounded
	ReconnectBaseDelay   time.Duration
	ReconnectMultiplier  float64
	ReconnectMaxDelay    time.Duration

	RateLimit   rate.Limit // outbound requests per second; 0 = unlimited
	RateBurst   int
	EventBuffer int // venue client inbound buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:          10 * time.Second,
		RequestTimeout:          15 * time.Second,
		KeepaliveInterval:       20 * time.Second,
		KeepaliveProbeTimeout:   5 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerCooldown:         30 * time.Second,
		BreakerCooldownMax:      5 * time.Minute,
		ReconnectMaxAttempts:    0,
		ReconnectBaseDelay:      time.Second,
		ReconnectMultiplier:     2.0,
		ReconnectMaxDelay:       time.Minute,
		RateLimit:               50,
		RateBurst:               10,
		EventBuffer:             1024,
	}
}

// Bridge is the broker facade: the only type other subsystems see. One
// Bridge owns at most one venue session at a time.
type Bridge struct {
	cfg    Config
	logger *slog.Logger

	corr    *Correlator
	brk     *breaker.Breaker
	limiter *rate.Limiter

	newClient func() venue.Client

	mu        sync.Mutex
	state     State
	client    venue.Client
	attempt   *connectAttempt
	session   int64         // epoch; bumped whenever a session starts or ends
	sessStop  chan struct{} // closed when the current session ends
	listeners []StateListener
	closed    bool

	stateCh chan stateChange
	done    chan struct{}

	subsMu sync.Mutex
	subs   map[string]func(venue.Frame)

	reconnecting atomic.Bool
	wg           sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithBreaker replaces the breaker built from Config.
func WithBreaker(brk *breaker.Breaker) Option {
	return func(b *Bridge) {
		b.brk = brk
	}
}

// WithClientFactory replaces the venue client constructor. Each connection
// attempt gets a fresh client from the factory.
func WithClientFactory(fn func() venue.Client) Option {
	return func(b *Bridge) {
		b.newClient = fn
	}
}

// New creates a disconnected Bridge. Call Connect to open the session and
// Close to release it.
func New(cfg Config, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:     cfg,
		logger:  slog.Default(),
		state:   StateDisconnected,
		subs:    make(map[string]func(venue.Frame)),
		stateCh: make(chan stateChange, 16),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.corr = newCorrelator(b.sendToVenue, b.logger)

	if b.brk == nil {
		b.brk = breaker.New(breaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			Cooldown:         cfg.BreakerCooldown,
			CooldownMax:      cfg.BreakerCooldownMax,
		}, b.logger)
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}

	if b.newClient == nil {
		b.newClient = func() venue.Client {
			return venue.NewClient(venue.ClientConfig{
				URL:            cfg.VenueURL,
				SessionID:      cfg.SessionID,
				ConnectTimeout: cfg.ConnectTimeout,
				WriteTimeout:   5 * time.Second,
				BufferSize:     cfg.EventBuffer,
			}, b.logger)
		}
	}

	b.wg.Add(1)
	go b.notifyLoop()

	return b
}

// Close disconnects and releases background resources. The bridge cannot
// be reused afterwards.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.Disconnect()
	close(b.done)
	b.wg.Wait()
	return nil
}

// PlaceOrder submits an order and returns the venue-assigned id. Fails
// fast with ErrNotConnected unless the connection is fully healthy;
// retrying after connection loss is the caller's decision.
func (b *Bridge) PlaceOrder(ctx context.Context, order domain.Order) (domain.OrderID, error) {
	if err := order.Validate(); err != nil {
		return "", err
	}
	if b.State() != StateConnected {
		return "", ErrNotConnected
	}
	if err := b.throttle(ctx); err != nil {
		return "", err
	}

	params := venue.PlaceOrderParams{
		ClientOrderID: uuid.NewString(),
		Symbol:        order.Symbol,
		Side:          string(order.Side),
		Quantity:      order.Quantity.String(),
		Type:          string(order.Type),
		TimeInForce:   string(order.TimeInForce),
	}
	if order.LimitPrice.IsPositive() {
		params.LimitPrice = order.LimitPrice.String()
	}
	if order.StopPrice.IsPositive() {
		params.StopPrice = order.StopPrice.String()
	}

	msg, err := b.roundTrip(ctx, venue.OpPlaceOrder, params)
	if err != nil {
		return "", err
	}

	var ack venue.OrderAck
	if err := json.Unmarshal(msg, &ack); err != nil {
		return "", fmt.Errorf("parse order ack: %w", err)
	}

	b.logger.Info("order placed",
		"symbol", order.Symbol,
		"side", order.Side,
		"order_id", ack.OrderID,
		"client_order_id", params.ClientOrderID,
	)

	return domain.OrderID(ack.OrderID), nil
}

// CancelOrder requests cancellation of a working order.
func (b *Bridge) CancelOrder(ctx context.Context, id domain.OrderID) error {
	if err := b.throttle(ctx); err != nil {
		return err
	}
	_, err := b.roundTrip(ctx, venue.OpCancelOrder, venue.CancelOrderParams{OrderID: string(id)})
	return err
}

// GetPositions returns a snapshot of all open positions.
func (b *Bridge) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := b.throttle(ctx); err != nil {
		return nil, err
	}
	msg, err := b.roundTrip(ctx, venue.OpPositions, nil)
	if err != nil {
		return nil, err
	}

	var list venue.PositionListMsg
	if err := json.Unmarshal(msg, &list); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(list.Positions))
	for _, m := range list.Positions {
		p, err := toPosition(m)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// GetAccount returns a snapshot of account-level metrics.
func (b *Bridge) GetAccount(ctx context.Context) (domain.Account, error) {
	if err := b.throttle(ctx); err != nil {
		return domain.Account{}, err
	}
	msg, err := b.roundTrip(ctx, venue.OpAccount, nil)
	if err != nil {
		return domain.Account{}, err
	}

	var m venue.AccountMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return domain.Account{}, fmt.Errorf("parse account: %w", err)
	}
	return toAccount(m)
}

// GetOpenOrders returns a snapshot of all working orders.
func (b *Bridge) GetOpenOrders(ctx context.Context) ([]domain.OrderSummary, error) {
	if err := b.throttle(ctx); err != nil {
		return nil, err
	}
	msg, err := b.roundTrip(ctx, venue.OpOpenOrders, nil)
	if err != nil {
		return nil, err
	}

	var list venue.OpenOrderListMsg
	if err := json.Unmarshal(msg, &list); err != nil {
		return nil, fmt.Errorf("parse open orders: %w", err)
	}

	orders := make([]domain.OrderSummary, 0, len(list.Orders))
	for _, m := range list.Orders {
		o, err := toOrderSummary(m)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// SubscribeQuotes opens a quote stream for one symbol.
func (b *Bridge) SubscribeQuotes(ctx context.Context, symbol string) (*Subscription[domain.Quote], error) {
	topic := "quote:" + symbol
	return subscribe(b, ctx, topic, func(f venue.Frame) (domain.Quote, bool) {
		var m venue.QuoteMsg
		if err := json.Unmarshal(f.Msg, &m); err != nil {
			b.logger.Warn("unparseable quote push", "topic", f.Topic, "error", err)
			return domain.Quote{}, false
		}
		q, err := toQuote(m)
		if err != nil {
			b.logger.Warn("invalid quote push", "topic", f.Topic, "error", err)
			return domain.Quote{}, false
		}
		return q, true
	})
}

// SubscribeOrderStatus opens the stream of unsolicited order-status
// pushes (acks, fills, cancels).
func (b *Bridge) SubscribeOrderStatus(ctx context.Context) (*Subscription[domain.OrderUpdate], error) {
	return subscribe(b, ctx, venue.TopicOrders, func(f venue.Frame) (domain.OrderUpdate, bool) {
		var m venue.OrderStatusMsg
		if err := json.Unmarshal(f.Msg, &m); err != nil {
			b.logger.Warn("unparseable order-status push", "error", err)
			return domain.OrderUpdate{}, false
		}
		u, err := toOrderUpdate(m)
		if err != nil {
			b.logger.Warn("invalid order-status push", "error", err)
			return domain.OrderUpdate{}, false
		}
		return u, true
	})
}

// Stats is a snapshot of bridge internals for health reporting.
type Stats struct {
	State               State         `json:"state"`
	PendingRequests     int           `json:"pending_requests"`
	BreakerState        breaker.State `json:"breaker_state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	CooldownUntil       time.Time     `json:"cooldown_until,omitzero"`
	Reconnecting        bool          `json:"reconnecting"`
}

// Stats returns current bridge statistics.
func (b *Bridge) Stats() Stats {
	return Stats{
		State:               b.State(),
		PendingRequests:     b.corr.PendingCount(),
		BreakerState:        b.brk.State(),
		ConsecutiveFailures: b.brk.ConsecutiveFailures(),
		CooldownUntil:       b.brk.CooldownUntil(),
		Reconnecting:        b.reconnecting.Load(),
	}
}

// roundTrip dispatches op and waits for its response.
func (b *Bridge) roundTrip(ctx context.Context, op string, params any) (json.RawMessage, error) {
	call, err := b.corr.Dispatch(op, params, b.cfg.RequestTimeout)
	if err != nil {
		if errors.Is(err, venue.ErrNotConnected) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	return call.Wait(ctx)
}

// throttle applies the outbound rate limit.
func (b *Bridge) throttle(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// sendToVenue routes correlator sends to the current session.
func (b *Bridge) sendToVenue(data []byte) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}
	return client.Send(data)
}
