package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradebridge/internal/domain"
	"tradebridge/internal/venue"
)

// fakeClient is an in-memory venue.Client. It answers pings and acks
// subscribes automatically; everything else is scripted by the test.
type fakeClient struct {
	connectErr error
	gate       chan struct{} // if set, Connect blocks until closed
	answerPing bool
	autoAck    bool

	messages chan venue.Message
	errors   chan error

	mu        sync.Mutex
	sent      []venue.Request
	connected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		answerPing: true,
		autoAck:    true,
		messages:   make(chan venue.Message, 64),
		errors:     make(chan error, 1),
	}
}

func (c *fakeClient) Connect(ctx context.Context) error {
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.connectErr != nil {
		return c.connectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Send(data []byte) error {
	var req venue.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, req)
	c.mu.Unlock()

	switch req.Op {
	case venue.OpPing:
		if c.answerPing {
			c.reply(req.ID, venue.PongMsg{Ts: time.Now().UnixMilli()})
		}
	case venue.OpSubscribe, venue.OpUnsubscribe:
		if c.autoAck {
			c.reply(req.ID, struct{}{})
		}
	}
	return nil
}

func (c *fakeClient) Messages() <-chan venue.Message { return c.messages }
func (c *fakeClient) Errors() <-chan error           { return c.errors }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) reply(id int64, payload any) {
	msg, _ := json.Marshal(payload)
	c.deliver(venue.Frame{ID: id, Type: venue.FrameResult, Msg: msg})
}

func (c *fakeClient) replyError(id int64, code, message string) {
	msg, _ := json.Marshal(venue.ErrorMsg{Code: code, Message: message})
	c.deliver(venue.Frame{ID: id, Type: venue.FrameError, Msg: msg})
}

func (c *fakeClient) push(frameType, topic string, seq int64, payload any) {
	msg, _ := json.Marshal(payload)
	c.deliver(venue.Frame{Type: frameType, Topic: topic, Seq: seq, Msg: msg})
}

func (c *fakeClient) deliver(frame venue.Frame) {
	data, _ := json.Marshal(frame)
	c.messages <- venue.Message{Data: data, ReceivedAt: time.Now()}
}

// requests returns all captured requests for op.
func (c *fakeClient) requests(op string) []venue.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []venue.Request
	for _, req := range c.sent {
		if req.Op == op {
			out = append(out, req)
		}
	}
	return out
}

// awaitRequest polls until the client has captured a request for op.
func awaitRequest(t *testing.T, c *fakeClient, op string) venue.Request {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if reqs := c.requests(op); len(reqs) > 0 {
			return reqs[len(reqs)-1]
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no %s request observed", op)
	return venue.Request{}
}

// factoryOf hands out the given clients in order; the last repeats.
func factoryOf(clients ...*fakeClient) (func() venue.Client, func() int) {
	var mu sync.Mutex
	created := 0
	factory := func() venue.Client {
		mu.Lock()
		defer mu.Unlock()
		i := created
		if i >= len(clients) {
			i = len(clients) - 1
		}
		created++
		return clients[i]
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return created
	}
	return factory, count
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.VenueURL = "ws://venue.test/session"
	cfg.SessionID = "sess-test"
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.RequestTimeout = 500 * time.Millisecond
	cfg.KeepaliveInterval = time.Hour // tests that need it dial it down
	cfg.KeepaliveProbeTimeout = 50 * time.Millisecond
	cfg.ReconnectBaseDelay = 5 * time.Millisecond
	cfg.ReconnectMaxDelay = 20 * time.Millisecond
	cfg.RateLimit = 0
	return cfg
}

func newTestBridge(t *testing.T, cfg Config, factory func() venue.Client) *Bridge {
	t.Helper()
	b := New(cfg, WithClientFactory(factory))
	t.Cleanup(func() { b.Close() })
	return b
}

func waitForState(t *testing.T, b *Bridge, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state never reached %s, still %s", want, b.State())
}

func TestConnectIdempotent(t *testing.T) {
	factory, created := factoryOf(newFakeClient())
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}

	if got := b.State(); got != StateConnected {
		t.Errorf("State() = %s, want %s", got, StateConnected)
	}
	if n := created(); n != 1 {
		t.Errorf("clients created = %d, want 1", n)
	}
}

func TestConnectSingleFlight(t *testing.T) {
	client := newFakeClient()
	client.gate = make(chan struct{})
	factory, created := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- b.Connect(context.Background()) }()
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != StateConnecting {
		t.Errorf("State() during dial = %s, want %s", got, StateConnecting)
	}
	close(client.gate)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("Connect %d failed: %v", i, err)
		}
	}
	if n := created(); n != 1 {
		t.Errorf("clients created = %d, want 1", n)
	}
}

func TestConnectRefusedSurfacesError(t *testing.T) {
	client := newFakeClient()
	client.connectErr = venue.ErrConnectionRefused
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	err := b.Connect(context.Background())
	if !errors.Is(err, venue.ErrConnectionRefused) {
		t.Errorf("Connect error = %v, want ErrConnectionRefused", err)
	}
	if got := b.State(); got != StateDisconnected {
		t.Errorf("State() = %s, want %s", got, StateDisconnected)
	}
}

func TestConnectAfterCloseRejected(t *testing.T) {
	factory, _ := factoryOf(newFakeClient())
	b := New(testConfig(), WithClientFactory(factory))
	b.Close()

	if err := b.Connect(context.Background()); !errors.Is(err, ErrBridgeClosed) {
		t.Errorf("Connect error = %v, want ErrBridgeClosed", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestCloseDuringConnect(t *testing.T) {
	// Close racing session install must never leave goroutines behind or
	// trip the shutdown WaitGroup; run under -race.
	for i := 0; i < 20; i++ {
		client := newFakeClient()
		client.gate = make(chan struct{})
		factory, _ := factoryOf(client)
		b := New(testConfig(), WithClientFactory(factory))

		done := make(chan error, 1)
		go func() { done <- b.Connect(context.Background()) }()

		time.Sleep(time.Millisecond)
		close(client.gate)
		b.Close()

		err := <-done
		if err != nil && !errors.Is(err, ErrConnClosing) && !errors.Is(err, ErrBridgeClosed) {
			t.Fatalf("iteration %d: Connect error = %v", i, err)
		}
	}
}

func TestDisconnectFailsPendingRequests(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := b.GetAccount(context.Background())
		errCh <- err
	}()
	awaitRequest(t, client, venue.OpAccount)

	b.Disconnect()

	if err := <-errCh; !errors.Is(err, ErrConnClosing) {
		t.Errorf("pending request error = %v, want ErrConnClosing", err)
	}
	if got := b.State(); got != StateDisconnected {
		t.Errorf("State() = %s, want %s", got, StateDisconnected)
	}
}

func TestPlaceOrderNotConnected(t *testing.T) {
	factory, _ := factoryOf(newFakeClient())
	b := newTestBridge(t, testConfig(), factory)

	order := domain.Order{
		Symbol:      "AAPL",
		Side:        domain.SideBuy,
		Quantity:    decimal.NewFromInt(10),
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TIFDay,
	}
	if _, err := b.PlaceOrder(context.Background(), order); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PlaceOrder error = %v, want ErrNotConnected", err)
	}
}

func TestPlaceOrderAck(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	idCh := make(chan domain.OrderID, 1)
	errCh := make(chan error, 1)
	go func() {
		id, err := b.PlaceOrder(context.Background(), domain.Order{
			Symbol:      "AAPL",
			Side:        domain.SideBuy,
			Quantity:    decimal.NewFromInt(100),
			Type:        domain.OrderTypeLimit,
			LimitPrice:  decimal.RequireFromString("189.50"),
			TimeInForce: domain.TIFDay,
		})
		idCh <- id
		errCh <- err
	}()

	req := awaitRequest(t, client, venue.OpPlaceOrder)
	params, ok := req.Params.(map[string]any)
	if !ok {
		t.Fatalf("place_order params have type %T", req.Params)
	}
	if params["limit_price"] != "189.5" {
		t.Errorf("limit_price = %v, want 189.5", params["limit_price"])
	}
	if params["client_order_id"] == "" {
		t.Error("client_order_id is empty")
	}

	client.reply(req.ID, venue.OrderAck{OrderID: "V-1001", Status: "accepted"})

	if id := <-idCh; id != "V-1001" {
		t.Errorf("PlaceOrder id = %s, want V-1001", id)
	}
	if err := <-errCh; err != nil {
		t.Errorf("PlaceOrder failed: %v", err)
	}
}

func TestPlaceOrderRejectsInvalidOrder(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	order := domain.Order{
		Symbol:      "AAPL",
		Side:        domain.SideBuy,
		Quantity:    decimal.NewFromInt(10),
		Type:        domain.OrderTypeLimit, // no limit price
		TimeInForce: domain.TIFDay,
	}
	if _, err := b.PlaceOrder(context.Background(), order); err == nil {
		t.Error("PlaceOrder accepted a limit order without a limit price")
	}
	if reqs := client.requests(venue.OpPlaceOrder); len(reqs) != 0 {
		t.Errorf("invalid order reached the venue: %d requests", len(reqs))
	}
}

func TestVenueErrorPassthrough(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		err := b.CancelOrder(context.Background(), "V-404")
		errCh <- err
	}()

	req := awaitRequest(t, client, venue.OpCancelOrder)
	client.replyError(req.ID, "unknown_order", "order V-404 not found")

	err := <-errCh
	var ve *VenueError
	if !errors.As(err, &ve) {
		t.Fatalf("CancelOrder error = %v, want *VenueError", err)
	}
	if ve.Code != "unknown_order" {
		t.Errorf("VenueError code = %s, want unknown_order", ve.Code)
	}

	// The session survives a venue rejection.
	if got := b.State(); got != StateConnected {
		t.Errorf("State() = %s, want %s", got, StateConnected)
	}
}

func TestGetPositions(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	type result struct {
		positions []domain.Position
		err       error
	}
	resCh := make(chan result, 1)
	go func() {
		p, err := b.GetPositions(context.Background())
		resCh <- result{p, err}
	}()

	req := awaitRequest(t, client, venue.OpPositions)
	client.reply(req.ID, venue.PositionListMsg{Positions: []venue.PositionMsg{
		{Symbol: "AAPL", Quantity: "100", AvgCost: "180.25", MarketPrice: "189.50"},
		{Symbol: "MSFT", Quantity: "-50", AvgCost: "410.00", MarketPrice: "405.00"},
	}})

	res := <-resCh
	if res.err != nil {
		t.Fatalf("GetPositions failed: %v", res.err)
	}
	if len(res.positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(res.positions))
	}
	if pl := res.positions[0].UnrealizedPL(); !pl.Equal(decimal.RequireFromString("925")) {
		t.Errorf("AAPL unrealized P&L = %s, want 925", pl)
	}
	if pl := res.positions[1].UnrealizedPL(); !pl.Equal(decimal.RequireFromString("250")) {
		t.Errorf("MSFT unrealized P&L = %s, want 250", pl)
	}
}

func TestKeepaliveDegradesThenReconnects(t *testing.T) {
	first := newFakeClient()
	first.answerPing = false
	second := newFakeClient()
	factory, created := factoryOf(first, second)

	cfg := testConfig()
	cfg.KeepaliveInterval = 25 * time.Millisecond
	cfg.KeepaliveProbeTimeout = 20 * time.Millisecond
	b := newTestBridge(t, cfg, factory)

	var mu sync.Mutex
	var transitions []State
	b.OnStateChange(func(_, next State) {
		mu.Lock()
		transitions = append(transitions, next)
		mu.Unlock()
	})

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// One missed probe degrades, a second declares the session lost, and
	// the scheduler brings up a healthy replacement.
	waitForState(t, b, StateDegraded)
	waitForState(t, b, StateConnected)

	if n := created(); n != 2 {
		t.Errorf("clients created = %d, want 2", n)
	}

	want := []State{StateConnecting, StateConnected, StateDegraded, StateDisconnected, StateConnecting, StateConnected}

	// Listener notification is asynchronous; wait for it to catch up.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(transitions)
		mu.Unlock()
		if n >= len(want) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestTransportErrorTriggersReconnect(t *testing.T) {
	first := newFakeClient()
	second := newFakeClient()
	factory, created := factoryOf(first, second)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first.errors <- fmt.Errorf("read: connection reset")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && created() < 2 {
		time.Sleep(2 * time.Millisecond)
	}
	if n := created(); n != 2 {
		t.Fatalf("clients created = %d, want 2", n)
	}
	waitForState(t, b, StateConnected)
}

func TestConnectionLossFailsPendingWithConnectionLost(t *testing.T) {
	first := newFakeClient()
	second := newFakeClient()
	factory, _ := factoryOf(first, second)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := b.GetAccount(context.Background())
		errCh <- err
	}()
	awaitRequest(t, first, venue.OpAccount)

	first.errors <- fmt.Errorf("read: connection reset")

	if err := <-errCh; !errors.Is(err, ErrConnectionLost) {
		t.Errorf("pending request error = %v, want ErrConnectionLost", err)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	client := newFakeClient()
	client.connectErr = venue.ErrConnectionRefused
	factory, _ := factoryOf(client)

	cfg := testConfig()
	cfg.BreakerFailureThreshold = 2
	cfg.BreakerCooldown = time.Hour
	b := newTestBridge(t, cfg, factory)

	for i := 0; i < 2; i++ {
		if err := b.Connect(context.Background()); !errors.Is(err, venue.ErrConnectionRefused) {
			t.Fatalf("Connect %d error = %v, want ErrConnectionRefused", i, err)
		}
	}

	if err := b.Connect(context.Background()); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Connect error = %v, want ErrCircuitOpen", err)
	}

	stats := b.Stats()
	if stats.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", stats.ConsecutiveFailures)
	}
	if stats.CooldownUntil.IsZero() {
		t.Error("CooldownUntil is zero after trip")
	}
}

func TestAuthFailureStopsReconnection(t *testing.T) {
	first := newFakeClient()
	bad := newFakeClient()
	bad.connectErr = venue.ErrAuthFailed
	factory, created := factoryOf(first, bad)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first.errors <- fmt.Errorf("read: connection reset")
	waitForState(t, b, StateDisconnected)

	// Give the scheduler time to abandon; it must not keep dialing.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && b.reconnecting.Load() {
		time.Sleep(2 * time.Millisecond)
	}
	if b.reconnecting.Load() {
		t.Fatal("reconnect loop still running after auth failure")
	}

	time.Sleep(50 * time.Millisecond)
	if n := created(); n != 2 {
		t.Errorf("clients created = %d, want 2", n)
	}
	if got := b.State(); got != StateDisconnected {
		t.Errorf("State() = %s, want %s", got, StateDisconnected)
	}
}

func TestReconnectRespectsMaxAttempts(t *testing.T) {
	first := newFakeClient()
	bad := newFakeClient()
	bad.connectErr = venue.ErrConnectionRefused
	factory, created := factoryOf(first, bad)

	cfg := testConfig()
	cfg.ReconnectMaxAttempts = 3
	cfg.BreakerFailureThreshold = 100 // keep the breaker out of this test
	b := newTestBridge(t, cfg, factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first.errors <- fmt.Errorf("read: connection reset")
	waitForState(t, b, StateDisconnected)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && b.reconnecting.Load() {
		time.Sleep(2 * time.Millisecond)
	}
	if b.reconnecting.Load() {
		t.Fatal("reconnect loop still running after budget exhausted")
	}

	// Initial client plus exactly three attempts.
	if n := created(); n != 4 {
		t.Errorf("clients created = %d, want 4", n)
	}
}

func TestSubscribeQuotesDeliversInOrder(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sub, err := b.SubscribeQuotes(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("SubscribeQuotes failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		client.push(venue.FrameQuote, "quote:AAPL", int64(i), venue.QuoteMsg{
			Symbol: "AAPL",
			Bid:    fmt.Sprintf("189.%02d", i),
			Ask:    fmt.Sprintf("189.%02d", i+1),
			Last:   "189.50",
			Ts:     time.Now().UnixMilli(),
		})
	}

	for i := 1; i <= 3; i++ {
		select {
		case q := <-sub.Events():
			want := decimal.RequireFromString(fmt.Sprintf("189.%02d", i))
			if !q.Bid.Equal(want) {
				t.Errorf("quote %d bid = %s, want %s", i, q.Bid, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("quote %d never delivered", i)
		}
	}

	sub.Close()
	if _, ok := <-sub.Events(); ok {
		t.Error("Events() still open after Close")
	}
	awaitRequest(t, client, venue.OpUnsubscribe)
}

func TestSubscribeDuplicateTopicRejected(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sub, err := b.SubscribeQuotes(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("SubscribeQuotes failed: %v", err)
	}
	defer sub.Close()

	if _, err := b.SubscribeQuotes(context.Background(), "AAPL"); !errors.Is(err, ErrDuplicateSubscription) {
		t.Errorf("second subscribe error = %v, want ErrDuplicateSubscription", err)
	}
}

func TestSubscriptionSurvivesReconnect(t *testing.T) {
	first := newFakeClient()
	second := newFakeClient()
	factory, _ := factoryOf(first, second)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sub, err := b.SubscribeOrderStatus(context.Background())
	if err != nil {
		t.Fatalf("SubscribeOrderStatus failed: %v", err)
	}
	defer sub.Close()

	first.errors <- fmt.Errorf("read: connection reset")
	waitForState(t, b, StateConnected)

	// The bridge re-issues the venue-side subscribe on the new session.
	req := awaitRequest(t, second, venue.OpSubscribe)
	params, _ := req.Params.(map[string]any)
	if params["topic"] != venue.TopicOrders {
		t.Errorf("resubscribe topic = %v, want %s", params["topic"], venue.TopicOrders)
	}

	second.push(venue.FrameOrderStatus, venue.TopicOrders, 1, venue.OrderStatusMsg{
		OrderID:   "V-1",
		Symbol:    "AAPL",
		Status:    "filled",
		FilledQty: "100",
		AvgPrice:  "189.42",
		Ts:        time.Now().UnixMilli(),
	})

	select {
	case u := <-sub.Events():
		if u.Status != domain.StatusFilled {
			t.Errorf("update status = %s, want %s", u.Status, domain.StatusFilled)
		}
	case <-time.After(time.Second):
		t.Fatal("order update never delivered after reconnect")
	}
}

func TestPushWithoutSubscriberDropped(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Must not panic or wedge the dispatcher.
	client.push(venue.FrameQuote, "quote:TSLA", 1, venue.QuoteMsg{Symbol: "TSLA", Bid: "1", Ask: "2", Last: "1.5"})

	// The session still works afterwards.
	errCh := make(chan error, 1)
	go func() {
		_, err := b.GetAccount(context.Background())
		errCh <- err
	}()
	req := awaitRequest(t, client, venue.OpAccount)
	client.reply(req.ID, venue.AccountMsg{ID: "acct-1", Cash: "1", NetLiquidation: "1", BuyingPower: "1"})
	if err := <-errCh; err != nil {
		t.Errorf("GetAccount after stray push failed: %v", err)
	}
}

func TestStatsSnapshot(t *testing.T) {
	client := newFakeClient()
	factory, _ := factoryOf(client)
	b := newTestBridge(t, testConfig(), factory)

	stats := b.Stats()
	if stats.State != StateDisconnected || stats.PendingRequests != 0 {
		t.Errorf("initial stats = %+v", stats)
	}

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := b.Stats().State; got != StateConnected {
		t.Errorf("Stats().State = %s, want %s", got, StateConnected)
	}
}
