// venuesim is a local paper-trading venue for exercising bridged without
// real broker connectivity. It speaks the bridge wire protocol over one
// WebSocket endpoint and can inject faults (rejected auth, dropped pings)
// to drive the keepalive and reconnection paths.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"tradebridge/internal/venue"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type simConfig struct {
	addr       string
	sessionID  string
	rejectAuth bool
	dropPings  bool
	fillDelay  time.Duration
	quoteEvery time.Duration
}

func main() {
	cfg := simConfig{}
	flag.StringVar(&cfg.addr, "addr", ":9443", "listen address")
	flag.StringVar(&cfg.sessionID, "session", "local-dev", "accepted session id")
	flag.BoolVar(&cfg.rejectAuth, "reject-auth", false, "reject every auth handshake")
	flag.BoolVar(&cfg.dropPings, "drop-pings", false, "never answer pings (forces keepalive loss)")
	flag.DurationVar(&cfg.fillDelay, "fill-delay", 200*time.Millisecond, "delay before simulated fills")
	flag.DurationVar(&cfg.quoteEvery, "quote-interval", 500*time.Millisecond, "quote push interval")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	http.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("upgrade failed", "error", err)
			return
		}
		s := newSession(cfg, conn, logger)
		s.serve()
	})

	logger.Info("venuesim listening",
		"addr", cfg.addr,
		"session_id", cfg.sessionID,
		"reject_auth", cfg.rejectAuth,
		"drop_pings", cfg.dropPings,
	)
	if err := http.ListenAndServe(cfg.addr, nil); err != nil {
		logger.Error("listen failed", "error", err)
		os.Exit(1)
	}
}

// simOrder is a working order in the simulator's book.
type simOrder struct {
	venue.OpenOrderMsg
	limit decimal.Decimal
}

// session is one authenticated connection.
type session struct {
	cfg    simConfig
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	orders map[string]*simOrder
	pos    map[string]decimal.Decimal // symbol -> signed quantity
	cash   decimal.Decimal
	topics map[string]chan struct{} // quote topic -> stop channel
	seq    int64
	pushes bool // orders topic subscribed
	closed bool
}

func newSession(cfg simConfig, conn *websocket.Conn, logger *slog.Logger) *session {
	return &session{
		cfg:    cfg,
		conn:   conn,
		logger: logger.With("remote", conn.RemoteAddr().String()),
		orders: make(map[string]*simOrder),
		pos:    make(map[string]decimal.Decimal),
		cash:   decimal.NewFromInt(100000),
		topics: make(map[string]chan struct{}),
	}
}

func (s *session) serve() {
	defer s.teardown()

	if !s.handshake() {
		return
	}
	s.logger.Info("session authenticated")

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Info("session closed", "error", err)
			return
		}
		var req venue.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Warn("unparseable request", "error", err)
			continue
		}
		s.handle(req, data)
	}
}

func (s *session) teardown() {
	s.mu.Lock()
	s.closed = true
	for _, stop := range s.topics {
		close(stop)
	}
	s.topics = make(map[string]chan struct{})
	s.mu.Unlock()
	s.conn.Close()
}

// handshake consumes the auth request that must open every connection.
func (s *session) handshake() bool {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return false
	}
	var req venue.Request
	if err := json.Unmarshal(data, &req); err != nil || req.Op != venue.OpAuth {
		s.sendError(req.ID, "protocol_error", "first request must be auth")
		return false
	}

	params, _ := req.Params.(map[string]any)
	sessionID, _ := params["session_id"].(string)

	if s.cfg.rejectAuth || sessionID != s.cfg.sessionID {
		s.sendError(req.ID, venue.CodeAuthFailed, "session id rejected")
		return false
	}

	s.sendResult(req.ID, struct{}{})
	return true
}

func (s *session) handle(req venue.Request, raw []byte) {
	switch req.Op {
	case venue.OpPing:
		if s.cfg.dropPings {
			s.logger.Debug("dropping ping", "id", req.ID)
			return
		}
		s.sendResult(req.ID, venue.PongMsg{Ts: time.Now().UnixMilli()})

	case venue.OpPlaceOrder:
		s.placeOrder(req.ID, raw)

	case venue.OpCancelOrder:
		s.cancelOrder(req)

	case venue.OpPositions:
		s.sendResult(req.ID, s.positionList())

	case venue.OpAccount:
		s.sendResult(req.ID, s.account())

	case venue.OpOpenOrders:
		s.sendResult(req.ID, s.openOrders())

	case venue.OpSubscribe:
		s.subscribe(req)

	case venue.OpUnsubscribe:
		s.unsubscribe(req)

	default:
		s.sendError(req.ID, "unknown_op", "unsupported operation "+req.Op)
	}
}

func (s *session) placeOrder(id int64, raw []byte) {
	var wrapper struct {
		Params venue.PlaceOrderParams `json:"params"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		s.sendError(id, "bad_params", err.Error())
		return
	}
	p := wrapper.Params

	qty, err := decimal.NewFromString(p.Quantity)
	if err != nil || !qty.IsPositive() {
		s.sendError(id, "bad_params", "invalid quantity")
		return
	}
	limit := decimal.Zero
	if p.LimitPrice != "" {
		if limit, err = decimal.NewFromString(p.LimitPrice); err != nil {
			s.sendError(id, "bad_params", "invalid limit price")
			return
		}
	}

	order := &simOrder{
		OpenOrderMsg: venue.OpenOrderMsg{
			OrderID:       "SIM-" + uuid.NewString()[:8],
			ClientOrderID: p.ClientOrderID,
			Symbol:        p.Symbol,
			Side:          p.Side,
			Quantity:      p.Quantity,
			FilledQty:     "0",
			Type:          p.Type,
			Status:        "accepted",
			LimitPrice:    p.LimitPrice,
			SubmittedTs:   time.Now().UnixMilli(),
		},
		limit: limit,
	}

	s.mu.Lock()
	s.orders[order.OrderID] = order
	s.mu.Unlock()

	s.sendResult(id, venue.OrderAck{OrderID: order.OrderID, Status: "accepted"})
	s.pushOrderStatus(order.OrderID, order.Symbol, "accepted", "0", "0")

	time.AfterFunc(s.cfg.fillDelay, func() { s.fill(order.OrderID) })
}

// fill completes a working order at its limit price, or near the random
// walk's base for market orders.
func (s *session) fill(orderID string) {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	if !ok || s.closed || order.Status != "accepted" {
		s.mu.Unlock()
		return
	}

	price := order.limit
	if price.IsZero() {
		price = basePrice(order.Symbol)
	}

	qty, _ := decimal.NewFromString(order.Quantity)
	signed := qty
	if order.Side == "sell" {
		signed = qty.Neg()
	}
	s.pos[order.Symbol] = s.pos[order.Symbol].Add(signed)
	s.cash = s.cash.Sub(signed.Mul(price))

	order.Status = "filled"
	order.FilledQty = order.Quantity
	delete(s.orders, orderID)
	s.mu.Unlock()

	s.pushOrderStatus(orderID, order.Symbol, "filled", order.Quantity, price.String())
}

func (s *session) cancelOrder(req venue.Request) {
	params, _ := req.Params.(map[string]any)
	orderID, _ := params["order_id"].(string)

	s.mu.Lock()
	order, ok := s.orders[orderID]
	if ok {
		order.Status = "canceled"
		delete(s.orders, orderID)
	}
	s.mu.Unlock()

	if !ok {
		s.sendError(req.ID, "unknown_order", "order "+orderID+" not found")
		return
	}
	s.sendResult(req.ID, venue.OrderAck{OrderID: orderID, Status: "canceled"})
	s.pushOrderStatus(orderID, order.Symbol, "canceled", order.FilledQty, "0")
}

func (s *session) positionList() venue.PositionListMsg {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := venue.PositionListMsg{Positions: []venue.PositionMsg{}}
	for symbol, qty := range s.pos {
		if qty.IsZero() {
			continue
		}
		price := basePrice(symbol)
		list.Positions = append(list.Positions, venue.PositionMsg{
			Symbol:      symbol,
			Quantity:    qty.String(),
			AvgCost:     price.String(),
			MarketPrice: price.String(),
		})
	}
	return list
}

func (s *session) account() venue.AccountMsg {
	s.mu.Lock()
	defer s.mu.Unlock()

	nlv := s.cash
	for symbol, qty := range s.pos {
		nlv = nlv.Add(qty.Mul(basePrice(symbol)))
	}
	return venue.AccountMsg{
		ID:             "sim-account",
		Cash:           s.cash.String(),
		NetLiquidation: nlv.String(),
		BuyingPower:    s.cash.Mul(decimal.NewFromInt(2)).String(),
	}
}

func (s *session) openOrders() venue.OpenOrderListMsg {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := venue.OpenOrderListMsg{Orders: []venue.OpenOrderMsg{}}
	for _, order := range s.orders {
		list.Orders = append(list.Orders, order.OpenOrderMsg)
	}
	return list
}

func (s *session) subscribe(req venue.Request) {
	params, _ := req.Params.(map[string]any)
	topic, _ := params["topic"].(string)

	switch {
	case topic == venue.TopicOrders:
		s.mu.Lock()
		s.pushes = true
		s.mu.Unlock()

	case strings.HasPrefix(topic, "quote:"):
		symbol := strings.TrimPrefix(topic, "quote:")
		stop := make(chan struct{})
		s.mu.Lock()
		if _, exists := s.topics[topic]; exists {
			s.mu.Unlock()
			s.sendError(req.ID, "already_subscribed", topic)
			return
		}
		s.topics[topic] = stop
		s.mu.Unlock()
		go s.quoteLoop(topic, symbol, stop)

	default:
		s.sendError(req.ID, "unknown_topic", topic)
		return
	}

	s.sendResult(req.ID, struct{}{})
}

func (s *session) unsubscribe(req venue.Request) {
	params, _ := req.Params.(map[string]any)
	topic, _ := params["topic"].(string)

	s.mu.Lock()
	if topic == venue.TopicOrders {
		s.pushes = false
	} else if stop, ok := s.topics[topic]; ok {
		close(stop)
		delete(s.topics, topic)
	}
	s.mu.Unlock()

	s.sendResult(req.ID, struct{}{})
}

// quoteLoop pushes a random walk around the symbol's base price.
func (s *session) quoteLoop(topic, symbol string, stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.quoteEvery)
	defer ticker.Stop()

	last := basePrice(symbol)
	tick := decimal.New(1, -2)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		drift := decimal.NewFromInt(int64(rand.Intn(21) - 10)).Mul(tick)
		last = last.Add(drift)
		spread := tick.Mul(decimal.NewFromInt(int64(rand.Intn(3) + 1)))

		s.push(venue.FrameQuote, topic, venue.QuoteMsg{
			Symbol:  symbol,
			Bid:     last.Sub(spread).String(),
			Ask:     last.Add(spread).String(),
			Last:    last.String(),
			BidSize: int64(rand.Intn(900) + 100),
			AskSize: int64(rand.Intn(900) + 100),
			Ts:      time.Now().UnixMilli(),
		})
	}
}

func (s *session) pushOrderStatus(orderID, symbol, status, filledQty, avgPrice string) {
	s.mu.Lock()
	subscribed := s.pushes
	s.mu.Unlock()
	if !subscribed {
		return
	}
	s.push(venue.FrameOrderStatus, venue.TopicOrders, venue.OrderStatusMsg{
		OrderID:   orderID,
		Symbol:    symbol,
		Status:    status,
		FilledQty: filledQty,
		AvgPrice:  avgPrice,
		Ts:        time.Now().UnixMilli(),
	})
}

func (s *session) sendResult(id int64, payload any) {
	msg, _ := json.Marshal(payload)
	s.writeFrame(venue.Frame{ID: id, Type: venue.FrameResult, Msg: msg})
}

func (s *session) sendError(id int64, code, message string) {
	msg, _ := json.Marshal(venue.ErrorMsg{Code: code, Message: message})
	s.writeFrame(venue.Frame{ID: id, Type: venue.FrameError, Msg: msg})
}

func (s *session) push(frameType, topic string, payload any) {
	msg, _ := json.Marshal(payload)
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	s.writeFrame(venue.Frame{Type: frameType, Topic: topic, Seq: seq, Msg: msg})
}

func (s *session) writeFrame(frame venue.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("write failed", "error", err)
	}
}

// basePrice derives a stable per-symbol anchor so restarts and snapshots
// agree on roughly the same level.
func basePrice(symbol string) decimal.Decimal {
	var h uint32
	for _, c := range symbol {
		h = h*31 + uint32(c)
	}
	return decimal.NewFromInt(int64(50 + h%400))
}
