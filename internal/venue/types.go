package venue

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrConnectionRefused = errors.New("connection refused")
	ErrConnectTimeout    = errors.New("connect timed out")
	ErrAuthFailed        = errors.New("authentication failed")
)

// Operations understood by the venue.
const (
	OpAuth        = "auth"
	OpPing        = "ping"
	OpPlaceOrder  = "place_order"
	OpCancelOrder = "cancel_order"
	OpPositions   = "positions"
	OpAccount     = "account"
	OpOpenOrders  = "open_orders"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// Frame types sent by the venue.
const (
	FrameResult      = "result"
	FrameError       = "error"
	FrameQuote       = "quote"
	FrameOrderStatus = "order_status"
	FrameAccount     = "account"
)

// Push topics for unsolicited frames that are not per-symbol.
const (
	TopicOrders  = "orders"
	TopicAccount = "account"
)

// Request is an outbound command. ID correlates the eventual response.
type Request struct {
	ID     int64  `json:"id"`
	Op     string `json:"op"`
	Params any    `json:"params,omitempty"`
}

// Frame is any inbound message: a correlated response (ID set, Type
// "result" or "error") or an unsolicited push (Topic set).
type Frame struct {
	ID    int64           `json:"id,omitempty"`
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
}

// ErrorMsg is the payload of an "error" frame.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Venue error codes with special handling in the bridge.
const (
	CodeAuthFailed = "auth_failed"
)

// AuthParams opens a session. Must be the first request on a connection.
type AuthParams struct {
	SessionID string `json:"session_id"`
}

// PlaceOrderParams submits an order. Decimal fields travel as strings.
type PlaceOrderParams struct {
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      string `json:"quantity"`
	Type          string `json:"type"`
	LimitPrice    string `json:"limit_price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	TimeInForce   string `json:"time_in_force"`
}

// CancelOrderParams cancels a working order by venue id.
type CancelOrderParams struct {
	OrderID string `json:"order_id"`
}

// SubscribeParams opens or closes a push stream for a topic,
// e.g. "quote:AAPL" or "orders".
type SubscribeParams struct {
	Topic string `json:"topic"`
}

// OrderAck is the result payload for place_order and cancel_order.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// PongMsg is the result payload for ping.
type PongMsg struct {
	Ts int64 `json:"ts"`
}

// PositionListMsg is the result payload for positions.
type PositionListMsg struct {
	Positions []PositionMsg `json:"positions"`
}

// PositionMsg is one entry in a positions result.
type PositionMsg struct {
	Symbol      string `json:"symbol"`
	Quantity    string `json:"quantity"`
	AvgCost     string `json:"avg_cost"`
	MarketPrice string `json:"market_price"`
}

// AccountMsg is the result payload for account.
type AccountMsg struct {
	ID             string `json:"id"`
	Cash           string `json:"cash"`
	NetLiquidation string `json:"net_liquidation"`
	BuyingPower    string `json:"buying_power"`
}

// OpenOrderListMsg is the result payload for open_orders.
type OpenOrderListMsg struct {
	Orders []OpenOrderMsg `json:"orders"`
}

// OpenOrderMsg is one entry in an open_orders result.
type OpenOrderMsg struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      string `json:"quantity"`
	FilledQty     string `json:"filled_qty"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	LimitPrice    string `json:"limit_price,omitempty"`
	SubmittedTs   int64  `json:"submitted_ts"`
}

// QuoteMsg is the payload of a "quote" push frame.
type QuoteMsg struct {
	Symbol  string `json:"symbol"`
	Bid     string `json:"bid"`
	Ask     string `json:"ask"`
	Last    string `json:"last"`
	BidSize int64  `json:"bid_size"`
	AskSize int64  `json:"ask_size"`
	Ts      int64  `json:"ts"`
}

// OrderStatusMsg is the payload of an "order_status" push frame.
type OrderStatusMsg struct {
	OrderID   string `json:"order_id"`
	Symbol    string `json:"symbol"`
	Status    string `json:"status"`
	FilledQty string `json:"filled_qty"`
	AvgPrice  string `json:"avg_price"`
	Ts        int64  `json:"ts"`
}

// Message wraps raw frame bytes with a receive timestamp.
type Message struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a venue WebSocket client.
type ClientConfig struct {
	URL            string        // WebSocket URL (e.g. ws://venue:9443/session)
	SessionID      string        // Session credential sent in the auth handshake
	ConnectTimeout time.Duration // Covers dial plus auth handshake
	WriteTimeout   time.Duration // Write deadline for sends
	BufferSize     int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		BufferSize:     1024,
	}
}
