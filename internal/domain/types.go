package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType determines how an order is priced.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
)

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusAccepted        OrderStatus = "accepted"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
)

// OrderID identifies an order at the venue.
type OrderID string

// Order is a request to buy or sell a quantity of a symbol.
// LimitPrice and StopPrice are zero when not applicable.
type Order struct {
	Symbol      string
	Side        Side
	Quantity    decimal.Decimal
	Type        OrderType
	LimitPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce TimeInForce
}

// Validate checks that the order is well-formed before it touches the venue.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return errors.New("order symbol is required")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("invalid order side %q", o.Side)
	}
	if !o.Quantity.IsPositive() {
		return errors.New("order quantity must be positive")
	}
	switch o.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if !o.LimitPrice.IsPositive() {
			return errors.New("limit order requires a positive limit price")
		}
	case OrderTypeStop:
		if !o.StopPrice.IsPositive() {
			return errors.New("stop order requires a positive stop price")
		}
	case OrderTypeStopLimit:
		if !o.LimitPrice.IsPositive() || !o.StopPrice.IsPositive() {
			return errors.New("stop-limit order requires positive limit and stop prices")
		}
	default:
		return fmt.Errorf("invalid order type %q", o.Type)
	}
	return nil
}

// OrderSummary is a snapshot of a working or recently terminal order.
type OrderSummary struct {
	ID            OrderID
	ClientOrderID string
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	FilledQty     decimal.Decimal
	Type          OrderType
	Status        OrderStatus
	LimitPrice    decimal.Decimal
	SubmittedAt   time.Time
}

// Position is a snapshot of a holding in a single symbol.
type Position struct {
	Symbol      string
	Quantity    decimal.Decimal
	AvgCost     decimal.Decimal
	MarketPrice decimal.Decimal
}

// MarketValue returns quantity times current market price.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.MarketPrice)
}

// UnrealizedPL returns the open profit or loss against average cost.
func (p Position) UnrealizedPL() decimal.Decimal {
	return p.MarketPrice.Sub(p.AvgCost).Mul(p.Quantity)
}

// Account is a snapshot of account-level financial metrics.
type Account struct {
	ID             string
	Cash           decimal.Decimal
	NetLiquidation decimal.Decimal
	BuyingPower    decimal.Decimal
}

// Quote is a top-of-book snapshot for a symbol.
type Quote struct {
	Symbol  string
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	Last    decimal.Decimal
	BidSize int64
	AskSize int64
	Ts      time.Time
}

// OrderUpdate is an unsolicited order-status push from the venue.
type OrderUpdate struct {
	OrderID   OrderID
	Symbol    string
	Status    OrderStatus
	FilledQty decimal.Decimal
	AvgPrice  decimal.Decimal
	Ts        time.Time
}
