package bridge

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradebridge/internal/domain"
	"tradebridge/internal/venue"
)

// Wire-to-domain conversions. Decimal fields travel as strings;
// timestamps as Unix milliseconds.

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func toPosition(m venue.PositionMsg) (domain.Position, error) {
	qty, err := parseDecimal("quantity", m.Quantity)
	if err != nil {
		return domain.Position{}, err
	}
	cost, err := parseDecimal("avg_cost", m.AvgCost)
	if err != nil {
		return domain.Position{}, err
	}
	price, err := parseDecimal("market_price", m.MarketPrice)
	if err != nil {
		return domain.Position{}, err
	}
	return domain.Position{
		Symbol:      m.Symbol,
		Quantity:    qty,
		AvgCost:     cost,
		MarketPrice: price,
	}, nil
}

func toAccount(m venue.AccountMsg) (domain.Account, error) {
	cash, err := parseDecimal("cash", m.Cash)
	if err != nil {
		return domain.Account{}, err
	}
	nlv, err := parseDecimal("net_liquidation", m.NetLiquidation)
	if err != nil {
		return domain.Account{}, err
	}
	bp, err := parseDecimal("buying_power", m.BuyingPower)
	if err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		ID:             m.ID,
		Cash:           cash,
		NetLiquidation: nlv,
		BuyingPower:    bp,
	}, nil
}

func toOrderSummary(m venue.OpenOrderMsg) (domain.OrderSummary, error) {
	qty, err := parseDecimal("quantity", m.Quantity)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	filled, err := parseDecimal("filled_qty", m.FilledQty)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	limit, err := parseDecimal("limit_price", m.LimitPrice)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	return domain.OrderSummary{
		ID:            domain.OrderID(m.OrderID),
		ClientOrderID: m.ClientOrderID,
		Symbol:        m.Symbol,
		Side:          domain.Side(m.Side),
		Quantity:      qty,
		FilledQty:     filled,
		Type:          domain.OrderType(m.Type),
		Status:        domain.OrderStatus(m.Status),
		LimitPrice:    limit,
		SubmittedAt:   time.UnixMilli(m.SubmittedTs),
	}, nil
}

func toQuote(m venue.QuoteMsg) (domain.Quote, error) {
	bid, err := parseDecimal("bid", m.Bid)
	if err != nil {
		return domain.Quote{}, err
	}
	ask, err := parseDecimal("ask", m.Ask)
	if err != nil {
		return domain.Quote{}, err
	}
	last, err := parseDecimal("last", m.Last)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Symbol:  m.Symbol,
		Bid:     bid,
		Ask:     ask,
		Last:    last,
		BidSize: m.BidSize,
		AskSize: m.AskSize,
		Ts:      time.UnixMilli(m.Ts),
	}, nil
}

func toOrderUpdate(m venue.OrderStatusMsg) (domain.OrderUpdate, error) {
	filled, err := parseDecimal("filled_qty", m.FilledQty)
	if err != nil {
		return domain.OrderUpdate{}, err
	}
	avg, err := parseDecimal("avg_price", m.AvgPrice)
	if err != nil {
		return domain.OrderUpdate{}, err
	}
	return domain.OrderUpdate{
		OrderID:   domain.OrderID(m.OrderID),
		Symbol:    m.Symbol,
		Status:    domain.OrderStatus(m.Status),
		FilledQty: filled,
		AvgPrice:  avg,
		Ts:        time.UnixMilli(m.Ts),
	}, nil
}
