package bridge

import (
	"testing"
	"time"

	"tradebridge/internal/domain"
	"tradebridge/internal/venue"
)

func TestToOrderSummary(t *testing.T) {
	got, err := toOrderSummary(venue.OpenOrderMsg{
		OrderID:       "V-7",
		ClientOrderID: "c-7",
		Symbol:        "AAPL",
		Side:          "buy",
		Quantity:      "100",
		FilledQty:     "40",
		Type:          "limit",
		Status:        "partially_filled",
		LimitPrice:    "189.50",
		SubmittedTs:   1724660000000,
	})
	if err != nil {
		t.Fatalf("toOrderSummary failed: %v", err)
	}
	if got.ID != "V-7" || got.Status != domain.StatusPartiallyFilled {
		t.Errorf("summary = %+v", got)
	}
	if !got.SubmittedAt.Equal(time.UnixMilli(1724660000000)) {
		t.Errorf("SubmittedAt = %v", got.SubmittedAt)
	}
	remaining := got.Quantity.Sub(got.FilledQty)
	if remaining.String() != "60" {
		t.Errorf("remaining = %s, want 60", remaining)
	}
}

func TestToOrderSummaryNoLimitPrice(t *testing.T) {
	got, err := toOrderSummary(venue.OpenOrderMsg{
		OrderID:  "V-8",
		Symbol:   "AAPL",
		Side:     "sell",
		Quantity: "10",
		Type:     "market",
		Status:   "new",
	})
	if err != nil {
		t.Fatalf("toOrderSummary failed: %v", err)
	}
	if !got.LimitPrice.IsZero() {
		t.Errorf("LimitPrice = %s, want 0", got.LimitPrice)
	}
}

func TestToQuoteRejectsMalformedDecimal(t *testing.T) {
	_, err := toQuote(venue.QuoteMsg{Symbol: "AAPL", Bid: "not-a-number", Ask: "1", Last: "1"})
	if err == nil {
		t.Error("toQuote accepted a malformed bid")
	}
}

func TestToAccount(t *testing.T) {
	got, err := toAccount(venue.AccountMsg{
		ID:             "acct-1",
		Cash:           "25000.50",
		NetLiquidation: "100000",
		BuyingPower:    "50001",
	})
	if err != nil {
		t.Fatalf("toAccount failed: %v", err)
	}
	if got.Cash.String() != "25000.5" {
		t.Errorf("Cash = %s, want 25000.5", got.Cash)
	}
}
