package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestOrderValidate(t *testing.T) {
	valid := Order{
		Symbol:      "AAPL",
		Side:        SideBuy,
		Quantity:    dec("10"),
		Type:        OrderTypeLimit,
		LimitPrice:  dec("187.50"),
		TimeInForce: TIFDay,
	}

	tests := []struct {
		name    string
		mutate  func(*Order)
		wantErr bool
	}{
		{"valid limit", func(o *Order) {}, false},
		{"valid market", func(o *Order) { o.Type = OrderTypeMarket; o.LimitPrice = decimal.Zero }, false},
		{"missing symbol", func(o *Order) { o.Symbol = "" }, true},
		{"bad side", func(o *Order) { o.Side = "short" }, true},
		{"zero quantity", func(o *Order) { o.Quantity = decimal.Zero }, true},
		{"negative quantity", func(o *Order) { o.Quantity = dec("-5") }, true},
		{"limit without price", func(o *Order) { o.LimitPrice = decimal.Zero }, true},
		{"stop without price", func(o *Order) { o.Type = OrderTypeStop }, true},
		{"stop-limit missing stop", func(o *Order) { o.Type = OrderTypeStopLimit }, true},
		{"bad type", func(o *Order) { o.Type = "trailing" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			err := o.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPositionMath(t *testing.T) {
	p := Position{
		Symbol:      "MSFT",
		Quantity:    dec("100"),
		AvgCost:     dec("400.00"),
		MarketPrice: dec("412.50"),
	}

	if got, want := p.MarketValue(), dec("41250"); !got.Equal(want) {
		t.Errorf("MarketValue() = %s, want %s", got, want)
	}
	if got, want := p.UnrealizedPL(), dec("1250"); !got.Equal(want) {
		t.Errorf("UnrealizedPL() = %s, want %s", got, want)
	}
}

func TestPositionUnrealizedLoss(t *testing.T) {
	p := Position{
		Symbol:      "TSLA",
		Quantity:    dec("-10"),
		AvgCost:     dec("250"),
		MarketPrice: dec("260"),
	}

	// Short position loses when price rises.
	if got, want := p.UnrealizedPL(), dec("-100"); !got.Equal(want) {
		t.Errorf("UnrealizedPL() = %s, want %s", got, want)
	}
}
