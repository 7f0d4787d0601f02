package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

func fxInstrument(symbol string, base, quote common.Currency) common.Instrument {
	return common.Instrument{
		Symbol:            symbol,
		Venue:             "SIM",
		BaseCurrency:      base,
		QuoteCurrency:     quote,
		PriceDigits:       5,
		SizeDigits:        2,
		MinPriceIncrement: fixed.FromInt64(1, 5),
		ContractSize:      fixed.FromInt64(100000, 0),
		MarginInitRate:    fixed.FromInt64(3, 2),
	}
}

func newTestRates(t *testing.T, instruments ...common.Instrument) *RateCalculator {
	t.Helper()
	registry, err := NewRegistry(instruments...)
	if err != nil {
		t.Fatal(err)
	}
	return NewRateCalculator(registry)
}

func postQuote(rates *RateCalculator, symbol string, bid, ask float64) {
	rates.OnTick(context.Background(), common.Tick{
		Symbol: symbol,
		Bid:    fixed.FromFloat64(bid),
		Ask:    fixed.FromFloat64(ask),
	})
}

func TestRateCalculator_SameCurrency(t *testing.T) {
	rates := newTestRates(t)
	rate, err := rates.ExchangeRate(common.USD, common.USD, QuoteMid)
	if err != nil {
		t.Fatal(err)
	}
	if !rate.Eq(fixed.One) {
		t.Errorf("rate = %s; want 1", rate.String())
	}
}

func TestRateCalculator_DirectAndInverse(t *testing.T) {
	rates := newTestRates(t, fxInstrument("EURUSD", common.EUR, common.USD))
	postQuote(rates, "EURUSD", 1.1000, 1.1002)

	tests := []struct {
		name      string
		from, to  common.Currency
		quoteType QuoteType
		want      fixed.Point
	}{
		{"direct bid", common.EUR, common.USD, QuoteBid, fixed.FromFloat64(1.1000)},
		{"direct ask", common.EUR, common.USD, QuoteAsk, fixed.FromFloat64(1.1002)},
		{"direct mid", common.EUR, common.USD, QuoteMid, fixed.FromFloat64(1.1001)},
		{"inverse mid", common.USD, common.EUR, QuoteMid, fixed.One.Div(fixed.FromFloat64(1.1001))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := rates.ExchangeRate(tt.from, tt.to, tt.quoteType)
			if err != nil {
				t.Fatal(err)
			}
			if !rate.Eq(tt.want) {
				t.Errorf("rate = %s; want %s", rate.String(), tt.want.String())
			}
		})
	}
}

func TestRateCalculator_BridgeThroughUSD(t *testing.T) {
	rates := newTestRates(t,
		fxInstrument("AUDUSD", common.AUD, common.USD),
		fxInstrument("USDJPY", common.USD, common.JPY),
	)
	postQuote(rates, "AUDUSD", 0.6500, 0.6500)
	postQuote(rates, "USDJPY", 150.00, 150.00)

	rate, err := rates.ExchangeRate(common.AUD, common.JPY, QuoteMid)
	if err != nil {
		t.Fatal(err)
	}
	want := fixed.FromFloat64(0.65).Mul(fixed.FromFloat64(150.0))
	if !rate.Eq(want) {
		t.Errorf("AUD/JPY = %s; want %s", rate.String(), want.String())
	}
}

func TestRateCalculator_NoPath(t *testing.T) {
	rates := newTestRates(t, fxInstrument("EURUSD", common.EUR, common.USD))
	postQuote(rates, "EURUSD", 1.1000, 1.1002)

	_, err := rates.ExchangeRate(common.GBP, common.JPY, QuoteMid)
	if !errors.Is(err, ErrNoConversionPath) {
		t.Errorf("missing pair = %v; want ErrNoConversionPath", err)
	}
}

func TestRateCalculator_Reset(t *testing.T) {
	rates := newTestRates(t, fxInstrument("EURUSD", common.EUR, common.USD))
	postQuote(rates, "EURUSD", 1.1000, 1.1002)

	rates.Reset()
	_, err := rates.ExchangeRate(common.EUR, common.USD, QuoteMid)
	if !errors.Is(err, ErrNoConversionPath) {
		t.Errorf("rate after Reset = %v; want ErrNoConversionPath", err)
	}
}
