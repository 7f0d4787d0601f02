package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type QuoteType int

const (
	QuoteBid QuoteType = iota
	QuoteAsk
	QuoteMid
)

var ErrNoConversionPath = errors.New("no currency conversion path")

// RateCalculator maintains the prevailing bid/ask rate per currency pair and
// resolves cross-currency conversions. Lookup order: direct pair, inverse
// pair, then a single bridge currency (USD preferred, remaining candidates in
// sorted order so resolution is deterministic). A missing path is an explicit
// error, never a fabricated or zero rate.
type RateCalculator struct {
	registry *Registry

	bid map[pair]fixed.Point
	ask map[pair]fixed.Point

	currencies map[common.Currency]struct{}
}

type pair struct {
	base  common.Currency
	quote common.Currency
}

func NewRateCalculator(registry *Registry) *RateCalculator {
	return &RateCalculator{
		registry:   registry,
		bid:        make(map[pair]fixed.Point),
		ask:        make(map[pair]fixed.Point),
		currencies: make(map[common.Currency]struct{}),
	}
}

// OnTick folds a quote into the rate table when the instrument maps onto a
// currency pair. Non-FX instruments contribute nothing.
func (c *RateCalculator) OnTick(_ context.Context, tick common.Tick) {
	instrument, err := c.registry.Lookup(tick.Symbol)
	if err != nil {
		return
	}
	c.update(instrument, tick.Bid, tick.Ask)
}

func (c *RateCalculator) OnBar(_ context.Context, bar common.Bar) {
	instrument, err := c.registry.Lookup(bar.Symbol)
	if err != nil || !bar.HasPrice() {
		return
	}
	c.update(instrument, bar.Close, bar.Close)
}

func (c *RateCalculator) update(instrument common.Instrument, bid, ask fixed.Point) {
	if instrument.BaseCurrency == "" || instrument.QuoteCurrency == "" {
		return
	}
	p := pair{base: instrument.BaseCurrency, quote: instrument.QuoteCurrency}
	c.bid[p] = bid
	c.ask[p] = ask
	c.currencies[p.base] = struct{}{}
	c.currencies[p.quote] = struct{}{}
}

// ExchangeRate resolves the rate that converts one unit of from into to.
func (c *RateCalculator) ExchangeRate(from, to common.Currency, quoteType QuoteType) (fixed.Point, error) {
	if from == to {
		return fixed.One, nil
	}

	if rate, ok := c.lookup(from, to, quoteType); ok {
		return rate, nil
	}

	for _, bridge := range c.bridgeCandidates(from, to) {
		leg1, ok := c.lookup(from, bridge, quoteType)
		if !ok {
			continue
		}
		leg2, ok := c.lookup(bridge, to, quoteType)
		if !ok {
			continue
		}
		return leg1.Mul(leg2), nil
	}

	return fixed.Point{}, fmt.Errorf("%w: %s/%s", ErrNoConversionPath, from, to)
}

// Reset clears the rate table between runs. Registered instruments are
// reference data and stay.
func (c *RateCalculator) Reset() {
	c.bid = make(map[pair]fixed.Point)
	c.ask = make(map[pair]fixed.Point)
	c.currencies = make(map[common.Currency]struct{})
}

func (c *RateCalculator) lookup(from, to common.Currency, quoteType QuoteType) (fixed.Point, bool) {
	if rate, ok := c.rate(pair{base: from, quote: to}, quoteType); ok {
		return rate, true
	}
	if rate, ok := c.rate(pair{base: to, quote: from}, quoteType); ok {
		return fixed.One.Div(rate), true
	}
	return fixed.Point{}, false
}

func (c *RateCalculator) rate(p pair, quoteType QuoteType) (fixed.Point, bool) {
	switch quoteType {
	case QuoteBid:
		rate, ok := c.bid[p]
		return rate, ok
	case QuoteAsk:
		rate, ok := c.ask[p]
		return rate, ok
	default:
		bid, ok := c.bid[p]
		if !ok {
			return fixed.Point{}, false
		}
		ask, ok := c.ask[p]
		if !ok {
			return fixed.Point{}, false
		}
		return bid.Add(ask).Div(fixed.Two), true
	}
}

func (c *RateCalculator) bridgeCandidates(from, to common.Currency) []common.Currency {
	candidates := make([]common.Currency, 0, len(c.currencies)+1)
	if _, ok := c.currencies[common.USD]; ok {
		candidates = append(candidates, common.USD)
	}

	rest := make([]common.Currency, 0, len(c.currencies))
	for currency := range c.currencies {
		if currency != common.USD {
			rest = append(rest, currency)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	candidates = append(candidates, rest...)

	filtered := candidates[:0]
	for _, currency := range candidates {
		if currency != from && currency != to {
			filtered = append(filtered, currency)
		}
	}
	return filtered
}
