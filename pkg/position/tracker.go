// Package position tracks exposure per instrument per venue account. The
// tracker is the only writer of position records; everything else observes
// the snapshots it publishes on the bus.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/clock"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/exchange"
	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

const trackerComponentName = "position.tracker"

// CurrencyResolver maps a venue onto its account currency. Position PnL is
// always denominated in the account currency.
type CurrencyResolver func(venue string) (common.Currency, bool)

type Tracker struct {
	router     *bus.Router
	clk        *clock.Clock
	registry   *exchange.Registry
	rates      *exchange.RateCalculator
	oms        common.OmsType
	currencyOf CurrencyResolver

	nextId  common.PositionId
	open    map[string][]*common.Position
	byOrder map[common.OrderId]common.PositionId
	closed  []*common.Position
}

func NewTracker(router *bus.Router, clk *clock.Clock, registry *exchange.Registry, rates *exchange.RateCalculator, oms common.OmsType, currencyOf CurrencyResolver) *Tracker {
	t := &Tracker{
		router:     router,
		clk:        clk,
		registry:   registry,
		rates:      rates,
		oms:        oms,
		currencyOf: currencyOf,
	}
	t.Reset()
	return t
}

// ApplyFill folds one fill into the book of positions and returns the
// realized PnL of the fill in the account currency. Opening fills realize
// nothing; reducing fills realize quantity-weighted PnL against the average
// entry price.
func (t *Tracker) ApplyFill(ctx context.Context, order common.Order, fill common.Fill) (common.Money, error) {
	instrument, err := t.registry.Lookup(fill.Symbol)
	if err != nil {
		return common.Money{}, err
	}
	currency, ok := t.currencyOf(instrument.Venue)
	if !ok {
		return common.Money{}, fmt.Errorf("no account for venue %s", instrument.Venue)
	}

	realized := common.ZeroMoney(currency)
	delta := fill.Quantity
	if fill.Side == common.OrderSideSell {
		delta = delta.Neg()
	}

	target := t.target(order, fill)
	if target == nil {
		t.openPosition(ctx, order, fill, instrument, currency, delta)
		return realized, nil
	}

	if target.NetQuantity.IsPos() == delta.IsPos() {
		t.increase(ctx, target, fill, delta)
		return realized, nil
	}

	closed := fixed.Min(delta.Abs(), target.NetQuantity.Abs())
	pnl, err := t.realize(target, fill.Price, closed, instrument, currency)
	if err != nil {
		return common.Money{}, err
	}
	realized = realized.Add(pnl)
	target.RealizedPnL = target.RealizedPnL.Add(pnl)
	target.NetQuantity = target.NetQuantity.Add(delta)

	remainder := delta.Abs().Sub(closed)
	if remainder.IsPos() {
		// Flip. The old position closes in full, the rest of the fill
		// opens a fresh one in the opposite direction.
		target.NetQuantity = fixed.Zero
		t.closePosition(ctx, target)
		t.openPosition(ctx, order, fill, instrument, currency, withSign(remainder, delta))
		return realized, nil
	}

	if target.NetQuantity.IsZero() {
		t.closePosition(ctx, target)
		return realized, nil
	}

	target.TimeStamp = t.clk.Now()
	t.post(ctx, bus.PositionUpdateEvent, *target)
	return realized, nil
}

// OnTick recomputes unrealized PnL of open positions on the symbol. Marks use
// the exit side of the quote: bid for longs, ask for shorts.
func (t *Tracker) OnTick(ctx context.Context, tick common.Tick) {
	if !tick.HasPrice() {
		return
	}
	positions := t.open[strings.ToUpper(tick.Symbol)]
	if len(positions) == 0 {
		return
	}
	instrument, err := t.registry.Lookup(tick.Symbol)
	if err != nil {
		return
	}

	for _, position := range positions {
		mark := tick.Bid
		if position.IsShort() {
			mark = tick.Ask
		}
		pnlQuote := mark.Sub(position.AvgEntryPrice).Mul(position.NetQuantity).Mul(instrument.ContractSize)
		pnl, err := t.convert(pnlQuote, instrument.QuoteCurrency, position.UnrealizedPnL.Currency)
		if err != nil {
			slog.Debug("mark-to-market deferred, no conversion path", "symbol", tick.Symbol, "error", err)
			continue
		}
		next := common.NewMoney(pnl, position.UnrealizedPnL.Currency)
		if next.Amount.Eq(position.UnrealizedPnL.Amount) {
			continue
		}
		position.UnrealizedPnL = next
		position.TimeStamp = t.clk.Now()
		t.post(ctx, bus.PositionUpdateEvent, *position)
	}
}

// OpenPositions snapshots open positions in symbol order.
func (t *Tracker) OpenPositions() []common.Position {
	var positions []common.Position
	for _, symbol := range t.registry.Symbols() {
		for _, position := range t.open[symbol] {
			positions = append(positions, *position)
		}
	}
	return positions
}

func (t *Tracker) ClosedPositions() []common.Position {
	positions := make([]common.Position, 0, len(t.closed))
	for _, position := range t.closed {
		positions = append(positions, *position)
	}
	return positions
}

func (t *Tracker) Reset() {
	t.nextId = 0
	t.open = make(map[string][]*common.Position)
	t.byOrder = make(map[common.OrderId]common.PositionId)
	t.closed = nil
}

// target resolves which open position the fill applies to. Netting keeps one
// position per symbol. Hedging applies to the position named on the order,
// falls back to the order's own position, and otherwise opens a new one.
func (t *Tracker) target(order common.Order, fill common.Fill) *common.Position {
	positions := t.open[strings.ToUpper(fill.Symbol)]
	if t.oms == common.OmsNetting {
		if len(positions) == 0 {
			return nil
		}
		return positions[0]
	}

	wanted := fill.PositionId
	if wanted == 0 {
		wanted = t.byOrder[order.Id]
	}
	if wanted == 0 {
		return nil
	}
	for _, position := range positions {
		if position.Id == wanted {
			return position
		}
	}
	return nil
}

func (t *Tracker) openPosition(ctx context.Context, order common.Order, fill common.Fill, instrument common.Instrument, currency common.Currency, delta fixed.Point) {
	t.nextId++
	position := &common.Position{
		Id:            t.nextId,
		AccountId:     instrument.Venue,
		Status:        common.PositionStatusOpen,
		NetQuantity:   delta,
		AvgEntryPrice: fill.Price,
		RealizedPnL:   common.ZeroMoney(currency),
		UnrealizedPnL: common.ZeroMoney(currency),
		OpenTime:      t.clk.Now(),
		Source:        trackerComponentName,
		Symbol:        instrument.Symbol,
		Venue:         instrument.Venue,
		ExecutionID:   utility.GetExecutionID(),
		TraceID:       utility.CreateTraceID(),
		OrderTraceIDs: []utility.TraceID{order.TraceID},
		TimeStamp:     t.clk.Now(),
	}
	key := strings.ToUpper(fill.Symbol)
	t.open[key] = append(t.open[key], position)
	if t.oms == common.OmsHedging {
		t.byOrder[order.Id] = position.Id
	}
	t.post(ctx, bus.PositionOpenEvent, *position)
}

func (t *Tracker) increase(ctx context.Context, position *common.Position, fill common.Fill, delta fixed.Point) {
	oldAbs := position.NetQuantity.Abs()
	newAbs := oldAbs.Add(delta.Abs())
	weighted := position.AvgEntryPrice.Mul(oldAbs).Add(fill.Price.Mul(delta.Abs()))
	position.AvgEntryPrice = weighted.Div(newAbs)
	position.NetQuantity = position.NetQuantity.Add(delta)
	position.TimeStamp = t.clk.Now()
	t.post(ctx, bus.PositionUpdateEvent, *position)
}

// realize computes the PnL of closing quantity units at price, converted to
// the account currency at the prevailing mid rate.
func (t *Tracker) realize(position *common.Position, price, quantity fixed.Point, instrument common.Instrument, currency common.Currency) (common.Money, error) {
	pnlQuote := price.Sub(position.AvgEntryPrice).Mul(quantity).Mul(instrument.ContractSize)
	if position.IsShort() {
		pnlQuote = pnlQuote.Neg()
	}
	amount, err := t.convert(pnlQuote, instrument.QuoteCurrency, currency)
	if err != nil {
		return common.Money{}, err
	}
	return common.NewMoney(amount, currency), nil
}

func (t *Tracker) closePosition(ctx context.Context, position *common.Position) {
	position.Status = common.PositionStatusClosed
	position.UnrealizedPnL = common.ZeroMoney(position.UnrealizedPnL.Currency)
	position.CloseTime = t.clk.Now()
	position.TimeStamp = t.clk.Now()

	key := strings.ToUpper(position.Symbol)
	positions := t.open[key]
	for idx, candidate := range positions {
		if candidate.Id == position.Id {
			t.open[key] = append(positions[:idx], positions[idx+1:]...)
			break
		}
	}
	t.closed = append(t.closed, position)
	t.post(ctx, bus.PositionCloseEvent, *position)
}

func (t *Tracker) convert(amount fixed.Point, from, to common.Currency) (fixed.Point, error) {
	if from == to {
		return amount, nil
	}
	rate, err := t.rates.ExchangeRate(from, to, exchange.QuoteMid)
	if err != nil {
		return fixed.Point{}, err
	}
	return amount.Mul(rate), nil
}

func (t *Tracker) post(ctx context.Context, id bus.EventId, position common.Position) {
	if err := t.router.Post(ctx, id, position); err != nil {
		slog.Warn("unable to post position event", "error", err, "position_id", position.Id)
	}
}

func withSign(magnitude, sign fixed.Point) fixed.Point {
	if sign.IsNeg() {
		return magnitude.Neg()
	}
	return magnitude
}
