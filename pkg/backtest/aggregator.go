package backtest

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/utility"
)

const aggregatorComponentName = "backtest.aggregator"

// Aggregator builds fixed-period OHLCV bars from ticks, one open bar per
// symbol. A tick landing outside the open bar's period flushes the bar onto
// the bus before starting the next one.
type Aggregator struct {
	interval time.Duration
	router   *bus.Router
	bars     map[string]*common.Bar
}

func NewAggregator(interval time.Duration, router *bus.Router) *Aggregator {
	return &Aggregator{
		interval: interval,
		router:   router,
		bars:     make(map[string]*common.Bar),
	}
}

func (a *Aggregator) OnTick(ctx context.Context, tick common.Tick) {
	barTS := tick.TimeStamp.Truncate(a.interval)
	price := tick.Mid()
	volume := tick.BidVolume.Add(tick.AskVolume)
	symbol := strings.ToUpper(tick.Symbol)

	current := a.bars[symbol]
	if current != nil && !current.TimeStamp.Equal(barTS) {
		a.flush(ctx, symbol)
		current = nil
	}

	if current == nil {
		a.bars[symbol] = &common.Bar{
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      volume,
			Period:      a.interval,
			Source:      aggregatorComponentName,
			Symbol:      symbol,
			ExecutionId: utility.GetExecutionID(),
			TraceID:     utility.CreateTraceID(),
			TimeStamp:   barTS,
		}
		return
	}

	if price.Gt(current.High) {
		current.High = price
	}
	if price.Lt(current.Low) {
		current.Low = price
	}
	current.Close = price
	current.Volume = current.Volume.Add(volume)
}

// Flush posts every open bar in symbol order. Called once at the end of a
// run so the last partial bars are not lost.
func (a *Aggregator) Flush(ctx context.Context) {
	symbols := make([]string, 0, len(a.bars))
	for symbol := range a.bars {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		a.flush(ctx, symbol)
	}
}

func (a *Aggregator) Reset() {
	a.bars = make(map[string]*common.Bar)
}

func (a *Aggregator) flush(ctx context.Context, symbol string) {
	bar := a.bars[symbol]
	if bar == nil {
		return
	}
	delete(a.bars, symbol)
	if err := a.router.Post(ctx, bus.BarEvent, *bar); err != nil {
		slog.Warn("unable to post bar event", "error", err, "symbol", symbol)
	}
}
