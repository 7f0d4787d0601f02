package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/datasource"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type sliceTickSource struct {
	ticks []common.Tick
	idx   int
}

func (s *sliceTickSource) GetNext() (common.Tick, error) {
	if s.idx >= len(s.ticks) {
		return common.Tick{}, datasource.ErrEof
	}
	tick := s.ticks[s.idx]
	s.idx++
	return tick, nil
}

// scriptedStrategy posts pre-planned commands keyed by tick count.
type scriptedStrategy struct {
	router  *bus.Router
	orders  map[int]common.OrderCommand
	cancels map[int]common.CancelCommand

	count int
	seen  []common.Tick
}

func (s *scriptedStrategy) OnTick(ctx context.Context, tick common.Tick) {
	s.count++
	s.seen = append(s.seen, tick)
	if command, ok := s.orders[s.count]; ok {
		_ = s.router.Post(ctx, bus.OrderCommandEvent, command)
	}
	if command, ok := s.cancels[s.count]; ok {
		_ = s.router.Post(ctx, bus.CancelCommandEvent, command)
	}
}

func (s *scriptedStrategy) reset() {
	s.count = 0
	s.seen = nil
}

func engineInstrument(symbol string, base common.Currency) common.Instrument {
	return common.Instrument{
		Symbol:            symbol,
		Venue:             "SIM",
		BaseCurrency:      base,
		QuoteCurrency:     common.USD,
		PriceDigits:       5,
		SizeDigits:        2,
		MinPriceIncrement: fixed.FromInt64(1, 5),
		ContractSize:      fixed.FromInt64(100000, 0),
		MarginInitRate:    fixed.FromInt64(3, 2),
		RolloverLongRate:  fixed.FromInt64(-1, 5),
	}
}

func flatTicks(symbol string, start time.Time, prices []float64) []common.Tick {
	ticks := make([]common.Tick, 0, len(prices))
	for i, price := range prices {
		ticks = append(ticks, common.Tick{
			Symbol:    symbol,
			Bid:       fixed.FromFloat64(price),
			Ask:       fixed.FromFloat64(price),
			TimeStamp: start.Add(time.Duration(i) * time.Second),
		})
	}
	return ticks
}

func marketCommand(symbol string, side common.OrderSide) common.OrderCommand {
	return common.OrderCommand{
		Symbol:   symbol,
		Side:     side,
		Type:     common.OrderTypeMarket,
		Quantity: fixed.One,
	}
}

func roundTripPrices() []float64 {
	return []float64{1.1000, 1.1010, 1.1020, 1.1030, 1.1040, 1.1050, 1.1060, 1.1070}
}

func runRoundTrip(t *testing.T) (*Engine, *scriptedStrategy) {
	t.Helper()

	cfg := validConfig()
	engine, err := NewEngine(cfg, []common.Instrument{engineInstrument("EURUSD", common.EUR)})
	require.NoError(t, err)

	strategy := &scriptedStrategy{
		router: engine.Router(),
		orders: map[int]common.OrderCommand{
			2: marketCommand("EURUSD", common.OrderSideBuy),
			6: marketCommand("EURUSD", common.OrderSideSell),
		},
	}
	engine.AttachStrategy(strategy)

	source := &sliceTickSource{ticks: flatTicks("EURUSD", cfg.Start, roundTripPrices())}
	require.NoError(t, engine.AddTickSource(source))
	require.NoError(t, engine.Run(context.Background()))
	return engine, strategy
}

func TestEngine_RunTradeRoundTrip(t *testing.T) {
	engine, _ := runRoundTrip(t)
	results := engine.Results()

	require.Len(t, results.Orders, 2)
	for _, order := range results.Orders {
		assert.Equal(t, common.OrderStatusFilled, order.Status)
	}
	assert.True(t, results.Orders[0].AvgFillPrice.Eq(fixed.FromFloat64(1.1010)),
		"buy fill price = %s", results.Orders[0].AvgFillPrice)
	assert.True(t, results.Orders[1].AvgFillPrice.Eq(fixed.FromFloat64(1.1050)),
		"sell fill price = %s", results.Orders[1].AvgFillPrice)

	// (1.1050 - 1.1010) * 1 * 100000 = 400 USD.
	require.Len(t, results.ClosedPositions, 1)
	assert.True(t, results.ClosedPositions[0].RealizedPnL.Amount.Eq(fixed.FromInt64(400, 0)),
		"realized = %s", results.ClosedPositions[0].RealizedPnL)

	require.Len(t, results.Accounts, 1)
	assert.True(t, results.Accounts[0].Balance.Eq(fixed.FromInt64(100400, 0)),
		"balance = %s", results.Accounts[0].Balance)
	assert.Empty(t, results.OpenPositions)
	assert.Empty(t, results.WorkingOrders)

	report := engine.Report()
	assert.True(t, report.FinalEquity.Eq(fixed.FromInt64(100400, 0)),
		"final equity = %s", report.FinalEquity)
	assert.Equal(t, 1, report.TotalTrades)
	assert.Equal(t, 1, report.WinningTrades)
}

func TestEngine_RunsAreDeterministic(t *testing.T) {
	first, _ := runRoundTrip(t)
	second, _ := runRoundTrip(t)

	a, b := first.Results(), second.Results()
	require.Equal(t, len(a.Orders), len(b.Orders))
	for i := range a.Orders {
		assert.Equal(t, a.Orders[i].Status, b.Orders[i].Status)
		assert.True(t, a.Orders[i].AvgFillPrice.Eq(b.Orders[i].AvgFillPrice))
		assert.True(t, a.Orders[i].FilledQuantity.Eq(b.Orders[i].FilledQuantity))
	}
	require.Equal(t, len(a.ClosedPositions), len(b.ClosedPositions))
	for i := range a.ClosedPositions {
		assert.True(t, a.ClosedPositions[i].RealizedPnL.Amount.Eq(b.ClosedPositions[i].RealizedPnL.Amount))
	}
	assert.True(t, a.Accounts[0].Balance.Eq(b.Accounts[0].Balance))
	assert.Equal(t, a.BusStatistics.PostCount, b.BusStatistics.PostCount)
}

func TestEngine_ResetReproducesRun(t *testing.T) {
	cfg := validConfig()
	engine, err := NewEngine(cfg, []common.Instrument{engineInstrument("EURUSD", common.EUR)})
	require.NoError(t, err)

	strategy := &scriptedStrategy{
		router: engine.Router(),
		orders: map[int]common.OrderCommand{
			2: marketCommand("EURUSD", common.OrderSideBuy),
			6: marketCommand("EURUSD", common.OrderSideSell),
		},
	}
	engine.AttachStrategy(strategy)

	run := func() Results {
		source := &sliceTickSource{ticks: flatTicks("EURUSD", cfg.Start, roundTripPrices())}
		require.NoError(t, engine.AddTickSource(source))
		require.NoError(t, engine.Run(context.Background()))
		return engine.Results()
	}

	before := run()

	engine.Reset()
	strategy.reset()
	after := run()

	assert.True(t, before.Accounts[0].Balance.Eq(after.Accounts[0].Balance))
	require.Equal(t, len(before.Orders), len(after.Orders))
	for i := range before.Orders {
		assert.Equal(t, before.Orders[i].Id, after.Orders[i].Id)
		assert.True(t, before.Orders[i].AvgFillPrice.Eq(after.Orders[i].AvgFillPrice))
	}
	require.Equal(t, len(before.ClosedPositions), len(after.ClosedPositions))
}

func TestEngine_OutOfOrderSourceFails(t *testing.T) {
	cfg := validConfig()
	engine, err := NewEngine(cfg, []common.Instrument{engineInstrument("EURUSD", common.EUR)})
	require.NoError(t, err)

	ticks := flatTicks("EURUSD", cfg.Start, []float64{1.1000, 1.1010})
	ticks[1].TimeStamp = cfg.Start.Add(-time.Second)
	require.NoError(t, engine.AddTickSource(&sliceTickSource{ticks: ticks}))

	err = engine.Run(context.Background())
	require.ErrorIs(t, err, ErrOutOfOrderData)
}

func TestEngine_TickBeforeStartFails(t *testing.T) {
	cfg := validConfig()
	engine, err := NewEngine(cfg, []common.Instrument{engineInstrument("EURUSD", common.EUR)})
	require.NoError(t, err)

	ticks := flatTicks("EURUSD", cfg.Start.Add(-time.Hour), []float64{1.1000})
	require.NoError(t, engine.AddTickSource(&sliceTickSource{ticks: ticks}))

	err = engine.Run(context.Background())
	require.ErrorIs(t, err, ErrOutOfOrderData)
}

func TestEngine_MergesSourcesInTimestampOrder(t *testing.T) {
	cfg := validConfig()
	engine, err := NewEngine(cfg, []common.Instrument{
		engineInstrument("EURUSD", common.EUR),
		engineInstrument("GBPUSD", common.GBP),
	})
	require.NoError(t, err)

	strategy := &scriptedStrategy{router: engine.Router()}
	engine.AttachStrategy(strategy)

	eur := []common.Tick{
		{Symbol: "EURUSD", Bid: fixed.One, Ask: fixed.One, TimeStamp: cfg.Start},
		{Symbol: "EURUSD", Bid: fixed.One, Ask: fixed.One, TimeStamp: cfg.Start.Add(2 * time.Second)},
	}
	gbp := []common.Tick{
		{Symbol: "GBPUSD", Bid: fixed.One, Ask: fixed.One, TimeStamp: cfg.Start},
		{Symbol: "GBPUSD", Bid: fixed.One, Ask: fixed.One, TimeStamp: cfg.Start.Add(time.Second)},
	}
	require.NoError(t, engine.AddTickSource(&sliceTickSource{ticks: eur}))
	require.NoError(t, engine.AddTickSource(&sliceTickSource{ticks: gbp}))
	require.NoError(t, engine.Run(context.Background()))

	require.Len(t, strategy.seen, 4)
	var got []string
	for _, tick := range strategy.seen {
		got = append(got, tick.Symbol+"@"+tick.TimeStamp.Format("05"))
	}
	// Equal timestamps resolve by registration order.
	assert.Equal(t, []string{"EURUSD@00", "GBPUSD@00", "GBPUSD@01", "EURUSD@02"}, got)
}

func TestEngine_CancelBeforeFill(t *testing.T) {
	cfg := validConfig()
	engine, err := NewEngine(cfg, []common.Instrument{engineInstrument("EURUSD", common.EUR)})
	require.NoError(t, err)

	limit := common.OrderCommand{
		Symbol:   "EURUSD",
		Side:     common.OrderSideBuy,
		Type:     common.OrderTypeLimit,
		Quantity: fixed.One,
		Price:    fixed.FromFloat64(1.0950),
	}
	strategy := &scriptedStrategy{
		router:  engine.Router(),
		orders:  map[int]common.OrderCommand{1: limit},
		cancels: map[int]common.CancelCommand{2: {OrderId: 1}},
	}
	engine.AttachStrategy(strategy)

	// The third tick would cross the limit, but the cancel lands first.
	source := &sliceTickSource{ticks: flatTicks("EURUSD", cfg.Start, []float64{1.1000, 1.0990, 1.0940})}
	require.NoError(t, engine.AddTickSource(source))
	require.NoError(t, engine.Run(context.Background()))

	results := engine.Results()
	require.Len(t, results.Orders, 1)
	assert.Equal(t, common.OrderStatusCanceled, results.Orders[0].Status)
	assert.Empty(t, results.WorkingOrders)
	assert.Empty(t, results.ClosedPositions)
}

func TestEngine_RolloverAppliesFinancing(t *testing.T) {
	cfg := validConfig()
	cfg.Start = time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)
	cfg.RolloverEnabled = true
	cfg.RolloverHourUTC = 22

	engine, err := NewEngine(cfg, []common.Instrument{engineInstrument("EURUSD", common.EUR)})
	require.NoError(t, err)

	strategy := &scriptedStrategy{
		router: engine.Router(),
		orders: map[int]common.OrderCommand{1: marketCommand("EURUSD", common.OrderSideBuy)},
	}
	engine.AttachStrategy(strategy)

	ticks := []common.Tick{
		{Symbol: "EURUSD", Bid: fixed.FromFloat64(1.1000), Ask: fixed.FromFloat64(1.1000), TimeStamp: cfg.Start.Add(30 * time.Minute)},
		{Symbol: "EURUSD", Bid: fixed.FromFloat64(1.1000), Ask: fixed.FromFloat64(1.1000), TimeStamp: cfg.Start.Add(3*time.Hour + 30*time.Minute)},
	}
	require.NoError(t, engine.AddTickSource(&sliceTickSource{ticks: ticks}))
	require.NoError(t, engine.Run(context.Background()))

	// One night held long at -0.00001 per unit: -1 USD on one lot.
	results := engine.Results()
	assert.True(t, results.Accounts[0].Balance.Eq(fixed.FromInt64(99999, 0)),
		"balance = %s", results.Accounts[0].Balance)
	require.Len(t, results.OpenPositions, 1)
}

func TestEngine_BarAggregationFeedsBarStrategy(t *testing.T) {
	cfg := validConfig()
	cfg.BarPeriod = time.Minute
	cfg.BarQuoteSpread = fixed.FromInt64(1, 4)

	engine, err := NewEngine(cfg, []common.Instrument{engineInstrument("EURUSD", common.EUR)})
	require.NoError(t, err)

	strategy := &barRecorder{}
	engine.AttachStrategy(strategy)

	var ticks []common.Tick
	for i := 0; i < 3; i++ {
		ticks = append(ticks, common.Tick{
			Symbol:    "EURUSD",
			Bid:       fixed.FromFloat64(1.1000),
			Ask:       fixed.FromFloat64(1.1000),
			TimeStamp: cfg.Start.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, engine.AddTickSource(&sliceTickSource{ticks: ticks}))
	require.NoError(t, engine.Run(context.Background()))

	// Two bars roll over mid-run, the last partial bar flushes at the end.
	require.Len(t, strategy.bars, 3)
	assert.True(t, strategy.bars[0].Close.Eq(fixed.FromFloat64(1.1000)))
	assert.Equal(t, time.Minute, strategy.bars[0].Period)
}

type barRecorder struct {
	bars []common.Bar
}

func (r *barRecorder) OnTick(context.Context, common.Tick) {}

func (r *barRecorder) OnBar(_ context.Context, bar common.Bar) {
	r.bars = append(r.bars, bar)
}
