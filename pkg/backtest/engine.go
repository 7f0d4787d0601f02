// Package backtest wires the full simulation runtime and drives the replay
// loop. One Engine owns one deterministic run: a single goroutine, a single
// clock, and a single pseudo-random stream.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/account"
	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/clock"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/datasource"
	"github.com/peregrine-trading/peregrine/pkg/exchange"
	"github.com/peregrine-trading/peregrine/pkg/execution"
	"github.com/peregrine-trading/peregrine/pkg/position"
	"github.com/peregrine-trading/peregrine/pkg/risk"
	"github.com/peregrine-trading/peregrine/pkg/utility"
)

const rolloverTimerName = "rollover"

// ErrOutOfOrderData aborts the run when a source yields a record earlier
// than its predecessor. Silently reordering would break determinism.
var ErrOutOfOrderData = errors.New("data source is not in timestamp order")

// Strategy receives market data after all engine components have processed
// it, and reacts by posting order and cancel commands on the router.
type Strategy interface {
	OnTick(ctx context.Context, tick common.Tick)
}

// BarStrategy is implemented by strategies that also want bar callbacks.
type BarStrategy interface {
	OnBar(ctx context.Context, bar common.Bar)
}

type Option func(*Engine)

func WithCommissionHandler(handler exchange.CommissionHandler) Option {
	return func(e *Engine) {
		e.commissionHandler = handler
	}
}

func WithSwapHandler(handler account.SwapHandler) Option {
	return func(e *Engine) {
		e.swapHandler = handler
	}
}

type seriesKind int

const (
	tickSeries seriesKind = iota
	barSeries
)

// series is one registered data source with its buffered head record. The
// registration order is the first tie-breaker of the replay merge.
type series struct {
	kind  seriesKind
	order int
	done  bool

	ticks datasource.TickSource
	bars  datasource.BarSource

	tick common.Tick
	bar  common.Bar
}

func (s *series) timeStamp() time.Time {
	if s.kind == tickSeries {
		return s.tick.TimeStamp
	}
	return s.bar.TimeStamp
}

func (s *series) symbol() string {
	if s.kind == tickSeries {
		return s.tick.Symbol
	}
	return s.bar.Symbol
}

type Engine struct {
	cfg Config

	router     *bus.Router
	clk        *clock.Clock
	registry   *exchange.Registry
	rates      *exchange.RateCalculator
	fillModel  *exchange.FillModel
	simulators map[string]*exchange.Simulator
	riskEngine *risk.Engine
	tracker    *position.Tracker
	accounts   *account.Manager
	executor   *execution.Engine
	aggregator *Aggregator
	audit      *Audit

	commissionHandler exchange.CommissionHandler
	swapHandler       account.SwapHandler

	primaryVenue string
	sources      []*series
	runCtx       context.Context
}

func NewEngine(cfg Config, instruments []common.Instrument, options ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{cfg: cfg}
	for _, option := range options {
		option(e)
	}

	registry, err := exchange.NewRegistry(instruments...)
	if err != nil {
		return nil, err
	}

	omsType, _ := cfg.omsType()
	accountType, _ := cfg.accountType()

	fillModel, err := exchange.NewFillModel(cfg.FillModel)
	if err != nil {
		return nil, err
	}

	e.router = bus.NewRouter()
	e.clk = clock.New(cfg.Start)
	e.registry = registry
	e.rates = exchange.NewRateCalculator(registry)
	e.fillModel = fillModel
	e.audit = NewAudit(cfg.SnapshotInterval)

	balances := make([]account.StartingBalance, len(cfg.Balances))
	for idx, balance := range cfg.Balances {
		balance.Type = accountType
		balances[idx] = balance
	}
	e.primaryVenue = balances[0].Venue

	currencies := make(map[string]common.Currency, len(balances))
	for _, balance := range balances {
		currencies[balance.Venue] = balance.Currency
	}
	resolver := func(venue string) (common.Currency, bool) {
		currency, ok := currencies[venue]
		return currency, ok
	}

	e.tracker = position.NewTracker(e.router, e.clk, registry, e.rates, omsType, resolver)

	var accountOptions []account.Option
	if e.swapHandler != nil {
		accountOptions = append(accountOptions, account.WithSwapHandler(e.swapHandler))
	}
	e.accounts, err = account.NewManager(e.router, e.clk, registry, e.rates, e.tracker, balances, accountOptions...)
	if err != nil {
		return nil, err
	}

	e.simulators = make(map[string]*exchange.Simulator)
	for _, symbol := range registry.Symbols() {
		instrument, _ := registry.Lookup(symbol)
		if _, ok := e.simulators[instrument.Venue]; ok {
			continue
		}
		simOptions := []exchange.Option{exchange.WithBarQuoteSpread(cfg.BarQuoteSpread)}
		if e.commissionHandler != nil {
			simOptions = append(simOptions, exchange.WithCommissionHandler(e.commissionHandler))
		}
		e.simulators[instrument.Venue] = exchange.NewSimulator(e.router, e.clk, registry, fillModel, instrument.Venue, simOptions...)
	}

	e.riskEngine = risk.NewEngine(cfg.Risk, registry, e.rates, e, e.accounts)

	venues := make([]execution.Venue, 0, len(e.simulators))
	for _, venue := range e.sortedVenues() {
		venues = append(venues, e.simulators[venue])
	}
	e.executor = execution.NewEngine(e.router, e.clk, registry, e.riskEngine, venues...)

	if cfg.BarPeriod > 0 {
		e.aggregator = NewAggregator(cfg.BarPeriod, e.router)
	}

	e.wire()
	return e, nil
}

// LastQuote implements the risk engine's quote view across venues.
func (e *Engine) LastQuote(symbol string) (common.Tick, bool) {
	instrument, err := e.registry.Lookup(symbol)
	if err != nil {
		return common.Tick{}, false
	}
	simulator, ok := e.simulators[instrument.Venue]
	if !ok {
		return common.Tick{}, false
	}
	return simulator.LastQuote(symbol)
}

func (e *Engine) Router() *bus.Router {
	return e.router
}

func (e *Engine) Clock() *clock.Clock {
	return e.clk
}

// AttachStrategy merges the strategy behind all engine components, so it
// observes state updated through the current event.
func (e *Engine) AttachStrategy(strategy Strategy) {
	e.router.OnTick = bus.MergeHandlers(bus.EventHandler[common.Tick](e.router.OnTick), strategy.OnTick)
	if barStrategy, ok := strategy.(BarStrategy); ok {
		e.router.OnBar = bus.MergeHandlers(bus.EventHandler[common.Bar](e.router.OnBar), barStrategy.OnBar)
	}
}

func (e *Engine) AddTickSource(source datasource.TickSource) error {
	s := &series{kind: tickSeries, order: len(e.sources), ticks: source}
	if err := e.refill(s); err != nil {
		return err
	}
	e.sources = append(e.sources, s)
	return nil
}

func (e *Engine) AddBarSource(source datasource.BarSource) error {
	s := &series{kind: barSeries, order: len(e.sources), bars: source}
	if err := e.refill(s); err != nil {
		return err
	}
	e.sources = append(e.sources, s)
	return nil
}

// Run replays all registered sources to exhaustion. Each iteration pops the
// earliest buffered record, advances the clock, and posts exactly one root
// event; the synchronous bus drains every derived event before the next pop.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	if e.cfg.RolloverEnabled {
		e.scheduleRollover()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := e.nextSeries()
		if next == nil {
			break
		}

		if err := e.clk.Advance(next.timeStamp()); err != nil {
			return fmt.Errorf("%w: %v", ErrOutOfOrderData, err)
		}

		if next.kind == tickSeries {
			if err := e.router.Post(ctx, bus.TickEvent, next.tick); err != nil {
				slog.Warn("unable to post tick event", "error", err)
			}
		} else {
			if err := e.router.Post(ctx, bus.BarEvent, next.bar); err != nil {
				slog.Warn("unable to post bar event", "error", err)
			}
		}

		e.snapshotAccount()

		if err := e.refill(next); err != nil {
			return err
		}
	}

	if e.aggregator != nil {
		e.aggregator.Flush(ctx)
	}
	e.clk.CancelTimer(rolloverTimerName)
	return nil
}

// Reset re-initializes all mutable state without rebuilding reference data.
// Data sources are consumed by Run and must be registered again; a reset
// followed by an identical run reproduces the first run exactly.
func (e *Engine) Reset() {
	e.clk.Reset(e.cfg.Start)
	e.fillModel.Reset()
	e.rates.Reset()
	e.tracker.Reset()
	e.accounts.Reset()
	e.executor.Reset()
	for _, simulator := range e.simulators {
		simulator.Reset()
	}
	if e.aggregator != nil {
		e.aggregator.Reset()
	}
	e.audit = NewAudit(e.cfg.SnapshotInterval)
	e.sources = nil
	utility.ResetExecutionID()
}

// Results is the post-run state snapshot.
type Results struct {
	Orders          []common.Order
	OpenPositions   []common.Position
	ClosedPositions []common.Position
	Accounts        []common.AccountState
	WorkingOrders   []common.Order
	BusStatistics   bus.Statistics
}

func (e *Engine) Results() Results {
	var working []common.Order
	for _, venue := range e.sortedVenues() {
		working = append(working, e.simulators[venue].WorkingOrders()...)
	}
	return Results{
		Orders:          e.executor.Orders(),
		OpenPositions:   e.tracker.OpenPositions(),
		ClosedPositions: e.tracker.ClosedPositions(),
		Accounts:        e.accounts.States(),
		WorkingOrders:   working,
		BusStatistics:   e.router.Statistics(),
	}
}

func (e *Engine) Report() Report {
	return e.audit.GenerateReport()
}

func (e *Engine) wire() {
	onTick := []bus.EventHandler[common.Tick]{e.rates.OnTick, e.routeTick, e.tracker.OnTick}
	if e.aggregator != nil {
		onTick = append(onTick, e.aggregator.OnTick)
	}
	e.router.OnTick = bus.MergeHandlers(onTick...)
	e.router.OnBar = bus.MergeHandlers[common.Bar](e.rates.OnBar, e.routeBar)
	e.router.OnOrderCommand = e.executor.OnOrderCommand
	e.router.OnCancelCommand = e.executor.OnCancelCommand
	e.router.OnOrderFilled = e.accounts.OnOrderFilled
	e.router.OnPositionClose = func(_ context.Context, pos common.Position) {
		e.audit.AddClosedPosition(pos)
	}
}

func (e *Engine) routeTick(ctx context.Context, tick common.Tick) {
	instrument, err := e.registry.Lookup(tick.Symbol)
	if err != nil {
		slog.Warn("dropping tick for unknown instrument", "symbol", tick.Symbol)
		return
	}
	e.simulators[instrument.Venue].OnTick(ctx, tick)
}

func (e *Engine) routeBar(ctx context.Context, bar common.Bar) {
	instrument, err := e.registry.Lookup(bar.Symbol)
	if err != nil {
		slog.Warn("dropping bar for unknown instrument", "symbol", bar.Symbol)
		return
	}
	e.simulators[instrument.Venue].OnBar(ctx, bar)
}

// nextSeries picks the series with the earliest buffered record. Ties break
// on registration order, then symbol, so the merge is a total order.
func (e *Engine) nextSeries() *series {
	var next *series
	for _, candidate := range e.sources {
		if candidate.done {
			continue
		}
		if next == nil {
			next = candidate
			continue
		}
		ct, nt := candidate.timeStamp(), next.timeStamp()
		if ct.Before(nt) {
			next = candidate
			continue
		}
		if ct.Equal(nt) {
			if candidate.order < next.order ||
				(candidate.order == next.order && candidate.symbol() < next.symbol()) {
				next = candidate
			}
		}
	}
	return next
}

// refill buffers the next record of the series, enforcing per-series
// timestamp order.
func (e *Engine) refill(s *series) error {
	previous := s.timeStamp()

	if s.kind == tickSeries {
		tick, err := s.ticks.GetNext()
		if errors.Is(err, datasource.ErrEof) {
			s.done = true
			return nil
		}
		if err != nil {
			return err
		}
		if tick.TimeStamp.Before(previous) {
			return fmt.Errorf("%w: %s then %s", ErrOutOfOrderData, previous.Format(time.RFC3339Nano), tick.TimeStamp.Format(time.RFC3339Nano))
		}
		s.tick = tick
		return nil
	}

	bar, err := s.bars.GetNext()
	if errors.Is(err, datasource.ErrEof) {
		s.done = true
		return nil
	}
	if err != nil {
		return err
	}
	if bar.TimeStamp.Before(previous) {
		return fmt.Errorf("%w: %s then %s", ErrOutOfOrderData, previous.Format(time.RFC3339Nano), bar.TimeStamp.Format(time.RFC3339Nano))
	}
	s.bar = bar
	return nil
}

func (e *Engine) snapshotAccount() {
	state, ok := e.accounts.State(e.primaryVenue)
	if !ok {
		return
	}
	e.audit.AddAccountSnapshot(state.Balance, state.Equity, e.clk.Now())
}

func (e *Engine) scheduleRollover() {
	now := e.clk.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), e.cfg.RolloverHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	e.clk.ScheduleAt(rolloverTimerName, next, func(at time.Time) {
		e.accounts.ApplySwap(e.runCtx)
		e.scheduleRolloverAfter(at)
	})
}

func (e *Engine) scheduleRolloverAfter(at time.Time) {
	e.clk.ScheduleAt(rolloverTimerName, at.Add(24*time.Hour), func(next time.Time) {
		e.accounts.ApplySwap(e.runCtx)
		e.scheduleRolloverAfter(next)
	})
}

func (e *Engine) sortedVenues() []string {
	venues := make([]string, 0, len(e.simulators))
	for venue := range e.simulators {
		venues = append(venues, venue)
	}
	sort.Strings(venues)
	return venues
}
