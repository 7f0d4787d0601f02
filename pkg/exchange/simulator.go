package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/clock"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

const simulatorComponentName = "exchange.simulator"

type CommissionHandler func(common.Instrument, common.Fill) common.Money

type Option func(*Simulator)

func WithCommissionHandler(handler CommissionHandler) Option {
	return func(s *Simulator) {
		s.commissionHandler = handler
	}
}

// WithBarQuoteSpread sets the synthetic bid/ask spread applied when bars
// drive the simulator instead of ticks.
func WithBarQuoteSpread(spread fixed.Point) Option {
	return func(s *Simulator) {
		s.barQuoteSpread = spread
	}
}

// Simulator is the venue matching engine. It owns the resting-order books of
// one venue, consumes market data, and decides fills according to the fill
// model. Orders are mutated only here, through the state machine methods;
// everything downstream sees immutable event snapshots.
type Simulator struct {
	router    *bus.Router
	clk       *clock.Clock
	registry  *Registry
	fillModel *FillModel
	venue     string

	commissionHandler CommissionHandler
	barQuoteSpread    fixed.Point

	books    map[string]*Book
	lastTick map[string]common.Tick
}

func NewSimulator(router *bus.Router, clk *clock.Clock, registry *Registry, fillModel *FillModel, venue string, options ...Option) *Simulator {
	s := &Simulator{
		router:    router,
		clk:       clk,
		registry:  registry,
		fillModel: fillModel,
		venue:     venue,
		books:     make(map[string]*Book),
		lastTick:  make(map[string]common.Tick),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *Simulator) Venue() string { return s.venue }

// SubmitOrder accepts the order into the venue and evaluates it once against
// the prevailing quote. Orders that cannot fill immediately rest in the book.
func (s *Simulator) SubmitOrder(ctx context.Context, order *common.Order) error {
	instrument, err := s.instrumentFor(order.Symbol)
	if err != nil {
		if rejectErr := order.Reject(s.clk.Now()); rejectErr != nil {
			return rejectErr
		}
		s.postOrderRejected(ctx, order, err.Error())
		return nil
	}

	order.Quantity = instrument.SizeOf(order.Quantity)
	if !order.Price.IsZero() {
		order.Price = instrument.PriceOf(order.Price)
	}
	if !order.TriggerPrice.IsZero() {
		order.TriggerPrice = instrument.PriceOf(order.TriggerPrice)
	}

	if err := order.Accept(s.clk.Now()); err != nil {
		return err
	}
	if err := s.router.Post(ctx, bus.OrderAcceptedEvent, common.OrderAccepted{
		Order:       *order,
		Source:      simulatorComponentName,
		ExecutionId: utility.GetExecutionID(),
		TraceID:     utility.CreateTraceID(),
		TimeStamp:   s.clk.Now(),
	}); err != nil {
		slog.Warn("unable to post order accepted event", "error", err)
	}

	book := s.book(order.Symbol)
	book.Add(order)

	tick, ok := s.lastTick[strings.ToUpper(order.Symbol)]
	if ok && tick.HasPrice() {
		s.evaluateOrder(ctx, order, instrument, tick, book)
	}

	// Immediate-or-cancel semantics resolve at submission.
	if !order.Status.IsTerminal() &&
		(order.TimeInForce == common.TimeInForceImmediateOrCancel || order.TimeInForce == common.TimeInForceFillOrKill) {
		s.cancelResting(ctx, order, book)
	}
	return nil
}

// CancelOrder removes a working order from the book. Cancels run as bus
// events ahead of fill evaluation for the same instant, so a cancel and a
// fill-eligible tick sharing a timestamp resolve cancel-first.
func (s *Simulator) CancelOrder(ctx context.Context, order *common.Order) error {
	if order.Status.IsTerminal() {
		return fmt.Errorf("%w: order %d", common.ErrOrderTerminal, order.Id)
	}
	book := s.book(order.Symbol)
	if removed := book.Remove(order.Id); removed == nil {
		return fmt.Errorf("order %d is not resting on venue %s", order.Id, s.venue)
	}
	return s.cancel(ctx, order)
}

func (s *Simulator) OnTick(ctx context.Context, tick common.Tick) {
	instrument, err := s.instrumentFor(tick.Symbol)
	if err != nil {
		slog.Warn("dropping tick for unknown instrument", "symbol", tick.Symbol)
		return
	}

	s.lastTick[strings.ToUpper(tick.Symbol)] = tick
	if !tick.HasPrice() {
		// Zero-liquidity record, defer evaluation to the next event.
		return
	}
	s.processQuote(ctx, instrument, tick)
}

func (s *Simulator) OnBar(ctx context.Context, bar common.Bar) {
	instrument, err := s.instrumentFor(bar.Symbol)
	if err != nil {
		slog.Warn("dropping bar for unknown instrument", "symbol", bar.Symbol)
		return
	}
	if !bar.HasPrice() {
		return
	}

	half := s.barQuoteSpread.Div(fixed.Two)
	tick := common.Tick{
		Bid:         instrument.PriceOf(bar.Close.Sub(half)),
		Ask:         instrument.PriceOf(bar.Close.Add(half)),
		BidVolume:   bar.Volume,
		AskVolume:   bar.Volume,
		Source:      bar.Source,
		Symbol:      bar.Symbol,
		ExecutionId: bar.ExecutionId,
		TraceID:     bar.TraceID,
		TimeStamp:   bar.TimeStamp,
	}

	s.lastTick[strings.ToUpper(bar.Symbol)] = tick
	s.processQuote(ctx, instrument, tick)
}

// LastQuote returns the most recent quote seen for the symbol, including
// zero-liquidity records.
func (s *Simulator) LastQuote(symbol string) (common.Tick, bool) {
	tick, ok := s.lastTick[strings.ToUpper(symbol)]
	return tick, ok
}

// WorkingOrders snapshots the resting orders across all books in symbol
// order.
func (s *Simulator) WorkingOrders() []common.Order {
	var orders []common.Order
	for _, symbol := range s.registry.Symbols() {
		book, ok := s.books[symbol]
		if !ok {
			continue
		}
		for _, order := range book.Orders() {
			orders = append(orders, *order)
		}
	}
	return orders
}

// Reset drops all books and quotes. Reference data and the fill model config
// survive; the fill model stream is re-seeded by the engine.
func (s *Simulator) Reset() {
	s.books = make(map[string]*Book)
	s.lastTick = make(map[string]common.Tick)
}

func (s *Simulator) processQuote(ctx context.Context, instrument common.Instrument, tick common.Tick) {
	book := s.book(tick.Symbol)

	// Expiry runs before any fill evaluation for the same instant.
	for _, order := range book.TakeExpired(s.clk.Now()) {
		s.expire(ctx, order)
	}

	for _, order := range book.TakeMarketOrders() {
		s.fillMarket(ctx, order, instrument, tick, book)
	}

	for _, order := range book.TakeTriggeredStops(tick) {
		s.handleTriggered(ctx, order, instrument, tick, book)
	}

	for _, order := range book.MarketableLimits(tick) {
		s.evaluateLimit(ctx, order, instrument, tick, book)
	}
}

// evaluateOrder runs a single submission-time evaluation of one order
// against the prevailing quote, without touching other resting orders.
func (s *Simulator) evaluateOrder(ctx context.Context, order *common.Order, instrument common.Instrument, tick common.Tick, book *Book) {
	switch order.Type {
	case common.OrderTypeMarket:
		book.Remove(order.Id)
		s.fillMarket(ctx, order, instrument, tick, book)
	case common.OrderTypeLimit:
		if s.limitMarketable(order, tick) {
			s.evaluateLimit(ctx, order, instrument, tick, book)
		}
	case common.OrderTypeStop, common.OrderTypeStopLimit:
		if s.stopTriggered(order, tick) {
			book.Remove(order.Id)
			s.handleTriggered(ctx, order, instrument, tick, book)
		}
	}
}

func (s *Simulator) fillMarket(ctx context.Context, order *common.Order, instrument common.Instrument, tick common.Tick, book *Book) {
	price := tick.Ask
	if order.Side == common.OrderSideSell {
		price = tick.Bid
	}

	if s.fillModel.Slips() {
		if order.Side == common.OrderSideBuy {
			price = price.Add(instrument.MinPriceIncrement)
		} else {
			price = price.Sub(instrument.MinPriceIncrement)
		}
	}

	s.fill(ctx, order, instrument, tick, price)
	if !order.Status.IsTerminal() {
		// Partial remainder keeps waiting for liquidity.
		book.Add(order)
	}
}

func (s *Simulator) handleTriggered(ctx context.Context, order *common.Order, instrument common.Instrument, tick common.Tick, book *Book) {
	if !s.fillModel.StopFills() {
		// Not filled on this evaluation, the stop re-arms for the next event.
		book.Add(order)
		return
	}

	if order.Type == common.OrderTypeStopLimit {
		order.Triggered = true
		if s.limitMarketable(order, tick) {
			s.fillAtLimit(ctx, order, instrument, tick, book)
			return
		}
		book.Add(order)
		return
	}

	// Plain stop fills like a market order, slippage draw included.
	s.fillMarket(ctx, order, instrument, tick, book)
}

func (s *Simulator) evaluateLimit(ctx context.Context, order *common.Order, instrument common.Instrument, tick common.Tick, book *Book) {
	fills := false
	if order.Triggered {
		fills = s.fillModel.StopFills()
	} else {
		fills = s.fillModel.LimitFills()
	}
	if !fills {
		// Models partial liquidity at the touch, the order stays working.
		return
	}
	book.Remove(order.Id)
	s.fillAtLimit(ctx, order, instrument, tick, book)
}

func (s *Simulator) fillAtLimit(ctx context.Context, order *common.Order, instrument common.Instrument, tick common.Tick, book *Book) {
	s.fill(ctx, order, instrument, tick, order.Price)
	if !order.Status.IsTerminal() {
		book.Add(order)
	}
}

func (s *Simulator) fill(ctx context.Context, order *common.Order, instrument common.Instrument, tick common.Tick, price fixed.Point) {
	leaves := order.LeavesQuantity()
	available := tick.AskVolume
	if order.Side == common.OrderSideSell {
		available = tick.BidVolume
	}

	quantity := leaves
	if available.IsPos() && available.Lt(leaves) {
		quantity = available
	}

	price = instrument.PriceOf(price)
	if err := order.ApplyFill(price, quantity, s.clk.Now()); err != nil {
		slog.Warn("dropping fill for order", "error", err, "order_id", order.Id)
		return
	}

	fill := common.Fill{
		OrderId:     order.Id,
		PositionId:  order.PositionId,
		Side:        order.Side,
		Price:       price,
		Quantity:    quantity,
		Commission:  common.ZeroMoney(instrument.QuoteCurrency),
		Partial:     order.Status != common.OrderStatusFilled,
		Source:      simulatorComponentName,
		Symbol:      order.Symbol,
		Venue:       s.venue,
		ExecutionId: utility.GetExecutionID(),
		TraceID:     utility.CreateTraceID(),
		TimeStamp:   s.clk.Now(),
	}
	if s.commissionHandler != nil {
		fill.Commission = s.commissionHandler(instrument, fill)
	}

	if err := s.router.Post(ctx, bus.OrderFilledEvent, common.OrderFilled{
		Order:       *order,
		Fill:        fill,
		Source:      simulatorComponentName,
		ExecutionId: utility.GetExecutionID(),
		TraceID:     utility.CreateTraceID(),
		TimeStamp:   s.clk.Now(),
	}); err != nil {
		slog.Warn("unable to post order filled event", "error", err)
	}
}

func (s *Simulator) cancelResting(ctx context.Context, order *common.Order, book *Book) {
	book.Remove(order.Id)
	if err := s.cancel(ctx, order); err != nil {
		slog.Warn("unable to cancel order", "error", err, "order_id", order.Id)
	}
}

func (s *Simulator) cancel(ctx context.Context, order *common.Order) error {
	if err := order.Cancel(s.clk.Now()); err != nil {
		return err
	}
	if err := s.router.Post(ctx, bus.OrderCanceledEvent, common.OrderCanceled{
		Order:       *order,
		Source:      simulatorComponentName,
		ExecutionId: utility.GetExecutionID(),
		TraceID:     utility.CreateTraceID(),
		TimeStamp:   s.clk.Now(),
	}); err != nil {
		slog.Warn("unable to post order canceled event", "error", err)
	}
	return nil
}

func (s *Simulator) expire(ctx context.Context, order *common.Order) {
	if err := order.Expire(s.clk.Now()); err != nil {
		slog.Warn("unable to expire order", "error", err, "order_id", order.Id)
		return
	}
	if err := s.router.Post(ctx, bus.OrderExpiredEvent, common.OrderExpired{
		Order:       *order,
		Source:      simulatorComponentName,
		ExecutionId: utility.GetExecutionID(),
		TraceID:     utility.CreateTraceID(),
		TimeStamp:   s.clk.Now(),
	}); err != nil {
		slog.Warn("unable to post order expired event", "error", err)
	}
}

func (s *Simulator) postOrderRejected(ctx context.Context, order *common.Order, reason string) {
	if err := s.router.Post(ctx, bus.OrderRejectedEvent, common.OrderRejected{
		Order:       *order,
		Reason:      reason,
		Source:      simulatorComponentName,
		ExecutionId: utility.GetExecutionID(),
		TraceID:     utility.CreateTraceID(),
		TimeStamp:   s.clk.Now(),
	}); err != nil {
		slog.Warn("unable to post order rejected event", "error", err)
	}
}

func (s *Simulator) limitMarketable(order *common.Order, tick common.Tick) bool {
	if order.Side == common.OrderSideBuy {
		return tick.Ask.Lte(order.Price)
	}
	return tick.Bid.Gte(order.Price)
}

func (s *Simulator) stopTriggered(order *common.Order, tick common.Tick) bool {
	if order.Side == common.OrderSideBuy {
		return tick.Ask.Gte(order.TriggerPrice)
	}
	return tick.Bid.Lte(order.TriggerPrice)
}

func (s *Simulator) book(symbol string) *Book {
	key := strings.ToUpper(symbol)
	book, ok := s.books[key]
	if !ok {
		book = NewBook()
		s.books[key] = book
	}
	return book
}

func (s *Simulator) instrumentFor(symbol string) (common.Instrument, error) {
	instrument, err := s.registry.Lookup(symbol)
	if err != nil {
		return common.Instrument{}, err
	}
	if instrument.Venue != s.venue {
		return common.Instrument{}, fmt.Errorf("%w: %s is not listed on %s", ErrUnknownInstrument, symbol, s.venue)
	}
	return instrument, nil
}
