// Package execution turns strategy order commands into venue orders. It owns
// the order cache and is, together with the venue simulator, the only writer
// of order state.
package execution

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/clock"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/exchange"
	"github.com/peregrine-trading/peregrine/pkg/risk"
	"github.com/peregrine-trading/peregrine/pkg/utility"
)

const engineComponentName = "execution.engine"

// RiskChecker approves or rejects an order command before any order state
// exists. The risk engine implements it.
type RiskChecker interface {
	Check(command common.OrderCommand) error
}

// Venue is the execution-side surface of a venue simulator.
type Venue interface {
	Venue() string
	SubmitOrder(ctx context.Context, order *common.Order) error
	CancelOrder(ctx context.Context, order *common.Order) error
}

type Engine struct {
	router   *bus.Router
	clk      *clock.Clock
	registry *exchange.Registry
	risk     RiskChecker
	venues   map[string]Venue

	nextId common.OrderId
	orders map[common.OrderId]*common.Order
}

func NewEngine(router *bus.Router, clk *clock.Clock, registry *exchange.Registry, riskEngine RiskChecker, venues ...Venue) *Engine {
	e := &Engine{
		router:   router,
		clk:      clk,
		registry: registry,
		risk:     riskEngine,
		venues:   make(map[string]Venue, len(venues)),
	}
	for _, venue := range venues {
		e.venues[venue.Venue()] = venue
	}
	e.Reset()
	return e
}

// OnOrderCommand runs the full submission path: order creation, risk check,
// then venue routing. Risk rejections still produce a submitted order record
// so the audit trail shows the attempt.
func (e *Engine) OnOrderCommand(ctx context.Context, command common.OrderCommand) {
	order := e.createOrder(command)

	instrument, err := e.registry.Lookup(command.Symbol)
	if err != nil {
		e.submitAndReject(ctx, order, risk.Rejection{Reason: risk.ReasonInvalidInstrument, Detail: err.Error()}.Error())
		return
	}
	order.Venue = instrument.Venue

	if err := order.Submit(e.clk.Now()); err != nil {
		slog.Warn("unable to submit order", "error", err, "order_id", order.Id)
		return
	}
	e.postSubmitted(ctx, order)

	if err := e.risk.Check(command); err != nil {
		var rejection risk.Rejection
		reason := err.Error()
		if errors.As(err, &rejection) {
			reason = rejection.Error()
		}
		e.reject(ctx, order, reason)
		return
	}

	venue, ok := e.venues[instrument.Venue]
	if !ok {
		e.reject(ctx, order, "no venue simulator for "+instrument.Venue)
		return
	}
	if err := venue.SubmitOrder(ctx, order); err != nil {
		slog.Warn("venue rejected order submission", "error", err, "order_id", order.Id)
	}
}

// OnCancelCommand forwards the cancel to the venue. Cancels targeting
// terminal or unknown orders are recoverable anomalies: logged, dropped, no
// state change.
func (e *Engine) OnCancelCommand(ctx context.Context, command common.CancelCommand) {
	order, ok := e.orders[command.OrderId]
	if !ok {
		slog.Warn("dropping cancel for unknown order", "order_id", command.OrderId)
		return
	}
	if order.Status.IsTerminal() {
		slog.Warn("dropping cancel for terminal order", "order_id", order.Id, "status", order.Status.String())
		return
	}
	venue, ok := e.venues[order.Venue]
	if !ok {
		slog.Warn("dropping cancel, no venue simulator", "order_id", order.Id, "venue", order.Venue)
		return
	}
	if err := venue.CancelOrder(ctx, order); err != nil {
		slog.Warn("unable to cancel order", "error", err, "order_id", order.Id)
	}
}

// Order returns a snapshot of one cached order. Terminal orders stay cached
// for the lifetime of the run.
func (e *Engine) Order(id common.OrderId) (common.Order, bool) {
	order, ok := e.orders[id]
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}

// Orders snapshots the order cache in id order.
func (e *Engine) Orders() []common.Order {
	ids := make([]common.OrderId, 0, len(e.orders))
	for id := range e.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	orders := make([]common.Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, *e.orders[id])
	}
	return orders
}

func (e *Engine) Reset() {
	e.nextId = 0
	e.orders = make(map[common.OrderId]*common.Order)
}

func (e *Engine) createOrder(command common.OrderCommand) *common.Order {
	e.nextId++
	order := &common.Order{
		Id:           e.nextId,
		ClientId:     command.ClientId,
		PositionId:   command.PositionId,
		Side:         command.Side,
		Type:         command.Type,
		Quantity:     command.Quantity,
		Price:        command.Price,
		TriggerPrice: command.TriggerPrice,
		TimeInForce:  command.TimeInForce,
		ExpireTime:   command.ExpireTime,
		Status:       common.OrderStatusInitialized,
		Source:       engineComponentName,
		Symbol:       command.Symbol,
		ExecutionId:  utility.GetExecutionID(),
		TraceID:      utility.CreateTraceID(),
		TimeStamp:    e.clk.Now(),
	}
	e.orders[order.Id] = order
	return order
}

func (e *Engine) submitAndReject(ctx context.Context, order *common.Order, reason string) {
	if err := order.Submit(e.clk.Now()); err != nil {
		slog.Warn("unable to submit order", "error", err, "order_id", order.Id)
		return
	}
	e.postSubmitted(ctx, order)
	e.reject(ctx, order, reason)
}

func (e *Engine) reject(ctx context.Context, order *common.Order, reason string) {
	if err := order.Reject(e.clk.Now()); err != nil {
		slog.Warn("unable to reject order", "error", err, "order_id", order.Id)
		return
	}
	if err := e.router.Post(ctx, bus.OrderRejectedEvent, common.OrderRejected{
		Order:       *order,
		Reason:      reason,
		Source:      engineComponentName,
		ExecutionId: utility.GetExecutionID(),
		TraceID:     utility.CreateTraceID(),
		TimeStamp:   e.clk.Now(),
	}); err != nil {
		slog.Warn("unable to post order rejected event", "error", err)
	}
}

func (e *Engine) postSubmitted(ctx context.Context, order *common.Order) {
	if err := e.router.Post(ctx, bus.OrderSubmittedEvent, common.OrderSubmitted{
		Order:       *order,
		Source:      engineComponentName,
		ExecutionId: utility.GetExecutionID(),
		TraceID:     utility.CreateTraceID(),
		TimeStamp:   e.clk.Now(),
	}); err != nil {
		slog.Warn("unable to post order submitted event", "error", err)
	}
}
