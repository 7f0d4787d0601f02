package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/common"
)

// Router dispatches events synchronously on the caller's goroutine. Handlers
// may post further events; nested posts resolve depth-first before the outer
// Post returns, so causally dependent events are fully processed before the
// next root event enters the bus. There is exactly one logical thread of
// control, no locking and no reordering.
type Router struct {
	OnTick           TickEventHandler
	OnBar            BarEventHandler
	OnOrderCommand   OrderCommandHandler
	OnCancelCommand  CancelCommandHandler
	OnOrderSubmitted OrderSubmittedEventHandler
	OnOrderAccepted  OrderAcceptedEventHandler
	OnOrderRejected  OrderRejectedEventHandler
	OnOrderFilled    OrderFilledEventHandler
	OnOrderCanceled  OrderCanceledEventHandler
	OnOrderExpired   OrderExpiredEventHandler
	OnPositionOpen   PositionEventHandler
	OnPositionUpdate PositionEventHandler
	OnPositionClose  PositionEventHandler
	OnAccount        AccountEventHandler
	OnMarginWarning  MarginWarningEventHandler

	startTime     time.Time
	postCount     atomic.Uint64
	dispatchFails atomic.Uint64
	depth         int
	maxDepth      int
}

func NewRouter() *Router {
	return &Router{startTime: time.Now()}
}

// Post dispatches the event to the registered handler for id. A nil handler
// is not an error, the event is simply dropped.
func (r *Router) Post(ctx context.Context, id EventId, data any) error {
	r.postCount.Add(1)
	r.depth++
	if r.depth > r.maxDepth {
		r.maxDepth = r.depth
	}
	defer func() { r.depth-- }()

	if err := r.dispatch(ctx, id, data); err != nil {
		r.dispatchFails.Add(1)
		slog.Warn("dispatch failed", "error", err, "event", id.String())
		return err
	}
	return nil
}

func (r *Router) dispatch(ctx context.Context, id EventId, data any) error {
	switch id {
	case TickEvent:
		return invoke(ctx, EventHandler[common.Tick](r.OnTick), id, data)
	case BarEvent:
		return invoke(ctx, EventHandler[common.Bar](r.OnBar), id, data)
	case OrderCommandEvent:
		return invoke(ctx, EventHandler[common.OrderCommand](r.OnOrderCommand), id, data)
	case CancelCommandEvent:
		return invoke(ctx, EventHandler[common.CancelCommand](r.OnCancelCommand), id, data)
	case OrderSubmittedEvent:
		return invoke(ctx, EventHandler[common.OrderSubmitted](r.OnOrderSubmitted), id, data)
	case OrderAcceptedEvent:
		return invoke(ctx, EventHandler[common.OrderAccepted](r.OnOrderAccepted), id, data)
	case OrderRejectedEvent:
		return invoke(ctx, EventHandler[common.OrderRejected](r.OnOrderRejected), id, data)
	case OrderFilledEvent:
		return invoke(ctx, EventHandler[common.OrderFilled](r.OnOrderFilled), id, data)
	case OrderCanceledEvent:
		return invoke(ctx, EventHandler[common.OrderCanceled](r.OnOrderCanceled), id, data)
	case OrderExpiredEvent:
		return invoke(ctx, EventHandler[common.OrderExpired](r.OnOrderExpired), id, data)
	case PositionOpenEvent:
		return invoke(ctx, EventHandler[common.Position](r.OnPositionOpen), id, data)
	case PositionUpdateEvent:
		return invoke(ctx, EventHandler[common.Position](r.OnPositionUpdate), id, data)
	case PositionCloseEvent:
		return invoke(ctx, EventHandler[common.Position](r.OnPositionClose), id, data)
	case AccountEvent:
		return invoke(ctx, EventHandler[common.AccountState](r.OnAccount), id, data)
	case MarginWarningEvent:
		return invoke(ctx, EventHandler[common.MarginWarning](r.OnMarginWarning), id, data)
	}
	return fmt.Errorf("unsupported event id: %v", id)
}

func invoke[T any](ctx context.Context, handler EventHandler[T], id EventId, data any) error {
	event, ok := data.(T)
	if !ok {
		return errors.New("invalid type assertion for " + id.String() + " event")
	}
	if handler == nil {
		slog.Debug("handler is nil", "event", id.String())
		return nil
	}
	handler(ctx, event)
	return nil
}

func (r *Router) Statistics() Statistics {
	return Statistics{
		RunTime:       time.Since(r.startTime),
		PostCount:     r.postCount.Load(),
		DispatchFails: r.dispatchFails.Load(),
		MaxDepth:      r.maxDepth,
	}
}
