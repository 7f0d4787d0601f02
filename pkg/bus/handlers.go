package bus

import (
	"context"

	"github.com/peregrine-trading/peregrine/pkg/common"
)

type EventHandler[T any] = func(context.Context, T)

type TickEventHandler EventHandler[common.Tick]
type BarEventHandler EventHandler[common.Bar]
type OrderCommandHandler EventHandler[common.OrderCommand]
type CancelCommandHandler EventHandler[common.CancelCommand]
type OrderSubmittedEventHandler EventHandler[common.OrderSubmitted]
type OrderAcceptedEventHandler EventHandler[common.OrderAccepted]
type OrderRejectedEventHandler EventHandler[common.OrderRejected]
type OrderFilledEventHandler EventHandler[common.OrderFilled]
type OrderCanceledEventHandler EventHandler[common.OrderCanceled]
type OrderExpiredEventHandler EventHandler[common.OrderExpired]
type PositionEventHandler EventHandler[common.Position]
type AccountEventHandler EventHandler[common.AccountState]
type MarginWarningEventHandler EventHandler[common.MarginWarning]

func MergeHandlers[T any](handlers ...EventHandler[T]) EventHandler[T] {
	return func(ctx context.Context, event T) {
		for _, handler := range handlers {
			if handler != nil {
				handler(ctx, event)
			}
		}
	}
}
