package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/common"
)

// Telemetry counts events and accumulates handler latency per event type.
type Telemetry struct {
	logger *zap.Logger

	tickEvents   int64
	tickDuration time.Duration

	barEvents   int64
	barDuration time.Duration

	orderFilledEvents   int64
	orderFilledDuration time.Duration

	positionEvents   int64
	positionDuration time.Duration

	accountEvents   int64
	accountDuration time.Duration
}

func NewTelemetry(logger *zap.Logger) *Telemetry {
	return &Telemetry{
		logger: logger,
	}
}

func (t *Telemetry) WithTick(handler bus.TickEventHandler) bus.TickEventHandler {
	return func(ctx context.Context, tick common.Tick) {
		startTime := time.Now()
		handler(ctx, tick)
		t.tickEvents++
		t.tickDuration += time.Since(startTime)
	}
}

func (t *Telemetry) WithBar(handler bus.BarEventHandler) bus.BarEventHandler {
	return func(ctx context.Context, bar common.Bar) {
		startTime := time.Now()
		handler(ctx, bar)
		t.barEvents++
		t.barDuration += time.Since(startTime)
	}
}

func (t *Telemetry) WithOrderFilled(handler bus.OrderFilledEventHandler) bus.OrderFilledEventHandler {
	return func(ctx context.Context, filled common.OrderFilled) {
		startTime := time.Now()
		handler(ctx, filled)
		t.orderFilledEvents++
		t.orderFilledDuration += time.Since(startTime)
	}
}

func (t *Telemetry) WithPosition(handler bus.PositionEventHandler) bus.PositionEventHandler {
	return func(ctx context.Context, position common.Position) {
		startTime := time.Now()
		handler(ctx, position)
		t.positionEvents++
		t.positionDuration += time.Since(startTime)
	}
}

func (t *Telemetry) WithAccount(handler bus.AccountEventHandler) bus.AccountEventHandler {
	return func(ctx context.Context, state common.AccountState) {
		startTime := time.Now()
		handler(ctx, state)
		t.accountEvents++
		t.accountDuration += time.Since(startTime)
	}
}

func (t *Telemetry) PrintStatistics() {
	t.logger.Info("event statistics",
		zap.Int64("tick_events", t.tickEvents),
		zap.Duration("tick_handler_time", t.tickDuration),
		zap.Int64("bar_events", t.barEvents),
		zap.Duration("bar_handler_time", t.barDuration),
		zap.Int64("order_filled_events", t.orderFilledEvents),
		zap.Duration("order_filled_handler_time", t.orderFilledDuration),
		zap.Int64("position_events", t.positionEvents),
		zap.Duration("position_handler_time", t.positionDuration),
		zap.Int64("account_events", t.accountEvents),
		zap.Duration("account_handler_time", t.accountDuration))
}
