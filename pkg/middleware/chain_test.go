package middleware

import (
	"context"
	"testing"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/common"
)

func TestMiddleware_Chain(t *testing.T) {
	type handler func(int) int

	add10 := func(h handler) handler {
		return func(n int) int {
			return h(n) + 10
		}
	}

	multiply2 := func(h handler) handler {
		return func(n int) int {
			return h(n) * 2
		}
	}

	base := func(n int) int {
		return n
	}

	chained := Chain(add10, multiply2)(base)
	if result := chained(5); result != 20 {
		t.Errorf("Expected 20, got %d", result)
	}
}

func TestMiddleware_ChainEmpty(t *testing.T) {
	type handler func(string) string

	base := func(s string) string {
		return s
	}

	chained := Chain[handler]()(base)
	if result := chained("test"); result != "test" {
		t.Errorf("Expected 'test', got %s", result)
	}
}

func TestMiddleware_ChainOrder(t *testing.T) {
	type handler func([]string) []string

	appender := func(tag string) func(handler) handler {
		return func(h handler) handler {
			return func(s []string) []string {
				return append(h(s), tag)
			}
		}
	}

	base := func(s []string) []string {
		return append(s, "base")
	}

	chained := Chain(appender("A"), appender("B"), appender("C"))(base)
	result := chained(nil)

	expected := []string{"base", "C", "B", "A"}
	if len(result) != len(expected) {
		t.Fatalf("Expected length %d, got %d", len(expected), len(result))
	}
	for i, v := range result {
		if v != expected[i] {
			t.Errorf("At index %d: expected %s, got %s", i, expected[i], v)
		}
	}
}

func TestMiddleware_ChainBusHandlers(t *testing.T) {
	monitor := NewMonitor(MonitorNone)
	telemetry := NewTelemetry(nil)

	called := false
	handler := bus.TickEventHandler(func(ctx context.Context, tick common.Tick) {
		called = true
	})

	chained := Chain(monitor.WithTick, telemetry.WithTick)(handler)
	chained(context.Background(), common.Tick{})

	if !called {
		t.Error("inner handler was not invoked")
	}
	if telemetry.tickEvents != 1 {
		t.Errorf("tickEvents = %d; want 1", telemetry.tickEvents)
	}
}
