package middleware

import (
	"context"
	"testing"

	"github.com/peregrine-trading/peregrine/pkg/common"
)

func TestMonitor_Enabled(t *testing.T) {
	tests := []struct {
		name  string
		flags MonitorFlags
		check MonitorFlags
		want  bool
	}{
		{"none", MonitorNone, MonitorTicks, false},
		{"all enables everything", MonitorAll, MonitorMarginWarnings, true},
		{"selected flag", MonitorTicks | MonitorBars, MonitorBars, true},
		{"unselected flag", MonitorTicks, MonitorOrdersFilled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := NewMonitor(tt.flags)
			if got := monitor.enabled(tt.check); got != tt.want {
				t.Errorf("enabled(%b) = %v; want %v", tt.check, got, tt.want)
			}
		})
	}
}

func TestMonitor_PassesEventThrough(t *testing.T) {
	monitor := NewMonitor(MonitorTicks)

	var received common.Tick
	wrapped := monitor.WithTick(func(ctx context.Context, tick common.Tick) {
		received = tick
	})
	wrapped(context.Background(), common.Tick{Symbol: "EURUSD"})

	if received.Symbol != "EURUSD" {
		t.Errorf("inner handler received %q; want EURUSD", received.Symbol)
	}
}
