package backtest

import (
	"testing"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/account"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.Balances = []account.StartingBalance{{
		Venue:    "SIM",
		Currency: common.USD,
		Amount:   fixed.FromInt64(100000, 0),
	}}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing start", func(c *Config) { c.Start = time.Time{} }, true},
		{"no balances", func(c *Config) { c.Balances = nil }, true},
		{"unknown oms", func(c *Config) { c.Oms = "both" }, true},
		{"unknown account type", func(c *Config) { c.AccountType = "crypto" }, true},
		{"bad fill probability", func(c *Config) { c.FillModel.ProbSlippage = 2 }, true},
		{"bad rollover hour", func(c *Config) { c.RolloverEnabled = true; c.RolloverHourUTC = 24 }, true},
		{"rollover hour ignored when disabled", func(c *Config) { c.RolloverEnabled = false; c.RolloverHourUTC = 99 }, false},
		{"empty oms defaults to netting", func(c *Config) { c.Oms = "" }, false},
		{"hedging oms", func(c *Config) { c.Oms = "hedging" }, false},
		{"cash account", func(c *Config) { c.AccountType = "cash" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}
