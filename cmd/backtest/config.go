package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/peregrine-trading/peregrine/pkg/backtest"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type instrumentConfig struct {
	Symbol            string      `yaml:"symbol"`
	Venue             string      `yaml:"venue"`
	BaseCurrency      string      `yaml:"base_currency"`
	QuoteCurrency     string      `yaml:"quote_currency"`
	PriceDigits       int         `yaml:"price_digits"`
	SizeDigits        int         `yaml:"size_digits"`
	MinPriceIncrement fixed.Point `yaml:"min_price_increment"`
	ContractSize      fixed.Point `yaml:"contract_size"`
	MarginInitRate    fixed.Point `yaml:"margin_init_rate"`
	RolloverLongRate  fixed.Point `yaml:"rollover_long_rate"`
	RolloverShortRate fixed.Point `yaml:"rollover_short_rate"`
}

type tickFileConfig struct {
	File   string    `yaml:"file"`
	Symbol string    `yaml:"symbol"`
	From   time.Time `yaml:"from"`
	To     time.Time `yaml:"to"`
}

type strategyConfig struct {
	Symbol     string      `yaml:"symbol"`
	Quantity   fixed.Point `yaml:"quantity"`
	FastPeriod int         `yaml:"fast_period"`
	SlowPeriod int         `yaml:"slow_period"`
}

type fileConfig struct {
	Backtest    backtest.Config    `yaml:"backtest"`
	Instruments []instrumentConfig `yaml:"instruments"`
	Ticks       []tickFileConfig   `yaml:"ticks"`
	Strategy    strategyConfig     `yaml:"strategy"`
}

func loadConfig(path string) (fileConfig, error) {
	cfg := fileConfig{Backtest: backtest.DefaultConfig()}

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return cfg, fmt.Errorf("unable to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse config %q: %w", path, err)
	}
	if len(cfg.Instruments) == 0 {
		return cfg, fmt.Errorf("config %q declares no instruments", path)
	}
	if len(cfg.Ticks) == 0 {
		return cfg, fmt.Errorf("config %q declares no tick files", path)
	}
	return cfg, nil
}

func (c instrumentConfig) toInstrument() common.Instrument {
	return common.Instrument{
		Symbol:            c.Symbol,
		Venue:             c.Venue,
		BaseCurrency:      common.Currency(c.BaseCurrency),
		QuoteCurrency:     common.Currency(c.QuoteCurrency),
		PriceDigits:       c.PriceDigits,
		SizeDigits:        c.SizeDigits,
		MinPriceIncrement: c.MinPriceIncrement,
		ContractSize:      c.ContractSize,
		MarginInitRate:    c.MarginInitRate,
		RolloverLongRate:  c.RolloverLongRate,
		RolloverShortRate: c.RolloverShortRate,
	}
}
