package backtest

import (
	"fmt"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/account"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/exchange"
	"github.com/peregrine-trading/peregrine/pkg/risk"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type Config struct {
	// Start anchors the simulation clock. Every data record must carry a
	// timestamp at or after it.
	Start time.Time `yaml:"start"`

	// Oms selects the position bookkeeping mode: "netting" or "hedging".
	Oms string `yaml:"oms"`

	// AccountType is "margin" or "cash". Cash accounts reserve the full
	// notional of open exposure.
	AccountType string `yaml:"account_type"`

	Balances  []account.StartingBalance `yaml:"balances"`
	FillModel exchange.FillModelConfig  `yaml:"fill_model"`
	Risk      risk.Config               `yaml:"risk"`

	// BarPeriod enables tick-to-bar aggregation when positive.
	BarPeriod time.Duration `yaml:"bar_period"`

	// BarQuoteSpread is the synthetic bid/ask spread used when bars drive
	// the matching engine.
	BarQuoteSpread fixed.Point `yaml:"bar_quote_spread"`

	// SnapshotInterval throttles audit equity snapshots. Zero records one
	// snapshot per root event.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`

	// RolloverEnabled schedules daily financing at RolloverHourUTC.
	RolloverEnabled bool `yaml:"rollover_enabled"`
	RolloverHourUTC int  `yaml:"rollover_hour_utc"`
}

func DefaultConfig() Config {
	return Config{
		Oms:             "netting",
		AccountType:     "margin",
		FillModel:       exchange.DefaultFillModelConfig(),
		RolloverHourUTC: 22,
	}
}

func (c Config) Validate() error {
	if c.Start.IsZero() {
		return fmt.Errorf("start time is required")
	}
	if len(c.Balances) == 0 {
		return fmt.Errorf("at least one starting balance is required")
	}
	if _, err := c.omsType(); err != nil {
		return err
	}
	if _, err := c.accountType(); err != nil {
		return err
	}
	if err := c.FillModel.Validate(); err != nil {
		return err
	}
	if c.RolloverEnabled && (c.RolloverHourUTC < 0 || c.RolloverHourUTC > 23) {
		return fmt.Errorf("rollover_hour_utc must be within [0, 23], got %d", c.RolloverHourUTC)
	}
	return nil
}

func (c Config) omsType() (common.OmsType, error) {
	switch c.Oms {
	case "", "netting":
		return common.OmsNetting, nil
	case "hedging":
		return common.OmsHedging, nil
	}
	return 0, fmt.Errorf("unknown oms type %q", c.Oms)
}

func (c Config) accountType() (common.AccountType, error) {
	switch c.AccountType {
	case "", "margin":
		return common.AccountTypeMargin, nil
	case "cash":
		return common.AccountTypeCash, nil
	}
	return 0, fmt.Errorf("unknown account type %q", c.AccountType)
}
