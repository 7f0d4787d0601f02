// Package risk is the pre-trade gate. Every order command passes through
// Check before the execution engine creates an order; a rejection
// short-circuits the command with no downstream mutation.
package risk

import (
	"fmt"
	"log/slog"

	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/exchange"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type Reason string

const (
	ReasonNotionalLimitExceeded Reason = "NOTIONAL_LIMIT_EXCEEDED"
	ReasonInsufficientMargin    Reason = "INSUFFICIENT_MARGIN"
	ReasonInvalidInstrument     Reason = "INVALID_INSTRUMENT"
)

// Rejection is returned from Check when a limit blocks the order. It
// implements error so callers can wrap it, and carries the machine-readable
// reason for the OrderRejected event.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

type Config struct {
	// Bypass disables all checks. Orders still flow through the engine so
	// the event stream keeps its shape.
	Bypass bool `yaml:"bypass"`

	// MaxNotional caps the per-order notional per symbol, in the
	// instrument's quote currency. Unlisted symbols are uncapped.
	MaxNotional map[string]fixed.Point `yaml:"max_notional"`
}

// QuoteProvider supplies the prevailing quote used to price market and stop
// orders for the checks. The venue simulator implements it.
type QuoteProvider interface {
	LastQuote(symbol string) (common.Tick, bool)
}

// AccountView exposes the current free equity and type of a venue account.
type AccountView interface {
	FreeEquity(venue string) (common.Money, bool)
	AccountType(venue string) (common.AccountType, bool)
}

type Engine struct {
	cfg      Config
	registry *exchange.Registry
	rates    *exchange.RateCalculator
	quotes   QuoteProvider
	accounts AccountView
}

func NewEngine(cfg Config, registry *exchange.Registry, rates *exchange.RateCalculator, quotes QuoteProvider, accounts AccountView) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		rates:    rates,
		quotes:   quotes,
		accounts: accounts,
	}
}

// Check validates the command against the configured limits. A nil return
// approves the order.
func (e *Engine) Check(command common.OrderCommand) error {
	if e.cfg.Bypass {
		return nil
	}

	instrument, err := e.registry.Lookup(command.Symbol)
	if err != nil {
		return Rejection{Reason: ReasonInvalidInstrument, Detail: err.Error()}
	}
	if !command.Quantity.IsPos() {
		return Rejection{Reason: ReasonInvalidInstrument, Detail: "quantity must be positive"}
	}

	price, ok := e.referencePrice(command)
	if !ok {
		// No price seen yet for the instrument. Notional and margin cannot
		// be computed; the venue evaluates the order once a quote arrives.
		slog.Debug("skipping notional and margin checks, no reference price", "symbol", command.Symbol)
		return nil
	}

	notional := command.Quantity.Mul(instrument.ContractSize).Mul(price)

	if limit, capped := e.cfg.MaxNotional[instrument.Symbol]; capped && notional.Gt(limit) {
		return Rejection{
			Reason: ReasonNotionalLimitExceeded,
			Detail: fmt.Sprintf("notional %s exceeds limit %s for %s", notional, limit, instrument.Symbol),
		}
	}

	return e.checkMargin(instrument, notional)
}

func (e *Engine) checkMargin(instrument common.Instrument, notional fixed.Point) error {
	free, ok := e.accounts.FreeEquity(instrument.Venue)
	if !ok {
		return Rejection{Reason: ReasonInsufficientMargin, Detail: fmt.Sprintf("no account for venue %s", instrument.Venue)}
	}

	// Cash accounts commit the full notional, margin accounts the initial
	// margin rate, mirroring how the account manager reserves margin.
	required := notional
	if accountType, ok := e.accounts.AccountType(instrument.Venue); ok && accountType == common.AccountTypeMargin {
		required = required.Mul(instrument.MarginInitRate)
	}
	if instrument.QuoteCurrency != free.Currency {
		rate, err := e.rates.ExchangeRate(instrument.QuoteCurrency, free.Currency, exchange.QuoteMid)
		if err != nil {
			return Rejection{Reason: ReasonInsufficientMargin, Detail: err.Error()}
		}
		required = required.Mul(rate)
	}

	if required.Gt(free.Amount) {
		return Rejection{
			Reason: ReasonInsufficientMargin,
			Detail: fmt.Sprintf("required margin %s %s exceeds free equity %s", required, free.Currency, free.Amount),
		}
	}
	return nil
}

func (e *Engine) referencePrice(command common.OrderCommand) (fixed.Point, bool) {
	switch command.Type {
	case common.OrderTypeLimit, common.OrderTypeStopLimit:
		return command.Price, command.Price.IsPos()
	case common.OrderTypeStop:
		return command.TriggerPrice, command.TriggerPrice.IsPos()
	}

	tick, ok := e.quotes.LastQuote(command.Symbol)
	if !ok || !tick.HasPrice() {
		return fixed.Point{}, false
	}
	if command.Side == common.OrderSideBuy {
		return tick.Ask, true
	}
	return tick.Bid, true
}
