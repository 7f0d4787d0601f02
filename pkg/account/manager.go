// Package account owns venue account balances. Balances mutate only through
// realized PnL, commissions and financing; equity and margin are derived.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/clock"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/exchange"
	"github.com/peregrine-trading/peregrine/pkg/position"
	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

const managerComponentName = "account.manager"

// StartingBalance declares one venue account. Amount must be positive and
// the currency known, anything else is fatal at construction.
type StartingBalance struct {
	Venue    string             `yaml:"venue"`
	Currency common.Currency    `yaml:"currency"`
	Amount   fixed.Point        `yaml:"amount"`
	Type     common.AccountType `yaml:"-"`
}

// SwapHandler overrides the built-in rollover financing. It returns the
// financing amount in the account currency, positive credits the balance.
type SwapHandler func(instrument common.Instrument, pos common.Position) common.Money

type Option func(*Manager)

func WithSwapHandler(handler SwapHandler) Option {
	return func(m *Manager) {
		m.swapHandler = handler
	}
}

type venueAccount struct {
	state    common.AccountState
	starting fixed.Point
}

type Manager struct {
	router   *bus.Router
	clk      *clock.Clock
	registry *exchange.Registry
	rates    *exchange.RateCalculator
	tracker  *position.Tracker

	swapHandler SwapHandler
	accounts    map[string]*venueAccount
	venues      []string
}

func NewManager(router *bus.Router, clk *clock.Clock, registry *exchange.Registry, rates *exchange.RateCalculator, tracker *position.Tracker, balances []StartingBalance, options ...Option) (*Manager, error) {
	m := &Manager{
		router:   router,
		clk:      clk,
		registry: registry,
		rates:    rates,
		tracker:  tracker,
		accounts: make(map[string]*venueAccount, len(balances)),
	}

	for _, balance := range balances {
		if balance.Venue == "" {
			return nil, fmt.Errorf("starting balance needs a venue")
		}
		if !balance.Currency.IsKnown() {
			return nil, fmt.Errorf("venue %s: unknown account currency %q", balance.Venue, balance.Currency)
		}
		if !balance.Amount.IsPos() {
			return nil, fmt.Errorf("venue %s: starting balance must be positive, got %s", balance.Venue, balance.Amount)
		}
		if _, exists := m.accounts[balance.Venue]; exists {
			return nil, fmt.Errorf("duplicate account for venue %s", balance.Venue)
		}
		m.accounts[balance.Venue] = &venueAccount{
			state: common.AccountState{
				Id:       balance.Venue,
				Venue:    balance.Venue,
				Currency: balance.Currency,
				Type:     balance.Type,
				Balance:  balance.Amount,
			},
			starting: balance.Amount,
		}
		m.venues = append(m.venues, balance.Venue)
	}
	sort.Strings(m.venues)

	for _, option := range options {
		option(m)
	}
	return m, nil
}

// CurrencyOf implements position.CurrencyResolver.
func (m *Manager) CurrencyOf(venue string) (common.Currency, bool) {
	account, ok := m.accounts[venue]
	if !ok {
		return "", false
	}
	return account.state.Currency, true
}

// FreeEquity implements the risk engine's account view.
func (m *Manager) FreeEquity(venue string) (common.Money, bool) {
	account, ok := m.accounts[venue]
	if !ok {
		return common.Money{}, false
	}
	return common.NewMoney(account.state.Balance.Sub(account.state.MarginUsed), account.state.Currency), true
}

// AccountType implements the risk engine's account view.
func (m *Manager) AccountType(venue string) (common.AccountType, bool) {
	account, ok := m.accounts[venue]
	if !ok {
		return common.AccountTypeMargin, false
	}
	return account.state.Type, true
}

// OnOrderFilled settles one fill: realized PnL through the position tracker,
// commission, then a margin recompute from the remaining open exposure. A
// negative free equity completes the mutation and raises a margin warning.
func (m *Manager) OnOrderFilled(ctx context.Context, event common.OrderFilled) {
	account, ok := m.accounts[event.Fill.Venue]
	if !ok {
		slog.Warn("dropping fill for unknown venue account", "venue", event.Fill.Venue, "order_id", event.Fill.OrderId)
		return
	}

	realized, err := m.tracker.ApplyFill(ctx, event.Order, event.Fill)
	if err != nil {
		slog.Warn("dropping fill from accounting", "error", err, "order_id", event.Fill.OrderId)
		return
	}
	account.state.Balance = account.state.Balance.Add(realized.Amount)

	if !event.Fill.Commission.IsZero() {
		commission, err := m.convert(event.Fill.Commission.Amount, event.Fill.Commission.Currency, account.state.Currency)
		if err != nil {
			slog.Warn("dropping commission, no conversion path", "error", err, "order_id", event.Fill.OrderId)
		} else {
			account.state.Balance = account.state.Balance.Sub(commission)
		}
	}

	m.recomputeMargin(account)
	m.publish(ctx, account)
}

// ApplySwap applies daily rollover financing to every open position. Wired to
// a clock timer by the engine.
func (m *Manager) ApplySwap(ctx context.Context) {
	touched := make(map[string]bool)
	for _, pos := range m.tracker.OpenPositions() {
		account, ok := m.accounts[pos.Venue]
		if !ok {
			continue
		}
		instrument, err := m.registry.Lookup(pos.Symbol)
		if err != nil {
			continue
		}

		financing, err := m.financing(instrument, pos, account.state.Currency)
		if err != nil {
			slog.Warn("skipping rollover, no conversion path", "error", err, "symbol", pos.Symbol)
			continue
		}
		if financing.IsZero() {
			continue
		}
		account.state.Balance = account.state.Balance.Add(financing.Amount)
		touched[pos.Venue] = true
	}

	for _, venue := range m.venues {
		if touched[venue] {
			account := m.accounts[venue]
			m.recomputeMargin(account)
			m.publish(ctx, account)
		}
	}
}

// State derives the current snapshot for a venue. Equity folds in the
// unrealized PnL of open positions, which is already denominated in the
// account currency by the tracker.
func (m *Manager) State(venue string) (common.AccountState, bool) {
	account, ok := m.accounts[venue]
	if !ok {
		return common.AccountState{}, false
	}
	return m.snapshot(account), true
}

// States snapshots all accounts in venue order.
func (m *Manager) States() []common.AccountState {
	states := make([]common.AccountState, 0, len(m.venues))
	for _, venue := range m.venues {
		states = append(states, m.snapshot(m.accounts[venue]))
	}
	return states
}

// Reset restores every account to its starting balance.
func (m *Manager) Reset() {
	for _, account := range m.accounts {
		account.state.Balance = account.starting
		account.state.MarginUsed = fixed.Zero
	}
}

func (m *Manager) snapshot(account *venueAccount) common.AccountState {
	state := account.state
	unrealized := fixed.Zero
	for _, pos := range m.tracker.OpenPositions() {
		if pos.Venue == state.Venue {
			unrealized = unrealized.Add(pos.UnrealizedPnL.Amount)
		}
	}
	state.Equity = state.Balance.Add(unrealized)
	state.FreeEquity = state.Balance.Sub(state.MarginUsed)
	state.Source = managerComponentName
	state.ExecutionId = utility.GetExecutionID()
	state.TraceID = utility.CreateTraceID()
	state.TimeStamp = m.clk.Now()
	return state
}

// recomputeMargin rebuilds margin used from open exposure at entry notional.
// Cash accounts reserve the full notional.
func (m *Manager) recomputeMargin(account *venueAccount) {
	margin := fixed.Zero
	for _, pos := range m.tracker.OpenPositions() {
		if pos.Venue != account.state.Venue {
			continue
		}
		instrument, err := m.registry.Lookup(pos.Symbol)
		if err != nil {
			continue
		}
		notional := pos.NetQuantity.Abs().Mul(instrument.ContractSize).Mul(pos.AvgEntryPrice)
		if account.state.Type == common.AccountTypeMargin {
			notional = notional.Mul(instrument.MarginInitRate)
		}
		converted, err := m.convert(notional, instrument.QuoteCurrency, account.state.Currency)
		if err != nil {
			slog.Warn("skipping margin contribution, no conversion path", "error", err, "symbol", pos.Symbol)
			continue
		}
		margin = margin.Add(converted)
	}
	account.state.MarginUsed = margin
}

func (m *Manager) financing(instrument common.Instrument, pos common.Position, currency common.Currency) (common.Money, error) {
	if m.swapHandler != nil {
		return m.swapHandler(instrument, pos), nil
	}

	rate := instrument.RolloverLongRate
	if pos.IsShort() {
		rate = instrument.RolloverShortRate
	}
	if rate.IsZero() {
		return common.ZeroMoney(currency), nil
	}
	amountQuote := rate.Mul(pos.NetQuantity.Abs()).Mul(instrument.ContractSize)
	amount, err := m.convert(amountQuote, instrument.QuoteCurrency, currency)
	if err != nil {
		return common.Money{}, err
	}
	return common.NewMoney(amount, currency), nil
}

func (m *Manager) publish(ctx context.Context, account *venueAccount) {
	state := m.snapshot(account)
	if err := m.router.Post(ctx, bus.AccountEvent, state); err != nil {
		slog.Warn("unable to post account event", "error", err, "venue", state.Venue)
	}

	if state.FreeEquity.IsNeg() {
		warning := common.MarginWarning{
			Account:     state,
			Source:      managerComponentName,
			ExecutionId: utility.GetExecutionID(),
			TraceID:     utility.CreateTraceID(),
			TimeStamp:   m.clk.Now(),
		}
		if err := m.router.Post(ctx, bus.MarginWarningEvent, warning); err != nil {
			slog.Warn("unable to post margin warning", "error", err, "venue", state.Venue)
		}
	}
}

func (m *Manager) convert(amount fixed.Point, from, to common.Currency) (fixed.Point, error) {
	if from == to {
		return amount, nil
	}
	rate, err := m.rates.ExchangeRate(from, to, exchange.QuoteMid)
	if err != nil {
		return fixed.Point{}, err
	}
	return amount.Mul(rate), nil
}
