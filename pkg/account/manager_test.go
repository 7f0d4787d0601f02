package account

import (
	"context"
	"testing"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/bus"
	"github.com/peregrine-trading/peregrine/pkg/clock"
	"github.com/peregrine-trading/peregrine/pkg/common"
	"github.com/peregrine-trading/peregrine/pkg/exchange"
	"github.com/peregrine-trading/peregrine/pkg/position"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type managerFixture struct {
	router  *bus.Router
	tracker *position.Tracker
	manager *Manager

	states   []common.AccountState
	warnings []common.MarginWarning
}

func testInstrument() common.Instrument {
	return common.Instrument{
		Symbol:            "EURUSD",
		Venue:             "SIM",
		BaseCurrency:      common.EUR,
		QuoteCurrency:     common.USD,
		PriceDigits:       5,
		SizeDigits:        2,
		MinPriceIncrement: fixed.FromInt64(1, 5),
		ContractSize:      fixed.FromInt64(100000, 0),
		MarginInitRate:    fixed.FromInt64(3, 2),
		RolloverLongRate:  fixed.FromInt64(-1, 5),
		RolloverShortRate: fixed.FromInt64(1, 5),
	}
}

func newManagerFixture(t *testing.T, accountType common.AccountType, startingBalance int64, options ...Option) *managerFixture {
	t.Helper()

	registry, err := exchange.NewRegistry(testInstrument())
	if err != nil {
		t.Fatal(err)
	}

	f := &managerFixture{router: bus.NewRouter()}
	clk := clock.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	rates := exchange.NewRateCalculator(registry)

	balances := []StartingBalance{{
		Venue:    "SIM",
		Currency: common.USD,
		Amount:   fixed.FromInt64(startingBalance, 0),
		Type:     accountType,
	}}

	var manager *Manager
	currencyOf := func(venue string) (common.Currency, bool) {
		return manager.CurrencyOf(venue)
	}
	f.tracker = position.NewTracker(f.router, clk, registry, rates, common.OmsNetting, currencyOf)
	manager, err = NewManager(f.router, clk, registry, rates, f.tracker, balances, options...)
	if err != nil {
		t.Fatal(err)
	}
	f.manager = manager

	f.router.OnAccount = func(_ context.Context, s common.AccountState) { f.states = append(f.states, s) }
	f.router.OnMarginWarning = func(_ context.Context, w common.MarginWarning) { f.warnings = append(f.warnings, w) }
	return f
}

func (f *managerFixture) fill(t *testing.T, orderId common.OrderId, side common.OrderSide, price, quantity float64, commission common.Money) {
	t.Helper()
	f.manager.OnOrderFilled(context.Background(), common.OrderFilled{
		Order: common.Order{Id: orderId, Side: side, Symbol: "EURUSD"},
		Fill: common.Fill{
			OrderId:    orderId,
			Side:       side,
			Price:      fixed.FromFloat64(price),
			Quantity:   fixed.FromFloat64(quantity),
			Commission: commission,
			Symbol:     "EURUSD",
			Venue:      "SIM",
		},
	})
}

func TestManager_Validation(t *testing.T) {
	registry, err := exchange.NewRegistry(testInstrument())
	if err != nil {
		t.Fatal(err)
	}
	router := bus.NewRouter()
	clk := clock.New(time.Time{})
	rates := exchange.NewRateCalculator(registry)

	tests := []struct {
		name     string
		balances []StartingBalance
	}{
		{"missing venue", []StartingBalance{{Currency: common.USD, Amount: fixed.One}}},
		{"unknown currency", []StartingBalance{{Venue: "SIM", Currency: "XXX", Amount: fixed.One}}},
		{"non-positive amount", []StartingBalance{{Venue: "SIM", Currency: common.USD, Amount: fixed.Zero}}},
		{"duplicate venue", []StartingBalance{
			{Venue: "SIM", Currency: common.USD, Amount: fixed.One},
			{Venue: "SIM", Currency: common.USD, Amount: fixed.One},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(router, clk, registry, rates, nil, tt.balances); err == nil {
				t.Error("NewManager should fail")
			}
		})
	}
}

func TestManager_MarginAccountLifecycle(t *testing.T) {
	f := newManagerFixture(t, common.AccountTypeMargin, 100000)

	// Open 1 lot at 1.1000. Margin: 100000 * 1.1 * 0.03 = 3300 USD.
	f.fill(t, 1, common.OrderSideBuy, 1.1000, 1, common.ZeroMoney(common.USD))

	state, ok := f.manager.State("SIM")
	if !ok {
		t.Fatal("missing account state")
	}
	if !state.Balance.Eq(fixed.FromInt64(100000, 0)) {
		t.Errorf("Balance = %s; want 100000", state.Balance.String())
	}
	if !state.MarginUsed.Eq(fixed.FromInt64(3300, 0)) {
		t.Errorf("MarginUsed = %s; want 3300", state.MarginUsed.String())
	}
	if !state.FreeEquity.Eq(fixed.FromInt64(96700, 0)) {
		t.Errorf("FreeEquity = %s; want 96700", state.FreeEquity.String())
	}
	if !state.FreeEquity.Eq(state.Balance.Sub(state.MarginUsed)) {
		t.Error("free equity invariant broken")
	}

	// Close at 1.1100: +1000 realized, margin released.
	f.fill(t, 2, common.OrderSideSell, 1.1100, 1, common.ZeroMoney(common.USD))

	state, _ = f.manager.State("SIM")
	if !state.Balance.Eq(fixed.FromInt64(101000, 0)) {
		t.Errorf("Balance = %s; want 101000", state.Balance.String())
	}
	if !state.MarginUsed.IsZero() {
		t.Errorf("MarginUsed = %s; want 0", state.MarginUsed.String())
	}
	if len(f.states) != 2 {
		t.Errorf("account events = %d; want 2", len(f.states))
	}
}

func TestManager_CashAccountReservesFullNotional(t *testing.T) {
	f := newManagerFixture(t, common.AccountTypeCash, 200000)

	f.fill(t, 1, common.OrderSideBuy, 1.1000, 1, common.ZeroMoney(common.USD))

	state, _ := f.manager.State("SIM")
	if !state.MarginUsed.Eq(fixed.FromInt64(110000, 0)) {
		t.Errorf("MarginUsed = %s; want full notional 110000", state.MarginUsed.String())
	}
}

func TestManager_CommissionReducesBalance(t *testing.T) {
	f := newManagerFixture(t, common.AccountTypeMargin, 100000)

	commission := common.NewMoney(fixed.FromInt64(7, 0), common.USD)
	f.fill(t, 1, common.OrderSideBuy, 1.1000, 1, commission)

	state, _ := f.manager.State("SIM")
	if !state.Balance.Eq(fixed.FromInt64(99993, 0)) {
		t.Errorf("Balance = %s; want 99993", state.Balance.String())
	}
}

func TestManager_MarginWarningOnNegativeFreeEquity(t *testing.T) {
	// 3300 margin against a 3000 balance leaves free equity at -300. The
	// mutation still completes; the engine warns instead of liquidating.
	f := newManagerFixture(t, common.AccountTypeMargin, 3000)

	f.fill(t, 1, common.OrderSideBuy, 1.1000, 1, common.ZeroMoney(common.USD))

	state, _ := f.manager.State("SIM")
	if !state.FreeEquity.Eq(fixed.FromInt64(-300, 0)) {
		t.Errorf("FreeEquity = %s; want -300", state.FreeEquity.String())
	}
	if len(f.warnings) != 1 {
		t.Fatalf("margin warnings = %d; want 1", len(f.warnings))
	}
	if !f.warnings[0].Account.FreeEquity.IsNeg() {
		t.Error("warning should carry the negative free equity snapshot")
	}
}

func TestManager_EquityIncludesUnrealized(t *testing.T) {
	f := newManagerFixture(t, common.AccountTypeMargin, 100000)
	f.fill(t, 1, common.OrderSideBuy, 1.1000, 1, common.ZeroMoney(common.USD))

	f.tracker.OnTick(context.Background(), common.Tick{
		Symbol: "EURUSD",
		Bid:    fixed.FromFloat64(1.1050),
		Ask:    fixed.FromFloat64(1.1052),
	})

	state, _ := f.manager.State("SIM")
	if !state.Equity.Eq(fixed.FromInt64(100500, 0)) {
		t.Errorf("Equity = %s; want 100500", state.Equity.String())
	}
	if !state.Balance.Eq(fixed.FromInt64(100000, 0)) {
		t.Error("unrealized PnL must not touch the balance")
	}
}

func TestManager_ApplySwap(t *testing.T) {
	f := newManagerFixture(t, common.AccountTypeMargin, 100000)
	f.fill(t, 1, common.OrderSideBuy, 1.1000, 1, common.ZeroMoney(common.USD))

	// Long rollover rate -0.00001 on 1 lot: -0.00001 * 1 * 100000 = -1 USD.
	f.manager.ApplySwap(context.Background())

	state, _ := f.manager.State("SIM")
	if !state.Balance.Eq(fixed.FromInt64(99999, 0)) {
		t.Errorf("Balance = %s; want 99999", state.Balance.String())
	}
}

func TestManager_SwapHandlerOverride(t *testing.T) {
	handler := func(instrument common.Instrument, pos common.Position) common.Money {
		return common.NewMoney(fixed.FromInt64(5, 0), common.USD)
	}
	f := newManagerFixture(t, common.AccountTypeMargin, 100000, WithSwapHandler(handler))
	f.fill(t, 1, common.OrderSideBuy, 1.1000, 1, common.ZeroMoney(common.USD))

	f.manager.ApplySwap(context.Background())

	state, _ := f.manager.State("SIM")
	if !state.Balance.Eq(fixed.FromInt64(100005, 0)) {
		t.Errorf("Balance = %s; want 100005", state.Balance.String())
	}
}

func TestManager_Reset(t *testing.T) {
	f := newManagerFixture(t, common.AccountTypeMargin, 100000)
	f.fill(t, 1, common.OrderSideBuy, 1.1000, 1, common.NewMoney(fixed.FromInt64(7, 0), common.USD))

	f.manager.Reset()
	f.tracker.Reset()

	state, _ := f.manager.State("SIM")
	if !state.Balance.Eq(fixed.FromInt64(100000, 0)) {
		t.Errorf("Balance after Reset = %s; want 100000", state.Balance.String())
	}
	if !state.MarginUsed.IsZero() {
		t.Errorf("MarginUsed after Reset = %s; want 0", state.MarginUsed.String())
	}
}
