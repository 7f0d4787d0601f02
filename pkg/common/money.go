package common

import (
	"fmt"

	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

// Money is an unsafe wrapper around a fixed.Point amount tagged with a currency.
// Arithmetic between two Money values requires identical currencies, otherwise
// it panics. Cross-currency amounts must be routed through an explicit
// conversion step before they meet.
type Money struct {
	Amount   fixed.Point `json:"amount"`
	Currency Currency    `json:"currency"`
}

func NewMoney(amount fixed.Point, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

func ZeroMoney(currency Currency) Money {
	return Money{Amount: fixed.Zero, Currency: currency}
}

func (m Money) Add(o Money) Money {
	m.assertSameCurrency(o)
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}
}

func (m Money) Sub(o Money) Money {
	m.assertSameCurrency(o)
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}
}

func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

func (m Money) IsZero() bool { return m.Amount.IsZero() }
func (m Money) IsNeg() bool  { return m.Amount.IsNeg() }

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.String(), m.Currency)
}

func (m Money) assertSameCurrency(o Money) {
	if m.Currency != o.Currency {
		panic(fmt.Sprintf("money arithmetic between %s and %s requires an explicit conversion", m.Currency, o.Currency))
	}
}
