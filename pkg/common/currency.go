package common

type Currency string

const (
	AUD Currency = "AUD"
	CAD Currency = "CAD"
	CHF Currency = "CHF"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	NZD Currency = "NZD"
	USD Currency = "USD"
)

var knownCurrencies = map[Currency]struct{}{
	AUD: {}, CAD: {}, CHF: {}, EUR: {}, GBP: {}, JPY: {}, NZD: {}, USD: {},
}

func (c Currency) IsKnown() bool {
	_, ok := knownCurrencies[c]
	return ok
}

func (c Currency) String() string {
	return string(c)
}
