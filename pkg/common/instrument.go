package common

import (
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

// Instrument is immutable reference data. It is owned by the exchange registry
// and never mutated after construction.
type Instrument struct {
	Symbol        string
	Venue         string
	BaseCurrency  Currency
	QuoteCurrency Currency

	PriceDigits       int
	SizeDigits        int
	MinPriceIncrement fixed.Point
	ContractSize      fixed.Point

	// Initial margin as a fraction of notional, e.g. 0.03 for 3%.
	MarginInitRate fixed.Point

	// Daily financing rates applied to held positions, in quote currency
	// per unit of exposure. Zero disables rollover for the instrument.
	RolloverLongRate  fixed.Point
	RolloverShortRate fixed.Point
}

func (i Instrument) Id() string {
	return i.Symbol + "." + i.Venue
}

// PriceOf rounds to the instrument price precision. All prices entering the
// engine pass through here, so no silent precision drift can accumulate.
func (i Instrument) PriceOf(p fixed.Point) fixed.Point {
	return p.Rescale(i.PriceDigits)
}

func (i Instrument) SizeOf(q fixed.Point) fixed.Point {
	return q.Rescale(i.SizeDigits)
}
