package exchange

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/peregrine-trading/peregrine/pkg/common"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

// Registry holds immutable instrument reference data for one engine run. The
// core queries it but never mutates it, and it survives Reset unchanged.
type Registry struct {
	instruments map[string]common.Instrument
	symbols     []string
}

func NewRegistry(instruments ...common.Instrument) (*Registry, error) {
	r := &Registry{instruments: make(map[string]common.Instrument, len(instruments))}

	for _, instrument := range instruments {
		if instrument.Symbol == "" || instrument.Venue == "" {
			return nil, fmt.Errorf("instrument needs symbol and venue: %+v", instrument)
		}
		if !instrument.QuoteCurrency.IsKnown() {
			return nil, fmt.Errorf("instrument %s: unknown quote currency %q", instrument.Symbol, instrument.QuoteCurrency)
		}
		if instrument.PriceDigits < 0 || instrument.SizeDigits < 0 {
			return nil, fmt.Errorf("instrument %s: negative precision", instrument.Symbol)
		}
		if instrument.MarginInitRate.IsNeg() {
			return nil, fmt.Errorf("instrument %s: negative margin rate", instrument.Symbol)
		}

		key := strings.ToUpper(instrument.Symbol)
		if _, exists := r.instruments[key]; exists {
			return nil, fmt.Errorf("duplicate instrument %s", instrument.Symbol)
		}
		r.instruments[key] = instrument
		r.symbols = append(r.symbols, key)
	}

	sort.Strings(r.symbols)
	return r, nil
}

func (r *Registry) Lookup(symbol string) (common.Instrument, error) {
	instrument, ok := r.instruments[strings.ToUpper(symbol)]
	if !ok {
		return common.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, symbol)
	}
	return instrument, nil
}

func (r *Registry) Has(symbol string) bool {
	_, ok := r.instruments[strings.ToUpper(symbol)]
	return ok
}

// Symbols returns the registered symbols in sorted order, which keeps every
// iteration over instruments deterministic.
func (r *Registry) Symbols() []string {
	return r.symbols
}
