package common

import (
	"time"

	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type Tick struct {
	Ask       fixed.Point `json:"ask"`
	Bid       fixed.Point `json:"bid"`
	AskVolume fixed.Point `json:"ask_volume"`
	BidVolume fixed.Point `json:"bid_volume"`

	Source      string              `json:"src,omitempty"`
	Symbol      string              `json:"symbol,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

func (t Tick) Mid() fixed.Point {
	return t.Bid.Add(t.Ask).Div(fixed.Two)
}

func (t Tick) Spread() fixed.Point {
	return t.Ask.Sub(t.Bid)
}

// HasPrice reports whether the tick carries a usable quote. Zero-liquidity
// records defer matching to the next event.
func (t Tick) HasPrice() bool {
	return t.Bid.IsPos() && t.Ask.IsPos()
}
