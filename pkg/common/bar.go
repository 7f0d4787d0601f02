package common

import (
	"time"

	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type Bar struct {
	Open   fixed.Point `json:"open"`
	High   fixed.Point `json:"high"`
	Low    fixed.Point `json:"low"`
	Close  fixed.Point `json:"close"`
	Volume fixed.Point `json:"volume"`

	Period time.Duration `json:"period"`

	Source      string              `json:"src,omitempty"`
	Symbol      string              `json:"symbol,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

// HasPrice reports whether the bar carries a usable trade price.
func (b Bar) HasPrice() bool {
	return b.Close.IsPos()
}
