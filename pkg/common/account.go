package common

import (
	"time"

	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type AccountType int
type OmsType int

const (
	AccountTypeMargin AccountType = iota
	AccountTypeCash
)

const (
	// OmsNetting keeps a single signed position per instrument, OmsHedging
	// opens a separate position per opening order.
	OmsNetting OmsType = iota
	OmsHedging
)

// AccountState is an immutable snapshot of a venue account.
// FreeEquity == Balance - MarginUsed holds after every mutation.
type AccountState struct {
	Id         string      `json:"id"`
	Venue      string      `json:"venue"`
	Currency   Currency    `json:"currency"`
	Type       AccountType `json:"type"`
	Balance    fixed.Point `json:"balance"`
	MarginUsed fixed.Point `json:"margin_used"`
	Equity     fixed.Point `json:"equity"`
	FreeEquity fixed.Point `json:"free_equity"`

	Source      string              `json:"src,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}
