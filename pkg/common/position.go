package common

import (
	"time"

	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type PositionId = int64
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position tracks net exposure per instrument per account. NetQuantity is
// signed, positive for long. Closed positions are retained with their final
// PnL, not deleted.
type Position struct {
	Id            PositionId     `json:"id"`
	AccountId     string         `json:"account_id"`
	Status        PositionStatus `json:"status"`
	NetQuantity   fixed.Point    `json:"net_quantity"`
	AvgEntryPrice fixed.Point    `json:"avg_entry_price"`
	RealizedPnL   Money          `json:"realized_pnl"`
	UnrealizedPnL Money          `json:"unrealized_pnl"`
	OpenTime      time.Time      `json:"open_time"`
	CloseTime     time.Time      `json:"close_time,omitzero"`

	Source        string              `json:"src,omitempty"`
	Symbol        string              `json:"symbol,omitempty"`
	Venue         string              `json:"venue,omitempty"`
	ExecutionID   utility.ExecutionID `json:"eid,omitempty"`
	TraceID       utility.TraceID     `json:"tid,omitempty"`
	OrderTraceIDs []utility.TraceID   `json:"order_tid,omitempty"`
	TimeStamp     time.Time           `json:"ts"`
}

func (p Position) IsLong() bool  { return p.NetQuantity.IsPos() }
func (p Position) IsShort() bool { return p.NetQuantity.IsNeg() }
func (p Position) IsFlat() bool  { return p.NetQuantity.IsZero() }

func (p Position) TotalPnL() Money {
	return p.RealizedPnL.Add(p.UnrealizedPnL)
}
