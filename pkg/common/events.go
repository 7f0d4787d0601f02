package common

import (
	"time"

	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

// OrderCommand is the strategy-facing order request. It carries no engine
// state; the execution engine turns accepted commands into Order records.
type OrderCommand struct {
	ClientId     string      `json:"client_id,omitempty"`
	PositionId   PositionId  `json:"position_id,omitempty"`
	Side         OrderSide   `json:"side"`
	Type         OrderType   `json:"type"`
	Quantity     fixed.Point `json:"quantity"`
	Price        fixed.Point `json:"price,omitempty"`
	TriggerPrice fixed.Point `json:"trigger_price,omitempty"`
	TimeInForce  TimeInForce `json:"time_in_force"`
	ExpireTime   time.Time   `json:"expire_time,omitzero"`

	Source      string              `json:"src,omitempty"`
	Symbol      string              `json:"symbol,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

// CancelCommand requests cancellation of a working order. Cancels are applied
// ahead of any fill evaluation sharing the same timestamp.
type CancelCommand struct {
	OrderId OrderId `json:"order_id"`

	Source      string              `json:"src,omitempty"`
	Symbol      string              `json:"symbol,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

// Fill is a single execution of part or all of an order's quantity.
type Fill struct {
	OrderId    OrderId     `json:"order_id"`
	PositionId PositionId  `json:"position_id,omitempty"`
	Side       OrderSide   `json:"side"`
	Price      fixed.Point `json:"price"`
	Quantity   fixed.Point `json:"quantity"`
	Commission Money       `json:"commission"`
	Partial    bool        `json:"partial,omitempty"`

	Source      string              `json:"src,omitempty"`
	Symbol      string              `json:"symbol,omitempty"`
	Venue       string              `json:"venue,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

type OrderSubmitted struct {
	Order Order `json:"order"`

	Source      string              `json:"src,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

type OrderAccepted struct {
	Order Order `json:"order"`

	Source      string              `json:"src,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

type OrderRejected struct {
	Order  Order  `json:"order"`
	Reason string `json:"reason,omitempty"`

	Source      string              `json:"src,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

type OrderFilled struct {
	Order Order `json:"order"`
	Fill  Fill  `json:"fill"`

	Source      string              `json:"src,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

type OrderCanceled struct {
	Order Order `json:"order"`

	Source      string              `json:"src,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

type OrderExpired struct {
	Order Order `json:"order"`

	Source      string              `json:"src,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

type MarginWarning struct {
	Account AccountState `json:"account"`

	Source      string              `json:"src,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}
