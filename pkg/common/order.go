package common

import (
	"errors"
	"fmt"
	"time"

	"github.com/peregrine-trading/peregrine/pkg/utility"
	"github.com/peregrine-trading/peregrine/pkg/utility/fixed"
)

type OrderId = uint64
type OrderSide int
type OrderType int
type TimeInForce int
type OrderStatus int

const (
	OrderSideBuy OrderSide = iota
	OrderSideSell
)

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit
)

const (
	TimeInForceGoodTillCancel TimeInForce = iota
	TimeInForceImmediateOrCancel
	TimeInForceFillOrKill
	TimeInForceGoodTillDate
)

const (
	OrderStatusInitialized OrderStatus = iota
	OrderStatusSubmitted
	OrderStatusAccepted
	OrderStatusRejected
	OrderStatusWorking
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusExpired
)

var (
	ErrOrderTerminal          = errors.New("order is in a terminal state")
	ErrOrderInvalidTransition = errors.New("invalid order status transition")
	ErrOrderOverfill          = errors.New("fill quantity exceeds order quantity")
)

func (s OrderSide) String() string {
	if s == OrderSideBuy {
		return "buy"
	}
	return "sell"
}

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "market"
	case OrderTypeLimit:
		return "limit"
	case OrderTypeStop:
		return "stop"
	case OrderTypeStopLimit:
		return "stop-limit"
	}
	return "unknown"
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusInitialized:
		return "initialized"
	case OrderStatusSubmitted:
		return "submitted"
	case OrderStatusAccepted:
		return "accepted"
	case OrderStatusRejected:
		return "rejected"
	case OrderStatusWorking:
		return "working"
	case OrderStatusPartiallyFilled:
		return "partially-filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	case OrderStatusExpired:
		return "expired"
	}
	return "unknown"
}

// IsTerminal reports whether no further transitions are accepted. Terminal
// orders are retained for audit and never mutated again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusRejected, OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired:
		return true
	}
	return false
}

type Order struct {
	Id           OrderId     `json:"id"`
	ClientId     string      `json:"client_id,omitempty"`
	PositionId   PositionId  `json:"position_id,omitempty"`
	Side         OrderSide   `json:"side"`
	Type         OrderType   `json:"type"`
	Quantity     fixed.Point `json:"quantity"`
	Price        fixed.Point `json:"price,omitempty"`
	TriggerPrice fixed.Point `json:"trigger_price,omitempty"`
	TimeInForce  TimeInForce `json:"time_in_force"`
	ExpireTime   time.Time   `json:"expire_time,omitzero"`

	Status         OrderStatus `json:"status"`
	FilledQuantity fixed.Point `json:"filled_quantity"`
	AvgFillPrice   fixed.Point `json:"avg_fill_price"`
	Triggered      bool        `json:"triggered,omitempty"`

	Source      string              `json:"src,omitempty"`
	Symbol      string              `json:"symbol,omitempty"`
	Venue       string              `json:"venue,omitempty"`
	ExecutionId utility.ExecutionID `json:"eid,omitempty"`
	TraceID     utility.TraceID     `json:"tid,omitempty"`
	TimeStamp   time.Time           `json:"ts"`
}

func (o Order) LeavesQuantity() fixed.Point {
	return o.Quantity.Sub(o.FilledQuantity)
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusInitialized:     {OrderStatusSubmitted},
	OrderStatusSubmitted:       {OrderStatusAccepted, OrderStatusRejected},
	OrderStatusAccepted:        {OrderStatusWorking},
	OrderStatusWorking:         {OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired},
	OrderStatusPartiallyFilled: {OrderStatusWorking, OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired},
}

func (o *Order) transition(to OrderStatus, ts time.Time) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrOrderTerminal, o.Status)
	}
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == to {
			o.Status = to
			o.TimeStamp = ts
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, o.Status, to)
}

func (o *Order) Submit(ts time.Time) error {
	return o.transition(OrderStatusSubmitted, ts)
}

func (o *Order) Reject(ts time.Time) error {
	return o.transition(OrderStatusRejected, ts)
}

// Accept moves the order through venue acceptance straight to working. The
// intermediate accepted state is observable on the emitted event, not on the
// resting order.
func (o *Order) Accept(ts time.Time) error {
	if err := o.transition(OrderStatusAccepted, ts); err != nil {
		return err
	}
	return o.transition(OrderStatusWorking, ts)
}

func (o *Order) Cancel(ts time.Time) error {
	return o.transition(OrderStatusCanceled, ts)
}

func (o *Order) Expire(ts time.Time) error {
	return o.transition(OrderStatusExpired, ts)
}

// ApplyFill updates the filled quantity and recomputes the average fill price
// as a running quantity-weighted mean. The invariant
// 0 <= FilledQuantity <= Quantity holds before and after.
func (o *Order) ApplyFill(price, quantity fixed.Point, ts time.Time) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrOrderTerminal, o.Status)
	}
	if !quantity.IsPos() {
		return fmt.Errorf("fill quantity must be positive, got %s", quantity)
	}

	newFilled := o.FilledQuantity.Add(quantity)
	if newFilled.Gt(o.Quantity) {
		return fmt.Errorf("%w: %s + %s > %s", ErrOrderOverfill, o.FilledQuantity, quantity, o.Quantity)
	}

	weighted := o.AvgFillPrice.Mul(o.FilledQuantity).Add(price.Mul(quantity))
	o.AvgFillPrice = weighted.Div(newFilled)
	o.FilledQuantity = newFilled

	if newFilled.Eq(o.Quantity) {
		return o.transition(OrderStatusFilled, ts)
	}
	return o.transition(OrderStatusPartiallyFilled, ts)
}
