package bus

type EventId uint8

const (
	TickEvent EventId = iota
	BarEvent
	OrderCommandEvent
	CancelCommandEvent
	OrderSubmittedEvent
	OrderAcceptedEvent
	OrderRejectedEvent
	OrderFilledEvent
	OrderCanceledEvent
	OrderExpiredEvent
	PositionOpenEvent
	PositionUpdateEvent
	PositionCloseEvent
	AccountEvent
	MarginWarningEvent
)

func (id EventId) String() string {
	switch id {
	case TickEvent:
		return "tick"
	case BarEvent:
		return "bar"
	case OrderCommandEvent:
		return "order-command"
	case CancelCommandEvent:
		return "cancel-command"
	case OrderSubmittedEvent:
		return "order-submitted"
	case OrderAcceptedEvent:
		return "order-accepted"
	case OrderRejectedEvent:
		return "order-rejected"
	case OrderFilledEvent:
		return "order-filled"
	case OrderCanceledEvent:
		return "order-canceled"
	case OrderExpiredEvent:
		return "order-expired"
	case PositionOpenEvent:
		return "position-open"
	case PositionUpdateEvent:
		return "position-update"
	case PositionCloseEvent:
		return "position-close"
	case AccountEvent:
		return "account"
	case MarginWarningEvent:
		return "margin-warning"
	}
	return "unknown"
}
