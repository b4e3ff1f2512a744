package domain

type OrderStatus int

const (
	OrderCollecting        OrderStatus = 0
	OrderSelecting         OrderStatus = 1
	OrderProposed          OrderStatus = 2
	OrderConfirmed         OrderStatus = 3
	OrderMeeting           OrderStatus = 4
	OrderMeetCompleted     OrderStatus = 5
	OrderCompleted         OrderStatus = 6 // settled but guest balance was short
	OrderPaid              OrderStatus = 7
	OrderCancelledShortage OrderStatus = 8
	OrderCancelled         OrderStatus = 9
	OrderError             OrderStatus = 10
)

var orderStatusNames = map[OrderStatus]string{
	OrderCollecting:        "collecting",
	OrderSelecting:         "selecting",
	OrderProposed:          "proposed",
	OrderConfirmed:         "confirmed",
	OrderMeeting:           "meeting",
	OrderMeetCompleted:     "meet_completed",
	OrderCompleted:         "completed",
	OrderPaid:              "paid",
	OrderCancelledShortage: "cancelled_shortage",
	OrderCancelled:         "cancelled",
	OrderError:             "error",
}

func (s OrderStatus) String() string {
	if n, ok := orderStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderCollecting:    {OrderSelecting, OrderCancelledShortage, OrderCancelled},
	OrderSelecting:     {OrderConfirmed, OrderCancelled},
	OrderProposed:      {OrderConfirmed, OrderCancelled},
	OrderConfirmed:     {OrderMeeting, OrderCancelled},
	OrderMeeting:       {OrderMeetCompleted},
	OrderMeetCompleted: {OrderCompleted, OrderPaid},
	OrderCompleted:     {OrderPaid},
}

// CanTransition reports whether an order may move from one status to another.
// Any non-terminal order may be flagged as error by an operator.
func CanTransition(from, to OrderStatus) bool {
	if to == OrderError {
		return !from.IsTerminal()
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsOpen is true while casts may still apply.
func (s OrderStatus) IsOpen() bool {
	return s == OrderCollecting || s == OrderSelecting
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderPaid, OrderCancelledShortage, OrderCancelled, OrderError:
		return true
	}
	return false
}

// IsCancelled covers both the shortage and the operator cancellation.
func (s OrderStatus) IsCancelled() bool {
	return s == OrderCancelledShortage || s == OrderCancelled
}
