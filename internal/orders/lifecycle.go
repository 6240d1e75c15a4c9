package orders

import "github.com/angelmondragon/roha-backend/pkg/enums"

// transitions is the forward-only order graph. Statuses without an entry are
// terminal.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusAccepted, enums.OrderStatusRejected},
	enums.OrderStatusAccepted:  {enums.OrderStatusPreparing},
	enums.OrderStatusPreparing: {enums.OrderStatusReady},
	enums.OrderStatusReady:     {enums.OrderStatusDelivered},
}

// NextStatuses lists the statuses reachable from current in one step.
func NextStatuses(current enums.OrderStatus) []enums.OrderStatus {
	next := transitions[current]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func IsTerminal(status enums.OrderStatus) bool {
	return len(transitions[status]) == 0
}
