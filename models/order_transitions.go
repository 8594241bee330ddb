package models

// OrderTrigger is a staff or worker action that moves an order between statuses
type OrderTrigger string

const (
	TriggerAccept   OrderTrigger = "accept"
	TriggerDecline  OrderTrigger = "decline"
	TriggerAssign   OrderTrigger = "assign"
	TriggerArrive   OrderTrigger = "arrive"
	TriggerStart    OrderTrigger = "start"
	TriggerComplete OrderTrigger = "complete"
	TriggerReassign OrderTrigger = "reassign"
	TriggerCancel   OrderTrigger = "cancel"
)

// AllOrderTriggers returns every known trigger
func AllOrderTriggers() []OrderTrigger {
	return []OrderTrigger{
		TriggerAccept,
		TriggerDecline,
		TriggerAssign,
		TriggerArrive,
		TriggerStart,
		TriggerComplete,
		TriggerReassign,
		TriggerCancel,
	}
}

// ParseOrderTrigger converts a request value into an OrderTrigger
func ParseOrderTrigger(s string) (OrderTrigger, bool) {
	for _, t := range AllOrderTriggers() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// AssignsWorker reports whether the trigger writes a WorkerAssignment row
func (t OrderTrigger) AssignsWorker() bool {
	return t == TriggerAssign || t == TriggerReassign
}

// orderTransitions is the only place where legal status moves are defined.
// Cancel is added to every non-terminal status in init.
var orderTransitions = map[OrderStatus]map[OrderTrigger]OrderStatus{
	OrderStatusBooked: {
		TriggerAccept:  OrderStatusConfirmed,
		TriggerDecline: OrderStatusCancelled,
	},
	OrderStatusConfirmed: {
		TriggerAssign: OrderStatusWorkerAssigned,
	},
	OrderStatusWorkerAssigned: {
		TriggerArrive:   OrderStatusWorkerReachedLocation,
		TriggerStart:    OrderStatusServiceOngoing,
		TriggerReassign: OrderStatusWorkerAssigned,
	},
	OrderStatusWorkerReachedLocation: {
		TriggerStart: OrderStatusServiceOngoing,
	},
	OrderStatusServiceOngoing: {
		TriggerComplete: OrderStatusCompleted,
	},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

func init() {
	for status, moves := range orderTransitions {
		if !status.IsTerminal() {
			moves[TriggerCancel] = OrderStatusCancelled
		}
	}
}

// NextStatus returns the status reached by applying trigger to from
func NextStatus(from OrderStatus, trigger OrderTrigger) (OrderStatus, bool) {
	moves, ok := orderTransitions[from]
	if !ok {
		return "", false
	}
	to, ok := moves[trigger]
	return to, ok
}

// AllowedTriggers lists the triggers defined for a status, in canonical order
func AllowedTriggers(from OrderStatus) []OrderTrigger {
	var allowed []OrderTrigger
	for _, t := range AllOrderTriggers() {
		if _, ok := NextStatus(from, t); ok {
			allowed = append(allowed, t)
		}
	}
	return allowed
}
