package domain

import "time"

type State string

const (
	StatePending   State = "PENDING"
	StateActive    State = "ACTIVE"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
	StateExpired   State = "EXPIRED"
	StatePaid      State = "PAID"
)

// Event is a trigger that may move a resource between states.
type Event string

const (
	EventApprove Event = "approve"
	EventReject  Event = "reject"
	EventCancel  Event = "cancel"
	EventExpire  Event = "expire"
)

type transitionTable map[State]map[Event]State

var subscriptionTransitions = transitionTable{
	StatePending: {
		EventApprove: StateActive,
		EventReject:  StateFailed,
		EventCancel:  StateCancelled,
	},
	StateFailed: {
		EventApprove: StateActive,
	},
	StateActive: {
		EventCancel: StateCancelled,
		EventExpire: StateExpired,
	},
}

var bannerTransitions = transitionTable{
	StatePending: {
		EventApprove: StateActive,
		EventReject:  StateFailed,
	},
	StateFailed: {
		EventApprove: StateActive,
	},
	StateActive: {
		EventExpire: StateExpired,
	},
}

var orderTransitions = transitionTable{
	StatePending: {
		EventApprove: StatePaid,
		EventReject:  StateFailed,
	},
}

func transitionsFor(kind Kind) transitionTable {
	switch kind {
	case KindSubscription:
		return subscriptionTransitions
	case KindBanner:
		return bannerTransitions
	case KindOrder:
		return orderTransitions
	default:
		return nil
	}
}

// NextState looks up the target state for an event, reporting false when the
// transition is not allowed for the kind.
func NextState(kind Kind, from State, event Event) (State, bool) {
	table := transitionsFor(kind)
	if table == nil {
		return "", false
	}
	to, ok := table[from][event]
	return to, ok
}

// IsTerminal reports whether no event can move the resource out of state.
func IsTerminal(kind Kind, state State) bool {
	table := transitionsFor(kind)
	return len(table[state]) == 0
}

// Transition describes a single validated state change.
type Transition struct {
	Kind             Kind
	Event            Event
	From             State
	To               State
	At               time.Time
	GatewayPaymentID string
	ExpiresAt        *time.Time
}
