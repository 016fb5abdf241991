package order

import "errors"

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrConcurrentUpdate = errors.New("concurrent update detected: status changed during transition")
)

// Order is a purchase record. Only Status changes after creation.
type Order struct {
	ID       int64
	UserName string
	Status   Status
	Items    string
}

// SeedOrders is the fixed sample set inserted into an empty store.
func SeedOrders() []Order {
	return []Order{
		{ID: 1001, UserName: "Ahmed", Status: StatusShipped, Items: "Laptop, Mouse"},
		{ID: 1002, UserName: "Mohamed", Status: StatusProcessing, Items: "Monitor"},
		{ID: 1003, UserName: "Sarah", Status: StatusDelivered, Items: "Headphones"},
		{ID: 1004, UserName: "Ali", Status: StatusCancelled, Items: "Keyboard"},
	}
}

type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeNotFound
	OutcomeIllegalTransition
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeIllegalTransition:
		return "illegal_transition"
	default:
		return "unknown"
	}
}

// Action names a status transition requested by a caller.
type Action string

const (
	ActionCancel Action = "cancel"
	ActionReturn Action = "return"
)

// Outcome is the tagged result of a transition attempt.
// Current is the status observed before the attempt; Next is set only on OutcomeOK.
type Outcome struct {
	Kind    OutcomeKind
	Action  Action
	OrderID int64
	Current Status
	Next    Status
}

func (o Outcome) OK() bool {
	return o.Kind == OutcomeOK
}
