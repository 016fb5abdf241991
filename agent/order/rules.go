package order

// Rules decides whether a transition is legal for an observed status.
// The zero value applies the default rule set.
type Rules struct {
	// BlockTerminalCancel rejects cancelling orders that are already
	// Cancelled or Returned. By default only Shipped and Delivered block.
	BlockTerminalCancel bool
}

// Cancel returns the status after cancelling, or false when the transition is illegal.
func (r Rules) Cancel(current Status) (Status, bool) {
	switch current {
	case StatusShipped, StatusDelivered:
		return current, false
	case StatusCancelled, StatusReturned:
		if r.BlockTerminalCancel {
			return current, false
		}
	}
	return StatusCancelled, true
}

// Return returns the status after returning, or false when the transition is illegal.
func (r Rules) Return(current Status) (Status, bool) {
	if current != StatusDelivered {
		return current, false
	}
	return StatusReturned, true
}

func (r Rules) Apply(action Action, current Status) (Status, bool) {
	switch action {
	case ActionCancel:
		return r.Cancel(current)
	case ActionReturn:
		return r.Return(current)
	default:
		return current, false
	}
}
