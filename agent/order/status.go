package order

import (
	"errors"
	"fmt"
)

var ErrInvalidStatus = errors.New("order status is invalid")

// Status is the lifecycle state of an order.
//
//	Processing --cancel--> Cancelled
//	Shipped    --cancel--> blocked
//	Delivered  --cancel--> blocked
//	Delivered  --return--> Returned
//
// It is persisted as its display string.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
	StatusReturned   Status = "Returned"
)

func validStatuses() map[Status]struct{} {
	return map[Status]struct{}{
		StatusProcessing: {},
		StatusShipped:    {},
		StatusDelivered:  {},
		StatusCancelled:  {},
		StatusReturned:   {},
	}
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if err := s.Validate(); err != nil {
		return "", err
	}
	return s, nil
}

func (s Status) Validate() error {
	if _, ok := validStatuses()[s]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
	}
	return nil
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no rule moves the order forward any more.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusReturned
}
