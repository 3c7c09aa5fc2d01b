package domain

import (
	"fmt"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Status is an order lifecycle state.
type Status string

// Order lifecycle states. The refund sub-flow hangs off Delivered.
const (
	StatusProcessing       Status = "Processing"
	StatusShipped          Status = "Shipped"
	StatusDelivered        Status = "Delivered"
	StatusCancelled        Status = "Cancelled"
	StatusProcessingRefund Status = "Processing refund"
	StatusRefundSuccess    Status = "Refund Success"
	StatusRefundFailed     Status = "Refund Failed"
)

// transitions is the only place allowed status changes are defined.
var transitions = map[Status][]Status{
	StatusProcessing:       {StatusShipped, StatusCancelled},
	StatusShipped:          {StatusDelivered},
	StatusDelivered:        {StatusProcessingRefund},
	StatusProcessingRefund: {StatusRefundSuccess, StatusRefundFailed},
	StatusCancelled:        {},
	StatusRefundSuccess:    {},
	StatusRefundFailed:     {},
}

// Statuses returns every order status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusProcessing,
		StatusShipped,
		StatusDelivered,
		StatusCancelled,
		StatusProcessingRefund,
		StatusRefundSuccess,
		StatusRefundFailed,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", v))
	}
	return s, nil
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(v string) bool {
	return Status(v).Valid()
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the regular lifecycle. Delivered counts as
// terminal but may still enter the refund sub-flow.
func IsTerminal(s Status) bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefundSuccess, StatusRefundFailed:
		return true
	}
	return false
}

// RefundStatuses returns the states of the refund sub-flow.
func RefundStatuses() []Status {
	return []Status{StatusProcessingRefund, StatusRefundSuccess, StatusRefundFailed}
}

// IsRefundStatus reports whether s belongs to the refund sub-flow.
func IsRefundStatus(s Status) bool {
	for _, r := range RefundStatuses() {
		if r == s {
			return true
		}
	}
	return false
}

// TriggersRestock reports whether entering s returns the order's stock.
func TriggersRestock(s Status) bool {
	return s == StatusCancelled || s == StatusRefundSuccess
}
