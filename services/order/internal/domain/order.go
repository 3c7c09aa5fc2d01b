package domain

import (
	"fmt"
	"time"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// MaxLines caps the number of lines in one order.
const MaxLines = 100

// Order is a placed order. Orders are never deleted, only moved to a
// terminal status.
type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	ShopID     string      `json:"shop_id"`
	Status     Status      `json:"status"`
	Lines      []OrderLine `json:"lines"`
	TotalPrice int64       `json:"total_price"`
	Currency   string      `json:"currency"`
	Reason     string      `json:"reason,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// OrderLine is a product line copied from the cart at checkout.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	ImageRef  string `json:"image_ref,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns the total price for this line.
func (l OrderLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

func (l OrderLine) validate(i int) error {
	switch {
	case l.ProductID == "":
		return apperrors.InvalidInput(fmt.Sprintf("line %d: product id is required", i))
	case l.Quantity < 1:
		return apperrors.InvalidInput(fmt.Sprintf("line %d: quantity must be at least 1", i))
	case l.UnitPrice < 0:
		return apperrors.InvalidInput(fmt.Sprintf("line %d: unit price must not be negative", i))
	}
	return nil
}

// NewOrder builds an order in Processing. Lines are copied, so later changes
// to the caller's slice do not reach the order.
func NewOrder(id, customerID, shopID, currency string, lines []OrderLine, now time.Time) (*Order, error) {
	if customerID == "" {
		return nil, apperrors.InvalidInput("customer id is required")
	}
	if shopID == "" {
		return nil, apperrors.InvalidInput("shop id is required")
	}
	if len(lines) == 0 {
		return nil, apperrors.InvalidInput("order must contain at least one line")
	}
	if len(lines) > MaxLines {
		return nil, apperrors.InvalidInput(fmt.Sprintf("order cannot contain more than %d lines", MaxLines))
	}

	seen := make(map[string]bool, len(lines))
	for i, l := range lines {
		if err := l.validate(i); err != nil {
			return nil, err
		}
		if seen[l.ProductID] {
			return nil, apperrors.InvalidInput(fmt.Sprintf("product %s appears on more than one line", l.ProductID))
		}
		seen[l.ProductID] = true
	}

	o := &Order{
		ID:         id,
		CustomerID: customerID,
		ShopID:     shopID,
		Status:     StatusProcessing,
		Lines:      append([]OrderLine(nil), lines...),
		Currency:   currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.TotalPrice = o.ComputeTotal()
	return o, nil
}

// ComputeTotal sums the line subtotals.
func (o *Order) ComputeTotal() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.Subtotal()
	}
	return total
}

// TransitionTo moves the order to the target status. A move the lifecycle
// does not allow returns InvalidTransition and leaves the order untouched.
func (o *Order) TransitionTo(to Status, reason string, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return apperrors.InvalidTransition(string(o.Status), string(to))
	}
	o.Status = to
	if reason != "" {
		o.Reason = reason
	}
	o.UpdatedAt = now
	return nil
}

// IsTerminal reports whether the order reached a terminal status.
func (o *Order) IsTerminal() bool {
	return IsTerminal(o.Status)
}

// IsRefundOrder reports whether the order is in the refund sub-flow.
func IsRefundOrder(o *Order) bool {
	return o != nil && IsRefundStatus(o.Status)
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return &c
}
