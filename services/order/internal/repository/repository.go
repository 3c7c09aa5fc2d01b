package repository

import (
	"context"

	"github.com/utafrali/storefront/services/order/internal/domain"
)

// OrderFilter defines filter criteria for listing orders. Nil fields do not
// filter.
type OrderFilter struct {
	CustomerID *string
	ShopID     *string
	Status     *domain.Status
	// RefundOnly restricts the result to orders in the refund sub-flow.
	RefundOnly bool
	Page       int
	PerPage    int
}

// OrderRepository is the order persistence API.
type OrderRepository interface {
	// Create inserts a new order and its lines atomically.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its unique identifier, including lines.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List returns orders matching the given filter along with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// UpdateStatus moves an order from one status to another and returns the
	// stored result. It fails with a conflict when the stored status is no
	// longer from, and with not found when the order does not exist.
	UpdateStatus(ctx context.Context, id string, from, to domain.Status, reason string) (*domain.Order, error)
}
