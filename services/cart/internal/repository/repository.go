package repository

import (
	"context"

	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// CartRepository persists carts keyed by user ID.
type CartRepository interface {
	// Get returns the stored cart or a NotFound error.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// SaveIfVersion stores cart only when the stored version equals
	// expectedVersion (0 for a cart that was never saved). On success
	// cart.Version is advanced. false means another writer got there first.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error)

	// Delete removes the cart. Deleting an absent cart is not an error.
	Delete(ctx context.Context, userID string) error
}
