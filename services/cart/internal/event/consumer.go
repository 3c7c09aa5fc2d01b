package event

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
)

// TopicOrderCreated is consumed to empty a customer's cart after checkout.
var TopicOrderCreated = pkgkafka.Topic("order", "created")

// ClearReasonCheckout is the cart.cleared reason for a completed checkout.
const ClearReasonCheckout = "checkout"

// orderCreatedData is the subset of the order.created payload the cart needs.
type orderCreatedData struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
}

// CartClearer empties a user's cart.
type CartClearer interface {
	ClearCart(ctx context.Context, userID, reason string) error
}

// OrderCreatedHandler returns a handler that clears the ordering customer's
// cart. Events without a customer are rejected so they end up in the DLQ.
func OrderCreatedHandler(carts CartClearer, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, evt *pkgkafka.Event) error {
		var data orderCreatedData
		if err := evt.UnmarshalData(&data); err != nil {
			return fmt.Errorf("decode order.created: %w", err)
		}
		if data.CustomerID == "" {
			return apperrors.InvalidInput("order.created without customer_id")
		}

		if err := carts.ClearCart(ctx, data.CustomerID, ClearReasonCheckout); err != nil {
			return fmt.Errorf("clear cart of %s: %w", data.CustomerID, err)
		}

		logger.InfoContext(ctx, "cart cleared after checkout",
			slog.String("order_id", data.OrderID),
			slog.String("user_id", data.CustomerID),
		)
		return nil
	}
}

// ConsumerDeps groups what the order.created consumer is built from.
type ConsumerDeps struct {
	Brokers     []string
	GroupID     string
	Carts       CartClearer
	Idempotency pkgkafka.IdempotencyStore
	DLQ         pkgkafka.DeadLetterer
	Logger      *slog.Logger
	Options     []pkgkafka.ConsumerOption
}

// NewOrderCreatedConsumer builds a de-duplicating consumer for order.created
// that routes poison messages to the DLQ.
func NewOrderCreatedConsumer(deps ConsumerDeps) *pkgkafka.Consumer {
	handler := pkgkafka.IdempotentHandler(deps.Idempotency, OrderCreatedHandler(deps.Carts, deps.Logger), deps.Logger)

	opts := append([]pkgkafka.ConsumerOption{pkgkafka.WithDLQ(deps.DLQ)}, deps.Options...)
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  deps.Brokers,
		GroupID:  deps.GroupID,
		Topic:    TopicOrderCreated,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, handler, deps.Logger, opts...)
}
