package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/keylock"
	"github.com/utafrali/storefront/services/order/internal/domain"
	"github.com/utafrali/storefront/services/order/internal/inventory"
	"github.com/utafrali/storefront/services/order/internal/repository"
)

// storeName names the order repository in RemoteFailure errors.
const storeName = "order store"

// DefaultCurrency is used when an order is created without one.
const DefaultCurrency = "USD"

// EventPublisher publishes order domain events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *domain.Order, oldStatus domain.Status) error
	PublishOrderCanceled(ctx context.Context, orderID, reason string) error
}

// OrderService implements the order lifecycle. Status changes of one order
// run one at a time.
type OrderService struct {
	repo      repository.OrderRepository
	restocker inventory.Restocker
	publisher EventPublisher
	logger    *slog.Logger
	locks     *keylock.Map
	now       func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(repo repository.OrderRepository, restocker inventory.Restocker, publisher EventPublisher, logger *slog.Logger) *OrderService {
	return &OrderService{
		repo:      repo,
		restocker: restocker,
		publisher: publisher,
		logger:    logger,
		locks:     keylock.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrderInput holds the parameters for creating an order. CustomerID is
// only honoured for admins; customers always order for themselves.
type CreateOrderInput struct {
	CustomerID string
	ShopID     string
	Currency   string
	Lines      []domain.OrderLine
}

// CreateOrder places an order in Processing with lines copied from input.
func (s *OrderService) CreateOrder(ctx context.Context, actor domain.Actor, input CreateOrderInput) (*domain.Order, error) {
	customerID := actor.UserID
	switch actor.Role {
	case domain.RoleCustomer:
	case domain.RoleAdmin:
		if input.CustomerID != "" {
			customerID = input.CustomerID
		}
	default:
		return nil, apperrors.Forbidden("only customers and admins can place orders")
	}

	currency := strings.ToUpper(input.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}

	order, err := domain.NewOrder(uuid.NewString(), customerID, input.ShopID, currency, input.Lines, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, apperrors.RemoteFailure(storeName, fmt.Errorf("create order: %w", err))
	}
	ordersCreatedTotal.Inc()

	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("customer_id", order.CustomerID),
		slog.String("shop_id", order.ShopID),
		slog.Int64("total_price", order.TotalPrice),
	)
	return order, nil
}

// GetOrder returns an order visible to actor. Orders the actor may not see
// are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(order) {
		return nil, apperrors.NotFound("order", id)
	}
	return order, nil
}

// ListOrders returns a page of orders visible to actor. Customers are scoped
// to their own orders and shops to their shop, whatever the filter says.
func (s *OrderService) ListOrders(ctx context.Context, actor domain.Actor, filter repository.OrderFilter) ([]domain.Order, int, error) {
	switch actor.Role {
	case domain.RoleCustomer:
		filter.CustomerID = &actor.UserID
	case domain.RoleShop:
		if actor.ShopID == "" {
			return nil, 0, apperrors.Forbidden("shop id is required to list shop orders")
		}
		filter.ShopID = &actor.ShopID
	case domain.RoleAdmin:
	default:
		return nil, 0, apperrors.Forbidden("unknown role")
	}

	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", *filter.Status))
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.RemoteFailure(storeName, fmt.Errorf("list orders: %w", err))
	}
	return orders, total, nil
}

// ChangeStatus moves an order to newStatus on behalf of actor. The move is
// checked against the last stored status and persisted conditionally on it;
// the caller gets the stored result or an error with nothing changed.
// Entering Cancelled or Refund Success restocks every line.
func (s *OrderService) ChangeStatus(ctx context.Context, actor domain.Actor, id string, newStatus domain.Status, reason string) (*domain.Order, error) {
	if !newStatus.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", newStatus))
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, apperrors.Interrupted("order", err)
	}
	defer unlock()

	current, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if err := actor.AuthorizeTransition(current, newStatus); err != nil {
		outcome := "forbidden"
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			outcome = "invalid"
		}
		orderTransitionsTotal.WithLabelValues(string(newStatus), outcome).Inc()
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, current.Status, newStatus, reason)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrConflict):
			orderTransitionsTotal.WithLabelValues(string(newStatus), "conflict").Inc()
			return nil, err
		case errors.Is(err, apperrors.ErrNotFound):
			return nil, apperrors.NotFound("order", id)
		default:
			orderTransitionsTotal.WithLabelValues(string(newStatus), "remote_failure").Inc()
			return nil, apperrors.RemoteFailure(storeName, fmt.Errorf("update order status: %w", err))
		}
	}
	orderTransitionsTotal.WithLabelValues(string(newStatus), "ok").Inc()

	if domain.TriggersRestock(updated.Status) {
		s.restock(ctx, updated)
	}
	s.publishStatusChange(ctx, updated, current.Status)

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", id),
		slog.String("old_status", string(current.Status)),
		slog.String("new_status", string(updated.Status)),
		slog.String("actor_role", string(actor.Role)),
	)
	return updated, nil
}

// CancelOrder cancels an order. Only Processing orders can be cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, actor domain.Actor, id, reason string) (*domain.Order, error) {
	return s.ChangeStatus(ctx, actor, id, domain.StatusCancelled, reason)
}

// restock notifies the inventory collaborator for every line. The status
// change is already stored, so failures are logged and counted, not returned.
func (s *OrderService) restock(ctx context.Context, order *domain.Order) {
	for _, line := range order.Lines {
		if err := s.restocker.Restock(ctx, line.ProductID, line.Quantity); err != nil {
			orderRestockFailuresTotal.Inc()
			s.logger.ErrorContext(ctx, "failed to restock order line",
				slog.String("order_id", order.ID),
				slog.String("product_id", line.ProductID),
				slog.Int("quantity", line.Quantity),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *OrderService) publishStatusChange(ctx context.Context, order *domain.Order, oldStatus domain.Status) {
	if err := s.publisher.PublishOrderStatusChanged(ctx, order, oldStatus); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	if order.Status != domain.StatusCancelled {
		return
	}
	if err := s.publisher.PublishOrderCanceled(ctx, order.ID, order.Reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.canceled event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}

// load reads an order, mapping store failures to RemoteFailure.
func (s *OrderService) load(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err == nil {
		return order, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("order", id)
	}
	return nil, apperrors.RemoteFailure(storeName, fmt.Errorf("get order: %w", err))
}
