package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/services/order/internal/domain"
)

// Kafka topic constants for order domain events.
var (
	TopicOrderCreated       = pkgkafka.Topic("order", "created")
	TopicOrderStatusChanged = pkgkafka.Topic("order", "status_changed")
	TopicOrderCanceled      = pkgkafka.Topic("order", "canceled")
	TopicRestockRequested   = pkgkafka.Topic("inventory", "restock_requested")
)

// Aggregate type constants.
const (
	AggregateTypeOrder   = "order"
	AggregateTypeProduct = "product"
)

// SourceOrderService identifies events originating from the order service.
const SourceOrderService = "order-service"

// OrderCreatedData is the payload for an order.created event (full order snapshot).
type OrderCreatedData struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	ShopID     string          `json:"shop_id"`
	Status     string          `json:"status"`
	Lines      []OrderLineData `json:"lines"`
	TotalPrice int64           `json:"total_price"`
	Currency   string          `json:"currency"`
}

// OrderLineData is the event payload for an order line.
type OrderLineData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	ShopID     string `json:"shop_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	Refund     bool   `json:"refund"`
	Reason     string `json:"reason,omitempty"`
}

// OrderCanceledData is the payload for an order.canceled event.
type OrderCanceledData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// RestockRequestedData is the payload for an inventory.restock_requested event.
type RestockRequestedData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Producer publishes order domain events to Kafka.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the order service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceOrderService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event.FromContext(ctx)); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// PublishOrderCreated publishes an order.created event with the full order snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	lines := make([]OrderLineData, len(order.Lines))
	for i, l := range order.Lines {
		lines[i] = OrderLineData{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	data := OrderCreatedData{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		ShopID:     order.ShopID,
		Status:     string(order.Status),
		Lines:      lines,
		TotalPrice: order.TotalPrice,
		Currency:   order.Currency,
	}
	if err := p.publish(ctx, TopicOrderCreated, order.ID, AggregateTypeOrder, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("order_id", order.ID),
		slog.String("customer_id", order.CustomerID),
	)
	return nil
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, oldStatus domain.Status) error {
	data := OrderStatusChangedData{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		ShopID:     order.ShopID,
		OldStatus:  string(oldStatus),
		NewStatus:  string(order.Status),
		Refund:     domain.IsRefundOrder(order),
		Reason:     order.Reason,
	}
	if err := p.publish(ctx, TopicOrderStatusChanged, order.ID, AggregateTypeOrder, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.status_changed event",
		slog.String("order_id", order.ID),
		slog.String("old_status", string(oldStatus)),
		slog.String("new_status", string(order.Status)),
	)
	return nil
}

// PublishOrderCanceled publishes an order.canceled event.
func (p *Producer) PublishOrderCanceled(ctx context.Context, orderID, reason string) error {
	data := OrderCanceledData{
		OrderID: orderID,
		Reason:  reason,
	}
	if err := p.publish(ctx, TopicOrderCanceled, orderID, AggregateTypeOrder, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.canceled event",
		slog.String("order_id", orderID),
		slog.String("reason", reason),
	)
	return nil
}

// PublishRestockRequested publishes an inventory.restock_requested event. It
// backs inventory.EventRestocker.
func (p *Producer) PublishRestockRequested(ctx context.Context, productID string, qty int) error {
	data := RestockRequestedData{
		ProductID: productID,
		Quantity:  qty,
	}
	if err := p.publish(ctx, TopicRestockRequested, productID, AggregateTypeProduct, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published inventory.restock_requested event",
		slog.String("product_id", productID),
		slog.Int("quantity", qty),
	)
	return nil
}
