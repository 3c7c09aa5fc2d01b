// Package inventory notifies the inventory collaborator that stock from a
// cancelled or refunded order is available again.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

// Restock modes accepted by RESTOCK_MODE.
const (
	ModeEvent = "event"
	ModeHTTP  = "http"
)

// Restocker returns qty units of a product to stock.
type Restocker interface {
	Restock(ctx context.Context, productID string, qty int) error
}

// RestockPublisher publishes restock requests to the event bus.
type RestockPublisher interface {
	PublishRestockRequested(ctx context.Context, productID string, qty int) error
}

// EventRestocker requests restocks asynchronously through Kafka.
type EventRestocker struct {
	publisher RestockPublisher
}

var _ Restocker = (*EventRestocker)(nil)

// NewEventRestocker creates a restocker that publishes
// inventory.restock_requested events.
func NewEventRestocker(publisher RestockPublisher) *EventRestocker {
	return &EventRestocker{publisher: publisher}
}

// Restock publishes one restock request.
func (r *EventRestocker) Restock(ctx context.Context, productID string, qty int) error {
	if err := validate(productID, qty); err != nil {
		return err
	}
	return r.publisher.PublishRestockRequested(ctx, productID, qty)
}

// restockRequest is the body of POST /api/v1/inventory/restock.
type restockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// HTTPRestocker calls the inventory service directly.
type HTTPRestocker struct {
	baseURL string
	client  httpclient.Doer
	logger  *slog.Logger
}

var _ Restocker = (*HTTPRestocker)(nil)

// NewHTTPRestocker builds a restocker against baseURL using client, typically
// a circuit-breaker wrapped httpclient.
func NewHTTPRestocker(baseURL string, client httpclient.Doer, logger *slog.Logger) *HTTPRestocker {
	return &HTTPRestocker{baseURL: baseURL, client: client, logger: logger}
}

// Restock posts a restock request. Transport and server failures are
// RemoteFailure; client errors keep the inventory service's meaning.
func (r *HTTPRestocker) Restock(ctx context.Context, productID string, qty int) error {
	if err := validate(productID, qty); err != nil {
		return err
	}

	body, err := json.Marshal(restockRequest{ProductID: productID, Quantity: qty, Reason: "return"})
	if err != nil {
		return fmt.Errorf("marshal restock request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/inventory/restock", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build restock request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		r.logger.WarnContext(ctx, "inventory restock call failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return apperrors.RemoteFailure("inventory", err)
	}

	if err := httpclient.DecodeJSON(resp, "inventory", nil); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
			return err
		}
		return apperrors.RemoteFailure("inventory", err)
	}
	return nil
}

func validate(productID string, qty int) error {
	if productID == "" {
		return apperrors.InvalidInput("restock needs a product id")
	}
	if qty < 1 {
		return apperrors.InvalidInput(fmt.Sprintf("restock quantity must be at least 1, got %d", qty))
	}
	return nil
}
