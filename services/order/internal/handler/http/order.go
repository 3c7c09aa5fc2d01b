package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/pkg/validator"
	"github.com/utafrali/storefront/services/order/internal/domain"
	"github.com/utafrali/storefront/services/order/internal/repository"
	"github.com/utafrali/storefront/services/order/internal/service"
)

func init() {
	if err := validator.Register("order_status", domain.IsValidStatus); err != nil {
		panic(err)
	}
}

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service   *service.OrderService
	formatter *money.Formatter
	logger    *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, formatter *money.Formatter, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service:   svc,
		formatter: formatter,
		logger:    logger,
	}
}

// --- Request DTOs ---

// CreateOrderLineRequest is the JSON request body for an order line.
type CreateOrderLineRequest struct {
	ProductID string `json:"product_id" validate:"required,max=100"`
	Name      string `json:"name" validate:"max=500"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
	ImageRef  string `json:"image_ref" validate:"max=2048"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=1000"`
}

// CreateOrderRequest is the JSON request body for creating an order.
// CustomerID is only honoured for admins.
type CreateOrderRequest struct {
	CustomerID string                   `json:"customer_id" validate:"max=100"`
	ShopID     string                   `json:"shop_id" validate:"required,max=100"`
	Currency   string                   `json:"currency" validate:"omitempty,iso4217"`
	Lines      []CreateOrderLineRequest `json:"lines" validate:"required,min=1,max=100,dive"`
}

// UpdateStatusRequest is the JSON request body for changing an order's status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,order_status"`
	Reason string `json:"reason" validate:"max=500"`
}

// CancelOrderRequest is the JSON request body for canceling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// --- Response DTOs ---

// OrderResponse is an order as rendered to clients. NextStatuses lists the
// moves the caller's role may make from the current status.
type OrderResponse struct {
	ID           string             `json:"id"`
	CustomerID   string             `json:"customer_id"`
	ShopID       string             `json:"shop_id"`
	Status       domain.Status      `json:"status"`
	Refund       bool               `json:"refund"`
	Terminal     bool               `json:"terminal"`
	NextStatuses []domain.Status    `json:"next_statuses"`
	Lines        []domain.OrderLine `json:"lines"`
	TotalPrice   int64              `json:"total_price"`
	TotalDisplay string             `json:"total_display"`
	Currency     string             `json:"currency"`
	Reason       string             `json:"reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (h *OrderHandler) toResponse(r *http.Request, actor domain.Actor, o *domain.Order) OrderResponse {
	next := []domain.Status{}
	for _, s := range domain.NextStatuses(o.Status) {
		if actor.Role.Permits(o.Status, s) {
			next = append(next, s)
		}
	}

	display, err := h.formatter.Format(o.TotalPrice, o.Currency)
	if err != nil {
		h.logger.WarnContext(r.Context(), "cannot format order total",
			slog.String("order_id", o.ID),
			slog.String("currency", o.Currency),
			slog.String("error", err.Error()),
		)
	}

	lines := o.Lines
	if lines == nil {
		lines = []domain.OrderLine{}
	}

	return OrderResponse{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		ShopID:       o.ShopID,
		Status:       o.Status,
		Refund:       domain.IsRefundOrder(o),
		Terminal:     o.IsTerminal(),
		NextStatuses: next,
		Lines:        lines,
		TotalPrice:   o.TotalPrice,
		TotalDisplay: display,
		Currency:     o.Currency,
		Reason:       o.Reason,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

// actor builds the caller from the identity headers. An unknown role is
// rejected before any order is touched.
func (h *OrderHandler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	id, _ := middleware.IdentityFromContext(r.Context())
	role, err := domain.ParseRole(id.Role)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: id.UserID, Role: role, ShopID: id.ShopID}, true
}

// --- Handlers ---

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	lines := make([]domain.OrderLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = domain.OrderLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			ImageRef:  l.ImageRef,
			Quantity:  l.Quantity,
		}
	}

	order, err := h.service.CreateOrder(r.Context(), actor, service.CreateOrderInput{
		CustomerID: req.CustomerID,
		ShopID:     req.ShopID,
		Currency:   req.Currency,
		Lines:      lines,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: h.toResponse(r, actor, order)})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	page := httputil.ParsePageParams(r)
	filter := repository.OrderFilter{
		RefundOnly: r.URL.Query().Get("refund") == "true",
		Page:       page.Page,
		PerPage:    page.PerPage,
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := domain.ParseStatus(v)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		filter.Status = &status
	}

	orders, total, err := h.service.ListOrders(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	data := make([]OrderResponse, len(orders))
	for i := range orders {
		data[i] = h.toResponse(r, actor, &orders[i])
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(data, total, filter.Page, filter.PerPage))
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), actor, id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.toResponse(r, actor, order)})
}

// UpdateOrderStatus handles PATCH /api/v1/orders/{id}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.service.ChangeStatus(r.Context(), actor, id.String(), domain.Status(req.Status), req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.toResponse(r, actor, order)})
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel. The body is optional.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req CancelOrderRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	order, err := h.service.CancelOrder(r.Context(), actor, id.String(), req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.toResponse(r, actor, order)})
}
