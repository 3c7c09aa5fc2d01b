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
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/service"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service   *service.CartService
	formatter *money.Formatter
	logger    *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, formatter *money.Formatter, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service:   svc,
		formatter: formatter,
		logger:    logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON body for adding a product. Name, price, image
// and stock are only used when the service runs without a catalog.
type AddItemRequest struct {
	ProductID      string `json:"product_id" validate:"required,max=100"`
	Name           string `json:"name" validate:"max=500"`
	UnitPrice      int64  `json:"unit_price" validate:"gte=0"`
	ImageRef       string `json:"image_ref" validate:"max=2048"`
	AvailableStock *int   `json:"available_stock" validate:"omitempty,gte=0"`
	Quantity       int    `json:"quantity" validate:"gte=0,lte=1000"`
}

// SetQuantityRequest is the JSON body for setting a line's quantity.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,lte=1000"`
}

// --- Response DTOs ---

// CartLineResponse is a cart line as rendered to clients.
type CartLineResponse struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	ImageRef       string `json:"image_ref,omitempty"`
	Quantity       int    `json:"quantity"`
	AvailableStock int    `json:"available_stock"`
	Subtotal       int64  `json:"subtotal"`
}

// CartResponse is the cart snapshot with derived totals.
type CartResponse struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	Lines        []CartLineResponse `json:"lines"`
	Currency     string             `json:"currency"`
	Version      int                `json:"version"`
	TotalPrice   int64              `json:"total_price"`
	TotalDisplay string             `json:"total_display"`
	LineCount    int                `json:"line_count"`
	ItemCount    int                `json:"item_count"`
	Warnings     []domain.Warning   `json:"warnings"`
	UpdatedAt    time.Time          `json:"updated_at"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

func (h *CartHandler) toResponse(r *http.Request, cart *domain.Cart, warnings []domain.Warning) CartResponse {
	lines := make([]CartLineResponse, len(cart.Lines))
	for i, l := range cart.Lines {
		lines[i] = CartLineResponse{
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      l.UnitPrice,
			ImageRef:       l.ImageRef,
			Quantity:       l.Quantity,
			AvailableStock: l.AvailableStock,
			Subtotal:       l.Subtotal(),
		}
	}
	if warnings == nil {
		warnings = []domain.Warning{}
	}

	total := cart.TotalPrice()
	display, err := h.formatter.Format(total, cart.Currency)
	if err != nil {
		h.logger.WarnContext(r.Context(), "cannot format cart total",
			slog.String("currency", cart.Currency),
			slog.String("error", err.Error()),
		)
	}

	return CartResponse{
		ID:           cart.ID,
		UserID:       cart.UserID,
		Lines:        lines,
		Currency:     cart.Currency,
		Version:      cart.Version,
		TotalPrice:   total,
		TotalDisplay: display,
		LineCount:    cart.LineCount(),
		ItemCount:    cart.ItemCount(),
		Warnings:     warnings,
		UpdatedAt:    cart.UpdatedAt,
		ExpiresAt:    cart.ExpiresAt,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCart(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.toResponse(r, cart, nil)})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	res, err := h.service.AddItem(r.Context(), middleware.UserIDFromContext(r.Context()), service.AddItemInput{
		ProductID:      req.ProductID,
		Name:           req.Name,
		UnitPrice:      req.UnitPrice,
		ImageRef:       req.ImageRef,
		AvailableStock: req.AvailableStock,
		Quantity:       req.Quantity,
	})
	h.writeMutation(w, r, res, err)
}

// SetQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req SetQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.SetQuantity(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "productId"), *req.Quantity)
	h.writeMutation(w, r, res, err)
}

// IncrementItem handles POST /api/v1/cart/items/{productId}/increment
func (h *CartHandler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.IncrementItem(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "productId"))
	h.writeMutation(w, r, res, err)
}

// DecrementItem handles POST /api/v1/cart/items/{productId}/decrement
func (h *CartHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.DecrementItem(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "productId"))
	h.writeMutation(w, r, res, err)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RemoveItem(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "productId"))
	h.writeMutation(w, r, res, err)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCart(r.Context(), middleware.UserIDFromContext(r.Context()), service.ClearReasonManual); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) writeMutation(w http.ResponseWriter, r *http.Request, res *service.MutationResult, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.toResponse(r, res.Cart, res.Warnings)})
}
