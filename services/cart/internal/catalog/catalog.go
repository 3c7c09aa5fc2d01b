// Package catalog looks up current product price and stock for the cart.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// Lookup resolves the current price and stock of a product. hint carries
// what the caller believes about the product; only hint.ID is required.
type Lookup interface {
	Product(ctx context.Context, hint domain.Product) (domain.Product, error)
}

// productResponse mirrors the catalog's product representation.
type productResponse struct {
	Data struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Price     int64  `json:"price"`
		ImageURL  string `json:"image_url"`
		Stock     *int   `json:"stock"`
		Published *bool  `json:"published"`
	} `json:"data"`
}

// HTTPLookup queries the catalog service over HTTP.
type HTTPLookup struct {
	baseURL string
	client  httpclient.Doer
	logger  *slog.Logger
}

var _ Lookup = (*HTTPLookup)(nil)

// NewHTTPLookup builds a lookup against baseURL using client, typically a
// circuit-breaker wrapped httpclient.
func NewHTTPLookup(baseURL string, client httpclient.Doer, logger *slog.Logger) *HTTPLookup {
	return &HTTPLookup{baseURL: baseURL, client: client, logger: logger}
}

// Product fetches GET {base}/api/v1/products/{id}. A missing stock figure
// becomes domain.UnlimitedStock. Unknown products are NotFound; any transport
// or server failure is a RemoteFailure.
func (l *HTTPLookup) Product(ctx context.Context, hint domain.Product) (domain.Product, error) {
	productID := hint.ID
	endpoint := fmt.Sprintf("%s/api/v1/products/%s", l.baseURL, url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(ctx, req)
	if err != nil {
		l.logger.WarnContext(ctx, "catalog lookup failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return domain.Product{}, apperrors.RemoteFailure("catalog", err)
	}

	var body productResponse
	if err := httpclient.DecodeJSON(resp, "catalog", &body); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Product{}, apperrors.NotFound("product", productID)
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
			return domain.Product{}, err
		}
		return domain.Product{}, apperrors.RemoteFailure("catalog", err)
	}

	if body.Data.Published != nil && !*body.Data.Published {
		return domain.Product{}, apperrors.NotFound("product", productID)
	}

	p := domain.Product{
		ID:             productID,
		Name:           cmp.Or(body.Data.Name, hint.Name),
		UnitPrice:      body.Data.Price,
		ImageRef:       cmp.Or(body.Data.ImageURL, hint.ImageRef),
		AvailableStock: domain.UnlimitedStock,
	}
	if body.Data.Stock != nil {
		p.AvailableStock = max(*body.Data.Stock, 0)
	}
	return p, nil
}

// Static trusts the caller. It is used when no catalog URL is configured.
type Static struct{}

var _ Lookup = Static{}

// Product returns hint unchanged.
func (Static) Product(_ context.Context, hint domain.Product) (domain.Product, error) {
	return hint, nil
}
