package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

func newLookup(t *testing.T, h http.HandlerFunc) *HTTPLookup {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = time.Second
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHTTPLookup(srv.URL, httpclient.New(cfg), logger)
}

func TestHTTPLookup_Product(t *testing.T) {
	l := newLookup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/P1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"id":"P1","name":"Lamp","price":4500,"image_url":"lamp.jpg","stock":3}}`)
	})

	p, err := l.Product(context.Background(), domain.Product{ID: "P1", UnitPrice: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.Product{ID: "P1", Name: "Lamp", UnitPrice: 4500, ImageRef: "lamp.jpg", AvailableStock: 3}, p)
}

func TestHTTPLookup_MissingStockIsUnlimited(t *testing.T) {
	l := newLookup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"id":"P2","price":100}}`)
	})

	p, err := l.Product(context.Background(), domain.Product{ID: "P2", Name: "from caller"})
	require.NoError(t, err)
	assert.Equal(t, domain.UnlimitedStock, p.AvailableStock)
	assert.Equal(t, "from caller", p.Name)
}

func TestHTTPLookup_NegativeStockIsZero(t *testing.T) {
	l := newLookup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"id":"P3","price":100,"stock":-4}}`)
	})

	p, err := l.Product(context.Background(), domain.Product{ID: "P3"})
	require.NoError(t, err)
	assert.Zero(t, p.AvailableStock)
}

func TestHTTPLookup_NotFound(t *testing.T) {
	l := newLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"NOT_FOUND","message":"no such product"}}`)
	})

	_, err := l.Product(context.Background(), domain.Product{ID: "nope"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHTTPLookup_Unpublished(t *testing.T) {
	l := newLookup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"id":"P4","price":100,"published":false}}`)
	})

	_, err := l.Product(context.Background(), domain.Product{ID: "P4"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHTTPLookup_ServerErrorIsRemoteFailure(t *testing.T) {
	l := newLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := l.Product(context.Background(), domain.Product{ID: "P1"})
	assert.ErrorIs(t, err, apperrors.ErrRemoteFailure)
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatus(err))
}

func TestHTTPLookup_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	l := NewHTTPLookup(base, httpclient.New(cfg), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := l.Product(context.Background(), domain.Product{ID: "P1"})
	assert.ErrorIs(t, err, apperrors.ErrRemoteFailure)
}

func TestHTTPLookup_BreakerOpenIsRemoteFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	breaker := httpclient.NewCircuitBreakerClient(httpclient.New(cfg), httpclient.CircuitBreakerConfig{
		Name: "catalog-test", MaxRequests: 1, Timeout: time.Hour, FailureRatio: 0.5, MinRequests: 1,
	}, logger)
	l := NewHTTPLookup(srv.URL, breaker, logger)

	_, err := l.Product(context.Background(), domain.Product{ID: "P1"})
	assert.ErrorIs(t, err, apperrors.ErrRemoteFailure)

	_, err = l.Product(context.Background(), domain.Product{ID: "P1"})
	assert.ErrorIs(t, err, apperrors.ErrRemoteFailure)
	assert.ErrorIs(t, err, httpclient.ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestStatic_EchoesHint(t *testing.T) {
	hint := domain.Product{ID: "P1", Name: "Mug", UnitPrice: 900, AvailableStock: 4}
	p, err := Static{}.Product(context.Background(), hint)
	require.NoError(t, err)
	assert.Equal(t, hint, p)
}
