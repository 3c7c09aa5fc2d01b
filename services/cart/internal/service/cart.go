package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/keylock"
	"github.com/utafrali/storefront/services/cart/internal/catalog"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/repository"
)

// storeName names the cart repository in RemoteFailure errors.
const storeName = "cart store"

// ClearReasonManual is the cart.cleared reason when a shopper empties the cart.
const ClearReasonManual = "manual"

// errUnchanged short-circuits a mutation that turned out to be a no-op.
var errUnchanged = errors.New("cart unchanged")

// EventPublisher publishes cart domain events.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, cart *domain.Cart) error
	PublishCartCleared(ctx context.Context, userID, reason string) error
}

// AddItemInput holds the parameters for adding a product to the cart. The
// descriptive fields are only trusted when no catalog is configured.
type AddItemInput struct {
	ProductID      string
	Name           string
	UnitPrice      int64
	ImageRef       string
	AvailableStock *int
	Quantity       int
}

func (in AddItemInput) hint() domain.Product {
	stock := domain.UnlimitedStock
	if in.AvailableStock != nil {
		stock = *in.AvailableStock
	}
	return domain.Product{
		ID:             in.ProductID,
		Name:           in.Name,
		UnitPrice:      in.UnitPrice,
		ImageRef:       in.ImageRef,
		AvailableStock: stock,
	}
}

// MutationResult is the snapshot after a mutation landed, plus any warnings
// raised while applying it.
type MutationResult struct {
	Cart     *domain.Cart
	Warnings []domain.Warning
}

// Config holds cart service settings.
type Config struct {
	TTL      time.Duration
	Currency string
}

// CartService is the single mutation entry point for carts. Mutations of one
// user's cart run one at a time.
type CartService struct {
	repo      repository.CartRepository
	catalog   catalog.Lookup
	publisher EventPublisher
	logger    *slog.Logger
	cfg       Config
	locks     *keylock.Map
	now       func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(repo repository.CartRepository, lookup catalog.Lookup, publisher EventPublisher, logger *slog.Logger, cfg Config) *CartService {
	if lookup == nil {
		lookup = catalog.Static{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &CartService{
		repo:      repo,
		catalog:   lookup,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		locks:     keylock.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetCart returns the user's cart, or an empty unsaved one.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}
	return s.load(ctx, userID)
}

// AddItem resolves the product through the catalog and merges it into the
// cart. A catalog failure leaves the cart untouched.
func (s *CartService) AddItem(ctx context.Context, userID string, input AddItemInput) (*MutationResult, error) {
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if input.Quantity < 1 {
		return nil, apperrors.InvalidInput("quantity must be at least 1")
	}

	product, err := s.catalog.Product(ctx, input.hint())
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, "add", func(c *domain.Cart) (*domain.Warning, error) {
		return c.AddOrMergeLine(product, input.Quantity)
	})
}

// SetQuantity sets a line's quantity, clamped to [1, stock].
func (s *CartService) SetQuantity(ctx context.Context, userID, productID string, qty int) (*MutationResult, error) {
	return s.mutate(ctx, userID, "set_quantity", func(c *domain.Cart) (*domain.Warning, error) {
		return c.SetLineQuantity(productID, qty)
	})
}

// IncrementItem adds one to a line.
func (s *CartService) IncrementItem(ctx context.Context, userID, productID string) (*MutationResult, error) {
	return s.mutate(ctx, userID, "increment", func(c *domain.Cart) (*domain.Warning, error) {
		return c.IncrementLine(productID)
	})
}

// DecrementItem removes one from a line, never below 1.
func (s *CartService) DecrementItem(ctx context.Context, userID, productID string) (*MutationResult, error) {
	return s.mutate(ctx, userID, "decrement", func(c *domain.Cart) (*domain.Warning, error) {
		return c.DecrementLine(productID)
	})
}

// RemoveItem drops a line. Removing an absent line returns the current cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*MutationResult, error) {
	return s.mutate(ctx, userID, "remove", func(c *domain.Cart) (*domain.Warning, error) {
		if !c.RemoveLine(productID) {
			return nil, errUnchanged
		}
		return nil, nil
	})
}

// ClearCart deletes the user's cart.
func (s *CartService) ClearCart(ctx context.Context, userID, reason string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return apperrors.Interrupted("cart", err)
	}
	defer unlock()

	if err := s.repo.Delete(ctx, userID); err != nil {
		cartMutationsTotal.WithLabelValues("clear", "remote_failure").Inc()
		return apperrors.RemoteFailure(storeName, err)
	}
	cartMutationsTotal.WithLabelValues("clear", "ok").Inc()

	if err := s.publisher.PublishCartCleared(ctx, userID, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)
	return nil
}

// mutate loads the last saved cart, applies fn to a copy, and saves it only
// if nobody else saved in between. The caller sees either the new snapshot or
// an error with nothing committed.
func (s *CartService) mutate(ctx context.Context, userID, op string, fn func(*domain.Cart) (*domain.Warning, error)) (*MutationResult, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		cartMutationsTotal.WithLabelValues(op, "interrupted").Inc()
		return nil, apperrors.Interrupted("cart", err)
	}
	defer unlock()

	current, err := s.load(ctx, userID)
	if err != nil {
		cartMutationsTotal.WithLabelValues(op, "remote_failure").Inc()
		return nil, err
	}

	next := current.Clone()
	warning, err := fn(next)
	if errors.Is(err, errUnchanged) {
		cartMutationsTotal.WithLabelValues(op, "noop").Inc()
		return &MutationResult{Cart: current, Warnings: []domain.Warning{}}, nil
	}
	if err != nil {
		cartMutationsTotal.WithLabelValues(op, "rejected").Inc()
		return nil, err
	}
	next.Touch(s.now(), s.cfg.TTL)

	ok, err := s.repo.SaveIfVersion(ctx, next, current.Version)
	if err != nil {
		cartMutationsTotal.WithLabelValues(op, "remote_failure").Inc()
		return nil, apperrors.RemoteFailure(storeName, err)
	}
	if !ok {
		cartMutationsTotal.WithLabelValues(op, "conflict").Inc()
		return nil, apperrors.Conflict("cart was changed from another session, reload and retry")
	}
	cartMutationsTotal.WithLabelValues(op, "ok").Inc()

	result := &MutationResult{Cart: next, Warnings: []domain.Warning{}}
	if warning != nil {
		cartStockWarningsTotal.Inc()
		result.Warnings = append(result.Warnings, *warning)
		s.logger.InfoContext(ctx, "cart quantity capped at stock",
			slog.String("user_id", userID),
			slog.String("product_id", warning.ProductID),
			slog.Int("requested", warning.Requested),
			slog.Int("applied", warning.Applied),
		)
	}

	if err := s.publisher.PublishCartUpdated(ctx, next); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart updated",
		slog.String("user_id", userID),
		slog.String("operation", op),
		slog.Int("version", next.Version),
		slog.Int("line_count", next.LineCount()),
	)
	return result, nil
}

// load returns the stored cart or a fresh empty one.
func (s *CartService) load(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.NewCart(uuid.NewString(), userID, s.cfg.Currency, s.now(), s.cfg.TTL), nil
	}
	return nil, apperrors.RemoteFailure(storeName, fmt.Errorf("load cart: %w", err))
}
