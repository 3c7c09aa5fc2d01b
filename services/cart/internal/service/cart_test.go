package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// --- Mocks ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error) {
	args := m.Called(ctx, cart, expectedVersion)
	return args.Bool(0), args.Error(1)
}

func (m *mockCartRepository) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) Product(ctx context.Context, hint domain.Product) (domain.Product, error) {
	args := m.Called(ctx, hint)
	return args.Get(0).(domain.Product), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	return m.Called(ctx, cart).Error(0)
}

func (m *mockPublisher) PublishCartCleared(ctx context.Context, userID, reason string) error {
	return m.Called(ctx, userID, reason).Error(0)
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mockCartRepository, lookup *mockLookup, pub *mockPublisher) *CartService {
	svc := NewCartService(repo, lookup, pub, newTestLogger(), Config{TTL: 24 * time.Hour, Currency: "EUR"})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func cartWithLine(userID string, qty, stock int) *domain.Cart {
	c := domain.NewCart("cart-123", userID, "EUR", fixedNow.Add(-time.Hour), 24*time.Hour)
	c.Version = 4
	c.Lines = append(c.Lines, domain.CartLine{
		ProductID:      "P1",
		Name:           "Lamp",
		UnitPrice:      100,
		Quantity:       qty,
		AvailableStock: stock,
	})
	return c
}

func advanceVersion(args mock.Arguments) {
	args.Get(1).(*domain.Cart).Version = args.Int(2) + 1
}

func notFound(userID string) error {
	return apperrors.NotFound("cart", userID)
}

// --- GetCart ---

func TestGetCart_Empty(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestService(repo, new(mockLookup), new(mockPublisher))
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(nil, notFound("user-1"))

	cart, err := svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, cart.ID)
	assert.Equal(t, "user-1", cart.UserID)
	assert.Empty(t, cart.Lines)
	assert.Equal(t, "EUR", cart.Currency)
	assert.Equal(t, fixedNow.Add(24*time.Hour), cart.ExpiresAt)
	repo.AssertExpectations(t)
}

func TestGetCart_StoreDown(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestService(repo, new(mockLookup), new(mockPublisher))
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(nil, errors.New("dial tcp: refused"))

	_, err := svc.GetCart(ctx, "user-1")
	assert.ErrorIs(t, err, apperrors.ErrRemoteFailure)
}

func TestGetCart_RequiresUser(t *testing.T) {
	svc := newTestService(new(mockCartRepository), new(mockLookup), new(mockPublisher))
	_, err := svc.GetCart(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- AddItem ---

func TestAddItem_UsesCatalogValues(t *testing.T) {
	repo := new(mockCartRepository)
	lookup := new(mockLookup)
	pub := new(mockPublisher)
	svc := newTestService(repo, lookup, pub)
	ctx := context.Background()

	stale := 999
	input := AddItemInput{ProductID: "P1", Name: "old", UnitPrice: 1, AvailableStock: &stale, Quantity: 1}

	lookup.On("Product", ctx, input.hint()).Return(domain.Product{ID: "P1", Name: "Lamp", UnitPrice: 100, AvailableStock: 2}, nil)
	repo.On("Get", ctx, "user-1").Return(nil, notFound("user-1"))
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 0).Return(true, nil).Run(advanceVersion)
	pub.On("PublishCartUpdated", ctx, mock.AnythingOfType("*domain.Cart")).Return(nil)

	res, err := svc.AddItem(ctx, "user-1", input)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.Cart.Version)
	require.Len(t, res.Cart.Lines, 1)
	assert.Equal(t, "Lamp", res.Cart.Lines[0].Name)
	assert.Equal(t, 2, res.Cart.Lines[0].AvailableStock)
	assert.Equal(t, int64(100), res.Cart.TotalPrice())
	assert.Equal(t, fixedNow, res.Cart.UpdatedAt)

	repo.AssertExpectations(t)
	lookup.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestAddItem_MergeClampsWithWarning(t *testing.T) {
	repo := new(mockCartRepository)
	lookup := new(mockLookup)
	pub := new(mockPublisher)
	svc := newTestService(repo, lookup, pub)
	ctx := context.Background()

	existing := cartWithLine("user-1", 1, 2)
	lookup.On("Product", ctx, mock.Anything).Return(domain.Product{ID: "P1", Name: "Lamp", UnitPrice: 100, AvailableStock: 2}, nil)
	repo.On("Get", ctx, "user-1").Return(existing, nil)
	repo.On("SaveIfVersion", ctx, mock.AnythingOfType("*domain.Cart"), 4).Return(true, nil).Run(advanceVersion)
	pub.On("PublishCartUpdated", ctx, mock.Anything).Return(nil)

	res, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "P1", Quantity: 5})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, domain.WarningStockExceeded, res.Warnings[0].Kind)
	assert.Equal(t, 2, res.Cart.Lines[0].Quantity)
	assert.Equal(t, int64(200), res.Cart.TotalPrice())
	assert.Equal(t, 5, res.Cart.Version)
	assert.Equal(t, 1, existing.Lines[0].Quantity, "loaded snapshot is never modified")
}

func TestAddItem_CatalogFailureCommitsNothing(t *testing.T) {
	repo := new(mockCartRepository)
	lookup := new(mockLookup)
	svc := newTestService(repo, lookup, new(mockPublisher))
	ctx := context.Background()

	lookup.On("Product", ctx, mock.Anything).Return(domain.Product{}, apperrors.RemoteFailure("catalog", errors.New("timeout")))

	_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "P1", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrRemoteFailure)
	repo.AssertNotCalled(t, "SaveIfVersion", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddItem_OutOfStock(t *testing.T) {
	repo := new(mockCartRepository)
	lookup := new(mockLookup)
	svc := newTestService(repo, lookup, new(mockPublisher))
	ctx := context.Background()

	lookup.On("Product", ctx, mock.Anything).Return(domain.Product{ID: "P1", UnitPrice: 100, AvailableStock: 0}, nil)
	repo.On("Get", ctx, "user-1").Return(nil, notFound("user-1"))

	_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "P1", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrOutOfStock)
	repo.AssertNotCalled(t, "SaveIfVersion", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddItem_InvalidInput(t *testing.T) {
	svc := newTestService(new(mockCartRepository), new(mockLookup), new(mockPublisher))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "user-1", AddItemInput{Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "P1", Quantity: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAddItem_SaveFailureIsRemoteFailure(t *testing.T) {
	repo := new(mockCartRepository)
	lookup := new(mockLookup)
	svc := newTestService(repo, lookup, new(mockPublisher))
	ctx := context.Background()

	existing := cartWithLine("user-1", 1, 10)
	lookup.On("Product", ctx, mock.Anything).Return(domain.Product{ID: "P1", UnitPrice: 100, AvailableStock: 10}, nil)
	repo.On("Get", ctx, "user-1").Return(existing, nil)
	repo.On("SaveIfVersion", ctx, mock.Anything, 4).Return(false, errors.New("connection reset"))

	_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "P1", Quantity: 3})
	assert.ErrorIs(t, err, apperrors.ErrRemoteFailure)
	assert.Equal(t, 1, existing.Lines[0].Quantity)
	assert.Equal(t, 4, existing.Version)
}

func TestAddItem_VersionConflict(t *testing.T) {
	repo := new(mockCartRepository)
	lookup := new(mockLookup)
	svc := newTestService(repo, lookup, new(mockPublisher))
	ctx := context.Background()

	lookup.On("Product", ctx, mock.Anything).Return(domain.Product{ID: "P1", UnitPrice: 100, AvailableStock: 10}, nil)
	repo.On("Get", ctx, "user-1").Return(cartWithLine("user-1", 1, 10), nil)
	repo.On("SaveIfVersion", ctx, mock.Anything, 4).Return(false, nil)

	_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "P1", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAddItem_PublishFailureDoesNotFail(t *testing.T) {
	repo := new(mockCartRepository)
	lookup := new(mockLookup)
	pub := new(mockPublisher)
	svc := newTestService(repo, lookup, pub)
	ctx := context.Background()

	lookup.On("Product", ctx, mock.Anything).Return(domain.Product{ID: "P1", UnitPrice: 100, AvailableStock: 10}, nil)
	repo.On("Get", ctx, "user-1").Return(nil, notFound("user-1"))
	repo.On("SaveIfVersion", ctx, mock.Anything, 0).Return(true, nil).Run(advanceVersion)
	pub.On("PublishCartUpdated", ctx, mock.Anything).Return(errors.New("kafka down"))

	res, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "P1", Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, res.Cart.Lines, 1)
}

// --- Quantity changes ---

func TestIncrementItem_WarnsAtCeiling(t *testing.T) {
	repo := new(mockCartRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, new(mockLookup), pub)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithLine("user-1", 2, 2), nil)
	repo.On("SaveIfVersion", ctx, mock.Anything, 4).Return(true, nil).Run(advanceVersion)
	pub.On("PublishCartUpdated", ctx, mock.Anything).Return(nil)

	res, err := svc.IncrementItem(ctx, "user-1", "P1")
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 2, res.Cart.Lines[0].Quantity)
}

func TestMutations_LockWaitEndsWithCaller(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestService(repo, new(mockLookup), new(mockPublisher))

	unlock, err := svc.locks.Lock(context.Background(), "user-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = svc.IncrementItem(ctx, "user-1", "P1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 503, apperrors.HTTPStatus(err))

	err = svc.ClearCart(ctx, "user-1", "manual")
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))

	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestSetQuantity(t *testing.T) {
	repo := new(mockCartRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, new(mockLookup), pub)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithLine("user-1", 1, 5), nil)
	repo.On("SaveIfVersion", ctx, mock.Anything, 4).Return(true, nil).Run(advanceVersion)
	pub.On("PublishCartUpdated", ctx, mock.Anything).Return(nil)

	res, err := svc.SetQuantity(ctx, "user-1", "P1", 4)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 4, res.Cart.Lines[0].Quantity)
	assert.Equal(t, int64(400), res.Cart.TotalPrice())
}

func TestSetQuantity_UnknownLine(t *testing.T) {
	repo := new(mockCartRepository)
	svc := newTestService(repo, new(mockLookup), new(mockPublisher))
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithLine("user-1", 1, 5), nil)

	_, err := svc.SetQuantity(ctx, "user-1", "nope", 2)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.AssertNotCalled(t, "SaveIfVersion", mock.Anything, mock.Anything, mock.Anything)
}

func TestDecrementItem_StopsAtOne(t *testing.T) {
	repo := new(mockCartRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, new(mockLookup), pub)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithLine("user-1", 1, 5), nil)
	repo.On("SaveIfVersion", ctx, mock.Anything, 4).Return(true, nil).Run(advanceVersion)
	pub.On("PublishCartUpdated", ctx, mock.Anything).Return(nil)

	res, err := svc.DecrementItem(ctx, "user-1", "P1")
	require.NoError(t, err)
	require.Len(t, res.Cart.Lines, 1)
	assert.Equal(t, 1, res.Cart.Lines[0].Quantity)
}

// --- Removal ---

func TestRemoveItem(t *testing.T) {
	repo := new(mockCartRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, new(mockLookup), pub)
	ctx := context.Background()

	repo.On("Get", ctx, "user-1").Return(cartWithLine("user-1", 2, 5), nil)
	repo.On("SaveIfVersion", ctx, mock.Anything, 4).Return(true, nil).Run(advanceVersion)
	pub.On("PublishCartUpdated", ctx, mock.Anything).Return(nil)

	res, err := svc.RemoveItem(ctx, "user-1", "P1")
	require.NoError(t, err)
	assert.Empty(t, res.Cart.Lines)
	assert.Zero(t, res.Cart.TotalPrice())
}

func TestRemoveItem_AbsentIsNoop(t *testing.T) {
	repo := new(mockCartRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, new(mockLookup), pub)
	ctx := context.Background()

	existing := cartWithLine("user-1", 2, 5)
	repo.On("Get", ctx, "user-1").Return(existing, nil)

	res, err := svc.RemoveItem(ctx, "user-1", "P9")
	require.NoError(t, err)
	assert.Same(t, existing, res.Cart)
	repo.AssertNotCalled(t, "SaveIfVersion", mock.Anything, mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "PublishCartUpdated", mock.Anything, mock.Anything)
}

// --- ClearCart ---

func TestClearCart(t *testing.T) {
	repo := new(mockCartRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, new(mockLookup), pub)
	ctx := context.Background()

	repo.On("Delete", ctx, "user-1").Return(nil)
	pub.On("PublishCartCleared", ctx, "user-1", ClearReasonManual).Return(nil)

	require.NoError(t, svc.ClearCart(ctx, "user-1", ClearReasonManual))
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestClearCart_StoreFailure(t *testing.T) {
	repo := new(mockCartRepository)
	pub := new(mockPublisher)
	svc := newTestService(repo, new(mockLookup), pub)
	ctx := context.Background()

	repo.On("Delete", ctx, "user-1").Return(errors.New("redis down"))

	err := svc.ClearCart(ctx, "user-1", ClearReasonManual)
	assert.ErrorIs(t, err, apperrors.ErrRemoteFailure)
	pub.AssertNotCalled(t, "PublishCartCleared", mock.Anything, mock.Anything, mock.Anything)
}

// --- Concurrency ---

// memRepo is a versioned in-memory repository.
type memRepo struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func (r *memRepo) Get(_ context.Context, userID string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[userID]
	if !ok {
		return nil, notFound(userID)
	}
	return c.Clone(), nil
}

func (r *memRepo) SaveIfVersion(_ context.Context, cart *domain.Cart, expected int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := 0
	if c, ok := r.carts[cart.UserID]; ok {
		stored = c.Version
	}
	if stored != expected {
		return false, nil
	}
	cart.Version = expected + 1
	r.carts[cart.UserID] = cart.Clone()
	return true, nil
}

func (r *memRepo) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) PublishCartUpdated(context.Context, *domain.Cart) error   { return nil }
func (nopPublisher) PublishCartCleared(context.Context, string, string) error { return nil }

func TestAddItem_ConcurrentAddsMergeIntoOneLine(t *testing.T) {
	repo := &memRepo{carts: map[string]*domain.Cart{}}
	svc := NewCartService(repo, nil, nopPublisher{}, newTestLogger(), Config{TTL: time.Hour})
	ctx := context.Background()

	const adds = 25
	var wg sync.WaitGroup
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, "user-1", AddItemInput{ProductID: "P1", UnitPrice: 10, Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := svc.GetCart(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, adds, cart.Lines[0].Quantity)
	assert.Equal(t, adds, cart.Version)
	assert.Equal(t, int64(adds*10), cart.TotalPrice())
}
