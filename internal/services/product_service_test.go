package services_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"catalog/internal/dto"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"
	"catalog/pkg/rpc"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// MockProductRepository is a mock implementation of repositories.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) CountAvailable(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProductRepository) ListAvailable(ctx context.Context, offset, limit int) ([]models.Product, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) FindAvailableByID(ctx context.Context, id uint) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) Update(ctx context.Context, id uint, fields map[string]any) (*models.Product, error) {
	args := m.Called(ctx, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func newService(repo repositories.ProductRepository) *services.ProductService {
	return services.NewProductService(
		repo,
		tracenoop.NewTracerProvider().Tracer("test"),
		metricnoop.NewMeterProvider().Meter("test"),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func ptr[T any](v T) *T { return &v }

func requireRPCError(t *testing.T, err error, kind error, message string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)

	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusBadRequest, rpcErr.Status)
	assert.Equal(t, message, rpcErr.Message)
}

func TestProductService_Create(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newService(mockRepo)

	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(p *models.Product) bool {
		return p.Name == "Laptop" && p.Available && p.Price.Equal(decimal.RequireFromString("1200.5"))
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Product).ID = 1
	}).Return(nil).Once()

	product, err := service.Create(context.Background(), dto.CreateProductDTO{Name: "Laptop", Price: 1200.5})
	assert.NoError(t, err)
	assert.Equal(t, uint(1), product.ID)
	assert.True(t, product.Available)
	mockRepo.AssertExpectations(t)

	// Store failures pass through untouched
	storeErr := errors.New("duplicate key value violates unique constraint")
	mockRepo.On("Create", mock.Anything, mock.Anything).Return(storeErr).Once()
	product, err = service.Create(context.Background(), dto.CreateProductDTO{Name: "Laptop", Price: 1})
	assert.Nil(t, product)
	assert.Same(t, storeErr, err)
	mockRepo.AssertExpectations(t)
}

func TestProductService_FindAll(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newService(mockRepo)

	page := []models.Product{{ID: 4, Name: "D", Available: true}, {ID: 5, Name: "E", Available: true}}
	mockRepo.On("CountAvailable", mock.Anything).Return(int64(7), nil).Once()
	mockRepo.On("ListAvailable", mock.Anything, 3, 3).Return(page, nil).Once()

	res, err := service.FindAll(context.Background(), dto.PaginationDTO{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, page, res.Data)
	assert.Equal(t, dto.PageMeta{Page: 2, Total: 7, LastPage: 3}, res.Meta)
	mockRepo.AssertExpectations(t)

	// Count failures pass through untouched
	storeErr := errors.New("connection reset")
	mockRepo.On("CountAvailable", mock.Anything).Return(int64(0), storeErr).Once()
	res, err = service.FindAll(context.Background(), dto.PaginationDTO{Page: 1, Limit: 10})
	assert.Nil(t, res)
	assert.Same(t, storeErr, err)
	mockRepo.AssertExpectations(t)
}

func TestProductService_FindOne(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newService(mockRepo)

	expected := &models.Product{ID: 1, Name: "Laptop", Available: true}
	mockRepo.On("FindAvailableByID", mock.Anything, uint(1)).Return(expected, nil).Once()
	res, err := service.FindOne(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, expected, res.Data)

	mockRepo.On("FindAvailableByID", mock.Anything, uint(99)).Return(nil, repositories.ErrProductNotFound).Once()
	res, err = service.FindOne(context.Background(), 99)
	assert.Nil(t, res)
	requireRPCError(t, err, services.ErrProductNotFound, "Product with id # 99 not found")
	mockRepo.AssertExpectations(t)
}

func TestProductService_UpdateStripsPayloadID(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newService(mockRepo)

	expectedFields := map[string]any{"name": "Keyboard Pro", "price": decimal.NewFromFloat(80).Round(2)}
	updated := &models.Product{ID: 2, Name: "Keyboard Pro", Price: decimal.NewFromFloat(80), Available: true}
	mockRepo.On("Update", mock.Anything, uint(2), expectedFields).Return(updated, nil).Once()

	res, err := service.Update(context.Background(), 2, dto.UpdateProductDTO{
		ID:    ptr(uint(77)),
		Name:  ptr("Keyboard Pro"),
		Price: ptr(80.0),
	})
	require.NoError(t, err)
	assert.Equal(t, updated, res.Data)
	mockRepo.AssertExpectations(t)
}

func TestProductService_UpdateRemapsEveryFailure(t *testing.T) {
	testCases := []struct {
		name     string
		storeErr error
	}{
		{"missing row", repositories.ErrProductNotFound},
		{"store failure", errors.New("deadlock detected")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := new(MockProductRepository)
			service := newService(mockRepo)

			mockRepo.On("Update", mock.Anything, uint(3), mock.Anything).Return(nil, tc.storeErr).Once()
			res, err := service.Update(context.Background(), 3, dto.UpdateProductDTO{Name: ptr("X")})
			assert.Nil(t, res)
			requireRPCError(t, err, services.ErrProductNotFound, "Product not found")
			assert.NotErrorIs(t, err, tc.storeErr)

			mockRepo.On("Update", mock.Anything, uint(3), map[string]any{"available": false}).Return(nil, tc.storeErr).Once()
			removed, err := service.Remove(context.Background(), 3)
			assert.Nil(t, removed)
			requireRPCError(t, err, services.ErrProductNotFound, "Product not found")
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestProductService_ValidateProductsDeduplicates(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newService(mockRepo)

	found := []models.Product{{ID: 1}, {ID: 2}}
	mockRepo.On("FindByIDs", mock.Anything, []uint{1, 2}).Return(found, nil).Once()

	products, err := service.ValidateProducts(context.Background(), []uint{1, 1, 2})
	require.NoError(t, err)
	assert.Len(t, products, 2)

	mockRepo.On("FindByIDs", mock.Anything, []uint{1, 9}).Return([]models.Product{{ID: 1}}, nil).Once()
	products, err = service.ValidateProducts(context.Background(), []uint{1, 9})
	assert.Nil(t, products)
	requireRPCError(t, err, services.ErrProductsNotFound, "Some products were not found")
	mockRepo.AssertExpectations(t)
}

func TestProductService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	service := newService(repositories.NewMemoryProductRepository())

	a, err := service.Create(ctx, dto.CreateProductDTO{Name: "A", Price: 10})
	require.NoError(t, err)
	assert.Equal(t, uint(1), a.ID)
	assert.True(t, a.Available)

	b, err := service.Create(ctx, dto.CreateProductDTO{Name: "B", Price: 20})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	page, err := service.FindAll(ctx, dto.PaginationDTO{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, dto.PageMeta{Page: 1, Total: 2, LastPage: 1}, page.Meta)

	removed, err := service.Remove(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, removed.Available)

	// Removed products disappear from reads
	_, err = service.FindOne(ctx, a.ID)
	requireRPCError(t, err, services.ErrProductNotFound, "Product with id # 1 not found")

	page, err = service.FindAll(ctx, dto.PaginationDTO{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []models.Product{*mustFind(t, service, b.ID)}, page.Data)
	assert.Equal(t, int64(1), page.Meta.Total)

	// but can still be updated and validated
	updated, err := service.Update(ctx, a.ID, dto.UpdateProductDTO{Name: ptr("A2")})
	require.NoError(t, err)
	assert.Equal(t, "A2", updated.Data.Name)
	assert.False(t, updated.Data.Available)

	products, err := service.ValidateProducts(ctx, []uint{a.ID, b.ID, b.ID})
	require.NoError(t, err)
	assert.Len(t, products, 2)

	_, err = service.ValidateProducts(ctx, []uint{a.ID, 42})
	requireRPCError(t, err, services.ErrProductsNotFound, "Some products were not found")
}

func TestProductService_PageBeyondLastPage(t *testing.T) {
	ctx := context.Background()
	service := newService(repositories.NewMemoryProductRepository())

	for _, name := range []string{"A", "B", "C", "D", "E"} {
		_, err := service.Create(ctx, dto.CreateProductDTO{Name: name, Price: 1})
		require.NoError(t, err)
	}

	testCases := []struct {
		page, limit  int
		expectedLen  int
		expectedLast int
	}{
		{1, 2, 2, 3},
		{3, 2, 1, 3},
		{4, 2, 0, 3},
		{1, 5, 5, 1},
		{2, 5, 0, 1},
		{10, 1, 0, 5},
	}

	for _, tc := range testCases {
		page, err := service.FindAll(ctx, dto.PaginationDTO{Page: tc.page, Limit: tc.limit})
		require.NoError(t, err)
		assert.Len(t, page.Data, tc.expectedLen, "page=%d limit=%d", tc.page, tc.limit)
		assert.NotNil(t, page.Data)
		assert.Equal(t, int64(5), page.Meta.Total)
		assert.Equal(t, tc.expectedLast, page.Meta.LastPage)
	}
}

func mustFind(t *testing.T, service *services.ProductService, id uint) *models.Product {
	t.Helper()
	res, err := service.FindOne(context.Background(), id)
	require.NoError(t, err)
	return res.Data
}

func TestProductService_RoundsPriceToStoredScale(t *testing.T) {
	ctx := context.Background()
	service := newService(repositories.NewMemoryProductRepository())

	created, err := service.Create(ctx, dto.CreateProductDTO{Name: "Pen", Price: 1.999})
	require.NoError(t, err)
	assert.True(t, created.Price.Equal(decimal.RequireFromString("2")), "got %s", created.Price)

	updated, err := service.Update(ctx, created.ID, dto.UpdateProductDTO{Price: ptr(3.14159)})
	require.NoError(t, err)
	assert.True(t, updated.Data.Price.Equal(decimal.RequireFromString("3.14")), "got %s", updated.Data.Price)
}

// failingMeter rejects every counter it is asked for.
type failingMeter struct {
	metricnoop.Meter
}

func (failingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return nil, errors.New("instrument name rejected")
}

func TestProductService_SurvivesRejectedInstruments(t *testing.T) {
	var logs bytes.Buffer
	service := services.NewProductService(
		repositories.NewMemoryProductRepository(),
		tracenoop.NewTracerProvider().Tracer("test"),
		failingMeter{},
		slog.New(slog.NewTextHandler(&logs, nil)),
	)

	assert.Contains(t, logs.String(), "products.created.total")
	assert.Contains(t, logs.String(), "products.operations")

	product, err := service.Create(context.Background(), dto.CreateProductDTO{Name: "Mug", Price: 8})
	require.NoError(t, err)
	assert.Equal(t, uint(1), product.ID)
}
