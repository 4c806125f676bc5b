package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"catalog/internal/dto"
	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/pkg/rpc"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// priceScale matches the decimal(10,2) price column.
const priceScale = 2

var (
	// ErrProductNotFound marks lookups and updates that matched no usable row.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductsNotFound marks a bulk check where at least one id has no row.
	ErrProductsNotFound = errors.New("some products were not found")
)

// ProductService handles business logic related to products. It is the only
// path to the product store; callers never see the repository.
type ProductService struct {
	repo           repositories.ProductRepository
	tracer         trace.Tracer
	logger         *slog.Logger
	createdCounter metric.Int64Counter
	operations     metric.Int64Counter
}

// NewProductService creates a new ProductService.
func NewProductService(
	repo repositories.ProductRepository,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *ProductService {
	createdCounter := int64Counter(meter, logger, "products.created.total", "Total number of products created")
	operations := int64Counter(meter, logger, "products.operations", "Total number of product operations")

	return &ProductService{
		repo:           repo,
		tracer:         tracer,
		logger:         logger,
		createdCounter: createdCounter,
		operations:     operations,
	}
}

// Create stores a new available product. Store failures are returned as is.
func (s *ProductService) Create(ctx context.Context, in dto.CreateProductDTO) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer span.End()

	product := &models.Product{
		Name:      in.Name,
		Price:     decimal.NewFromFloat(in.Price).Round(priceScale),
		Available: true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		s.finish(ctx, span, "create", err)
		return nil, err
	}

	s.createdCounter.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("product.id", int64(product.ID)))
	s.finish(ctx, span, "create", nil)
	return product, nil
}

// FindAll returns one page of available products with its position in the
// catalog. A page past the last one is empty rather than an error.
func (s *ProductService) FindAll(ctx context.Context, page dto.PaginationDTO) (*dto.PaginatedProducts, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.FindAll")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page.Page), attribute.Int("limit", page.Limit))

	total, err := s.repo.CountAvailable(ctx)
	if err != nil {
		s.finish(ctx, span, "list", err)
		return nil, err
	}

	products, err := s.repo.ListAvailable(ctx, (page.Page-1)*page.Limit, page.Limit)
	if err != nil {
		s.finish(ctx, span, "list", err)
		return nil, err
	}

	s.finish(ctx, span, "list", nil)
	return &dto.PaginatedProducts{
		Data: products,
		Meta: dto.PageMeta{
			Page:     page.Page,
			Total:    total,
			LastPage: lastPage(total, page.Limit),
		},
	}, nil
}

// FindOne returns an available product. Removed products are not found.
func (s *ProductService) FindOne(ctx context.Context, id uint) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.FindOne")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", int64(id)))

	product, err := s.repo.FindAvailableByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			err = rpc.NewError(ErrProductNotFound, http.StatusBadRequest, fmt.Sprintf("Product with id # %d not found", id))
		}
		s.finish(ctx, span, "read", err)
		return nil, err
	}

	s.finish(ctx, span, "read", nil)
	return &dto.ProductResponse{Data: product}, nil
}

// Update applies a partial update to the product with the given id. Any id
// carried in the payload is ignored. Availability is not checked.
func (s *ProductService) Update(ctx context.Context, id uint, in dto.UpdateProductDTO) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Update")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", int64(id)))

	product, err := s.apply(ctx, id, updateFields(in)).orNotFound()
	s.finish(ctx, span, "update", err)
	if err != nil {
		return nil, err
	}
	return &dto.ProductResponse{Data: product}, nil
}

// Remove soft-deletes a product by marking it unavailable and returns the
// updated record.
func (s *ProductService) Remove(ctx context.Context, id uint) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Remove")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", int64(id)))

	product, err := s.apply(ctx, id, map[string]any{"available": false}).orNotFound()
	s.finish(ctx, span, "remove", err)
	return product, err
}

// ValidateProducts checks that every distinct id has a stored row, removed
// or not, and returns the matched rows.
func (s *ProductService) ValidateProducts(ctx context.Context, ids []uint) ([]models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.ValidateProducts")
	defer span.End()

	unique := dedupe(ids)
	span.SetAttributes(attribute.Int("product.ids", len(unique)))

	products, err := s.repo.FindByIDs(ctx, unique)
	if err != nil {
		s.finish(ctx, span, "validate", err)
		return nil, err
	}

	if len(products) != len(unique) {
		err := rpc.NewError(ErrProductsNotFound, http.StatusBadRequest, "Some products were not found")
		s.finish(ctx, span, "validate", err)
		return nil, err
	}

	s.finish(ctx, span, "validate", nil)
	return products, nil
}

// updateResult is the outcome of a single store update.
type updateResult struct {
	product *models.Product
	err     error
}

func (s *ProductService) apply(ctx context.Context, id uint, fields map[string]any) updateResult {
	product, err := s.repo.Update(ctx, id, fields)
	return updateResult{product: product, err: err}
}

// orNotFound collapses every failure into the same not-found error; the
// store cause is dropped.
func (r updateResult) orNotFound() (*models.Product, error) {
	if r.err != nil {
		return nil, rpc.NewError(ErrProductNotFound, http.StatusBadRequest, "Product not found")
	}
	return r.product, nil
}

func (s *ProductService) finish(ctx context.Context, span trace.Span, operation string, err error) {
	result := "success"
	switch {
	case errors.Is(err, ErrProductNotFound):
		result = "not_found"
	case errors.Is(err, ErrProductsNotFound):
		result = "mismatch"
	case err != nil:
		result = "failure"
	}

	s.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))

	if err == nil {
		span.SetStatus(codes.Ok, "")
		s.logger.DebugContext(ctx, "Product operation completed", slog.String("operation", operation))
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	if result == "failure" {
		s.logger.ErrorContext(ctx, "Product operation failed",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "Product operation rejected",
		slog.String("operation", operation),
		slog.String("result", result),
	)
}

// int64Counter creates a counter, falling back to a noop one when the meter
// rejects the instrument.
func int64Counter(meter metric.Meter, logger *slog.Logger, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Warn("Failed to create metric instrument",
			slog.String("instrument", name),
			slog.String("error", err.Error()),
		)
		return metricnoop.Int64Counter{}
	}
	return counter
}

func updateFields(in dto.UpdateProductDTO) map[string]any {
	fields := make(map[string]any, 2)
	if in.Name != nil {
		fields["name"] = *in.Name
	}
	if in.Price != nil {
		fields["price"] = decimal.NewFromFloat(*in.Price).Round(priceScale)
	}
	return fields
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

func lastPage(total int64, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}
