package repositories

import (
	"context"
	"errors"

	"catalog/internal/models"
)

// ErrProductNotFound is returned when no row matches the requested id.
var ErrProductNotFound = errors.New("product not found")

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	CountAvailable(ctx context.Context) (int64, error)
	ListAvailable(ctx context.Context, offset, limit int) ([]models.Product, error)
	FindAvailableByID(ctx context.Context, id uint) (*models.Product, error)
	// Update applies fields to the row with the given id regardless of its
	// availability and returns the stored result.
	Update(ctx context.Context, id uint, fields map[string]any) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.Product, error)
}
