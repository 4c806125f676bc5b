package repositories

import (
	"context"
	"errors"
	"fmt"

	"catalog/internal/models"

	"gorm.io/gorm"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// Create inserts a new product and fills in its generated ID.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// CountAvailable counts the products that have not been removed.
func (r *GORMProductRepository) CountAvailable(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("available = ?", true).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return total, nil
}

// ListAvailable returns one window of available products ordered by id.
func (r *GORMProductRepository) ListAvailable(ctx context.Context, offset, limit int) ([]models.Product, error) {
	products := make([]models.Product, 0, limit)
	err := r.db.WithContext(ctx).
		Where("available = ?", true).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// FindAvailableByID retrieves a single available product by its ID.
func (r *GORMProductRepository) FindAvailableByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ? AND available = ?", id, true).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product by ID %d: %w", id, err)
	}
	return &product, nil
}

// Update applies fields to the product with the given ID inside a single
// transaction and returns the reloaded row.
func (r *GORMProductRepository) Update(ctx context.Context, id uint, fields map[string]any) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		if err := tx.Model(&product).Updates(fields).Error; err != nil {
			return err
		}
		return tx.First(&product, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product %d: %w", id, err)
	}
	return &product, nil
}

// FindByIDs returns every product whose ID is in ids, available or not.
func (r *GORMProductRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Product, error) {
	products := make([]models.Product, 0, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to find products by IDs: %w", err)
	}
	return products, nil
}
