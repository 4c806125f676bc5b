package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"catalog/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryProductRepository is an in-memory implementation of ProductRepository.
type MemoryProductRepository struct {
	products map[uint]models.Product
	nextID   uint
	mu       sync.RWMutex
}

// NewMemoryProductRepository creates a new instance of MemoryProductRepository.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{
		products: make(map[uint]models.Product),
		nextID:   1,
	}
}

// Create adds a new product and assigns it the next ID.
func (r *MemoryProductRepository) Create(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	product.ID = r.nextID
	product.CreatedAt = now
	product.UpdatedAt = now
	r.nextID++
	r.products[product.ID] = *product
	return nil
}

// CountAvailable counts the products that have not been removed.
func (r *MemoryProductRepository) CountAvailable(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, p := range r.products {
		if p.Available {
			total++
		}
	}
	return total, nil
}

// ListAvailable returns one window of available products ordered by id.
func (r *MemoryProductRepository) ListAvailable(_ context.Context, offset, limit int) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if p.Available {
			available = append(available, p)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i].ID < available[j].ID })

	if offset >= len(available) {
		return []models.Product{}, nil
	}
	end := offset + limit
	if end > len(available) {
		end = len(available)
	}
	return available[offset:end], nil
}

// FindAvailableByID returns a product by its ID if it is still available.
func (r *MemoryProductRepository) FindAvailableByID(_ context.Context, id uint) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok || !product.Available {
		return nil, ErrProductNotFound
	}
	return &product, nil
}

// Update modifies an existing product.
func (r *MemoryProductRepository) Update(_ context.Context, id uint, fields map[string]any) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	for column, value := range fields {
		if err := applyField(&product, column, value); err != nil {
			return nil, err
		}
	}
	if len(fields) > 0 {
		product.UpdatedAt = time.Now()
	}
	r.products[id] = product
	return &product, nil
}

// FindByIDs returns every product whose ID is in ids, available or not.
func (r *MemoryProductRepository) FindByIDs(_ context.Context, ids []uint) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uint]struct{}, len(ids))
	found := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.products[id]; ok {
			found = append(found, p)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func applyField(p *models.Product, column string, value any) error {
	switch column {
	case "name":
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("invalid value %v for column name", value)
		}
		p.Name = v
	case "price":
		v, ok := value.(decimal.Decimal)
		if !ok {
			return fmt.Errorf("invalid value %v for column price", value)
		}
		p.Price = v
	case "available":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("invalid value %v for column available", value)
		}
		p.Available = v
	default:
		return fmt.Errorf("unknown column %q", column)
	}
	return nil
}
