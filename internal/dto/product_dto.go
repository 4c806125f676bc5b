package dto

import "catalog/internal/models"

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// CreateProductDTO is the payload accepted when creating a product.
// Availability is not caller controlled.
type CreateProductDTO struct {
	Name  string  `json:"name" validate:"required,min=1,max=100"`
	Price float64 `json:"price" validate:"required,gt=0"`
}

// UpdateProductDTO is a partial update. ID may be present in a payload but
// is never applied; the id the request addresses wins.
type UpdateProductDTO struct {
	ID    *uint    `json:"id,omitempty" validate:"omitempty,gte=1"`
	Name  *string  `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Price *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
}

// PaginationDTO selects a page of the catalog.
type PaginationDTO struct {
	Page  int `json:"page" query:"page" validate:"gte=1"`
	Limit int `json:"limit" query:"limit" validate:"gte=1,lte=100"`
}

// WithDefaults fills unset values with DefaultPage and DefaultLimit.
func (p PaginationDTO) WithDefaults() PaginationDTO {
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	return p
}

// ValidateProductsDTO is the HTTP body of a bulk existence check.
type ValidateProductsDTO struct {
	IDs []uint `json:"ids" validate:"required,min=1,dive,gte=1"`
}

// ProductResponse wraps a single product.
type ProductResponse struct {
	Data *models.Product `json:"data"`
}

// PageMeta describes where a page sits in the catalog.
type PageMeta struct {
	Page     int   `json:"page"`
	Total    int64 `json:"total"`
	LastPage int   `json:"lastPage"`
}

// PaginatedProducts is one page of available products.
type PaginatedProducts struct {
	Data []models.Product `json:"data"`
	Meta PageMeta         `json:"meta"`
}
