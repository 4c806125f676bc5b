package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog.
// A product is only visible to readers while Available is true; removing a
// product flips the flag instead of deleting the row.
type Product struct {
	ID        uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string          `json:"name" gorm:"type:varchar(100);not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Available bool            `json:"available" gorm:"not null;default:true;index"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Prices are JSON numbers on the wire, matching the numeric price callers
// send in create and update payloads.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

func (p *Product) TableName() string {
	return "products"
}
