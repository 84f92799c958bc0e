package models

import "time"

// Product is a catalog entry with per-user unique SKU.
type Product struct {
	ID                string    `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"-"`
	SKU               string    `db:"sku" json:"sku"`
	Name              string    `db:"name" json:"name"`
	Description       *string   `db:"description" json:"description,omitempty"`
	Category          *string   `db:"category" json:"category,omitempty"`
	UnitPrice         float64   `db:"unit_price" json:"unit_price"`
	TaxRate           float64   `db:"tax_rate" json:"tax_rate"`
	Currency          string    `db:"currency" json:"currency"`
	QuantityAvailable int       `db:"quantity_available" json:"quantity_available"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ProductFilter captures list criteria for the catalog.
type ProductFilter struct {
	Search   string
	Category string
	Active   *bool
	Page     int
	PageSize int
}
