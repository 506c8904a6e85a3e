package products

import "time"

// Product statuses.
const (
	StatusActive   = "active"
	StatusDraft    = "draft"
	StatusArchived = "archived"
)

// Product represents a catalog item managed from the dashboard.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SKU         string    `json:"sku"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	Images      []string  `json:"images"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProductInput is the writable part of a product.
type ProductInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	SKU         string   `json:"sku" validate:"required,max=64"`
	Price       float64  `json:"price" validate:"gte=0"`
	Stock       int      `json:"stock" validate:"gte=0"`
	Category    string   `json:"category" validate:"max=100"`
	Status      string   `json:"status" validate:"omitempty,oneof=active draft archived"`
	Images      []string `json:"images" validate:"max=20,dive,url"`
}

// ListFilters narrows a product listing.
type ListFilters struct {
	Category string
	Status   string
	Search   string
	Page     int
	PerPage  int
}
