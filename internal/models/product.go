package models

import (
	"strings"
	"time"
)

// Product is a catalog entry
type Product struct {
	ID          string    `db:"id" json:"_id"`
	Name        string    `db:"name" json:"name"`
	Price       float64   `db:"price" json:"price"`
	Category    string    `db:"category" json:"category"`
	Subcategory string    `db:"subcategory" json:"subcategory,omitempty"`
	Specs       string    `db:"specs" json:"specs"`
	ImageURL    string    `db:"image_url" json:"imageUrl"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// ProductDraft is the admin form for a new product
type ProductDraft struct {
	Name        string  `validate:"required"`
	Price       float64 `validate:"gte=0"`
	Category    string  `validate:"required"`
	Subcategory string
	Specs       string
}

// NewProduct creates a product with a fresh id
func NewProduct(draft ProductDraft, imageURL string) *Product {
	return &Product{
		ID:          GenerateID("prd"),
		Name:        draft.Name,
		Price:       draft.Price,
		Category:    draft.Category,
		Subcategory: draft.Subcategory,
		Specs:       draft.Specs,
		ImageURL:    imageURL,
		CreatedAt:   GetCurrentTime(),
	}
}

// Matches applies the storefront filter: the menu category AND the search
// query must each be a case-insensitive substring of the name, category or
// subcategory. An empty term, or the "All" category, matches everything.
func (p *Product) Matches(category, query string) bool {
	if strings.EqualFold(strings.TrimSpace(category), "All") {
		category = ""
	}
	return p.contains(category) && p.contains(query)
}

func (p *Product) contains(term string) bool {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "" {
		return true
	}

	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Category), term) ||
		strings.Contains(strings.ToLower(p.Subcategory), term)
}
