package product

import (
	"context"
	"errors"
	"time"

	"github.com/example/ec-checkout/internal/money"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductInactive = errors.New("product is not available")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidName     = errors.New("name is required")
)

// Variant is a purchasable option of a product (size, pack count, ...)
// whose price replaces the product's base price when selected.
type Variant struct {
	ID        string       `json:"id"`
	ProductID string       `json:"product_id"`
	Label     string       `json:"label"`
	Price     money.Amount `json:"price"`
}

type Product struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       money.Amount `json:"price"`
	Category    string       `json:"category"`
	Active      bool         `json:"active"`
	Variants    []Variant    `json:"variants,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Catalog is the read side of the product store
type Catalog interface {
	ListActiveProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
}

// Validate checks the invariants a catalog row must satisfy
func (p *Product) Validate() error {
	if p.Name == "" {
		return ErrInvalidName
	}
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	for _, v := range p.Variants {
		if v.Price.IsNegative() {
			return ErrInvalidPrice
		}
	}
	return nil
}

// FindVariant returns the variant with the given label, if any
func (p *Product) FindVariant(label string) (Variant, bool) {
	if label == "" {
		return Variant{}, false
	}
	for _, v := range p.Variants {
		if v.Label == label {
			return v, true
		}
	}
	return Variant{}, false
}

// UnitPrice resolves the price for a selection: the variant price when the label
// names a known variant, else the base price.
func (p *Product) UnitPrice(variantLabel string) money.Amount {
	if v, ok := p.FindVariant(variantLabel); ok {
		return v.Price
	}
	return p.Price
}
