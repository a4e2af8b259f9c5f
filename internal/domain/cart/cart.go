package cart

import (
	"errors"

	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/money"
	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a single line may hold
const MaxQuantity = 999

var (
	ErrInvalidQuantity = errors.New("quantity must be between 0 and 999")
	ErrInvalidProduct  = errors.New("product_id is required")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Line is one distinct product + variant selection held in the cart.
// UnitPrice is the price captured when the selection was first added.
type Line struct {
	ProductID    string       `json:"product_id"`
	ProductName  string       `json:"name"`
	VariantLabel string       `json:"variant,omitempty"`
	VariantID    string       `json:"variant_id,omitempty"`
	Quantity     int          `json:"quantity"`
	UnitPrice    money.Amount `json:"price"`
}

// Subtotal is UnitPrice × Quantity
func (l Line) Subtotal() money.Amount {
	return l.UnitPrice.Times(l.Quantity)
}

type key struct {
	productID    string
	variantLabel string
}

func (l Line) key() key {
	return key{productID: l.ProductID, variantLabel: l.VariantLabel}
}

// Store is the per-session shopping cart. It is not safe for concurrent use;
// a cart belongs to a single browsing session.
type Store struct {
	lines []Line
}

func New() *Store {
	return &Store{}
}

// FromLines rebuilds a cart from client-supplied lines. Lines sharing a key are
// merged: quantities add up and the first captured price is kept.
func FromLines(lines []Line) (*Store, error) {
	s := New()
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, ErrInvalidProduct
		}
		if l.Quantity < 1 || l.Quantity > MaxQuantity {
			return nil, ErrInvalidQuantity
		}
		if l.UnitPrice.IsNegative() {
			return nil, product.ErrInvalidPrice
		}
		if i := s.indexOf(l.key()); i >= 0 {
			if s.lines[i].Quantity+l.Quantity > MaxQuantity {
				return nil, ErrInvalidQuantity
			}
			s.lines[i].Quantity += l.Quantity
			continue
		}
		s.lines = append(s.lines, l)
	}
	return s, nil
}

func (s *Store) indexOf(k key) int {
	for i, l := range s.lines {
		if l.key() == k {
			return i
		}
	}
	return -1
}

// AddItem adds one unit of the product (and optional variant) to the cart.
// A repeat add of the same selection increments its quantity, up to
// MaxQuantity.
func (s *Store) AddItem(p product.Product, variantLabel string) Line {
	k := key{productID: p.ID, variantLabel: variantLabel}
	if i := s.indexOf(k); i >= 0 {
		if s.lines[i].Quantity < MaxQuantity {
			s.lines[i].Quantity++
		}
		return s.lines[i]
	}

	line := Line{
		ProductID:    p.ID,
		ProductName:  p.Name,
		VariantLabel: variantLabel,
		Quantity:     1,
		UnitPrice:    p.UnitPrice(variantLabel),
	}
	if v, ok := p.FindVariant(variantLabel); ok {
		line.VariantID = v.ID
		line.ProductName = p.Name + " (" + v.Label + ")"
	}
	s.lines = append(s.lines, line)
	return line
}

// SetQuantity overwrites a line's quantity; zero removes the line.
func (s *Store) SetQuantity(productID, variantLabel string, quantity int) error {
	if quantity < 0 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	i := s.indexOf(key{productID: productID, variantLabel: variantLabel})
	if i < 0 {
		return ErrLineNotFound
	}
	if quantity == 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		return nil
	}
	s.lines[i].Quantity = quantity
	return nil
}

func (s *Store) Remove(productID, variantLabel string) {
	_ = s.SetQuantity(productID, variantLabel, 0)
}

func (s *Store) Clear() {
	s.lines = nil
}

// Lines returns a copy of the cart lines in insertion order
func (s *Store) Lines() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) IsEmpty() bool {
	return len(s.lines) == 0
}

func (s *Store) TotalItems() int {
	var n int
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// TotalAmount sums the line subtotals in minor units
func (s *Store) TotalAmount() money.Amount {
	var total money.Amount
	for _, l := range s.lines {
		total += l.Subtotal()
	}
	return total
}

// TotalPrice is TotalAmount as a decimal
func (s *Store) TotalPrice() decimal.Decimal {
	return s.TotalAmount().Decimal()
}
