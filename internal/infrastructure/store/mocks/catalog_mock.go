package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ec-checkout/internal/domain/product"
)

// MockCatalog is an in-memory product.Catalog for testing
type MockCatalog struct {
	mu       sync.RWMutex
	products map[string]product.Product

	Err error
}

func NewMockCatalog(products ...product.Product) *MockCatalog {
	m := &MockCatalog{products: make(map[string]product.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *MockCatalog) ListActiveProducts(ctx context.Context) ([]product.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	var result []product.Product
	for _, p := range m.products {
		if p.Active {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MockCatalog) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	return &p, nil
}
