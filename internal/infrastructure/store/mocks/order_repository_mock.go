package mocks

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/example/ec-checkout/internal/domain/order"
)

// MockOrderRepository is an in-memory order.Repository for testing.
// Create is all-or-nothing and UpdateStatus honours its condition.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order.Order

	// For tracking calls in tests
	CreateCalls            []*order.Order
	UpdateStatusCalls      []order.StatusUpdate
	SetPaymentSessionCalls []SessionCall
	GetCalls               []string

	CreateErr            error
	GetErr               error
	UpdateStatusErr      error
	SetPaymentSessionErr error
	ListErr              error

	// CreateCallback runs before the write; a non-nil error aborts it
	CreateCallback func(ctx context.Context, o *order.Order) error
}

// SessionCall records parameters passed to SetPaymentSession
type SessionCall struct {
	OrderID   string
	SessionID string
}

// NewMockOrderRepository creates a new MockOrderRepository
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*order.Order)}
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, cloneOrder(o))

	if m.CreateCallback != nil {
		if err := m.CreateCallback(ctx, o); err != nil {
			return err
		}
	}
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if existing, ok := m.orders[o.ID]; ok {
		if existing.SameRecord(o) {
			return nil
		}
		return order.ErrOrderExists
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MockOrderRepository) Get(ctx context.Context, orderID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls = append(m.GetCalls, orderID)
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, u order.StatusUpdate) (order.Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateStatusCalls = append(m.UpdateStatusCalls, u)
	if m.UpdateStatusErr != nil {
		return "", false, m.UpdateStatusErr
	}
	o, ok := m.orders[u.OrderID]
	if !ok || !slices.Contains(u.From, o.Status) {
		return "", false, nil
	}
	prev := o.Status
	o.Status = u.To
	if u.PaymentRef != "" {
		o.PaymentRef = u.PaymentRef
	}
	o.UpdatedAt = u.At
	return prev, true, nil
}

func (m *MockOrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetPaymentSessionCalls = append(m.SetPaymentSessionCalls, SessionCall{OrderID: orderID, SessionID: sessionID})
	if m.SetPaymentSessionErr != nil {
		return m.SetPaymentSessionErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.PaymentSessionID = sessionID
	return nil
}

func (m *MockOrderRepository) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var result []*order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			result = append(result, cloneOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Put seeds an order directly for testing
func (m *MockOrderRepository) Put(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
}

// Order returns the stored order, or nil
func (m *MockOrderRepository) Order(orderID string) *order.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil
	}
	return cloneOrder(o)
}

// Count returns the number of stored orders
func (m *MockOrderRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Lines = slices.Clone(o.Lines)
	return &c
}
