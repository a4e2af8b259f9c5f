package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/ec-checkout/internal/payment"
)

// MockGateway is a payment.Gateway for testing
type MockGateway struct {
	mu sync.Mutex

	CreateSessionCalls []payment.SessionRequest
	// Errs are returned in order by successive calls before Err applies
	Errs []error
	Err  error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateSessionCalls = append(m.CreateSessionCalls, req)
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		if err != nil {
			return nil, err
		}
	} else if m.Err != nil {
		return nil, m.Err
	}

	n := len(m.CreateSessionCalls)
	return &payment.Session{
		ID:  fmt.Sprintf("cs_test_%d", n),
		URL: fmt.Sprintf("https://checkout.example.test/pay/cs_test_%d", n),
	}, nil
}

// Calls returns the number of CreateSession calls
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CreateSessionCalls)
}
