package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerGateway stops calling a failing processor for a cool-down period.
// Only ErrGatewayUnavailable failures count against the breaker.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[*Session]
}

func NewBreakerGateway(next Gateway, failureThreshold uint32, openTimeout time.Duration) *BreakerGateway {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	cb := gobreaker.NewCircuitBreaker[*Session](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrGatewayUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Payment] Circuit %s: %s -> %s", name, from, to)
		},
	})
	return &BreakerGateway{next: next, cb: cb}
}

func (b *BreakerGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	s, err := b.cb.Execute(func() (*Session, error) {
		return b.next.CreateSession(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	return s, err
}

// State reports the breaker state for health checks
func (b *BreakerGateway) State() gobreaker.State {
	return b.cb.State()
}
