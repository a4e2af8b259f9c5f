package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/payment/mocks"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerGateway_PassesThrough(t *testing.T) {
	next := mocks.NewMockGateway()
	gw := payment.NewBreakerGateway(next, 3, time.Minute)

	s, err := gw.CreateSession(context.Background(), payment.SessionRequest{OrderID: "order-1"})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, gobreaker.StateClosed, gw.State())
}

func TestBreakerGateway_OpensAfterConsecutiveUnavailable(t *testing.T) {
	next := mocks.NewMockGateway()
	next.Err = payment.ErrGatewayUnavailable
	gw := payment.NewBreakerGateway(next, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := gw.CreateSession(ctx, payment.SessionRequest{OrderID: "order-1"})
		assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, gw.State())

	_, err := gw.CreateSession(ctx, payment.SessionRequest{OrderID: "order-1"})

	assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, next.Calls())
}

func TestBreakerGateway_RejectionsDoNotTrip(t *testing.T) {
	next := mocks.NewMockGateway()
	next.Err = errors.Join(payment.ErrGatewayRejected, errors.New("bad currency"))
	gw := payment.NewBreakerGateway(next, 2, time.Minute)

	for i := 0; i < 5; i++ {
		_, err := gw.CreateSession(context.Background(), payment.SessionRequest{OrderID: "order-1"})
		assert.ErrorIs(t, err, payment.ErrGatewayRejected)
	}

	assert.Equal(t, gobreaker.StateClosed, gw.State())
	assert.Equal(t, 5, next.Calls())
}
