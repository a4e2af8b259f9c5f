package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestUnavailable_Wraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable("insert order", cause)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert order")
}

func TestClassifyPostgres(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"connection failure", &pq.Error{Code: "08006"}, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"check violation", &pq.Error{Code: "23514"}, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"plain error", errors.New("syntax"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyPostgres("op", tt.err)
			assert.Equal(t, tt.transient, errors.Is(err, ErrUnavailable))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassifyPostgres_Nil(t *testing.T) {
	assert.NoError(t, ClassifyPostgres("op", nil))
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent("order-1", "Order", "OrderPlaced", map[string]string{"order_id": "order-1"})

	assert.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "order-1", event.AggregateID)
	assert.Equal(t, "Order", event.AggregateType)
	assert.Equal(t, "OrderPlaced", event.EventType)
	assert.JSONEq(t, `{"order_id":"order-1"}`, string(event.Data))
	assert.False(t, event.Timestamp.IsZero())
}
