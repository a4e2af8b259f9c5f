package order

import (
	"time"

	"github.com/example/ec-checkout/internal/money"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderPlaced struct {
	OrderID  string       `json:"order_id"`
	UserID   string       `json:"user_id"`
	Lines    []Line       `json:"lines"`
	Total    money.Amount `json:"total"`
	Currency string       `json:"currency"`
	PlacedAt time.Time    `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	PaymentRef string    `json:"payment_ref,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}
