package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/user"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/infrastructure/store"
)

type Mailer interface {
	SendPaymentConfirmation(to string, receipt email.Receipt) error
}

type OrderFinder interface {
	FindOrder(ctx context.Context, orderID string) (*order.Order, error)
}

type UserFinder interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Handler turns order lifecycle events into shopper emails
type Handler struct {
	mailer Mailer
	orders OrderFinder
	users  UserFinder
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, orders OrderFinder, users UserFinder) *Handler {
	return &Handler{
		mailer: mailer,
		orders: orders,
		users:  users,
	}
}

// HandleEvent processes an event from Kafka. Returned errors are transient
// and worth a retry; events that can never be delivered are logged and
// dropped.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Dropping undecodable event %s: %v", key, err)
		return nil
	}

	// Only a payment confirmation is sent, when the order reaches processing
	if event.EventType != order.EventOrderStatusChanged {
		return nil
	}
	var e order.OrderStatusChanged
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Dropping undecodable %s event %s: %v", event.EventType, event.ID, err)
		return nil
	}
	if e.To != order.StatusProcessing {
		return nil
	}
	return h.sendPaymentConfirmation(ctx, e)
}

func (h *Handler) sendPaymentConfirmation(ctx context.Context, e order.OrderStatusChanged) error {
	log.Printf("[Notifier] Processing payment for order %s, user %s", e.OrderID, e.UserID)

	o, err := h.orders.FindOrder(ctx, e.OrderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		log.Printf("[Notifier] Order not found: %s", e.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	u, err := h.users.GetByID(ctx, o.UserID)
	if errors.Is(err, user.ErrUserNotFound) {
		log.Printf("[Notifier] User not found: %s", o.UserID)
		return nil
	}
	if err != nil {
		return err
	}

	items := make([]email.Item, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = email.Item{
			ProductID: l.ProductID,
			Name:      l.ProductName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}

	receipt := email.Receipt{
		OrderID:    o.ID,
		FirstName:  u.FirstName,
		Currency:   o.Currency,
		Total:      o.Total,
		PaymentRef: e.PaymentRef,
		Items:      items,
	}
	if err := h.mailer.SendPaymentConfirmation(u.Email, receipt); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", u.Email, err)
		return err
	}

	log.Printf("[Notifier] Payment confirmation sent to %s for order %s", u.Email, o.ID)
	return nil
}
