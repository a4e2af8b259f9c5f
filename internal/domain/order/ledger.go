package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/money"
	"github.com/google/uuid"
)

const defaultCurrency = "usd"

// Transition is the result of TransitionStatus. Applied is false when the
// order was already in the target status or in a terminal one. Order is nil
// when the transition was applied but the order could not be read back.
type Transition struct {
	Order   *Order
	From    Status
	To      Status
	Applied bool
}

// Ledger owns order records and their status lifecycle
type Ledger struct {
	repo      Repository
	publisher Publisher
	currency  string
	now       func() time.Time
}

// NewLedger creates a ledger. publisher may be nil, in which case no
// lifecycle events are emitted.
func NewLedger(repo Repository, publisher Publisher) *Ledger {
	return &Ledger{
		repo:      repo,
		publisher: publisher,
		currency:  defaultCurrency,
		now:       time.Now,
	}
}

// WithCurrency sets the ISO currency recorded on new orders
func (l *Ledger) WithCurrency(currency string) *Ledger {
	if currency != "" {
		l.currency = currency
	}
	return l
}

// CreatePendingOrder writes an order and all of its lines in one unit
func (l *Ledger) CreatePendingOrder(ctx context.Context, userID string, lines []Line, total money.Amount) (*Order, error) {
	o, err := l.NewPendingOrder(userID, lines, total)
	if err != nil {
		return nil, err
	}
	if err := l.PlaceOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// NewPendingOrder validates the lines and assigns the order and line ids
// without writing anything. Callers that retry PlaceOrder build the order
// once so every attempt writes the same record.
func (l *Ledger) NewPendingOrder(userID string, lines []Line, total money.Amount) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for i, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 || line.Quantity > MaxLineQuantity || line.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidLine, i)
		}
	}
	if sum := SumLines(lines); sum != total {
		return nil, fmt.Errorf("%w: declared %s, lines sum to %s", ErrTotalMismatch, total, sum)
	}

	now := l.now().UTC()
	o := &Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    StatusPending,
		Total:     total,
		Currency:  l.currency,
		Lines:     make([]Line, len(lines)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, line := range lines {
		line.ID = uuid.New().String()
		line.OrderID = o.ID
		o.Lines[i] = line
	}
	return o, nil
}

// PlaceOrder persists an order built by NewPendingOrder and announces it.
// Writing the same order twice is safe.
func (l *Ledger) PlaceOrder(ctx context.Context, o *Order) error {
	if err := l.repo.Create(ctx, o); err != nil {
		return err
	}
	log.Printf("[Ledger] Order %s created for user %s: %d lines, total %s", o.ID, o.UserID, len(o.Lines), o.Total)

	l.publish(ctx, o.ID, EventOrderPlaced, OrderPlaced{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Lines:    o.Lines,
		Total:    o.Total,
		Currency: o.Currency,
		PlacedAt: o.CreatedAt,
	})
	return nil
}

// TransitionStatus moves an order to target with a single conditional write.
// Repeating a transition that already happened, or targeting an order that is
// already terminal, is a successful no-op. Moving back to pending fails with
// ErrInvalidTransition from any state.
func (l *Ledger) TransitionStatus(ctx context.Context, orderID string, target Status, paymentRef string) (*Transition, error) {
	if _, ok := validTransitions[target]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}
	if !validID(orderID) {
		return nil, ErrOrderNotFound
	}

	if sources := sourcesFor(target); len(sources) > 0 {
		now := l.now().UTC()
		prev, applied, err := l.repo.UpdateStatus(ctx, StatusUpdate{
			OrderID:    orderID,
			From:       sources,
			To:         target,
			PaymentRef: paymentRef,
			At:         now,
		})
		if err != nil {
			return nil, err
		}
		if applied {
			log.Printf("[Ledger] Order %s: %s -> %s", orderID, prev, target)
			// The write is done; a failed read must not lose the event, since
			// a redelivery would only find the order already moved.
			o, err := l.repo.Get(ctx, orderID)
			changed := OrderStatusChanged{
				OrderID:    orderID,
				From:       prev,
				To:         target,
				PaymentRef: paymentRef,
				ChangedAt:  now,
			}
			if err != nil {
				log.Printf("[Ledger] Order %s moved to %s but could not be reloaded: %v", orderID, target, err)
				o = nil
			} else {
				changed.UserID = o.UserID
			}
			l.publish(ctx, orderID, EventOrderStatusChanged, changed)
			return &Transition{Order: o, From: prev, To: target, Applied: true}, nil
		}
	}

	// Nothing matched: the order is missing, already there, or the move is backward.
	o, err := l.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != target && (target == StatusPending || !o.Status.IsTerminal()) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
	}
	log.Printf("[Ledger] Order %s already %s, ignoring transition to %s", orderID, o.Status, target)
	return &Transition{Order: o, From: o.Status, To: target}, nil
}

func (l *Ledger) FindOrder(ctx context.Context, orderID string) (*Order, error) {
	if !validID(orderID) {
		return nil, ErrOrderNotFound
	}
	return l.repo.Get(ctx, orderID)
}

// AttachPaymentSession records the gateway session id on an order
func (l *Ledger) AttachPaymentSession(ctx context.Context, orderID, sessionID string) error {
	if !validID(orderID) {
		return ErrOrderNotFound
	}
	return l.repo.SetPaymentSession(ctx, orderID, sessionID)
}

// ListOrdersForUser returns a user's orders, newest first
func (l *Ledger) ListOrdersForUser(ctx context.Context, userID string) ([]*Order, error) {
	return l.repo.ListByUser(ctx, userID)
}

// publish is best effort: the order row is the source of truth.
func (l *Ledger) publish(ctx context.Context, orderID, eventType string, data any) {
	if l.publisher == nil {
		return
	}
	event, err := store.NewEvent(orderID, AggregateType, eventType, data)
	if err != nil {
		log.Printf("[Ledger] Failed to encode %s for order %s: %v", eventType, orderID, err)
		return
	}
	if err := l.publisher.Publish(ctx, orderID, event); err != nil {
		log.Printf("[Ledger] Failed to publish %s for order %s: %v", eventType, orderID, err)
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
