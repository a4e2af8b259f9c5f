package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/money"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("order must have at least one line")
	ErrInvalidLine       = errors.New("order line needs a product and a quantity of at least 1")
	ErrTotalMismatch     = errors.New("order total does not match its lines")
	ErrInvalidStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderExists       = errors.New("order id already belongs to a different order")
)

// MaxLineQuantity bounds a single line so line totals stay well inside int64
const MaxLineQuantity = 999

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {}, // terminal state
	StatusCancelled:  {}, // terminal state
}

// ParseStatus validates a status name
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if an order in status s may move to target
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// sourcesFor lists every status that may move to target. The conditional
// update only matches rows currently in one of these.
func sourcesFor(target Status) []Status {
	var sources []Status
	for _, from := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled} {
		if from.CanTransitionTo(target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Line is an order line. Immutable once the order exists.
type Line struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"order_id"`
	ProductID   string       `json:"product_id"`
	VariantID   string       `json:"variant_id,omitempty"`
	ProductName string       `json:"name"`
	Quantity    int          `json:"quantity"`
	UnitPrice   money.Amount `json:"price"`
}

func (l Line) Subtotal() money.Amount {
	return l.UnitPrice.Times(l.Quantity)
}

type Order struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	Status           Status       `json:"status"`
	Total            money.Amount `json:"total"`
	Currency         string       `json:"currency"`
	PaymentSessionID string       `json:"payment_session_id,omitempty"`
	PaymentRef       string       `json:"payment_ref,omitempty"`
	Lines            []Line       `json:"lines"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// SameRecord reports whether other is the order o describes, as written by
// Create. Status and timestamps are ignored since they move after creation.
func (o *Order) SameRecord(other *Order) bool {
	if o.ID != other.ID || o.UserID != other.UserID || o.Total != other.Total ||
		o.Currency != other.Currency || len(o.Lines) != len(other.Lines) {
		return false
	}
	for i := range o.Lines {
		if o.Lines[i].ID != other.Lines[i].ID {
			return false
		}
	}
	return true
}

// SumLines returns Σ(unit price × quantity)
func SumLines(lines []Line) money.Amount {
	var total money.Amount
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}

// StatusUpdate is a conditional status write: it applies only while the
// order's current status is one of From.
type StatusUpdate struct {
	OrderID    string
	From       []Status
	To         Status
	PaymentRef string
	At         time.Time
}

// Repository persists orders. Implementations must make Create atomic (the
// order and all of its lines, or nothing) and idempotent on the order id:
// creating the same record again succeeds, a different record under an
// existing id fails with ErrOrderExists. UpdateStatus must be a single
// conditional write keyed by order id. Transient failures are wrapped with
// store.ErrUnavailable.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	// UpdateStatus reports whether a row matched the condition and was
	// written, and if so the status it held before the write.
	UpdateStatus(ctx context.Context, u StatusUpdate) (prev Status, applied bool, err error)
	SetPaymentSession(ctx context.Context, orderID, sessionID string) error
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
}

// Publisher delivers lifecycle events to the event bus
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
