// Package payment talks to the hosted payment processor: it opens checkout
// sessions and authenticates the events the processor sends back.
package payment

import (
	"context"
	"errors"

	"github.com/example/ec-checkout/internal/money"
)

// Event types handled by the webhook receiver
const (
	EventSessionCompleted             = "checkout.session.completed"
	EventSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired               = "checkout.session.expired"
)

// MetadataOrderID is the session metadata key carrying our order id
const MetadataOrderID = "orderId"

var (
	// ErrGatewayUnavailable marks a processor failure that may succeed on retry
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrBadSignature       = errors.New("payment event signature invalid")
	ErrMalformedEvent     = errors.New("payment event malformed")
)

// ManifestItem is one line shown on the hosted payment page
type ManifestItem struct {
	Name       string
	UnitAmount money.Amount
	Quantity   int
}

type SessionRequest struct {
	OrderID       string
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Items         []ManifestItem
}

type Session struct {
	ID  string
	URL string
}

// Gateway opens hosted payment sessions
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Event is an authenticated processor event reduced to what reconciliation needs
type Event struct {
	ID      string
	Type    string
	Session SessionObject
}

type SessionObject struct {
	ID            string
	Metadata      map[string]string
	PaymentIntent string
	PaymentStatus string
}

// OrderID returns the order reference stored in the session metadata
func (s SessionObject) OrderID() string {
	return s.Metadata[MetadataOrderID]
}

// Verifier authenticates a raw event body against its signature header
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (*Event, error)
}
