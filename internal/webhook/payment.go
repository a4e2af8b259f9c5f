package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrSignatureInvalid      = errors.New("webhook signature invalid")
	ErrMissingOrderReference = errors.New("payment event carries no order reference")
)

// Results reported in Outcome.Result
const (
	ResultApplied   = "applied"
	ResultNoOp      = "noop"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultRejected  = "rejected"
)

// Outcome describes how an acknowledged event was handled. Err holds the
// reason for a rejected event; it is logged, never returned to the sender.
type Outcome struct {
	EventID   string
	EventType string
	OrderID   string
	Result    string
	Err       error
}

// EventLog remembers processed event ids
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkSeen(ctx context.Context, eventID string) error
}

// PaymentReceiver reconciles orders from payment processor events. Delivery
// is at-least-once and unordered; every handled event maps to an idempotent
// ledger transition.
type PaymentReceiver struct {
	verifier payment.Verifier
	ledger   *order.Ledger
	events   EventLog
	metrics  *metrics.Metrics
	policy   retry.Policy
	tracer   trace.Tracer
}

// NewPaymentReceiver builds a receiver. events and m may be nil.
func NewPaymentReceiver(verifier payment.Verifier, ledger *order.Ledger, events EventLog, m *metrics.Metrics, policy retry.Policy) *PaymentReceiver {
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &PaymentReceiver{
		verifier: verifier,
		ledger:   ledger,
		events:   events,
		metrics:  m,
		policy:   policy,
		tracer:   otel.Tracer("github.com/example/ec-checkout/internal/webhook"),
	}
}

// HandleEvent authenticates and applies one delivery. A returned error means
// the sender should redeliver: ErrSignatureInvalid or a persistence failure.
func (r *PaymentReceiver) HandleEvent(ctx context.Context, rawBody []byte, signatureHeader string) (*Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "webhook.payment")
	defer span.End()

	ev, err := r.verifier.Verify(rawBody, signatureHeader)
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			log.Printf("[Webhook] Rejected payment event: %v", err)
			r.metrics.WebhookEvent("unknown", "bad_signature")
			span.RecordError(err)
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		log.Printf("[Webhook] Unreadable payment event acknowledged: %v", err)
		r.metrics.WebhookEvent("unknown", ResultRejected)
		return &Outcome{Result: ResultRejected, Err: err}, nil
	}
	span.SetAttributes(attribute.String("event.id", ev.ID), attribute.String("event.type", ev.Type))

	out, err := r.handle(ctx, ev)
	if err != nil {
		log.Printf("[Webhook] Event %s (%s) failed, sender will redeliver: %v", ev.ID, ev.Type, err)
		r.metrics.WebhookEvent(ev.Type, "error")
		span.RecordError(err)
		return nil, err
	}
	if out.Err != nil {
		log.Printf("[Webhook] Event %s (%s) acknowledged without change: %v", ev.ID, ev.Type, out.Err)
	}
	r.metrics.WebhookEvent(ev.Type, out.Result)
	return out, nil
}

func (r *PaymentReceiver) handle(ctx context.Context, ev *payment.Event) (*Outcome, error) {
	out := &Outcome{EventID: ev.ID, EventType: ev.Type, OrderID: ev.Session.OrderID()}

	var (
		target order.Status
		ref    string
	)
	switch ev.Type {
	case payment.EventSessionCompleted, payment.EventSessionAsyncPaymentSucceeded:
		target, ref = order.StatusProcessing, ev.Session.PaymentIntent
	case payment.EventSessionExpired, payment.EventSessionAsyncPaymentFailed:
		target = order.StatusCancelled
	default:
		out.Result = ResultIgnored
		return out, nil
	}

	if r.seen(ctx, ev.ID) {
		out.Result = ResultDuplicate
		return out, nil
	}

	if out.OrderID == "" {
		out.Result, out.Err = ResultRejected, ErrMissingOrderReference
		r.markSeen(ctx, ev.ID)
		return out, nil
	}

	tr, err := retry.Do(ctx, "transition order", r.policy, isStoreUnavailable, func(ctx context.Context) (*order.Transition, error) {
		return r.ledger.TransitionStatus(ctx, out.OrderID, target, ref)
	})
	switch {
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, order.ErrInvalidTransition):
		out.Result, out.Err = ResultRejected, err
	case err != nil:
		return nil, err
	case tr.Applied:
		out.Result = ResultApplied
		r.metrics.Transition(string(tr.From), string(tr.To))
		log.Printf("[Webhook] Order %s moved %s -> %s by %s", out.OrderID, tr.From, tr.To, ev.Type)
	default:
		out.Result = ResultNoOp
	}

	r.markSeen(ctx, ev.ID)
	return out, nil
}

func (r *PaymentReceiver) seen(ctx context.Context, eventID string) bool {
	if r.events == nil || eventID == "" {
		return false
	}
	seen, err := r.events.Seen(ctx, eventID)
	if err != nil {
		log.Printf("[Webhook] Event log lookup failed for %s: %v", eventID, err)
		return false
	}
	return seen
}

func (r *PaymentReceiver) markSeen(ctx context.Context, eventID string) {
	if r.events == nil || eventID == "" {
		return
	}
	if err := r.events.MarkSeen(ctx, eventID); err != nil {
		log.Printf("[Webhook] Failed to record event %s: %v", eventID, err)
	}
}

func isStoreUnavailable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}
