package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/money"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrPriceMismatch   = errors.New("cart price does not match the catalog")
)

type Config struct {
	SuccessURL string
	CancelURL  string
	Currency   string
	// VerifyPrices re-resolves every line against the catalog instead of
	// trusting the unit prices the client sent.
	VerifyPrices bool
	Retry        retry.Policy
}

// Session is the redirect handle returned to the shopper
type Session struct {
	OrderID   string       `json:"order_id"`
	SessionID string       `json:"session_id"`
	URL       string       `json:"url"`
	Total     money.Amount `json:"total"`
}

type Service struct {
	ledger  *order.Ledger
	gateway payment.Gateway
	catalog product.Catalog
	cfg     Config
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewService wires the checkout flow. catalog is only consulted when
// cfg.VerifyPrices is set; m may be nil.
func NewService(ledger *order.Ledger, gateway payment.Gateway, catalog product.Catalog, cfg Config, m *metrics.Metrics) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Service{
		ledger:  ledger,
		gateway: gateway,
		catalog: catalog,
		cfg:     cfg,
		metrics: m,
		tracer:  otel.Tracer("github.com/example/ec-checkout/internal/checkout"),
	}
}

// BeginCheckout turns cart lines into a PENDING order and a hosted payment
// session. The order is kept even if the session cannot be opened.
func (s *Service) BeginCheckout(ctx context.Context, userID string, lines []cart.Line) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.begin")
	defer span.End()

	sess, err := s.begin(ctx, span, userID, lines)
	s.metrics.CheckoutOutcome(outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return sess, nil
}

func (s *Service) begin(ctx context.Context, span trace.Span, userID string, lines []cart.Line) (*Session, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	c, err := cart.FromLines(lines)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if s.cfg.VerifyPrices {
		if err := s.verifyPrices(ctx, c.Lines()); err != nil {
			return nil, err
		}
	}

	cartLines := c.Lines()
	orderLines := make([]order.Line, len(cartLines))
	manifest := make([]payment.ManifestItem, len(cartLines))
	for i, l := range cartLines {
		orderLines[i] = order.Line{
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
		manifest[i] = payment.ManifestItem{Name: l.ProductName, UnitAmount: l.UnitPrice, Quantity: l.Quantity}
	}
	total := c.TotalAmount()

	// Ids are fixed before the first attempt so a retried write whose commit
	// did land finds its own order instead of adding a second one.
	o, err := s.ledger.NewPendingOrder(userID, orderLines, total)
	if err != nil {
		return nil, err
	}
	_, err = retry.Do(ctx, "create order", s.cfg.Retry, isStoreUnavailable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.ledger.PlaceOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int("order.lines", len(o.Lines)),
		attribute.Int64("order.total_cents", o.Total.Cents()),
	)

	ps, err := retry.Do(ctx, "create payment session", s.cfg.Retry, isGatewayUnavailable, func(ctx context.Context) (*payment.Session, error) {
		return s.gateway.CreateSession(ctx, payment.SessionRequest{
			OrderID:    o.ID,
			Currency:   o.Currency,
			SuccessURL: s.cfg.SuccessURL,
			CancelURL:  s.cfg.CancelURL,
			Items:      manifest,
		})
	})
	if err != nil {
		log.Printf("[Checkout] Payment session failed for order %s, order left pending: %v", o.ID, err)
		return nil, err
	}

	if err := s.ledger.AttachPaymentSession(ctx, o.ID, ps.ID); err != nil {
		log.Printf("[Checkout] Failed to attach session %s to order %s: %v", ps.ID, o.ID, err)
	}

	log.Printf("[Checkout] Order %s for user %s: session %s, total %s", o.ID, userID, ps.ID, o.Total)
	return &Session{OrderID: o.ID, SessionID: ps.ID, URL: ps.URL, Total: o.Total}, nil
}

func (s *Service) verifyPrices(ctx context.Context, lines []cart.Line) error {
	for _, l := range lines {
		p, err := retry.Do(ctx, "get product", s.cfg.Retry, isStoreUnavailable, func(ctx context.Context) (*product.Product, error) {
			return s.catalog.GetProduct(ctx, l.ProductID)
		})
		if err != nil {
			return err
		}
		if !p.Active {
			return fmt.Errorf("%w: %s", product.ErrProductInactive, p.ID)
		}
		if want := p.UnitPrice(l.VariantLabel); want != l.UnitPrice {
			return fmt.Errorf("%w: %s costs %s, cart has %s", ErrPriceMismatch, l.ProductName, want, l.UnitPrice)
		}
	}
	return nil
}

func isStoreUnavailable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}

func isGatewayUnavailable(err error) bool {
	return errors.Is(err, payment.ErrGatewayUnavailable)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, store.ErrUnavailable):
		return "store_unavailable"
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, ErrPriceMismatch):
		return "price_mismatch"
	case errors.Is(err, ErrEmptyCart), errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct), errors.Is(err, product.ErrInvalidPrice):
		return "invalid"
	default:
		return "failed"
	}
}
