package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/domain/user"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/money"
	"github.com/example/ec-checkout/internal/webhook"
	"github.com/go-chi/chi/v5"
)

// Deps are the services the HTTP handlers delegate to
type Deps struct {
	Checkout        *checkout.Service
	Ledger          *order.Ledger
	Catalog         product.Catalog
	Users           *user.Directory
	PaymentWebhook  *webhook.PaymentReceiver
	IdentityWebhook *webhook.IdentityReceiver
	Admin           middleware.AdminPolicy
	Metrics         *metrics.Metrics
}

type Handlers struct {
	checkout *checkout.Service
	ledger   *order.Ledger
	catalog  product.Catalog
	users    *user.Directory
	payments *webhook.PaymentReceiver
	identity *webhook.IdentityReceiver
	admin    middleware.AdminPolicy
	metrics  *metrics.Metrics
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		checkout: d.Checkout,
		ledger:   d.Ledger,
		catalog:  d.Catalog,
		users:    d.Users,
		payments: d.PaymentWebhook,
		identity: d.IdentityWebhook,
		admin:    d.Admin,
		metrics:  d.Metrics,
	}
}

// currentUser resolves the token subject to a provisioned user. A valid
// token for a user the identity webhook has not delivered yet is treated as
// unauthenticated.
func (h *Handlers) currentUser(r *http.Request) (*user.User, error) {
	subject := middleware.GetSubject(r.Context())
	if subject == "" {
		return nil, checkout.ErrUnauthenticated
	}
	u, err := h.users.FindByExternalID(r.Context(), subject)
	if errors.Is(err, user.ErrUserNotFound) {
		return nil, checkout.ErrUnauthenticated
	}
	return u, err
}

// Product Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListActiveProducts(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if products == nil {
		products = []product.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !p.Active {
		respondErr(w, r, product.ErrProductNotFound)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Checkout Handlers

type checkoutRequest struct {
	Lines []cart.Line `json:"lines"`
	// Total is the amount the shopper saw; when present it must equal the
	// sum of the submitted lines.
	Total *money.Amount `json:"total,omitempty"`
}

func (h *Handlers) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		h.metrics.CheckoutOutcome("unauthenticated")
		respondErr(w, r, err)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Total != nil {
		c, err := cart.FromLines(req.Lines)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		if got := c.TotalAmount(); got != *req.Total {
			h.metrics.CheckoutOutcome("total_mismatch")
			respondJSONError(w, order.ErrTotalMismatch.Error()+": lines sum to "+got.String(), http.StatusConflict)
			return
		}
	}

	sess, err := h.checkout.BeginCheckout(r.Context(), u.ID, req.Lines)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	u, err := h.currentUser(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	orders, err := h.ledger.ListOrdersForUser(r.Context(), u.ID)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.ledger.FindOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}

	// Users can only access their own orders (admins can access all)
	if !h.admin.IsAdmin(r.Context()) {
		u, err := h.currentUser(r)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		if o.UserID != u.ID {
			respondJSONError(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	respondJSON(w, http.StatusOK, o)
}

// Admin Handlers

type transitionRequest struct {
	Status     string `json:"status"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

type transitionResponse struct {
	Order   *order.Order `json:"order,omitempty"`
	From    order.Status `json:"from"`
	To      order.Status `json:"to"`
	Applied bool         `json:"applied"`
}

// TransitionOrder moves an order by hand, e.g. PROCESSING -> COMPLETED once
// the goods have shipped.
func (h *Handlers) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	target, err := order.ParseStatus(req.Status)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	tr, err := h.ledger.TransitionStatus(r.Context(), chi.URLParam(r, "id"), target, req.PaymentRef)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if tr.Applied {
		h.metrics.Transition(string(tr.From), string(tr.To))
	}
	respondJSON(w, http.StatusOK, transitionResponse{Order: tr.Order, From: tr.From, To: tr.To, Applied: tr.Applied})
}

// Health

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
