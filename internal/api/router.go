package api

import (
	"log"
	"net/http"
	"time"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type RouterConfig struct {
	Handlers   *Handlers
	JWTService *auth.JWTService
	Admin      middleware.AdminPolicy
	Metrics    *metrics.Metrics
	// Gatherer backs GET /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
	// RequestTimeout bounds every request; zero means no limit
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handlers
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(withLogging)
	r.Use(withMetrics(cfg.Metrics))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", h.Health)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	// Catalog
	r.Get("/products", h.GetProducts)
	r.Get("/products/{id}", h.GetProduct)

	// Webhooks authenticate by signature, not by session
	r.Post("/webhooks/payment", h.PaymentWebhook)
	r.Post("/webhooks/identity", h.IdentityWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTService))

		r.Post("/checkout", h.BeginCheckout)
		r.Get("/orders", h.GetOrders)
		r.Get("/orders/{id}", h.GetOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.Admin))
			r.Post("/orders/{id}/status", h.TransitionOrder)
		})
	})

	return r
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Printf("[API] %s %s %d %s reqid=%s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond), chimw.GetReqID(r.Context()))
	})
}

// withMetrics records request count and latency under the matched route pattern
func withMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest(route, ww.Status(), time.Since(start))
		})
	}
}
