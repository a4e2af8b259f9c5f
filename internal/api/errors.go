package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/domain/user"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/money"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/webhook"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, checkout.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, webhook.ErrSignatureInvalid),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidLine),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, money.ErrPrecision):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrPriceMismatch),
		errors.Is(err, order.ErrTotalMismatch),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, product.ErrProductInactive):
		return http.StatusConflict
	case errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err as a JSON error body. Internal failures are logged
// and reported without detail.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway:
		log.Printf("[API] %s %s failed: %v", r.Method, r.URL.Path, err)
		message = http.StatusText(status)
	}
	respondJSONError(w, message, status)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}
