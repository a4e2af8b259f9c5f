package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/example/ec-checkout/internal/webhook"
)

// maxWebhookBody bounds the payload read from a webhook sender
const maxWebhookBody = 1 << 16

type webhookResponse struct {
	Received bool   `json:"received"`
	Result   string `json:"result"`
}

// PaymentWebhook acknowledges a payment event with 200 once it is handled or
// deliberately ignored. 400 and 500 make the processor redeliver.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondJSONError(w, "could not read body", http.StatusBadRequest)
		return
	}

	out, err := h.payments.HandleEvent(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		respondWebhookErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, webhookResponse{Received: true, Result: out.Result})
}

func (h *Handlers) IdentityWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondJSONError(w, "could not read body", http.StatusBadRequest)
		return
	}

	out, err := h.identity.HandleEvent(r.Context(), body, r.Header)
	if err != nil {
		respondWebhookErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, webhookResponse{Received: true, Result: out.Result})
}

func respondWebhookErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, webhook.ErrSignatureInvalid) {
		respondJSONError(w, "invalid signature", http.StatusBadRequest)
		return
	}
	// Anything else is transient; the sender retries on 5xx
	log.Printf("[API] %s failed: %v", r.URL.Path, err)
	respondJSONError(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
