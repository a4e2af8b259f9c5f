package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/example/ec-checkout/internal/domain/user"
	svix "github.com/svix/svix-webhooks/go"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
)

// IdentityReceiver provisions users from identity provider lifecycle events
// signed with the Svix scheme.
type IdentityReceiver struct {
	wh    *svix.Webhook
	users *user.Directory
}

func NewIdentityReceiver(signingSecret string, users *user.Directory) (*IdentityReceiver, error) {
	wh, err := svix.NewWebhook(signingSecret)
	if err != nil {
		return nil, fmt.Errorf("identity webhook secret: %w", err)
	}
	return &IdentityReceiver{wh: wh, users: users}, nil
}

type identityEvent struct {
	Type string       `json:"type"`
	Data identityUser `json:"data"`
}

type identityUser struct {
	ID                    string         `json:"id"`
	FirstName             string         `json:"first_name"`
	LastName              string         `json:"last_name"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	EmailAddresses        []emailAddress `json:"email_addresses"`
}

type emailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// primaryEmail picks the address flagged primary, else the first one
func (u identityUser) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailAddressID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// HandleEvent verifies and applies one identity event. Only bad signatures
// and persistence failures are returned as errors.
func (r *IdentityReceiver) HandleEvent(ctx context.Context, rawBody []byte, headers http.Header) (*Outcome, error) {
	if err := r.wh.Verify(rawBody, headers); err != nil {
		log.Printf("[Webhook] Rejected identity event: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	out := &Outcome{EventID: headers.Get("svix-id")}

	var ev identityEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		out.Result, out.Err = ResultRejected, err
		log.Printf("[Webhook] Unreadable identity event %s acknowledged: %v", out.EventID, err)
		return out, nil
	}
	out.EventType = ev.Type

	switch ev.Type {
	case EventUserCreated, EventUserUpdated:
	default:
		out.Result = ResultIgnored
		return out, nil
	}

	u, err := r.users.Provision(ctx, user.Identity{
		ExternalID: ev.Data.ID,
		Email:      ev.Data.primaryEmail(),
		FirstName:  ev.Data.FirstName,
		LastName:   ev.Data.LastName,
	})
	switch {
	case errors.Is(err, user.ErrInvalidIdentity), errors.Is(err, user.ErrEmailTaken):
		out.Result, out.Err = ResultRejected, err
		log.Printf("[Webhook] Identity event %s (%s) acknowledged without change: %v", out.EventID, ev.Type, err)
		return out, nil
	case err != nil:
		return nil, err
	}
	log.Printf("[Webhook] %s for %s applied to user %s", ev.Type, ev.Data.ID, u.ID)
	out.Result = ResultApplied
	return out, nil
}
