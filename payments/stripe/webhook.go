// Package stripe adapts Stripe checkout webhooks into loopkit's payments
// types, delegating signature verification to the official SDK.
package stripe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/open-rails/loopkit/payments"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// checkoutSession is a minimal view of a checkout.session.completed payload.
type checkoutSession struct {
	ID              string `json:"id"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// ParsePurchase verifies the signature and extracts a Purchase from a
// checkout.session.completed event. ok is false for other event types or
// sessions without a buyer email; those deliveries are acknowledged but
// grant nothing. loopsPerPurchase <= 0 falls back to
// payments.DefaultLoopsPerPurchase.
func ParsePurchase(payload []byte, sigHeader, secret string, loopsPerPurchase int64) (payments.Purchase, bool, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return payments.Purchase{}, false, fmt.Errorf("stripe: verify webhook: %w", err)
	}
	if event.Type != "checkout.session.completed" {
		return payments.Purchase{}, false, nil
	}
	var session checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return payments.Purchase{}, false, fmt.Errorf("stripe: decode checkout.session: %w", err)
	}
	email := strings.TrimSpace(session.CustomerEmail)
	if email == "" {
		email = strings.TrimSpace(session.CustomerDetails.Email)
	}
	if email == "" {
		return payments.Purchase{}, false, nil
	}
	if loopsPerPurchase <= 0 {
		loopsPerPurchase = payments.DefaultLoopsPerPurchase
	}
	return payments.Purchase{
		EventID: "stripe:" + event.ID,
		Email:   email,
		Loops:   loopsPerPurchase,
	}, true, nil
}
