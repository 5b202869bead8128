// Package lemonsqueezy adapts Lemon Squeezy purchase webhooks and the
// license/customer REST API into loopkit's payments types.
package lemonsqueezy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/open-rails/loopkit/payments"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Signature"

// VerifySignature checks the webhook signature against the raw request body.
// The comparison is constant-time. Verify before parsing; the payload is
// untrusted until this passes.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.TrimSpace(signature)))
}

type webhookEvent struct {
	Meta struct {
		EventName string `json:"event_name"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			UserEmail string `json:"user_email"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParsePurchase decodes an already-verified webhook body. ok is false for
// event types that are not a completed order, or payloads missing the buyer
// email or event id; those deliveries are acknowledged but grant nothing.
// loopsPerPurchase <= 0 falls back to payments.DefaultLoopsPerPurchase.
func ParsePurchase(body []byte, loopsPerPurchase int64) (payments.Purchase, bool, error) {
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return payments.Purchase{}, false, fmt.Errorf("lemonsqueezy: decode webhook: %w", err)
	}
	if ev.Meta.EventName != "" && ev.Meta.EventName != "order_created" {
		return payments.Purchase{}, false, nil
	}
	email := strings.TrimSpace(ev.Data.Attributes.UserEmail)
	if email == "" || ev.Data.ID == "" {
		return payments.Purchase{}, false, nil
	}
	if loopsPerPurchase <= 0 {
		loopsPerPurchase = payments.DefaultLoopsPerPurchase
	}
	return payments.Purchase{
		EventID: "lemonsqueezy:" + ev.Data.ID,
		Email:   email,
		Loops:   loopsPerPurchase,
	}, true, nil
}
