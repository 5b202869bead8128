// Package testing provides helpers for testing applications that use
// loopkit: synthetic, correctly-signed purchase webhook payloads that the
// lemonsqueezy receiver accepts end to end.
//
// Example usage:
//
//	body := loopkittesting.OrderCreatedPayload("buyer@example.com")
//	req := loopkittesting.NewSignedWebhookRequest("/webhooks/lemon", secret, body)
package testing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"

	"github.com/open-rails/loopkit/payments/lemonsqueezy"
)

// SignPayload returns the hex HMAC-SHA256 of body, the value the receiver
// expects in the X-Signature header.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// OrderCreatedPayload builds an order_created webhook body for email with a
// fresh random event id.
func OrderCreatedPayload(email string) []byte {
	return OrderCreatedPayloadWithID(email, uuid.NewString())
}

// OrderCreatedPayloadWithID builds an order_created webhook body with a
// fixed event id, for duplicate-delivery tests.
func OrderCreatedPayloadWithID(email, eventID string) []byte {
	body, _ := json.Marshal(map[string]any{
		"meta": map[string]any{"event_name": "order_created"},
		"data": map[string]any{
			"id": eventID,
			"attributes": map[string]any{
				"user_email": email,
			},
		},
	})
	return body
}

// NewSignedWebhookRequest builds a POST request for target carrying body and
// a valid signature header.
func NewSignedWebhookRequest(target, secret string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(lemonsqueezy.SignatureHeader, SignPayload(secret, body))
	return req
}
