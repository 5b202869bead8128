package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/loopkit/adapters/ginutil"
	"github.com/open-rails/loopkit/ledger"
	"github.com/open-rails/loopkit/payments"
	"github.com/open-rails/loopkit/payments/lemonsqueezy"
	stripehook "github.com/open-rails/loopkit/payments/stripe"
)

const webhookBodyLimit = 1 << 20 // 1 MiB

// EventDedup tracks handled webhook event ids. Seen is checked before
// granting; Mark runs only after a successful grant so failed deliveries
// stay retryable by the provider.
type EventDedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// HandleLemonWebhookPOST receives Lemon Squeezy webhooks: verify the raw-body
// HMAC, parse the order, dedup by event id, grant loops.
func HandleLemonWebhookPOST(svc *ledger.Service, dedup EventDedup, secret string, loopsPerPurchase int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readWebhookBody(c)
		if err != nil {
			ginutil.BadRequest(c, "invalid_body")
			return
		}
		if !lemonsqueezy.VerifySignature(secret, body, c.GetHeader(lemonsqueezy.SignatureHeader)) {
			ginutil.Unauthorized(c, "invalid_signature")
			return
		}
		purchase, ok, err := lemonsqueezy.ParsePurchase(body, loopsPerPurchase)
		if err != nil {
			ginutil.BadRequest(c, "invalid_payload")
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		applyPurchase(c, svc, dedup, purchase)
	}
}

// HandleStripeWebhookPOST receives Stripe webhooks; signature verification is
// delegated to the stripe provider package.
func HandleStripeWebhookPOST(svc *ledger.Service, dedup EventDedup, secret string, loopsPerPurchase int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readWebhookBody(c)
		if err != nil {
			ginutil.BadRequest(c, "invalid_body")
			return
		}
		purchase, ok, err := stripehook.ParsePurchase(body, c.GetHeader(stripehook.SignatureHeader), secret, loopsPerPurchase)
		if err != nil {
			ginutil.BadRequest(c, "invalid_signature")
			return
		}
		if !ok {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		applyPurchase(c, svc, dedup, purchase)
	}
}

func readWebhookBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit))
}

// applyPurchase is the shared grant path. A dedup-store read error falls
// through to the grant: granting twice on a rare provider retry beats
// dropping a paid purchase.
func applyPurchase(c *gin.Context, svc *ledger.Service, dedup EventDedup, p payments.Purchase) {
	ctx := c.Request.Context()
	if dedup != nil {
		if seen, err := dedup.Seen(ctx, p.EventID); err == nil && seen {
			c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": true})
			return
		}
	}
	if err := svc.Grant(ctx, p.Email, p.Loops); err != nil {
		if errors.Is(err, ledger.ErrInvalidArgument) {
			ginutil.BadRequest(c, "invalid_purchase")
			return
		}
		// 5xx so the provider redelivers.
		ginutil.ServerError(c, "grant_failed")
		return
	}
	if dedup != nil {
		_ = dedup.Mark(ctx, p.EventID)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
