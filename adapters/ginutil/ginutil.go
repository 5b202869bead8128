// Package ginutil holds the shared plumbing for loopkit's gin handlers:
// JSON error responses and the rate-limiter seam.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Rate limit bucket names used by loopkit handlers.
const (
	RLWebhook  = "payments_webhook"
	RLVerify   = "entitlement_verify"
	RLGenerate = "generate"
)

// RateLimiter is the minimal limiter surface handlers depend on. Both the
// redis and in-memory limiters satisfy it.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// AllowNamed applies rl for the client IP. A nil limiter allows everything;
// limiter errors fail open so a degraded limiter store cannot take down the
// payment path.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ok, err := rl.AllowNamed(bucket, c.ClientIP())
	if err != nil {
		return true
	}
	return ok
}

func abortJSON(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

func BadRequest(c *gin.Context, code string)      { abortJSON(c, http.StatusBadRequest, code) }
func Unauthorized(c *gin.Context, code string)    { abortJSON(c, http.StatusUnauthorized, code) }
func PaymentRequired(c *gin.Context, code string) { abortJSON(c, http.StatusPaymentRequired, code) }
func ServerError(c *gin.Context, code string)     { abortJSON(c, http.StatusInternalServerError, code) }
func TooMany(c *gin.Context)                      { abortJSON(c, http.StatusTooManyRequests, "rate_limited") }
