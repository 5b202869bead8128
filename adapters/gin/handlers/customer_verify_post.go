package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/loopkit/adapters/ginutil"
	"github.com/open-rails/loopkit/ledger"
	"github.com/open-rails/loopkit/session"
)

// CustomerDirectory answers whether an email belongs to a subscribed
// customer at the payment provider. Implemented by lemonsqueezy.Client.
type CustomerDirectory interface {
	CustomerSubscribed(ctx context.Context, email string) (bool, error)
}

// HandleCustomerVerifyPOST lets a returning buyer recover access by email:
// if the provider knows the address as a subscribed customer, issue the
// session cookie.
func HandleCustomerVerifyPOST(dir CustomerDirectory, sessions *session.Manager, rl ginutil.RateLimiter) gin.HandlerFunc {
	type verifyReq struct {
		Email string `json:"email"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLVerify) {
			ginutil.TooMany(c)
			return
		}
		var req verifyReq
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
			ginutil.BadRequest(c, "missing_email")
			return
		}
		identity := ledger.NormalizeIdentity(req.Email)
		subscribed, err := dir.CustomerSubscribed(c.Request.Context(), identity)
		if err != nil {
			ginutil.ServerError(c, "customer_check_failed")
			return
		}
		if !subscribed {
			ginutil.Unauthorized(c, "not_a_customer")
			return
		}
		issueSession(c, sessions, identity)
	}
}
