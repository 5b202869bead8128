package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/loopkit/adapters/ginutil"
	"github.com/open-rails/loopkit/ledger"
	"github.com/open-rails/loopkit/session"
)

// LicenseValidator resolves a license key to the buyer email. Implemented by
// lemonsqueezy.Client.
type LicenseValidator interface {
	ValidateLicense(ctx context.Context, key string) (email string, valid bool, err error)
}

// HandleLicenseVerifyPOST validates a purchased license key and, on success,
// issues the session cookie that the access gate checks.
func HandleLicenseVerifyPOST(v LicenseValidator, sessions *session.Manager, rl ginutil.RateLimiter) gin.HandlerFunc {
	type verifyReq struct {
		Key string `json:"key"`
	}
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLVerify) {
			ginutil.TooMany(c)
			return
		}
		var req verifyReq
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Key) == "" {
			ginutil.BadRequest(c, "missing_key")
			return
		}
		email, valid, err := v.ValidateLicense(c.Request.Context(), strings.TrimSpace(req.Key))
		if err != nil {
			ginutil.ServerError(c, "license_check_failed")
			return
		}
		if !valid {
			ginutil.Unauthorized(c, "invalid_license")
			return
		}
		issueSession(c, sessions, ledger.NormalizeIdentity(email))
	}
}

func issueSession(c *gin.Context, sessions *session.Manager, identity string) {
	token, err := sessions.Issue(identity)
	if err != nil {
		ginutil.ServerError(c, "session_issue_failed")
		return
	}
	http.SetCookie(c.Writer, sessions.Cookie(token))
	c.JSON(http.StatusOK, gin.H{"ok": true, "email": identity})
}
