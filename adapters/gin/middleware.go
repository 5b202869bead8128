// Package loopgin wires the entitlement ledger into gin: an access-gate
// middleware plus the handlers under handlers/.
package loopgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/loopkit/adapters/ginutil"
	"github.com/open-rails/loopkit/ledger"
	"github.com/open-rails/loopkit/session"
)

const identityKey = "loopkit.identity"

// GateConfig tunes how EntitlementRequired rejects requests.
type GateConfig struct {
	// RedirectTo, when set, sends unentitled browsers to this path (the
	// checkout page) with a 302 instead of a 401 JSON response.
	RedirectTo string
}

// EntitlementRequired gates protected routes. It reads the session cookie,
// verifies the signed identity, and asks the ledger whether that identity
// ever purchased. Ledger errors fail closed: a request we cannot verify is
// denied, never waved through. On success the identity lands in the gin
// context for CurrentIdentity.
func EntitlementRequired(svc *ledger.Service, sessions *session.Manager, cfg GateConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessions.CookieName())
		if err != nil || token == "" {
			deny(c, cfg)
			return
		}
		identity, err := sessions.Verify(token)
		if err != nil {
			deny(c, cfg)
			return
		}
		entitled, err := svc.IsEntitled(c.Request.Context(), identity)
		if err != nil || !entitled {
			deny(c, cfg)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the gate-verified identity for this request.
func CurrentIdentity(c *gin.Context) (string, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// SetIdentity is exposed for handler tests that bypass the middleware.
func SetIdentity(c *gin.Context, identity string) {
	c.Set(identityKey, identity)
}

func deny(c *gin.Context, cfg GateConfig) {
	if cfg.RedirectTo != "" {
		c.Redirect(http.StatusFound, cfg.RedirectTo)
		c.Abort()
		return
	}
	ginutil.Unauthorized(c, "entitlement_required")
}
