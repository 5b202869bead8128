package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	loopgin "github.com/open-rails/loopkit/adapters/gin"
	"github.com/open-rails/loopkit/adapters/ginutil"
	"github.com/open-rails/loopkit/ledger"
)

// HandleUsageGET reports the caller's loop balance. Runs behind the
// entitlement gate; "granted but exhausted" and "never granted" are
// distinguishable in the response for support.
func HandleUsageGET(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := loopgin.CurrentIdentity(c)
		if !ok {
			ginutil.Unauthorized(c, "entitlement_required")
			return
		}
		rec, found, err := svc.Lookup(c.Request.Context(), identity)
		if err != nil {
			ginutil.ServerError(c, "ledger_unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"entitled":  found && rec.Entitled(),
			"granted":   rec.Granted,
			"used":      rec.Used,
			"remaining": rec.Remaining(),
		})
	}
}
