package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	loopgin "github.com/open-rails/loopkit/adapters/gin"
	"github.com/open-rails/loopkit/adapters/ginutil"
	"github.com/open-rails/loopkit/ledger"
)

// GenerateRequest is what the generator receives once a loop is consumed.
type GenerateRequest struct {
	Identity        string `json:"-"`
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
}

// GenerateResult is the generator's output surfaced to the client.
type GenerateResult struct {
	URL string `json:"url"`
}

// Generator performs the paid external generation call. loopkit never makes
// that call itself; it only gates it.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// HandleGeneratePOST gates one paid generation run behind an atomic loop
// consume. The generator runs only after TryConsume succeeded; a generator
// failure after that does not refund the loop.
func HandleGeneratePOST(svc *ledger.Service, gen Generator, rl ginutil.RateLimiter) gin.HandlerFunc {
	type generateReq struct {
		Prompt          string `json:"prompt"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	return func(c *gin.Context) {
		identity, ok := loopgin.CurrentIdentity(c)
		if !ok {
			ginutil.Unauthorized(c, "entitlement_required")
			return
		}
		if !ginutil.AllowNamed(c, rl, ginutil.RLGenerate) {
			ginutil.TooMany(c)
			return
		}
		var req generateReq
		if err := c.ShouldBindJSON(&req); err != nil || req.Prompt == "" {
			ginutil.BadRequest(c, "missing_prompt")
			return
		}

		res, err := svc.TryConsume(c.Request.Context(), identity)
		switch {
		case errors.Is(err, ledger.ErrQuotaExhausted):
			ginutil.PaymentRequired(c, "quota_exhausted")
			return
		case errors.Is(err, ledger.ErrInvalidArgument):
			ginutil.BadRequest(c, "invalid_identity")
			return
		case err != nil:
			ginutil.ServerError(c, "ledger_unavailable")
			return
		}

		out, err := gen.Generate(c.Request.Context(), GenerateRequest{
			Identity:        identity,
			Prompt:          req.Prompt,
			DurationSeconds: req.DurationSeconds,
		})
		if err != nil {
			ginutil.ServerError(c, "generation_failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": out.URL, "loops_remaining": res.Remaining})
	}
}
