package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {"total": n}}.
func respondList(c *gin.Context, items interface{}, total int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta":    gin.H{"total": total},
	})
}

// respondDomainError maps err onto the error envelope. Details such as the
// shortfall of an INSUFFICIENT_FUNDS rejection are passed through.
func respondDomainError(c *gin.Context, err error) {
	de := domain.AsError(err)
	if de == nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	msg := de.Message
	if de.Kind == domain.KindFatal {
		msg = "internal error"
	}
	body := gin.H{
		"success": false,
		"error":   msg,
		"code":    de.Code,
		"kind":    de.Kind,
	}
	if len(de.Details) > 0 {
		body["details"] = de.Details
	}
	c.AbortWithStatusJSON(statusFor(de.Kind, de.Code), body)
}

// statusFor picks the HTTP status for a classified error.
func statusFor(kind domain.Kind, code domain.Code) int {
	switch kind {
	case domain.KindValidation:
		switch code {
		case domain.CodeMarketNotFound:
			return http.StatusNotFound
		case domain.CodeMarketNotActive, domain.CodeMarketAlreadyResolved:
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case domain.KindResource:
		return http.StatusPaymentRequired
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// parseAmount reads a decimal ETH amount. Range and precision are checked
// by the services.
func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.Wrap(domain.ErrInvalidAmount, err)
	}
	return amount, nil
}
