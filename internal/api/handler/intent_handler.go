package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evetabi/wagerbot/internal/api/middleware"
	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/service"
)

// maxIntentBytes bounds one intent document.
const maxIntentBytes = 64 << 10

// IntentHandler accepts structured intents produced by the conversational
// front end.
type IntentHandler struct {
	intents *service.IntentService
}

// NewIntentHandler creates an IntentHandler.
func NewIntentHandler(intents *service.IntentService) *IntentHandler {
	return &IntentHandler{intents: intents}
}

// Handle godoc
// POST /api/intents [JWT]
// Body: {"action":"place_bet","params":{"marketId":"uuid","option":"Yes","amount":"0.1"}}
//
// The response always carries the outcome, including its user-facing
// message; the status reflects the outcome's error kind.
func (h *IntentHandler) Handle(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxIntentBytes))
	if err != nil {
		respondError(c, http.StatusRequestEntityTooLarge, string(domain.CodeInvalidIntent), "intent body too large")
		return
	}

	out := h.intents.HandleRaw(c.Request.Context(), middleware.GetUserID(c), raw)
	if out.Success {
		respondSuccess(c, http.StatusOK, out)
		return
	}
	c.AbortWithStatusJSON(statusFor(out.Kind, out.Code), gin.H{
		"success": false,
		"error":   out.Message,
		"code":    out.Code,
		"data":    out,
	})
}
