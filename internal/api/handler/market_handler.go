package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evetabi/wagerbot/internal/api/middleware"
	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/service"
)

// MarketHandler serves market queries, creation and the admin lifecycle
// endpoints.
type MarketHandler struct {
	ledger *service.LedgerService
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(ledger *service.LedgerService) *MarketHandler {
	return &MarketHandler{ledger: ledger}
}

// GetActive godoc
// GET /api/markets/active
func (h *MarketHandler) GetActive(c *gin.Context) {
	markets, err := h.ledger.GetActiveMarkets(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, markets, len(markets))
}

// GetByID godoc
// GET /api/markets/:id
func (h *MarketHandler) GetByID(c *gin.Context) {
	market, err := h.ledger.GetMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, market)
}

// GetBets godoc
// GET /api/markets/:id/bets
func (h *MarketHandler) GetBets(c *gin.Context) {
	bets, err := h.ledger.GetMarketBets(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, bets, len(bets))
}

// Create godoc
// POST /api/markets [JWT]
// Body: {"title":"Will ETH reach $5000?","options":["Yes","No"],"end_date":"2026-12-31T00:00:00Z"}
func (h *MarketHandler) Create(c *gin.Context) {
	var body domain.CreateMarketParams
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, string(domain.CodeInvalidMarketSpec), err.Error())
		return
	}
	market, err := h.ledger.CreateMarket(c.Request.Context(), middleware.GetUserID(c), body)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, market)
}

// PlaceBet godoc
// POST /api/markets/:id/bets [JWT]
// Body: {"option":"Yes","amount":"0.25"}
func (h *MarketHandler) PlaceBet(c *gin.Context) {
	var body struct {
		Option string `json:"option" binding:"required"`
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	bet, err := h.ledger.PlaceBet(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), body.Option, amount)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, bet)
}

// Resolve godoc
// POST /api/admin/markets/:id/resolve [JWT, admin]
// Body: {"winning_option":"Yes"}
func (h *MarketHandler) Resolve(c *gin.Context) {
	var body struct {
		WinningOption string `json:"winning_option" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION", err.Error())
		return
	}
	market, err := h.ledger.ResolveMarket(c.Request.Context(), c.Param("id"), body.WinningOption)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, market)
}

// Close godoc
// POST /api/admin/markets/:id/close [JWT, admin]
func (h *MarketHandler) Close(c *gin.Context) {
	market, err := h.ledger.CloseMarket(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, market)
}

// Verify godoc
// GET /api/admin/markets/:id/verify [JWT, admin]
func (h *MarketHandler) Verify(c *gin.Context) {
	if err := h.ledger.VerifyMarketIntegrity(c.Request.Context(), c.Param("id")); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"market_id": c.Param("id"), "consistent": true})
}
