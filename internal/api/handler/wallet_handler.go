package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evetabi/wagerbot/internal/api/middleware"
	"github.com/evetabi/wagerbot/internal/service"
)

// WalletHandler serves the caller's wallet, bets and outgoing transfers, plus
// the admin funding endpoints.
type WalletHandler struct {
	custody *service.CustodyService
	ledger  *service.LedgerService
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(custody *service.CustodyService, ledger *service.LedgerService) *WalletHandler {
	return &WalletHandler{custody: custody, ledger: ledger}
}

// GetWallet godoc
// GET /api/me/wallet [JWT]
// Creates the wallet on first use and answers its live balance.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	view, err := h.custody.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// GetMyBets godoc
// GET /api/me/bets [JWT]
func (h *WalletHandler) GetMyBets(c *gin.Context) {
	bets, err := h.ledger.GetUserBets(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, bets, len(bets))
}

// Transfer godoc
// POST /api/me/transfers [JWT]
// Body: {"to":"0x...","amount":"0.5"}
func (h *WalletHandler) Transfer(c *gin.Context) {
	var body struct {
		To     string `json:"to"     binding:"required"`
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

	ref, err := h.custody.Transfer(c.Request.Context(), middleware.GetUserID(c), body.To, amount)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, ref)
}

// Fund godoc
// POST /api/admin/wallets/:identifier/fund [JWT, admin]
// Body: {"amount":"1.0"}
func (h *WalletHandler) Fund(c *gin.Context) {
	var body struct {
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

	ref, err := h.custody.FundWallet(c.Request.Context(), c.Param("identifier"), amount)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, ref)
}

// Master godoc
// GET /api/admin/master [JWT, admin]
func (h *WalletHandler) Master(c *gin.Context) {
	balance, err := h.custody.MasterBalance(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"address": h.custody.MasterAddress(),
		"balance": balance,
	})
}
