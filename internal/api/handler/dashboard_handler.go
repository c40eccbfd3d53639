package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/service"
	"github.com/evetabi/wagerbot/internal/ws"
)

// DashboardHandler serves the /api/admin/dashboard endpoint.
type DashboardHandler struct {
	ledger  *service.LedgerService
	custody *service.CustodyService
	hub     *ws.Hub // optional
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(ledger *service.LedgerService, custody *service.CustodyService, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{ledger: ledger, custody: custody, hub: hub}
}

// optionPool is one option's share of a market's pool.
type optionPool struct {
	Option string          `json:"option"`
	Pool   decimal.Decimal `json:"pool"`
	Pct    decimal.Decimal `json:"pct"`
}

// marketRisk is the dashboard view of one active market.
type marketRisk struct {
	domain.MarketSummary
	Pools         []optionPool `json:"pools"`
	RiskIndicator string       `json:"risk_indicator"`
}

// Dashboard godoc
// GET /api/admin/dashboard [JWT, admin]
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()

	markets, err := h.ledger.GetActiveMarkets(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	active := make([]marketRisk, 0, len(markets))
	totalPooled := decimal.Zero
	for _, m := range markets {
		bets, err := h.ledger.GetMarketBets(ctx, m.ID.String())
		if err != nil {
			respondDomainError(c, err)
			return
		}
		pools := poolsByOption(m, bets)
		active = append(active, marketRisk{
			MarketSummary: m.ToSummary(now),
			Pools:         pools,
			RiskIndicator: riskIndicator(pools),
		})
		totalPooled = totalPooled.Add(m.TotalPool)
	}

	// master balance is informative only; a slow chain must not hide the rest
	var master gin.H
	if bal, err := h.custody.MasterBalance(ctx); err == nil {
		master = gin.H{"address": h.custody.MasterAddress(), "balance": bal}
	} else {
		master = gin.H{"address": h.custody.MasterAddress(), "error": err.Error()}
	}

	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":      now,
		"active_markets": active,
		"total_pooled":   totalPooled,
		"master_wallet":  master,
		"ws_connections": wsConnections,
	})
}

// poolsByOption splits the market's bets per option, in option order.
func poolsByOption(m *domain.Market, bets []*domain.Bet) []optionPool {
	sums := make(map[string]decimal.Decimal, len(m.Options))
	for _, b := range bets {
		sums[b.Option] = sums[b.Option].Add(b.Amount)
	}
	total := domain.SumAmounts(bets)
	pools := make([]optionPool, 0, len(m.Options))
	for _, o := range m.Options {
		p := optionPool{Option: o, Pool: sums[o]}
		if !total.IsZero() {
			p.Pct = p.Pool.Div(total).Mul(decimal.NewFromInt(100)).RoundDown(2)
		}
		pools = append(pools, p)
	}
	return pools
}

// riskIndicator returns GREEN/YELLOW/RED based on how lopsided the pool is.
func riskIndicator(pools []optionPool) string {
	dominant := decimal.Zero
	for _, p := range pools {
		if p.Pct.GreaterThan(dominant) {
			dominant = p.Pct
		}
	}
	switch {
	case dominant.GreaterThan(decimal.NewFromInt(85)):
		return "RED"
	case dominant.GreaterThan(decimal.NewFromInt(70)):
		return "YELLOW"
	default:
		return "GREEN"
	}
}
