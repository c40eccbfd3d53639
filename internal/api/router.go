package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evetabi/wagerbot/internal/api/handler"
	"github.com/evetabi/wagerbot/internal/api/middleware"
	"github.com/evetabi/wagerbot/internal/config"
	"github.com/evetabi/wagerbot/internal/service"
	"github.com/evetabi/wagerbot/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	Ledger  *service.LedgerService
	Custody *service.CustodyService
	Intents *service.IntentService
	Hub     *ws.Hub // optional
	Cfg     *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules. ctx bounds the rate limiters'
// background eviction.
func SetupRouter(ctx context.Context, deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	intentH := handler.NewIntentHandler(deps.Intents)
	marketH := handler.NewMarketHandler(deps.Ledger)
	walletH := handler.NewWalletHandler(deps.Custody, deps.Ledger)
	dashH := handler.NewDashboardHandler(deps.Ledger, deps.Custody, deps.Hub)

	jwtMW := middleware.JWTMiddleware([]byte(deps.Cfg.Auth.JWTSecret.Reveal()))

	// ── Rate limiters ─────────────────────────────────────────────────────────
	// publicRL keys on IP; writeRL runs after jwtMW and keys on the identifier.
	publicRL := middleware.RateLimitMiddleware(ctx, deps.Cfg.HTTP.RateLimitRPS)
	writeRL := middleware.RateLimitMiddleware(ctx, deps.Cfg.HTTP.RateLimitRPS)

	api := r.Group("/api")
	{
		// ── Markets (public) ─────────────────────────────────────────────────
		markets := api.Group("/markets")
		markets.Use(publicRL)
		{
			markets.GET("/active", marketH.GetActive)
			markets.GET("/:id", marketH.GetByID)
			markets.GET("/:id/bets", marketH.GetBets)
		}

		// ── Authenticated routes ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW, writeRL)
		{
			authed.POST("/intents", intentH.Handle)
			authed.POST("/markets", marketH.Create)
			authed.POST("/markets/:id/bets", marketH.PlaceBet)

			me := authed.Group("/me")
			{
				me.GET("/wallet", walletH.GetWallet)
				me.GET("/bets", walletH.GetMyBets)
				me.POST("/transfers", walletH.Transfer)
			}

			// ── Admin ─────────────────────────────────────────────────────────
			admin := authed.Group("/admin")
			admin.Use(middleware.IPAllowlist(deps.Cfg.HTTP.AdminIPs), middleware.AdminMiddleware())
			{
				admin.GET("/dashboard", dashH.Dashboard)
				admin.POST("/markets/:id/resolve", marketH.Resolve)
				admin.POST("/markets/:id/close", marketH.Close)
				admin.GET("/markets/:id/verify", marketH.Verify)
				admin.POST("/wallets/:identifier/fund", walletH.Fund)
				admin.GET("/master", walletH.Master)
			}
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware sets CORS headers. Outside production every origin is
// allowed; in production only CORS_ALLOWED_ORIGINS.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.HTTP.AllowedOrigins))
	for _, o := range cfg.HTTP.AllowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case !cfg.IsProd():
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
