package api

import (
	"net/http"
	"topup-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handler) {
	r.Use(middleware.MetricsMiddleware())

	// API route group
	api := r.Group("/api")
	{
		// Storefront submissions (rate limited per client IP)
		api.POST("/payments",
			middleware.RateLimitMiddleware(h.Config.SubmitRatePerSecond, h.Config.SubmitRateBurst),
			h.SubmitPayment)

		// Operator channel webhook (Telegram calls this)
		api.POST("/telegram/action", h.TelegramAction)

		api.GET("/site-config", h.GetSiteConfig)
		api.GET("/invoice", h.GetInvoice)

		// Wallet routes (require an identity provider access token)
		wallet := api.Group("/wallet")
		wallet.Use(middleware.AccountAuthMiddleware(h.Config.JWTSecret))
		{
			wallet.GET("/balance", h.GetWalletBalance)
			wallet.POST("/purchase", h.PurchaseWithBalance)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "topup-api",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
