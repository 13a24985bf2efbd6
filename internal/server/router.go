package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"TrancheVault/internal/observability"
)

// NewRouter assembles the HTTP surface. Health and metrics live alongside
// the v1 API so a single listener serves everything; the metrics server
// in cmd can still expose /metrics separately if configured.
func NewRouter(h *Handler, health *observability.HealthChecker, metrics *observability.Metrics, log zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestMetrics(metrics))
	r.Use(ErrorHandler(log))

	r.GET("/healthz", gin.WrapF(health.LivenessHandler))
	r.GET("/readyz", gin.WrapF(health.ReadinessHandler))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/markets", h.ListMarkets)
		v1.GET("/markets/:id/ledger", h.GetLedger)
		v1.GET("/markets/:id/limits", h.GetLimits)
		v1.POST("/markets/:id/deposit", h.Deposit)
		v1.POST("/markets/:id/redeem", h.SeniorRedeem)
		v1.POST("/markets/:id/redeem-requests", h.RequestRedeem)
		v1.GET("/markets/:id/redeem-requests", h.ListRequests)
		v1.POST("/markets/:id/redeem-requests/:reqID/claim", h.Redeem)
		v1.POST("/markets/:id/redeem-requests/:reqID/cancel", h.CancelRequest)
		v1.POST("/markets/:id/redeem-requests/:reqID/claim-cancel", h.ClaimCancel)
		v1.POST("/markets/:id/fees/claim", h.ClaimFees)
		v1.POST("/markets/:id/sync", h.Sync)
		v1.POST("/venues/:id/mark", h.InjectMark)
	}

	return r
}
