package handlers

import (
	"solana-ledger-gateway/internal/models"
	"solana-ledger-gateway/internal/services"
	"solana-ledger-gateway/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Router handles HTTP routing setup
type Router struct {
	balanceHandler *BalanceHandler
	txHandler      *TxHandler
	healthHandler  *HealthHandler
}

// NewRouter creates a new Router instance with all handlers. healthHandler may be nil when no admin listener runs.
func NewRouter(ledgerService services.LedgerServiceInterface, healthHandler *HealthHandler) *Router {
	return &Router{
		balanceHandler: NewBalanceHandler(ledgerService),
		txHandler:      NewTxHandler(ledgerService),
		healthHandler:  healthHandler,
	}
}

// SetupRoutes configures the public account query routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/balance/:address", r.balanceHandler.GetBalance)
	engine.GET("/txs/:address", r.txHandler.GetTxHistory)

	engine.NoRoute(notFound)
}

// SetupAdminRoutes configures health, status and metrics routes for the admin listener
func (r *Router) SetupAdminRoutes(engine *gin.Engine, collector *metrics.MetricsCollector) {
	health := engine.Group("/health")
	{
		health.GET("", r.healthHandler.GetHealth)          // Overall health
		health.GET("/live", r.healthHandler.GetLiveness)   // Liveness check
		health.GET("/ready", r.healthHandler.GetReadiness) // Readiness check
	}

	engine.GET("/status", r.healthHandler.GetStatus)
	engine.GET("/metrics", gin.WrapH(collector.Handler()))

	engine.NoRoute(notFound)
}

func notFound(c *gin.Context) {
	models.HandleError(c, models.NewAppError(models.ErrorCodeNotFound, "Not found"), nil)
}
