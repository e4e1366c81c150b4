package handlers

import (
	"net/http"
	"time"

	"solana-ledger-gateway/internal/services"
	"solana-ledger-gateway/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Version is reported by the admin endpoints; overridden at build time with -ldflags
var Version = "dev"

// HealthHandler handles health check and status endpoints on the admin listener
type HealthHandler struct {
	rpcHealthChecker *services.RPCHealthChecker
	metrics          *metrics.MetricsCollector
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(rpcHealthChecker *services.RPCHealthChecker, collector *metrics.MetricsCollector) *HealthHandler {
	return &HealthHandler{
		rpcHealthChecker: rpcHealthChecker,
		metrics:          collector,
	}
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    services.HealthStatus            `json:"status"`
	Timestamp time.Time                        `json:"timestamp"`
	Services  map[string]*services.HealthCheck `json:"services"`
	Version   string                           `json:"version,omitempty"`
}

// StatusResponse is a JSON snapshot of the gateway counters
type StatusResponse struct {
	Uptime             string  `json:"uptime"`
	Version            string  `json:"version"`
	RPCHealthy         bool    `json:"rpc_healthy"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	ActiveRequests     int64   `json:"active_requests"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
	AverageResponseMs  int64   `json:"average_response_time_ms"`
	MinResponseMs      int64   `json:"min_response_time_ms"`
	MaxResponseMs      int64   `json:"max_response_time_ms"`
	RPCCalls           int64   `json:"rpc_calls"`
	RPCFailures        int64   `json:"rpc_failures"`
	RPCTimeouts        int64   `json:"rpc_timeouts"`
	AverageRPCMs       int64   `json:"average_rpc_time_ms"`
}

// GetHealth returns the overall health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	rpcCheck := h.rpcHealthChecker.CheckHealth(c.Request.Context())

	response := HealthResponse{
		Status:    rpcCheck.Status,
		Timestamp: time.Now(),
		Services:  map[string]*services.HealthCheck{"rpc": rpcCheck},
		Version:   Version,
	}

	// Degraded still answers 200
	statusCode := http.StatusOK
	if rpcCheck.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// GetLiveness returns a simple liveness check
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// GetReadiness reports ready only while the upstream node answers getHealth
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	rpcCheck := h.rpcHealthChecker.CheckHealth(c.Request.Context())

	if rpcCheck.Status == services.HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"message":   "ledger node not available",
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// GetStatus returns request and RPC counters
func (h *HealthHandler) GetStatus(c *gin.Context) {
	m := h.metrics.GetMetrics()
	rpcCheck := h.rpcHealthChecker.CheckHealth(c.Request.Context())

	c.JSON(http.StatusOK, StatusResponse{
		Uptime:             h.metrics.GetUptime().Round(time.Second).String(),
		Version:            Version,
		RPCHealthy:         rpcCheck.Status != services.HealthStatusUnhealthy,
		TotalRequests:      m.TotalRequests,
		SuccessfulRequests: m.SuccessfulRequests,
		FailedRequests:     m.FailedRequests,
		ActiveRequests:     m.ActiveRequests,
		SuccessRatePercent: h.metrics.GetSuccessRate(),
		AverageResponseMs:  m.AverageResponseTime.Milliseconds(),
		MinResponseMs:      m.MinResponseTime.Milliseconds(),
		MaxResponseMs:      m.MaxResponseTime.Milliseconds(),
		RPCCalls:           m.RPCCalls,
		RPCFailures:        m.RPCFailures,
		RPCTimeouts:        m.RPCTimeouts,
		AverageRPCMs:       m.AverageRPCTime.Milliseconds(),
	})
}
