package services

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus represents the health status of a service
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Service      string        `json:"service"`
	Status       HealthStatus  `json:"status"`
	Message      string        `json:"message,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	Timestamp    time.Time     `json:"timestamp"`
}

// DefaultSlowThreshold marks a reachable but sluggish node as degraded
const DefaultSlowThreshold = 2 * time.Second

// RPCHealthChecker provides health check functionality for the upstream ledger node
type RPCHealthChecker struct {
	reporter      HealthReporter
	endpoint      string
	slowThreshold time.Duration
}

// NewRPCHealthChecker creates a new upstream health checker
func NewRPCHealthChecker(reporter HealthReporter, endpoint string) *RPCHealthChecker {
	return &RPCHealthChecker{
		reporter:      reporter,
		endpoint:      endpoint,
		slowThreshold: DefaultSlowThreshold,
	}
}

// WithSlowThreshold overrides the latency above which a healthy answer counts as degraded
func (hc *RPCHealthChecker) WithSlowThreshold(d time.Duration) *RPCHealthChecker {
	hc.slowThreshold = d
	return hc
}

// CheckHealth calls getHealth once and classifies the answer
func (hc *RPCHealthChecker) CheckHealth(ctx context.Context) *HealthCheck {
	start := time.Now()

	healthCheck := &HealthCheck{
		Service:   "solana_rpc",
		Timestamp: start,
	}

	err := hc.reporter.IsHealthy(ctx)
	healthCheck.ResponseTime = time.Since(start)

	switch {
	case err != nil:
		healthCheck.Status = HealthStatusUnhealthy
		healthCheck.Message = fmt.Sprintf("getHealth failed: %v", err)
	case hc.slowThreshold > 0 && healthCheck.ResponseTime > hc.slowThreshold:
		healthCheck.Status = HealthStatusDegraded
		healthCheck.Message = fmt.Sprintf("slow response from %s", hc.endpoint)
	default:
		healthCheck.Status = HealthStatusHealthy
		healthCheck.Message = "node reports ok"
	}

	return healthCheck
}
