package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mstgnz/cloverbridge/infra/config"
	"github.com/mstgnz/cloverbridge/infra/kv"
	"github.com/mstgnz/cloverbridge/infra/opensearch"
	"github.com/mstgnz/cloverbridge/infra/response"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	store      kv.Store
	opensearch *opensearch.Client
	startTime  time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Timestamp   time.Time      `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Environment string         `json:"environment"`
	Store       *StoreHealth   `json:"store"`
	Logging     *LoggingHealth `json:"logging"`
	System      *SystemHealth  `json:"system"`
}

// StoreHealth reports key-value store reachability.
type StoreHealth struct {
	Status       string        `json:"status"`
	Connected    bool          `json:"connected"`
	ResponseTime time.Duration `json:"response_time_ms"`
	Error        string        `json:"error,omitempty"`
}

// LoggingHealth reports the OpenSearch event-log status.
type LoggingHealth struct {
	Status  string `json:"status"`
	Enabled bool   `json:"enabled"`
}

// SystemHealth reports process resource usage.
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// NewHealthHandler creates a new health handler. opensearchClient may be nil.
func NewHealthHandler(store kv.Store, opensearchClient *opensearch.Client) *HealthHandler {
	return &HealthHandler{
		store:      store,
		opensearch: opensearchClient,
		startTime:  time.Now(),
	}
}

// CheckHealth performs health checks on the store and reports system stats.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).String(),
		Environment: config.GetEnv("ENVIRONMENT", "development"),
		Store:       h.checkStoreHealth(ctx),
		Logging:     h.checkLoggingHealth(),
		System:      h.checkSystemHealth(),
	}

	health.Status = "healthy"
	statusCode := http.StatusOK
	if !health.Store.Connected {
		health.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status == "healthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

// checkStoreHealth verifies the store with a write/consume round trip.
func (h *HealthHandler) checkStoreHealth(ctx context.Context) *StoreHealth {
	storeHealth := &StoreHealth{Status: "unknown"}

	if h.store == nil {
		storeHealth.Status = "not_configured"
		storeHealth.Error = "Store not configured"
		return storeHealth
	}

	start := time.Now()
	key := "health_check_" + fmt.Sprint(start.UnixNano())

	if err := h.store.Set(ctx, key, []byte("ok"), time.Minute); err != nil {
		storeHealth.Status = "unhealthy"
		storeHealth.Error = err.Error()
		storeHealth.ResponseTime = time.Since(start)
		return storeHealth
	}
	if _, err := h.store.GetDelete(ctx, key); err != nil {
		storeHealth.Status = "unhealthy"
		storeHealth.Error = err.Error()
		storeHealth.ResponseTime = time.Since(start)
		return storeHealth
	}

	storeHealth.Connected = true
	storeHealth.ResponseTime = time.Since(start)
	storeHealth.Status = "healthy"
	if storeHealth.ResponseTime > time.Second {
		storeHealth.Status = "degraded"
	}

	return storeHealth
}

func (h *HealthHandler) checkLoggingHealth() *LoggingHealth {
	logging := &LoggingHealth{Status: "not_configured"}

	if h.opensearch != nil && h.opensearch.IsEnabled() {
		logging.Enabled = true
		logging.Status = "healthy"
	}

	return logging
}

func (h *HealthHandler) checkSystemHealth() *SystemHealth {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return &SystemHealth{
		Alloc:      formatBytes(memStats.Alloc),
		Sys:        formatBytes(memStats.Sys),
		GCRuns:     memStats.NumGC,
		GoRoutines: runtime.NumGoroutine(),
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
