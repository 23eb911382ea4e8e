package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mstgnz/gopos/infra/response"
	"github.com/mstgnz/gopos/provider"
)

// StatsProvider reports account store statistics; an error marks the
// store unhealthy.
type StatsProvider interface {
	Stats(ctx context.Context) (map[string]any, error)
}

// Pinger checks a backing service such as Redis.
type Pinger func(ctx context.Context) error

// HealthHandler handles health check requests
type HealthHandler struct {
	accounts    StatsProvider
	sessions    Pinger
	cache       func() provider.CacheStats
	gateways    func() []string
	auditOn     bool
	environment string
	startTime   time.Time
}

// HealthOptions wires a HealthHandler. Nil checks are reported as not
// configured.
type HealthOptions struct {
	Accounts    StatsProvider
	Sessions    Pinger
	CacheStats  func() provider.CacheStats
	Gateways    func() []string
	AuditOn     bool
	Environment string
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Gateways    []string                  `json:"gateways"`
	Services    map[string]*ServiceHealth `json:"services"`
	System      *SystemHealth             `json:"system"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status      string         `json:"status"`
	Healthy     bool           `json:"healthy"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// SystemHealth represents system resource health
type SystemHealth struct {
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	GCRuns     uint32 `json:"gc_runs"`
	GoRoutines int    `json:"goroutines"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(opts HealthOptions) *HealthHandler {
	return &HealthHandler{
		accounts:    opts.Accounts,
		sessions:    opts.Sessions,
		cache:       opts.CacheStats,
		gateways:    opts.Gateways,
		auditOn:     opts.AuditOn,
		environment: opts.Environment,
		startTime:   time.Now(),
	}
}

// CheckHealth reports the state of the stores and the registered gateways.
// The account store is critical; everything else only degrades.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := &HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: h.environment,
		Services:    h.checkServices(ctx),
		System:      checkSystem(),
	}
	if h.gateways != nil {
		health.Gateways = h.gateways()
	}
	health.Status = determineOverallStatus(health)

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	_ = response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: health.Status != "unhealthy",
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func (h *HealthHandler) checkServices(ctx context.Context) map[string]*ServiceHealth {
	services := make(map[string]*ServiceHealth)

	accounts := &ServiceHealth{Description: "Merchant account store"}
	if h.accounts == nil {
		accounts.Status = "not_configured"
	} else if stats, err := h.accounts.Stats(ctx); err != nil {
		accounts.Status, accounts.Error = "unhealthy", err.Error()
	} else {
		accounts.Status, accounts.Healthy, accounts.Details = "healthy", true, stats
	}
	if h.cache != nil {
		if accounts.Details == nil {
			accounts.Details = map[string]any{}
		}
		accounts.Details["cache"] = h.cache()
	}
	services["account_store"] = accounts

	sessions := &ServiceHealth{Description: "3D session store"}
	if h.sessions == nil {
		sessions.Status, sessions.Healthy = "in_memory", true
	} else if err := h.sessions(ctx); err != nil {
		sessions.Status, sessions.Error = "degraded", err.Error()
	} else {
		sessions.Status, sessions.Healthy = "healthy", true
	}
	services["session_store"] = sessions

	audit := &ServiceHealth{Description: "OpenSearch audit log"}
	if h.auditOn {
		audit.Status, audit.Healthy = "healthy", true
	} else {
		audit.Status = "disabled"
	}
	services["audit_log"] = audit

	return services
}

func determineOverallStatus(health *HealthStatus) string {
	if s := health.Services["account_store"]; s != nil && s.Status == "unhealthy" {
		return "unhealthy"
	}
	if len(health.Gateways) == 0 {
		return "unhealthy"
	}
	if s := health.Services["session_store"]; s != nil && s.Status == "degraded" {
		return "degraded"
	}
	return "healthy"
}

func checkSystem() *SystemHealth {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return &SystemHealth{
		Alloc:      formatBytes(mem.Alloc),
		Sys:        formatBytes(mem.Sys),
		GCRuns:     mem.NumGC,
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
