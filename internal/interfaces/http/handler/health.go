package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"github.com/propledger/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes
type HealthHandler struct {
	BaseHandler
	name         string
	version      string
	startTime    time.Time
	pingTimeout  time.Duration
	dependencies map[string]Pinger
}

// HealthOption configures a HealthHandler
type HealthOption func(*HealthHandler)

// WithDependency adds a dependency checked by the readiness probe
func WithDependency(name string, p Pinger) HealthOption {
	return func(h *HealthHandler) {
		if p != nil {
			h.dependencies[name] = p
		}
	}
}

// WithPingTimeout bounds each readiness check
func WithPingTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		h.pingTimeout = d
	}
}

// NewHealthHandler creates a HealthHandler
func NewHealthHandler(name, version string, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		name:         name,
		version:      version,
		startTime:    time.Now(),
		pingTimeout:  2 * time.Second,
		dependencies: make(map[string]Pinger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// ReadyResponse is the readiness payload
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// RegisterRoutes mounts the probes on the root group
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	rg.GET("/ready", h.Ready)
}

// Health answers 200 while the process serves requests
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	h.Success(c, HealthResponse{
		Status:    "ok",
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Ready pings every dependency and answers 503 when any fails
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(h.dependencies))}

	for name, dep := range h.dependencies {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
		err := dep.Ping(ctx)
		cancel()
		if err != nil {
			logger.L(c.Request.Context()).Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			resp.Checks[name] = "unavailable"
			resp.Status = "not_ready"
			continue
		}
		resp.Checks[name] = "ok"
	}

	if resp.Status != "ready" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    resp,
			Error:   &dto.ErrorInfo{Code: dto.ErrCodeServiceUnavailable, Message: "dependency unavailable", RequestID: getRequestID(c)},
		})
		return
	}
	h.Success(c, resp)
}
