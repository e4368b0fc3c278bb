package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/propledger/backend/internal/infrastructure/logger"
	"github.com/propledger/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const (
	// TenantHeader names the tenant of the request
	TenantHeader = "X-Tenant-ID"
	// TenantIDKey is where Tenant stores the tenant ID in gin.Context
	TenantIDKey = "tenant_id"
)

// TenantConfig holds configuration for the tenant middleware
type TenantConfig struct {
	// Required rejects requests without a tenant
	Required bool
	// DefaultTenantID is used when the header is absent
	DefaultTenantID string
	// SkipPaths never need a tenant
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultTenantConfig returns a configuration that requires a tenant on
// every path but the probes
func DefaultTenantConfig() TenantConfig {
	return TenantConfig{
		Required:  true,
		SkipPaths: []string{"/health", "/ready"},
	}
}

// Tenant resolves the tenant from X-Tenant-ID, validates it as a UUID and
// stores it in gin.Context and in the request's logging context
func Tenant(cfg TenantConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skip := range cfg.SkipPaths {
			if path == skip || strings.HasPrefix(path, skip+"/") {
				c.Next()
				return
			}
		}

		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			tenantID = cfg.DefaultTenantID
		}

		if tenantID == "" {
			if cfg.Required {
				abortTenant(c, "Tenant identification required")
				return
			}
			c.Next()
			return
		}

		if _, err := uuid.Parse(tenantID); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Debug("Rejected tenant header", zap.String("path", path), zap.Error(err))
			}
			abortTenant(c, "Invalid tenant ID format")
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Request = c.Request.WithContext(logger.WithTenantID(c.Request.Context(), tenantID))
		c.Next()
	}
}

// GetTenantID returns the tenant resolved by Tenant, or ""
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

func abortTenant(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeMissingTenant,
		message,
		GetRequestID(c),
	))
}
