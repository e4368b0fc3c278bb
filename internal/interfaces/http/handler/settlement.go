package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	appsettlement "github.com/propledger/backend/internal/application/settlement"
	"github.com/propledger/backend/internal/domain/settlement"
	"github.com/propledger/backend/internal/interfaces/http/dto"
	"github.com/propledger/backend/internal/interfaces/http/middleware"
)

// SettlementService is the part of the application service the API uses
type SettlementService interface {
	PlanFromBatch(ctx context.Context, batch settlement.Batch, investorIDs ...string) (*appsettlement.PlanResult, error)
	PlanForSelection(ctx context.Context, sel appsettlement.Selection) (*appsettlement.PlanResult, error)
	PlanSingleProperty(ctx context.Context, tenantID, propertyID string, period settlement.Period) (*appsettlement.PlanResult, error)
	ExportStatement(ctx context.Context, result *appsettlement.PlanResult) (*appsettlement.StatementExport, error)
}

// SettlementHandler serves settlement plans and statements
type SettlementHandler struct {
	BaseHandler
	service SettlementService
}

// NewSettlementHandler creates a SettlementHandler
func NewSettlementHandler(service SettlementService) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// RegisterRoutes mounts the settlement endpoints under the API group
func (h *SettlementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	settlements := rg.Group("/settlements")
	settlements.POST("/plan", h.PlanBatch)
	settlements.POST("/plan/selection", h.PlanSelection)
	settlements.POST("/statements", h.ExportStatement)

	rg.GET("/properties/:id/settlements/:year/:month", h.PlanProperty)
}

// PlanBatch plans a caller supplied batch
// POST /api/v1/settlements/plan
func (h *SettlementHandler) PlanBatch(c *gin.Context) {
	var req dto.PlanBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.service.PlanFromBatch(c.Request.Context(), req.ToBatch(), req.InvestorIDs...)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPlanResponse(result))
}

// PlanSelection plans stored property-months of the request's tenant
// POST /api/v1/settlements/plan/selection
func (h *SettlementHandler) PlanSelection(c *gin.Context) {
	sel, ok := h.bindSelection(c)
	if !ok {
		return
	}

	result, err := h.service.PlanForSelection(c.Request.Context(), sel)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPlanResponse(result))
}

// PlanProperty plans one stored property-month
// GET /api/v1/properties/:id/settlements/:year/:month
func (h *SettlementHandler) PlanProperty(c *gin.Context) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return
	}

	propertyID := strings.TrimSpace(c.Param("id"))
	year, yearErr := strconv.Atoi(c.Param("year"))
	month, monthErr := strconv.Atoi(c.Param("month"))
	period := settlement.NewPeriod(year, month)
	if propertyID == "" || yearErr != nil || monthErr != nil || !period.IsValid() {
		h.BadRequest(c, "Expected /properties/{id}/settlements/{year}/{month} with month 1-12")
		return
	}

	result, err := h.service.PlanSingleProperty(c.Request.Context(), tenantID, propertyID, period)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPlanResponse(result))
}

// ExportStatement plans a selection and stores its CSV statement
// POST /api/v1/settlements/statements
func (h *SettlementHandler) ExportStatement(c *gin.Context) {
	sel, ok := h.bindSelection(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	result, err := h.service.PlanForSelection(ctx, sel)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	export, err := h.service.ExportStatement(ctx, result)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.StatementResponse{
		Plan:      dto.NewPlanResponse(result),
		Statement: export,
	})
}

func (h *SettlementHandler) bindSelection(c *gin.Context) (appsettlement.Selection, bool) {
	tenantID, ok := h.requireTenant(c)
	if !ok {
		return appsettlement.Selection{}, false
	}
	var req dto.SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return appsettlement.Selection{}, false
	}
	return req.ToSelection(tenantID), true
}

// requireTenant answers 400 when the tenant middleware resolved no tenant
func (h *SettlementHandler) requireTenant(c *gin.Context) (string, bool) {
	tenantID := middleware.GetTenantID(c)
	if tenantID == "" {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeMissingTenant, "Tenant identification required")
		return "", false
	}
	return tenantID, true
}
