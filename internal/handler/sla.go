package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alertops/backend/internal/model"
	"github.com/alertops/backend/internal/service"
)

type SLAHandler struct {
	svc *service.SLAService
}

func NewSLAHandler(svc *service.SLAService) *SLAHandler {
	return &SLAHandler{svc: svc}
}

// GetSLAConfig godoc
// @Summary Get tenant SLA config
// @Description Returns the stored config with defaults filled for missing severities.
// @Tags sla
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SLAConfig
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/sla-config [get]
func (h *SLAHandler) GetSLAConfig(c *gin.Context) {
	user := GetAuthUser(c)

	cfg, err := h.svc.Config(c.Request.Context(), user.CompanyID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// PutSLAConfig godoc
// @Summary Update tenant SLA config
// @Tags sla
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.SLAConfig true "SLA config"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/sla-config [put]
func (h *SLAHandler) PutSLAConfig(c *gin.Context) {
	user := GetAuthUser(c)

	var cfg model.SLAConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	cfg.CompanyID = user.CompanyID

	if err := h.svc.UpdateConfig(c.Request.Context(), cfg); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "updated"})
}

// GetSLAReport godoc
// @Summary SLA compliance report
// @Description Response/resolution compliance percentages over a trailing window, broken down by severity.
// @Tags sla
// @Produce json
// @Security BearerAuth
// @Param days query int false "Trailing window in days (default 30)"
// @Success 200 {object} model.SLAReportResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/sla-report [get]
func (h *SLAHandler) GetSLAReport(c *gin.Context) {
	user := GetAuthUser(c)
	days, _ := strconv.Atoi(c.Query("days"))

	report, err := h.svc.Report(c.Request.Context(), user.CompanyID, days)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
