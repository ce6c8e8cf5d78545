package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alertops/backend/internal/model"
	"github.com/alertops/backend/internal/service"
)

type IncidentHandler struct {
	svc         *service.IncidentService
	correlation *service.CorrelationService
	sla         *service.SLAService
	approval    *service.ApprovalService
	embedding   *service.EmbeddingService
}

func NewIncidentHandler(
	svc *service.IncidentService,
	correlation *service.CorrelationService,
	sla *service.SLAService,
	approval *service.ApprovalService,
	embedding *service.EmbeddingService,
) *IncidentHandler {
	return &IncidentHandler{
		svc:         svc,
		correlation: correlation,
		sla:         sla,
		approval:    approval,
		embedding:   embedding,
	}
}

// ListIncidents godoc
// @Summary List incidents
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows (default 100)"
// @Success 200 {array} model.IncidentListResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents [get]
func (h *IncidentHandler) ListIncidents(c *gin.Context) {
	user := GetAuthUser(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	res, err := h.svc.List(c.Request.Context(), user.CompanyID, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetIncidentDetail godoc
// @Summary Get incident detail with member alerts
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} model.IncidentDetailEnvelope
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id} [get]
func (h *IncidentHandler) GetIncidentDetail(c *gin.Context) {
	user := GetAuthUser(c)

	res, err := h.svc.Detail(c.Request.Context(), user.CompanyID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.IncidentDetailEnvelope{
		Status: "success",
		Data:   res,
	})
}

// AssignIncident godoc
// @Summary Assign an incident
// @Description Assigning stops the response-SLA clock permanently.
// @Tags incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param request body model.AssignIncidentRequest true "Assignee"
// @Success 200 {object} model.Incident
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/assign [post]
func (h *IncidentHandler) AssignIncident(c *gin.Context) {
	user := GetAuthUser(c)

	var req model.AssignIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	inc, err := h.svc.Assign(c.Request.Context(), *user, c.Param("id"), req.AssignedTo)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// ResolveIncident godoc
// @Summary Resolve an incident
// @Description Resolution is terminal. A new alert on the same aggregation key starts a new incident.
// @Tags incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param request body model.ResolveIncidentRequest true "Resolver"
// @Success 200 {object} model.Incident
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/resolve [post]
func (h *IncidentHandler) ResolveIncident(c *gin.Context) {
	user := GetAuthUser(c)

	var req model.ResolveIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	inc, err := h.svc.Resolve(c.Request.Context(), *user, c.Param("id"), req.ResolvedBy)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// TriggerCorrelation godoc
// @Summary Run correlation for the caller's tenant
// @Description Groups active alerts inside the time window into incidents. Returns 409 if a run is already in progress.
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.CorrelationResult
// @Failure 409 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents/correlate [post]
func (h *IncidentHandler) TriggerCorrelation(c *gin.Context) {
	user := GetAuthUser(c)

	res, err := h.correlation.Correlate(c.Request.Context(), user.CompanyID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetSLAStatus godoc
// @Summary Get incident SLA status
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} model.SLAStatusResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/sla-status [get]
func (h *IncidentHandler) GetSLAStatus(c *gin.Context) {
	user := GetAuthUser(c)

	res, err := h.sla.Status(c.Request.Context(), user.CompanyID, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetSimilarIncidents godoc
// @Summary Find similar past incidents
// @Description Cosine-distance KNN over resolved-incident summary embeddings.
// @Tags incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param limit query int false "Max rows (default 5)"
// @Success 200 {object} model.SimilarIncidentsResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/similar [get]
func (h *IncidentHandler) GetSimilarIncidents(c *gin.Context) {
	if h.embedding == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "similarity search requires AI_API_KEY"})
		return
	}

	user := GetAuthUser(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	res, err := h.embedding.FindSimilar(c.Request.Context(), user.CompanyID, c.Param("id"), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SimilarIncidentsResponse{
		Status: "success",
		Data:   res,
	})
}

// DispatchAction godoc
// @Summary Request a remediation action
// @Description Low-risk actions run immediately. Medium/high-risk actions create an approval request that expires after one hour.
// @Tags incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param request body model.DispatchRequest true "Action and risk level"
// @Success 200 {object} model.DispatchResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/incidents/{id}/dispatch [post]
func (h *IncidentHandler) DispatchAction(c *gin.Context) {
	user := GetAuthUser(c)

	var req model.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.approval.RequestDispatch(c.Request.Context(), *user, c.Param("id"), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
