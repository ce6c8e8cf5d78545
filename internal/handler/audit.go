package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alertops/backend/internal/db"
	"github.com/alertops/backend/internal/model"
)

type AuditHandler struct {
	repo *db.Postgres
}

func NewAuditHandler(repo *db.Postgres) *AuditHandler {
	return &AuditHandler{repo: repo}
}

// ListAudit godoc
// @Summary List audit entries
// @Description Every escalation/approval transition writes one entry.
// @Tags audit
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows (default 100)"
// @Success 200 {object} model.AuditListResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/audit [get]
func (h *AuditHandler) ListAudit(c *gin.Context) {
	user := GetAuthUser(c)
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.repo.ListAudit(c.Request.Context(), user.CompanyID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.JSON(http.StatusOK, model.AuditListResponse{
		Status: "success",
		Data:   list,
	})
}
