package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alertops/backend/internal/model"
	"github.com/alertops/backend/internal/service"
)

type ApprovalHandler struct {
	svc *service.ApprovalService
}

func NewApprovalHandler(svc *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{svc: svc}
}

// ListApprovals godoc
// @Summary List approval requests
// @Tags approvals
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status (pending, approved, rejected, expired)"
// @Success 200 {object} model.ApprovalListResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/approvals [get]
func (h *ApprovalHandler) ListApprovals(c *gin.Context) {
	user := GetAuthUser(c)

	list, err := h.svc.List(c.Request.Context(), user.CompanyID, c.Query("status"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ApprovalListResponse{
		Status: "success",
		Data:   list,
	})
}

// ApproveRequest godoc
// @Summary Approve a pending request and dispatch the action
// @Description Medium risk requires operator role, high risk requires admin. Expired requests return 410.
// @Tags approvals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} model.ApprovalRequest
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 410 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/approvals/{id}/approve [post]
func (h *ApprovalHandler) ApproveRequest(c *gin.Context) {
	user := GetAuthUser(c)

	req, err := h.svc.Approve(c.Request.Context(), *user, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RejectRequest godoc
// @Summary Reject a pending request
// @Tags approvals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} model.ApprovalRequest
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 410 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/approvals/{id}/reject [post]
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	user := GetAuthUser(c)

	req, err := h.svc.Reject(c.Request.Context(), *user, c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
