// 인입 webhook 핸들러 정의
// 인증은 JWT가 아니라 테넌트 API 키(X-API-Key)로 한다.

package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alertops/backend/internal/model"
	"github.com/alertops/backend/internal/service"
)

// 인입 요청 최대 바디 크기 (1MB)
const maxIngestBodyBytes = 1 << 20

type IngestHandler struct {
	svc *service.IngestService
}

func NewIngestHandler(svc *service.IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// ReceiveAlert godoc
// @Summary Receive a monitoring alert
// @Description Webhook endpoint for monitoring tools. Authenticated by tenant API key (api_key query parameter or X-API-Key header), optionally HMAC-signed. Duplicate deliveries (same X-Delivery-ID within 24h) return the original alert_id with duplicate=true.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param api_key query string true "Tenant API key"
// @Param X-Delivery-ID header string false "Idempotency key"
// @Param X-Signature header string false "HMAC-SHA256 signature (sha256=<hex>)"
// @Param X-Timestamp header string false "Unix seconds used in signature"
// @Param request body model.AlertWebhookPayload true "Alert payload"
// @Success 200 {object} model.AlertAcceptedResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 429 {object} model.RateLimitedResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /webhooks/alerts [post]
func (h *IngestHandler) ReceiveAlert(c *gin.Context) {
	// 서명 검증 때문에 바인딩 전에 원시 바디가 필요하다
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	headers := service.IngestHeaders{
		Signature:  c.GetHeader("X-Signature"),
		Timestamp:  c.GetHeader("X-Timestamp"),
		DeliveryID: c.GetHeader("X-Delivery-ID"),
	}

	apiKey := c.Query("api_key")
	if apiKey == "" {
		apiKey = c.GetHeader("X-API-Key")
	}

	result, err := h.svc.Accept(c.Request.Context(), apiKey, headers, body)
	if err != nil {
		var rateErr *service.RateLimitError
		if errors.As(err, &rateErr) {
			c.Header("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
			c.JSON(http.StatusTooManyRequests, model.RateLimitedResponse{
				Detail:            "rate limit exceeded",
				RetryAfterSeconds: rateErr.RetryAfterSeconds,
				Limit:             rateErr.Limit,
				Remaining:         rateErr.Remaining,
				Burst:             rateErr.Burst,
			})
			return
		}
		writeServiceError(c, err)
		return
	}

	status := "accepted"
	if result.Duplicate {
		status = "duplicate"
	}
	c.JSON(http.StatusOK, model.AlertAcceptedResponse{
		Status:    status,
		AlertID:   result.AlertID,
		Duplicate: result.Duplicate,
	})
}
