// 모니터링 도구가 보내는 개별 알림(Alert) 및 인입 페이로드 구조체 정의
// handler, service, db 레이어에서 공통으로 사용하기 때문에 model 레이어에 별도로 정의

package model

import "time"

// Alert 상태
const (
	AlertStatusActive     = "active"     // 아직 인시던트에 묶이지 않음
	AlertStatusCorrelated = "correlated" // Correlation Engine이 인시던트에 연결함
)

// Alert - 모니터링 도구가 보낸 원시 알림 1건
// DeliveryID가 같은 재전송 알림은 24시간 동안 중복으로 처리되어 새 Alert를 만들지 않는다.
type Alert struct {
	AlertID    string    `json:"alert_id"`
	CompanyID  string    `json:"company_id"`
	AssetName  string    `json:"asset_name"`
	Signature  string    `json:"signature"` // 이슈 유형 (예: high_cpu, disk_full)
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	ToolSource string    `json:"tool_source"` // 발신 모니터링 도구 (예: datadog, zabbix)
	DeliveryID string    `json:"delivery_id"` // 멱등성 키
	IncidentID *string   `json:"incident_id"` // null 가능 (아직 인시던트에 연결되지 않은 경우)
	Status     string    `json:"status"`      // active, correlated
	ReceivedAt time.Time `json:"received_at"`
}

// AlertWebhookPayload - POST /webhooks/alerts 요청 바디
// 필수 필드 검증은 Ingress Gate(service.IngestService)에서 수행
type AlertWebhookPayload struct {
	AssetName  string `json:"asset_name"`
	Signature  string `json:"signature"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	ToolSource string `json:"tool_source"`
}

// AlertAcceptedResponse - 인입 성공/중복 응답
type AlertAcceptedResponse struct {
	Status    string `json:"status"`
	AlertID   string `json:"alert_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// RateLimitedResponse - 429 응답 바디
// retry_after_seconds는 윈도우가 리셋될 때까지 남은 초
type RateLimitedResponse struct {
	Detail            string `json:"detail"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	Limit             int    `json:"limit"`
	Remaining         int    `json:"remaining"`
	Burst             int    `json:"burst"`
}

// AlertListResponse - Alert 목록 조회용 구조체
type AlertListResponse struct {
	AlertID    string    `json:"alert_id"`
	IncidentID *string   `json:"incident_id"`
	AssetName  string    `json:"asset_name"`
	Signature  string    `json:"signature"`
	Severity   Severity  `json:"severity"`
	ToolSource string    `json:"tool_source"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}
