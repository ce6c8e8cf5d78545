package model

import (
	"encoding/json"
	"time"
)

// AuditEntry - 상태 전이 감사 기록
// 에스컬레이션/승인 전이마다 반드시 1건씩 남긴다 (best-effort 아님).
type AuditEntry struct {
	ID         int64           `json:"id"`
	CompanyID  string          `json:"company_id"`
	Actor      string          `json:"actor"`  // 사용자 login_id 또는 "scheduler"
	Action     string          `json:"action"` // 예: incident.escalated, approval.approved
	IncidentID string          `json:"incident_id,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty" swaggertype:"object"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Audit action 상수 - 감사 기록의 action 필드 값
const (
	AuditIncidentEscalated = "incident.escalated"
	AuditIncidentAssigned  = "incident.assigned"
	AuditIncidentResolved  = "incident.resolved"
	AuditSLAWarning        = "sla.warning_sent"
	AuditApprovalCreated   = "approval.created"
	AuditApprovalApproved  = "approval.approved"
	AuditApprovalRejected  = "approval.rejected"
	AuditApprovalExpired   = "approval.expired"
	AuditActionDispatched  = "action.dispatched"
)
