package model

import "time"

// RiskLevel - 자동조치(remediation) 위험 등급
// low는 즉시 실행, medium/high는 반드시 승인 요청을 거친다.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// ApprovalStatus - 승인 요청 상태
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest - medium/high 위험 조치에 대한 승인 요청
// 생성 후 1시간이 지나면 만료되며, 만료된 요청은 절대 자동 실행되지 않는다.
type ApprovalRequest struct {
	RequestID  string         `json:"request_id"`
	CompanyID  string         `json:"company_id"`
	IncidentID string         `json:"incident_id"`
	Action     string         `json:"action"` // 실행할 조치 (예: "restart nginx")
	RiskLevel  RiskLevel      `json:"risk_level"`
	Status     ApprovalStatus `json:"status"`
	ExpiresAt  time.Time      `json:"expires_at"`
	ApprovedBy *string        `json:"approved_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// DispatchRequest - POST /incidents/{id}/dispatch 요청 바디
type DispatchRequest struct {
	Action    string `json:"action" binding:"required"`
	RiskLevel string `json:"risk_level" binding:"required"`
}

// DispatchResponse - Approval Gate 판정 결과
// result: dispatched | pending_approval | rejected
type DispatchResponse struct {
	Result    string `json:"result"`
	RequestID string `json:"request_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}
