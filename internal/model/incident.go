package model

import "time"

// ============================================================================
// Incident 모델 (장애 단위)
// ============================================================================

// IncidentStatus - 인시던트 상태
// new → assigned → in_progress → resolved 순으로만 전이하며,
// escalated는 SLA 위반 시 Escalation Scheduler가 설정한다.
// resolved는 종료 상태이며 재오픈되지 않는다 (같은 aggregation_key의
// 새 알림은 새 인시던트를 만든다).
type IncidentStatus string

const (
	IncidentStatusNew        IncidentStatus = "new"
	IncidentStatusAssigned   IncidentStatus = "assigned"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusEscalated  IncidentStatus = "escalated"
)

// Terminal - 종료 상태 여부 (스케줄러는 종료 인시던트를 건너뛴다)
func (s IncidentStatus) Terminal() bool {
	return s == IncidentStatusResolved
}

// Incident - 같은 근본 원인으로 추정되는 Alert 묶음
// 멤버 Alert는 alerts.incident_id 역참조로 관리하고,
// 여기에는 집계 값(개수, tool_sources 합집합, 최대 severity)만 유지한다.
type Incident struct {
	IncidentID     string         `json:"incident_id"`
	CompanyID      string         `json:"company_id"`
	AggregationKey string         `json:"aggregation_key"` // 예: "srv-web-01|high_cpu"
	AssetName      string         `json:"asset_name"`      // 그룹의 대상 자산 (점수 재계산 시 criticality 조회용)
	Severity       Severity       `json:"severity"`        // 멤버 Alert 중 최대값
	PriorityScore  float64        `json:"priority_score"`
	Status         IncidentStatus `json:"status"`
	ToolSources    []string       `json:"tool_sources"`
	AlertCount     int            `json:"alert_count"`

	CreatedAt  time.Time  `json:"created_at"`
	AssignedAt *time.Time `json:"assigned_at"`
	ResolvedAt *time.Time `json:"resolved_at"`

	// SLA 마감 시각 (생성 시 SLAConfig 기준으로 계산, 이후 불변)
	ResponseDeadline   time.Time `json:"response_deadline"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`

	// EscalationLevel - 0..3, 단조 증가
	EscalationLevel int `json:"escalation_level"`

	// LastNotifiedLevel - 알림 발송까지 끝난 레벨
	// EscalationLevel보다 작으면 직전 알림이 실패한 것이고 다음 tick에서 재발송한다.
	LastNotifiedLevel int `json:"last_notified_level"`

	// LastWarningSentAt - SLA 경고 중복 발송 방지용
	LastWarningSentAt *time.Time `json:"last_warning_sent_at,omitempty"`
}

// CorrelationResult - Correlate 1회 수행 결과 (관측용 집계)
type CorrelationResult struct {
	AlertsBefore      int     `json:"alerts_before"`
	AlertsAfter       int     `json:"alerts_after"`
	IncidentsCreated  int     `json:"incidents_created"`
	IncidentsUpdated  int     `json:"incidents_updated"`
	DuplicatesFound   int     `json:"duplicates_found"`
	NoiseReductionPct float64 `json:"noise_reduction_pct"`
}

// IncidentListResponse - Incident 목록 조회용 구조체
type IncidentListResponse struct {
	IncidentID      string         `json:"incident_id"`
	AggregationKey  string         `json:"aggregation_key"`
	Severity        Severity       `json:"severity"`
	PriorityScore   float64        `json:"priority_score"`
	Status          IncidentStatus `json:"status"`
	EscalationLevel int            `json:"escalation_level"`
	AlertCount      int            `json:"alert_count"`
	CreatedAt       time.Time      `json:"created_at"`
	ResolvedAt      *time.Time     `json:"resolved_at"`
}

// IncidentDetailResponse - Incident 상세 조회용 구조체 (멤버 Alert 포함)
type IncidentDetailResponse struct {
	Incident
	Alerts []AlertListResponse `json:"alerts,omitempty"`
}

// AssignIncidentRequest - 담당자 배정 요청
type AssignIncidentRequest struct {
	AssignedTo string `json:"assigned_to" binding:"required"`
}

// ResolveIncidentRequest - 인시던트 종료 요청
type ResolveIncidentRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
}

// SimilarIncident - 벡터 검색으로 찾은 과거 유사 인시던트
type SimilarIncident struct {
	IncidentID     string   `json:"incident_id"`
	AggregationKey string   `json:"aggregation_key"`
	Severity       Severity `json:"severity"`
	Summary        string   `json:"summary"`
	Distance       float64  `json:"distance"`
}
