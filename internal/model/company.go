// 테넌트(Company), 자산(Asset), 테넌트별 설정 구조체 정의

package model

import "time"

// Company - 테넌트 1개
// APIKey로 인입 요청의 테넌트를 식별하고, HMACEnabled면 서명 검증까지 수행한다.
type Company struct {
	CompanyID     string `json:"company_id"`
	Name          string `json:"name"`
	APIKey        string `json:"-"`
	WebhookSecret string `json:"-"` // HMAC-SHA256 서명 키
	HMACEnabled   bool   `json:"hmac_enabled"`

	// 인입 rate limit (60초 슬라이딩 윈도우)
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	BurstSize          int `json:"burst_size"`

	CreatedAt time.Time `json:"created_at"`
}

// Asset - 모니터링 대상 자산 (호스트/서비스)
// Ingress Gate가 알림 수락 시 이름으로 조회하고 없으면 생성한다.
type Asset struct {
	AssetID    string    `json:"asset_id"`
	CompanyID  string    `json:"company_id"`
	Name       string    `json:"name"`
	IsCritical bool      `json:"is_critical"` // true면 priority score +20
	CreatedAt  time.Time `json:"created_at"`
}

// CorrelationConfig - 테넌트별 상관분석 설정
type CorrelationConfig struct {
	CompanyID             string `json:"company_id"`
	TimeWindowMinutes     int    `json:"time_window_minutes"`     // 5~15로 제한
	AggregationKeyPattern string `json:"aggregation_key_pattern"` // 기본 "asset|signature"
	AutoCorrelate         bool   `json:"auto_correlate"`          // true면 백그라운드 스위퍼가 주기 실행
}

// EscalationTarget - 에스컬레이션 체인의 알림 대상 1개
type EscalationTarget struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// SLAConfig - 테넌트별 SLA 설정
// 마감 시간은 심각도별로 분 단위, 에스컬레이션 체인은 레벨 순서대로.
type SLAConfig struct {
	CompanyID               string             `json:"company_id"`
	ResponseMinutes         map[Severity]int   `json:"response_minutes"`
	ResolutionMinutes       map[Severity]int   `json:"resolution_minutes"`
	EscalationChain         []EscalationTarget `json:"escalation_chain"`
	WarningThresholdMinutes int                `json:"warning_threshold_minutes"`
}

// SLAStatusResponse - GET /incidents/{id}/sla-status 응답
type SLAStatusResponse struct {
	IncidentID         string     `json:"incident_id"`
	Severity           Severity   `json:"severity"`
	ResponseDeadline   time.Time  `json:"response_deadline"`
	ResolutionDeadline time.Time  `json:"resolution_deadline"`
	ResponseStatus     string     `json:"response_status"`   // on_track, warning, breached, met
	ResolutionStatus   string     `json:"resolution_status"` // on_track, warning, breached, met
	EscalationLevel    int        `json:"escalation_level"`
	AssignedAt         *time.Time `json:"assigned_at"`
	ResolvedAt         *time.Time `json:"resolved_at"`
	MTTRSeconds        *int64     `json:"mttr_seconds,omitempty"`
}

// SLAReportRow - 심각도별 SLA 준수율
type SLAReportRow struct {
	Total          int     `json:"total"`
	AssignedInTime int     `json:"assigned_in_time"`
	ResolvedInTime int     `json:"resolved_in_time"`
	ResponsePct    float64 `json:"response_compliance_pct"`
	ResolutionPct  float64 `json:"resolution_compliance_pct"`
}

// SLAReportResponse - GET /companies/{id}/sla-report 응답
type SLAReportResponse struct {
	CompanyID   string                    `json:"company_id"`
	Days        int                       `json:"days"`
	Overall     SLAReportRow              `json:"overall"`
	BySeverity  map[Severity]SLAReportRow `json:"by_severity"`
	GeneratedAt time.Time                 `json:"generated_at"`
}
