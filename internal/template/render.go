// Package template provides notification body template rendering.
//
// 지원하는 변수 형식:
//
//	{{incident.id}}, {{incident.key}}, {{incident.severity}},
//	{{incident.status}}, {{incident.score}}, {{incident.created_at}}
//
//	{{escalation.level}}, {{escalation.target}},
//	{{sla.kind}}, {{sla.deadline}}
package template

import (
	"strconv"
	"strings"
	"time"

	"github.com/alertops/backend/internal/model"
)

// IncidentData - 템플릿 렌더링에 사용할 Incident 데이터
type IncidentData struct {
	ID             string
	AggregationKey string
	Severity       string
	Status         string
	PriorityScore  float64
	CreatedAt      time.Time
}

// EscalationData - 에스컬레이션/SLA 경고 알림용 데이터
type EscalationData struct {
	Level       int
	TargetName  string
	SLAKind     string // response 또는 resolution
	SLADeadline time.Time
}

// IncidentDataFromModel - model.Incident에서 IncidentData 생성
func IncidentDataFromModel(inc model.Incident) IncidentData {
	return IncidentData{
		ID:             inc.IncidentID,
		AggregationKey: inc.AggregationKey,
		Severity:       string(inc.Severity),
		Status:         string(inc.Status),
		PriorityScore:  inc.PriorityScore,
		CreatedAt:      inc.CreatedAt,
	}
}

// RenderBody - 알림 body 템플릿의 변수를 실제 값으로 치환
//
// incident 또는 escalation 중 하나만 전달해도 동작합니다.
// nil로 전달된 항목의 변수는 빈 문자열로 치환됩니다.
func RenderBody(body string, incident *IncidentData, escalation *EscalationData) string {
	pairs := make([]string, 0, 20)

	// --- Incident 변수 ---
	if incident != nil {
		pairs = append(pairs,
			"{{incident.id}}", incident.ID,
			"{{incident.key}}", incident.AggregationKey,
			"{{incident.severity}}", incident.Severity,
			"{{incident.status}}", incident.Status,
			"{{incident.score}}", strconv.FormatFloat(incident.PriorityScore, 'f', 1, 64),
			"{{incident.created_at}}", incident.CreatedAt.Format(time.RFC3339),
		)
	} else {
		pairs = append(pairs,
			"{{incident.id}}", "",
			"{{incident.key}}", "",
			"{{incident.severity}}", "",
			"{{incident.status}}", "",
			"{{incident.score}}", "",
			"{{incident.created_at}}", "",
		)
	}

	// --- Escalation/SLA 변수 ---
	if escalation != nil {
		deadline := ""
		if !escalation.SLADeadline.IsZero() {
			deadline = escalation.SLADeadline.Format(time.RFC3339)
		}
		pairs = append(pairs,
			"{{escalation.level}}", strconv.Itoa(escalation.Level),
			"{{escalation.target}}", escalation.TargetName,
			"{{sla.kind}}", escalation.SLAKind,
			"{{sla.deadline}}", deadline,
		)
	} else {
		pairs = append(pairs,
			"{{escalation.level}}", "",
			"{{escalation.target}}", "",
			"{{sla.kind}}", "",
			"{{sla.deadline}}", "",
		)
	}

	return strings.NewReplacer(pairs...).Replace(body)
}
