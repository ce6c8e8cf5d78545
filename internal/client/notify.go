// 에스컬레이션 체인 대상에게 알림을 보내는 클라이언트 정의
//
// 환경변수:
//   - NOTIFY_WEBHOOK_URL: 대상에 webhook_url이 없을 때 쓰는 기본 수신 URL
//
// 알림 전송은 best-effort이다: 실패해도 상태 전이는 이미 확정된 뒤이고,
// 다음 스케줄러 tick에서 재시도된다. 실패를 삼키지 않고 호출부에서 로깅한다.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alertops/backend/internal/config"
	"github.com/alertops/backend/internal/model"
	tmpl "github.com/alertops/backend/internal/template"
)

// 기본 알림 본문 템플릿 (template.RenderBody 변수 치환)
const defaultEscalationBody = "[{{incident.severity}}] incident {{incident.id}} ({{incident.key}}) escalated to level {{escalation.level}} - {{sla.kind}} SLA deadline {{sla.deadline}}"
const defaultWarningBody = "[{{incident.severity}}] incident {{incident.id}} ({{incident.key}}) approaching {{sla.kind}} SLA deadline {{sla.deadline}}"

// NotifyClient 구조체 정의
type NotifyClient struct {
	defaultURL string
	httpClient *http.Client
}

// NotifyMessage - 수신 webhook에 보내는 페이로드
type NotifyMessage struct {
	Target     string `json:"target"`
	IncidentID string `json:"incident_id"`
	Severity   string `json:"severity"`
	Level      int    `json:"level,omitempty"`
	Kind       string `json:"kind"` // escalation 또는 sla_warning
	Text       string `json:"text"`
	SentAt     string `json:"sent_at"`
}

func NewNotifyClient(cfg config.NotifyConfig) *NotifyClient {
	return &NotifyClient{
		defaultURL: cfg.DefaultWebhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendEscalation - 에스컬레이션 알림 전송
func (c *NotifyClient) SendEscalation(ctx context.Context, target model.EscalationTarget, incident model.Incident, level int, slaKind string, deadline time.Time) error {
	inc := tmpl.IncidentDataFromModel(incident)
	esc := &tmpl.EscalationData{Level: level, TargetName: target.Name, SLAKind: slaKind, SLADeadline: deadline}
	text := tmpl.RenderBody(defaultEscalationBody, &inc, esc)

	return c.post(ctx, target, NotifyMessage{
		Target:     target.Name,
		IncidentID: incident.IncidentID,
		Severity:   string(incident.Severity),
		Level:      level,
		Kind:       "escalation",
		Text:       text,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

// SendSLAWarning - 마감 임박 경고 전송 (상태 비변경)
func (c *NotifyClient) SendSLAWarning(ctx context.Context, target model.EscalationTarget, incident model.Incident, slaKind string, deadline time.Time) error {
	inc := tmpl.IncidentDataFromModel(incident)
	esc := &tmpl.EscalationData{TargetName: target.Name, SLAKind: slaKind, SLADeadline: deadline}
	text := tmpl.RenderBody(defaultWarningBody, &inc, esc)

	return c.post(ctx, target, NotifyMessage{
		Target:     target.Name,
		IncidentID: incident.IncidentID,
		Severity:   string(incident.Severity),
		Kind:       "sla_warning",
		Text:       text,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *NotifyClient) post(ctx context.Context, target model.EscalationTarget, msg NotifyMessage) error {
	url := target.WebhookURL
	if url == "" {
		url = c.defaultURL
	}
	if url == "" {
		return fmt.Errorf("no webhook url for target %q and NOTIFY_WEBHOOK_URL is unset", target.Name)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notify message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
