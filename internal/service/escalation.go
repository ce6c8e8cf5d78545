// Escalation Scheduler - SLA 위반 감시 및 에스컬레이션 수행
//
// 고정 주기 tick마다 미종료 인시던트 전체를 순회한다:
//  - level 1: 응답 마감 초과 + 미배정
//  - level 2: 해결 마감 초과 + 미해결
//  - level 3: 해결 마감 + tick 1회분이 더 지나도록 미해결
//  - 마감 임박(warning_threshold) 시 상태 비변경 경고 1회 발송
//
// 레벨은 단조 증가만 한다 (강등 없음 - DB 갱신 조건으로도 보장).
// 전이마다 감사 기록을 남기고, 알림 실패는 전이를 되돌리지 않는다
// (다음 tick에서 재시도). tick은 겹치지 않는다: 이전 tick이 끝나야
// 다음 tick을 시작하고, 밀린 tick은 건너뛴다.

package service

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/alertops/backend/internal/metrics"
	"github.com/alertops/backend/internal/model"
)

const maxEscalationLevel = 3

// escalationStore - Escalation Scheduler가 쓰는 DB 인터페이스
type escalationStore interface {
	ListCompanyIDs(ctx context.Context) ([]string, error)
	ListOpenIncidents(ctx context.Context, companyID string) ([]model.Incident, error)
	GetSLAConfig(ctx context.Context, companyID string) (*model.SLAConfig, error)
	GetAssetByName(ctx context.Context, companyID, name string) (*model.Asset, error)
	UpdateEscalation(ctx context.Context, incidentID string, level int) error
	UpdateLastNotifiedLevel(ctx context.Context, incidentID string, level int) error
	UpdateIncidentScore(ctx context.Context, incidentID string, score float64) error
	UpdateLastWarningSentAt(ctx context.Context, incidentID string, sentAt time.Time) error
	InsertAudit(ctx context.Context, entry model.AuditEntry) error
}

// escalationNotifier - 알림 전송 인터페이스 (NotifyClient가 구현)
type escalationNotifier interface {
	SendEscalation(ctx context.Context, target model.EscalationTarget, incident model.Incident, level int, slaKind string, deadline time.Time) error
	SendSLAWarning(ctx context.Context, target model.EscalationTarget, incident model.Incident, slaKind string, deadline time.Time) error
}

// EscalationService 구조체 정의
type EscalationService struct {
	store    escalationStore
	sla      *SLAService
	notifier escalationNotifier
	clock    Clock

	tickInterval time.Duration
}

// NewEscalationService 객체 생성
func NewEscalationService(store escalationStore, sla *SLAService, notifier escalationNotifier, clock Clock, tickInterval time.Duration) *EscalationService {
	if tickInterval <= 0 {
		tickInterval = 5 * time.Minute
	}
	return &EscalationService{
		store:        store,
		sla:          sla,
		notifier:     notifier,
		clock:        clock,
		tickInterval: tickInterval,
	}
}

// Run - 스케줄러 루프. ctx 취소 시 종료.
func (s *EscalationService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	log.Printf("[Escalation] Scheduler started (interval=%s)", s.tickInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Escalation] Scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick - 스케줄러 1회 수행. 테넌트 하나의 실패가 나머지를 막지 않는다.
func (s *EscalationService) Tick(ctx context.Context) {
	started := time.Now()

	companyIDs, err := s.store.ListCompanyIDs(ctx)
	if err != nil {
		log.Printf("[Escalation] Failed to list companies: %v", err)
		return
	}

	for _, companyID := range companyIDs {
		if err := s.tickCompany(ctx, companyID); err != nil {
			log.Printf("[Escalation] Tick failed (company=%s): %v", companyID, err)
		}
	}

	metrics.ObserveSchedulerTick(time.Since(started).Seconds())
}

func (s *EscalationService) tickCompany(ctx context.Context, companyID string) error {
	cfg, err := s.sla.Config(ctx, companyID)
	if err != nil {
		return err
	}

	incidents, err := s.store.ListOpenIncidents(ctx, companyID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, inc := range incidents {
		if inc.Status.Terminal() {
			continue
		}
		s.evaluateIncident(ctx, cfg, inc, now)
		s.rescoreIncident(ctx, inc, now)
	}
	return nil
}

// evaluateIncident - 인시던트 1개의 SLA 위반/임박 평가
func (s *EscalationService) evaluateIncident(ctx context.Context, cfg *model.SLAConfig, inc model.Incident, now time.Time) {
	switch {
	case now.After(inc.ResponseDeadline) && inc.AssignedAt == nil && inc.EscalationLevel < 1:
		s.escalate(ctx, cfg, inc, 1, "response", inc.ResponseDeadline)

	case now.After(inc.ResolutionDeadline) && inc.ResolvedAt == nil && inc.EscalationLevel < 2:
		s.escalate(ctx, cfg, inc, 2, "resolution", inc.ResolutionDeadline)

	case now.After(inc.ResolutionDeadline.Add(s.tickInterval)) && inc.ResolvedAt == nil && inc.EscalationLevel < maxEscalationLevel:
		// 해결 마감 초과가 tick 1회분 이상 지속 - 최고 레벨로
		s.escalate(ctx, cfg, inc, maxEscalationLevel, "resolution", inc.ResolutionDeadline)

	case inc.EscalationLevel > inc.LastNotifiedLevel:
		// 직전 전이의 알림이 실패한 상태 - 전이 없이 발송만 다시 시도
		s.renotify(ctx, cfg, inc)

	case inc.EscalationLevel == 0:
		s.maybeWarn(ctx, cfg, inc, now)
	}
}

// escalate - 레벨 상향 + 감사 기록 + 알림
// DB 갱신이 먼저다: 알림이 실패해도 전이는 유지되고 다음 tick에서
// 레벨 조건을 통과하지 못하므로 중복 전이는 일어나지 않는다.
func (s *EscalationService) escalate(ctx context.Context, cfg *model.SLAConfig, inc model.Incident, level int, slaKind string, deadline time.Time) {
	if err := s.store.UpdateEscalation(ctx, inc.IncidentID, level); err != nil {
		log.Printf("[Escalation] Failed to update level (incident=%s, level=%d): %v", inc.IncidentID, level, err)
		return
	}

	detail, _ := json.Marshal(map[string]any{
		"level":    level,
		"sla_kind": slaKind,
		"deadline": deadline.UTC().Format(time.RFC3339),
	})
	if err := s.store.InsertAudit(ctx, model.AuditEntry{
		CompanyID:  inc.CompanyID,
		Actor:      "scheduler",
		Action:     model.AuditIncidentEscalated,
		IncidentID: inc.IncidentID,
		Detail:     detail,
	}); err != nil {
		log.Printf("[Escalation] Failed to write audit (incident=%s): %v", inc.IncidentID, err)
	}

	metrics.CountEscalation(strconv.Itoa(level))
	log.Printf("[Escalation] Incident escalated (company=%s, incident=%s, level=%d, sla=%s)",
		inc.CompanyID, inc.IncidentID, level, slaKind)

	s.sendEscalationNotice(ctx, cfg, inc, level, slaKind, deadline)
}

// sendEscalationNotice - 레벨 알림 발송 + 성공 시 발송 완료 레벨 기록
// 실패해도 전이는 이미 확정이고, last_notified_level이 뒤처진 채로 남아
// 다음 tick의 renotify가 재시도한다.
func (s *EscalationService) sendEscalationNotice(ctx context.Context, cfg *model.SLAConfig, inc model.Incident, level int, slaKind string, deadline time.Time) {
	target := chainTarget(cfg.EscalationChain, level)
	if target == nil {
		log.Printf("[Escalation] No chain target for level %d (company=%s), notification skipped", level, inc.CompanyID)
		// 대상이 없으면 재시도할 것도 없다
		if err := s.store.UpdateLastNotifiedLevel(ctx, inc.IncidentID, level); err != nil {
			log.Printf("[Escalation] Failed to record notified level (incident=%s): %v", inc.IncidentID, err)
		}
		return
	}
	if err := s.notifier.SendEscalation(ctx, *target, inc, level, slaKind, deadline); err != nil {
		log.Printf("[Escalation] Notification failed, will retry next tick (incident=%s, target=%s): %v", inc.IncidentID, target.Name, err)
		return
	}
	if err := s.store.UpdateLastNotifiedLevel(ctx, inc.IncidentID, level); err != nil {
		log.Printf("[Escalation] Failed to record notified level (incident=%s): %v", inc.IncidentID, err)
	}
}

// renotify - 발송에 실패했던 현재 레벨 알림 재시도 (상태 전이 없음)
func (s *EscalationService) renotify(ctx context.Context, cfg *model.SLAConfig, inc model.Incident) {
	slaKind, deadline := "resolution", inc.ResolutionDeadline
	if inc.EscalationLevel == 1 {
		slaKind, deadline = "response", inc.ResponseDeadline
	}
	s.sendEscalationNotice(ctx, cfg, inc, inc.EscalationLevel, slaKind, deadline)
}

// maybeWarn - 마감 임박 경고 (인시던트당 1회)
func (s *EscalationService) maybeWarn(ctx context.Context, cfg *model.SLAConfig, inc model.Incident, now time.Time) {
	if cfg.WarningThresholdMinutes <= 0 || inc.LastWarningSentAt != nil {
		return
	}
	threshold := time.Duration(cfg.WarningThresholdMinutes) * time.Minute

	var slaKind string
	var deadline time.Time
	switch {
	case inc.AssignedAt == nil && !now.Before(inc.ResponseDeadline.Add(-threshold)) && now.Before(inc.ResponseDeadline):
		slaKind, deadline = "response", inc.ResponseDeadline
	case !now.Before(inc.ResolutionDeadline.Add(-threshold)) && now.Before(inc.ResolutionDeadline):
		slaKind, deadline = "resolution", inc.ResolutionDeadline
	default:
		return
	}

	// 발송 기록이 먼저다: 기록 실패 시 발송하지 않는다 (tick마다 스팸 방지)
	if err := s.store.UpdateLastWarningSentAt(ctx, inc.IncidentID, now); err != nil {
		log.Printf("[Escalation] Failed to record warning time (incident=%s): %v", inc.IncidentID, err)
		return
	}

	detail, _ := json.Marshal(map[string]any{
		"sla_kind": slaKind,
		"deadline": deadline.UTC().Format(time.RFC3339),
	})
	if err := s.store.InsertAudit(ctx, model.AuditEntry{
		CompanyID:  inc.CompanyID,
		Actor:      "scheduler",
		Action:     model.AuditSLAWarning,
		IncidentID: inc.IncidentID,
		Detail:     detail,
	}); err != nil {
		log.Printf("[Escalation] Failed to write audit (incident=%s): %v", inc.IncidentID, err)
	}

	target := chainTarget(cfg.EscalationChain, 1)
	if target == nil {
		return
	}
	if err := s.notifier.SendSLAWarning(ctx, *target, inc, slaKind, deadline); err != nil {
		log.Printf("[Escalation] Warning notification failed (incident=%s, target=%s): %v", inc.IncidentID, target.Name, err)
	}
}

// rescoreIncident - 경과 시간 감쇠 반영해 점수 재계산
func (s *EscalationService) rescoreIncident(ctx context.Context, inc model.Incident, now time.Time) {
	assetCritical := false
	if inc.AssetName != "" {
		if asset, err := s.store.GetAssetByName(ctx, inc.CompanyID, inc.AssetName); err == nil {
			assetCritical = asset.IsCritical
		}
	}
	score := Score(ScoreInput{
		Severity:        inc.Severity,
		AssetCritical:   assetCritical,
		MemberCount:     inc.AlertCount,
		DistinctSources: len(inc.ToolSources),
		Age:             now.Sub(inc.CreatedAt),
	})
	if score == inc.PriorityScore {
		return
	}
	if err := s.store.UpdateIncidentScore(ctx, inc.IncidentID, score); err != nil {
		log.Printf("[Escalation] Failed to update score (incident=%s): %v", inc.IncidentID, err)
	}
}

// chainTarget - 레벨 n의 알림 대상 (chain[n-1], 체인이 짧으면 마지막 대상)
func chainTarget(chain []model.EscalationTarget, level int) *model.EscalationTarget {
	if len(chain) == 0 {
		return nil
	}
	idx := level - 1
	if idx >= len(chain) {
		idx = len(chain) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return &chain[idx]
}
