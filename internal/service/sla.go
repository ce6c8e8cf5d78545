// SLA Tracker - 마감 계산, 상태 분류, 준수율 리포트
//
// 규칙:
//  - response_deadline = created_at + response_minutes[severity]
//  - resolution_deadline = created_at + resolution_minutes[severity]
//  - 배정 시각이 기록되면 응답 SLA 시계는 영구히 멈춘다 (met/breached 확정)
//  - 종료 시각이 기록되면 해결 SLA도 확정되고 MTTR을 계산한다
//  - 마감 전 warning_threshold 안이면 warning, 그 외 on_track

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alertops/backend/internal/db"
	"github.com/alertops/backend/internal/model"
)

// SLA 상태 분류값
const (
	SLAOnTrack  = "on_track"
	SLAWarning  = "warning"
	SLABreached = "breached"
	SLAMet      = "met"
)

// 테넌트 설정이 없을 때 쓰는 기본값 (분)
var (
	defaultResponseMinutes = map[model.Severity]int{
		model.SeverityCritical: 15,
		model.SeverityHigh:     30,
		model.SeverityMedium:   60,
		model.SeverityLow:      240,
	}
	defaultResolutionMinutes = map[model.Severity]int{
		model.SeverityCritical: 120,
		model.SeverityHigh:     240,
		model.SeverityMedium:   480,
		model.SeverityLow:      1440,
	}
)

// slaStore - SLA Tracker가 쓰는 DB 인터페이스
type slaStore interface {
	GetSLAConfig(ctx context.Context, companyID string) (*model.SLAConfig, error)
	UpsertSLAConfig(ctx context.Context, cfg model.SLAConfig) error
	GetIncident(ctx context.Context, incidentID string) (*model.Incident, error)
	ListIncidentsSince(ctx context.Context, companyID string, since time.Time) ([]model.Incident, error)
}

// SLAService 구조체 정의
type SLAService struct {
	store slaStore
	clock Clock

	defaultWarningThresholdMinutes int
}

// NewSLAService 객체 생성
func NewSLAService(store slaStore, clock Clock, defaultWarningThresholdMinutes int) *SLAService {
	if defaultWarningThresholdMinutes <= 0 {
		defaultWarningThresholdMinutes = 10
	}
	return &SLAService{
		store:                          store,
		clock:                          clock,
		defaultWarningThresholdMinutes: defaultWarningThresholdMinutes,
	}
}

// Config - 테넌트 SLA 설정 조회 (없으면 기본값 채워서 반환)
func (s *SLAService) Config(ctx context.Context, companyID string) (*model.SLAConfig, error) {
	cfg, err := s.store.GetSLAConfig(ctx, companyID)
	if err != nil {
		if db.IsNoRows(err) {
			return s.defaultConfig(companyID), nil
		}
		return nil, err
	}
	fillConfigDefaults(cfg, s.defaultWarningThresholdMinutes)
	return cfg, nil
}

// UpdateConfig - 테넌트 SLA 설정 저장 (검증 포함)
func (s *SLAService) UpdateConfig(ctx context.Context, cfg model.SLAConfig) error {
	for sev, minutes := range cfg.ResponseMinutes {
		if !sev.Valid() {
			return fmt.Errorf("%w: unknown severity %q in response_minutes", ErrInvalidInput, sev)
		}
		if minutes <= 0 {
			return fmt.Errorf("%w: response_minutes[%s] must be positive", ErrInvalidInput, sev)
		}
	}
	for sev, minutes := range cfg.ResolutionMinutes {
		if !sev.Valid() {
			return fmt.Errorf("%w: unknown severity %q in resolution_minutes", ErrInvalidInput, sev)
		}
		if minutes <= 0 {
			return fmt.Errorf("%w: resolution_minutes[%s] must be positive", ErrInvalidInput, sev)
		}
	}
	if cfg.WarningThresholdMinutes < 0 {
		return fmt.Errorf("%w: warning_threshold_minutes must not be negative", ErrInvalidInput)
	}
	for i, target := range cfg.EscalationChain {
		if target.Name == "" {
			return fmt.Errorf("%w: escalation_chain[%d] missing name", ErrInvalidInput, i)
		}
	}
	return s.store.UpsertSLAConfig(ctx, cfg)
}

// Deadlines - 인시던트 생성 시점의 SLA 마감 계산
func (s *SLAService) Deadlines(ctx context.Context, companyID string, severity model.Severity, createdAt time.Time) (time.Time, time.Time, error) {
	cfg, err := s.Config(ctx, companyID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	respMin, ok := cfg.ResponseMinutes[severity]
	if !ok {
		respMin = defaultResponseMinutes[severity]
	}
	resoMin, ok := cfg.ResolutionMinutes[severity]
	if !ok {
		resoMin = defaultResolutionMinutes[severity]
	}
	response := createdAt.Add(time.Duration(respMin) * time.Minute)
	resolution := createdAt.Add(time.Duration(resoMin) * time.Minute)
	return response, resolution, nil
}

// Status - 인시던트 1개의 SLA 현황
func (s *SLAService) Status(ctx context.Context, companyID, incidentID string) (*model.SLAStatusResponse, error) {
	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if inc.CompanyID != companyID {
		return nil, ErrNotFound
	}

	cfg, err := s.Config(ctx, companyID)
	if err != nil {
		return nil, err
	}
	warn := time.Duration(cfg.WarningThresholdMinutes) * time.Minute
	now := s.clock.Now()

	resp := &model.SLAStatusResponse{
		IncidentID:         inc.IncidentID,
		Severity:           inc.Severity,
		ResponseDeadline:   inc.ResponseDeadline,
		ResolutionDeadline: inc.ResolutionDeadline,
		EscalationLevel:    inc.EscalationLevel,
		AssignedAt:         inc.AssignedAt,
		ResolvedAt:         inc.ResolvedAt,
	}

	// 응답 SLA: 배정 시각이 있으면 확정, 없으면 현재 시각 기준 분류
	if inc.AssignedAt != nil {
		resp.ResponseStatus = classifyFinal(*inc.AssignedAt, inc.ResponseDeadline)
	} else {
		resp.ResponseStatus = classifyRunning(now, inc.ResponseDeadline, warn)
	}

	// 해결 SLA
	if inc.ResolvedAt != nil {
		resp.ResolutionStatus = classifyFinal(*inc.ResolvedAt, inc.ResolutionDeadline)
		mttr := int64(inc.ResolvedAt.Sub(inc.CreatedAt) / time.Second)
		resp.MTTRSeconds = &mttr
	} else {
		resp.ResolutionStatus = classifyRunning(now, inc.ResolutionDeadline, warn)
	}

	return resp, nil
}

// Report - 최근 N일 심각도별 SLA 준수율
func (s *SLAService) Report(ctx context.Context, companyID string, days int) (*model.SLAReportResponse, error) {
	if days <= 0 {
		days = 30
	}
	now := s.clock.Now()
	since := now.AddDate(0, 0, -days)

	incidents, err := s.store.ListIncidentsSince(ctx, companyID, since)
	if err != nil {
		return nil, err
	}

	report := &model.SLAReportResponse{
		CompanyID:   companyID,
		Days:        days,
		BySeverity:  make(map[model.Severity]model.SLAReportRow),
		GeneratedAt: now,
	}

	counts := make(map[model.Severity]*model.SLAReportRow)
	for _, sev := range model.AllSeverities() {
		counts[sev] = &model.SLAReportRow{}
	}

	for _, inc := range incidents {
		row := counts[inc.Severity]
		if row == nil {
			continue
		}
		row.Total++
		report.Overall.Total++
		if inc.AssignedAt != nil && !inc.AssignedAt.After(inc.ResponseDeadline) {
			row.AssignedInTime++
			report.Overall.AssignedInTime++
		}
		if inc.ResolvedAt != nil && !inc.ResolvedAt.After(inc.ResolutionDeadline) {
			row.ResolvedInTime++
			report.Overall.ResolvedInTime++
		}
	}

	finalizeRow(&report.Overall)
	for sev, row := range counts {
		finalizeRow(row)
		report.BySeverity[sev] = *row
	}
	return report, nil
}

// classifyFinal - 전이가 이미 일어난 SLA의 최종 분류
func classifyFinal(doneAt, deadline time.Time) string {
	if doneAt.After(deadline) {
		return SLABreached
	}
	return SLAMet
}

// classifyRunning - 아직 전이가 없는 SLA의 현재 분류
func classifyRunning(now, deadline time.Time, warningThreshold time.Duration) string {
	if now.After(deadline) {
		return SLABreached
	}
	if warningThreshold > 0 && !now.Before(deadline.Add(-warningThreshold)) {
		return SLAWarning
	}
	return SLAOnTrack
}

func finalizeRow(row *model.SLAReportRow) {
	if row.Total == 0 {
		return
	}
	row.ResponsePct = float64(row.AssignedInTime) / float64(row.Total) * 100
	row.ResolutionPct = float64(row.ResolvedInTime) / float64(row.Total) * 100
}

func (s *SLAService) defaultConfig(companyID string) *model.SLAConfig {
	resp := make(map[model.Severity]int, len(defaultResponseMinutes))
	reso := make(map[model.Severity]int, len(defaultResolutionMinutes))
	for k, v := range defaultResponseMinutes {
		resp[k] = v
	}
	for k, v := range defaultResolutionMinutes {
		reso[k] = v
	}
	return &model.SLAConfig{
		CompanyID:               companyID,
		ResponseMinutes:         resp,
		ResolutionMinutes:       reso,
		WarningThresholdMinutes: s.defaultWarningThresholdMinutes,
	}
}

func fillConfigDefaults(cfg *model.SLAConfig, defaultWarning int) {
	if cfg.ResponseMinutes == nil {
		cfg.ResponseMinutes = make(map[model.Severity]int)
	}
	if cfg.ResolutionMinutes == nil {
		cfg.ResolutionMinutes = make(map[model.Severity]int)
	}
	for sev, minutes := range defaultResponseMinutes {
		if _, ok := cfg.ResponseMinutes[sev]; !ok {
			cfg.ResponseMinutes[sev] = minutes
		}
	}
	for sev, minutes := range defaultResolutionMinutes {
		if _, ok := cfg.ResolutionMinutes[sev]; !ok {
			cfg.ResolutionMinutes[sev] = minutes
		}
	}
	if cfg.WarningThresholdMinutes <= 0 {
		cfg.WarningThresholdMinutes = defaultWarning
	}
}
