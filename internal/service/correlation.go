// Correlation Engine - active 알림을 시간 윈도우 안에서 인시던트로 묶는다
//
// 알고리즘:
//  1. 실행 시점에서 뒤로 time_window_minutes 안에 수신된 active 알림 조회
//     (윈도우는 항상 실행 시점 기준 - 알림 쌍 기준이 아님)
//  2. aggregation_key(기본 asset|signature)로 그룹핑, 그룹 내 수신 시각 순 정렬
//  3. 같은 키의 미종료 인시던트가 있으면 멤버 추가, 없으면 새로 생성
//     (resolved 인시던트는 재오픈하지 않고 새 인시던트를 만든다)
//  4. 관측용 집계 반환
//
// 윈도우 밖의 active 알림은 버리지 않고 다음 실행에서 다시 본다.
// 새 알림이 없으면 두 번 실행해도 아무것도 바뀌지 않는다 (멱등).
//
// 같은 테넌트의 동시 실행은 금지: per-tenant lock으로 직렬화하고
// 이미 실행 중이면 ErrConflict를 반환한다.

package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alertops/backend/internal/db"
	"github.com/alertops/backend/internal/metrics"
	"github.com/alertops/backend/internal/model"
)

const (
	minWindowMinutes = 5
	maxWindowMinutes = 15
)

// correlationStore - Correlation Engine이 쓰는 DB 인터페이스
type correlationStore interface {
	GetCorrelationConfig(ctx context.Context, companyID string) (*model.CorrelationConfig, error)
	GetActiveAlertsSince(ctx context.Context, companyID string, since time.Time) ([]model.Alert, error)
	CountActiveAlerts(ctx context.Context, companyID string) (int, error)
	CountOpenIncidents(ctx context.Context, companyID string) (int, error)
	GetOpenIncidentByKey(ctx context.Context, companyID, aggregationKey string) (*model.Incident, error)
	CreateIncident(ctx context.Context, inc model.Incident) error
	UpdateIncidentAggregates(ctx context.Context, incidentID string, severity model.Severity, score float64, toolSources []string, alertCount int) error
	MarkAlertsCorrelated(ctx context.Context, alertIDs []string, incidentID string) error
	GetAssetByName(ctx context.Context, companyID, name string) (*model.Asset, error)
	GetAlertsByIncidentID(ctx context.Context, incidentID string) ([]model.AlertListResponse, error)
	ListCompanyIDs(ctx context.Context) ([]string, error)
}

// slaDeadliner - 인시던트 생성 시 SLA 마감 계산
type slaDeadliner interface {
	Deadlines(ctx context.Context, companyID string, severity model.Severity, createdAt time.Time) (response, resolution time.Time, err error)
}

// CorrelationService 구조체 정의
type CorrelationService struct {
	store correlationStore
	sla   slaDeadliner
	clock Clock

	defaultWindowMinutes int
	defaultKeyPattern    string

	// 테넌트별 single-flight lock
	mu    sync.Mutex
	locks map[string]*companyLock
}

type companyLock struct {
	busy bool
}

// NewCorrelationService 객체 생성
func NewCorrelationService(store correlationStore, sla slaDeadliner, clock Clock, defaultWindowMinutes int, defaultKeyPattern string) *CorrelationService {
	if defaultWindowMinutes <= 0 {
		defaultWindowMinutes = maxWindowMinutes
	}
	if defaultKeyPattern == "" {
		defaultKeyPattern = "asset|signature"
	}
	return &CorrelationService{
		store:                store,
		sla:                  sla,
		clock:                clock,
		defaultWindowMinutes: defaultWindowMinutes,
		defaultKeyPattern:    defaultKeyPattern,
		locks:                make(map[string]*companyLock),
	}
}

// tryLock - 테넌트 lock 선점. 이미 실행 중이면 false.
func (s *CorrelationService) tryLock(companyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[companyID]
	if !ok {
		l = &companyLock{}
		s.locks[companyID] = l
	}
	if l.busy {
		return false
	}
	l.busy = true
	return true
}

func (s *CorrelationService) unlock(companyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[companyID]; ok {
		l.busy = false
	}
}

// Correlate - 테넌트 1개에 대해 상관분석 1회 수행
func (s *CorrelationService) Correlate(ctx context.Context, companyID string) (*model.CorrelationResult, error) {
	if !s.tryLock(companyID) {
		return nil, fmt.Errorf("%w: correlation already running for company %s", ErrConflict, companyID)
	}
	defer s.unlock(companyID)

	cfg := s.loadConfig(ctx, companyID)
	now := s.clock.Now()
	since := now.Add(-time.Duration(cfg.TimeWindowMinutes) * time.Minute)

	alertsBefore, err := s.store.CountActiveAlerts(ctx, companyID)
	if err != nil {
		return nil, err
	}

	alerts, err := s.store.GetActiveAlertsSince(ctx, companyID, since)
	if err != nil {
		return nil, err
	}

	// aggregation_key로 그룹핑 (수신 시각 오름차순 유지)
	groups := make(map[string][]model.Alert)
	var keys []string
	for _, a := range alerts {
		key := buildAggregationKey(cfg.AggregationKeyPattern, a.AssetName, a.Signature)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], a)
	}
	sort.Strings(keys)

	result := &model.CorrelationResult{AlertsBefore: alertsBefore}

	for _, key := range keys {
		group := groups[key]
		if err := s.correlateGroup(ctx, companyID, key, group, now, result); err != nil {
			// 그룹 하나의 실패가 나머지 그룹 처리를 막지 않는다
			log.Printf("[Correlation] Group failed (company=%s, key=%s): %v", companyID, key, err)
		}
	}

	alertsAfter, err := s.store.CountActiveAlerts(ctx, companyID)
	if err != nil {
		return nil, err
	}
	result.AlertsAfter = alertsAfter

	if result.AlertsBefore > 0 {
		incidentsAfter, err := s.store.CountOpenIncidents(ctx, companyID)
		if err != nil {
			return nil, err
		}
		result.NoiseReductionPct = (1 - float64(incidentsAfter)/float64(result.AlertsBefore)) * 100
		if result.NoiseReductionPct < 0 {
			result.NoiseReductionPct = 0
		}
	}

	metrics.CountCorrelationRun(result.IncidentsCreated)
	log.Printf("[Correlation] Run complete (company=%s, before=%d, created=%d, updated=%d, noise_reduction=%.1f%%)",
		companyID, result.AlertsBefore, result.IncidentsCreated, result.IncidentsUpdated, result.NoiseReductionPct)

	return result, nil
}

// correlateGroup - 그룹 1개를 기존 인시던트에 붙이거나 새로 만든다
func (s *CorrelationService) correlateGroup(ctx context.Context, companyID, key string, group []model.Alert, now time.Time, result *model.CorrelationResult) error {
	assetName := group[0].AssetName
	alertIDs := make([]string, 0, len(group))
	severity := group[0].Severity
	sources := make(map[string]struct{})
	for _, a := range group {
		alertIDs = append(alertIDs, a.AlertID)
		severity = model.MaxSeverity(severity, a.Severity)
		sources[a.ToolSource] = struct{}{}
	}
	if len(group) > 1 {
		result.DuplicatesFound += len(group) - 1
	}

	assetCritical := false
	if asset, err := s.store.GetAssetByName(ctx, companyID, assetName); err == nil {
		assetCritical = asset.IsCritical
	} else if !db.IsNoRows(err) {
		return err
	}

	existing, err := s.store.GetOpenIncidentByKey(ctx, companyID, key)
	if err != nil && !db.IsNoRows(err) {
		return err
	}

	if existing != nil {
		// 기존 인시던트에 멤버 추가
		merged := unionSources(existing.ToolSources, sources)
		newSeverity := model.MaxSeverity(existing.Severity, severity)
		newCount := existing.AlertCount + len(group)
		score := Score(ScoreInput{
			Severity:        newSeverity,
			AssetCritical:   assetCritical,
			MemberCount:     newCount,
			DistinctSources: len(merged),
			Age:             now.Sub(existing.CreatedAt),
		})
		if err := s.store.UpdateIncidentAggregates(ctx, existing.IncidentID, newSeverity, score, merged, newCount); err != nil {
			return err
		}
		if err := s.store.MarkAlertsCorrelated(ctx, alertIDs, existing.IncidentID); err != nil {
			return err
		}
		result.IncidentsUpdated++
		return nil
	}

	// 새 인시던트 생성
	merged := unionSources(nil, sources)
	score := Score(ScoreInput{
		Severity:        severity,
		AssetCritical:   assetCritical,
		MemberCount:     len(group),
		DistinctSources: len(merged),
	})

	respDeadline, resoDeadline, err := s.sla.Deadlines(ctx, companyID, severity, now)
	if err != nil {
		return err
	}

	inc := model.Incident{
		IncidentID:         "INC-" + uuid.NewString(),
		CompanyID:          companyID,
		AggregationKey:     key,
		AssetName:          assetName,
		Severity:           severity,
		PriorityScore:      score,
		Status:             model.IncidentStatusNew,
		ToolSources:        merged,
		AlertCount:         len(group),
		CreatedAt:          now,
		ResponseDeadline:   respDeadline,
		ResolutionDeadline: resoDeadline,
	}
	if err := s.store.CreateIncident(ctx, inc); err != nil {
		return err
	}
	if err := s.store.MarkAlertsCorrelated(ctx, alertIDs, inc.IncidentID); err != nil {
		return err
	}
	result.IncidentsCreated++
	log.Printf("[Correlation] Incident created (company=%s, incident=%s, key=%s, members=%d)",
		companyID, inc.IncidentID, key, len(group))
	return nil
}

// loadConfig - 테넌트 설정 조회, 없거나 범위 밖이면 기본값으로 보정
func (s *CorrelationService) loadConfig(ctx context.Context, companyID string) model.CorrelationConfig {
	cfg, err := s.store.GetCorrelationConfig(ctx, companyID)
	if err != nil {
		if !db.IsNoRows(err) {
			log.Printf("[Correlation] Failed to load config, using defaults (company=%s): %v", companyID, err)
		}
		return model.CorrelationConfig{
			CompanyID:             companyID,
			TimeWindowMinutes:     s.defaultWindowMinutes,
			AggregationKeyPattern: s.defaultKeyPattern,
			AutoCorrelate:         true,
		}
	}
	if cfg.TimeWindowMinutes < minWindowMinutes {
		cfg.TimeWindowMinutes = minWindowMinutes
	}
	if cfg.TimeWindowMinutes > maxWindowMinutes {
		cfg.TimeWindowMinutes = maxWindowMinutes
	}
	if cfg.AggregationKeyPattern == "" {
		cfg.AggregationKeyPattern = s.defaultKeyPattern
	}
	return *cfg
}

// RunSweeper - auto_correlate 테넌트를 주기적으로 상관분석하는 백그라운드 루프
// ctx 취소 시 종료. 테넌트 하나의 실패가 나머지를 막지 않는다.
func (s *CorrelationService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Correlation] Sweeper started (interval=%s)", interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Correlation] Sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *CorrelationService) sweepOnce(ctx context.Context) {
	companyIDs, err := s.store.ListCompanyIDs(ctx)
	if err != nil {
		log.Printf("[Correlation] Failed to list companies: %v", err)
		return
	}
	for _, id := range companyIDs {
		cfg := s.loadConfig(ctx, id)
		if !cfg.AutoCorrelate {
			continue
		}
		if _, err := s.Correlate(ctx, id); err != nil {
			// ErrConflict는 이미 실행 중이라는 뜻 - 이번 주기는 건너뛴다
			log.Printf("[Correlation] Sweep failed (company=%s): %v", id, err)
		}
	}
}

// buildAggregationKey - 패턴의 토큰을 실제 값으로 치환
// 지원 토큰: asset, signature. 기본 패턴 "asset|signature".
func buildAggregationKey(pattern, assetName, signature string) string {
	parts := strings.Split(pattern, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch strings.TrimSpace(p) {
		case "asset":
			out = append(out, assetName)
		case "signature":
			out = append(out, signature)
		default:
			out = append(out, strings.TrimSpace(p))
		}
	}
	return strings.Join(out, "|")
}

// unionSources - tool_sources 합집합 (정렬된 슬라이스 반환)
func unionSources(existing []string, add map[string]struct{}) []string {
	set := make(map[string]struct{}, len(existing)+len(add))
	for _, s := range existing {
		set[s] = struct{}{}
	}
	for s := range add {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
