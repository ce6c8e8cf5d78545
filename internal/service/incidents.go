// Incident 조회/전이 비즈니스 로직 정의
//
// 상태 전이 규칙:
//  - assign: 미배정 + 미종료에서만. assigned_at 기록이 응답 SLA 시계를 멈춘다.
//  - resolve: 미종료에서만. 종료는 최종 상태이며 어떤 갱신도 되돌리지 않는다.
// 전이마다 감사 기록을 남긴다. 종료 시 요약 임베딩을 best-effort로 저장한다.

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/alertops/backend/internal/db"
	"github.com/alertops/backend/internal/model"
)

// incidentStore - Incident API가 쓰는 DB 인터페이스
type incidentStore interface {
	GetIncident(ctx context.Context, incidentID string) (*model.Incident, error)
	GetIncidentList(ctx context.Context, companyID string, limit int) ([]model.IncidentListResponse, error)
	GetAlertsByIncidentID(ctx context.Context, incidentID string) ([]model.AlertListResponse, error)
	AssignIncident(ctx context.Context, incidentID, assignedTo string, assignedAt time.Time) error
	ResolveIncident(ctx context.Context, incidentID, resolvedBy string, resolvedAt time.Time) error
	InsertAudit(ctx context.Context, entry model.AuditEntry) error
}

// incidentEmbedder - 종료 시 임베딩 저장 (nil이면 비활성)
type incidentEmbedder interface {
	IndexIncident(ctx context.Context, inc model.Incident) error
}

// IncidentService 구조체 정의
type IncidentService struct {
	store    incidentStore
	embedder incidentEmbedder
	clock    Clock
}

// NewIncidentService 객체 생성
func NewIncidentService(store incidentStore, embedder incidentEmbedder, clock Clock) *IncidentService {
	return &IncidentService{store: store, embedder: embedder, clock: clock}
}

// List - 테넌트 인시던트 목록
func (s *IncidentService) List(ctx context.Context, companyID string, limit int) ([]model.IncidentListResponse, error) {
	return s.store.GetIncidentList(ctx, companyID, limit)
}

// Detail - 인시던트 상세 (멤버 알림 포함)
func (s *IncidentService) Detail(ctx context.Context, companyID, incidentID string) (*model.IncidentDetailResponse, error) {
	inc, err := s.getScoped(ctx, companyID, incidentID)
	if err != nil {
		return nil, err
	}

	alerts, err := s.store.GetAlertsByIncidentID(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	return &model.IncidentDetailResponse{Incident: *inc, Alerts: alerts}, nil
}

// Assign - 담당자 배정
func (s *IncidentService) Assign(ctx context.Context, user model.AuthUser, incidentID, assignedTo string) (*model.Incident, error) {
	if assignedTo == "" {
		return nil, fmt.Errorf("%w: assigned_to is required", ErrInvalidInput)
	}

	inc, err := s.getScoped(ctx, user.CompanyID, incidentID)
	if err != nil {
		return nil, err
	}
	if inc.Status.Terminal() {
		return nil, fmt.Errorf("%w: incident %s is already resolved", ErrConflict, incidentID)
	}
	if inc.AssignedAt != nil {
		return nil, fmt.Errorf("%w: incident %s is already assigned", ErrConflict, incidentID)
	}

	now := s.clock.Now()
	if err := s.store.AssignIncident(ctx, incidentID, assignedTo, now); err != nil {
		return nil, err
	}

	s.audit(ctx, user.CompanyID, user.LoginID, model.AuditIncidentAssigned, incidentID, map[string]any{
		"assigned_to": assignedTo,
	})
	log.Printf("[Incident] Assigned (company=%s, incident=%s, to=%s)", user.CompanyID, incidentID, assignedTo)

	return s.store.GetIncident(ctx, incidentID)
}

// Resolve - 인시던트 종료
func (s *IncidentService) Resolve(ctx context.Context, user model.AuthUser, incidentID, resolvedBy string) (*model.Incident, error) {
	if resolvedBy == "" {
		return nil, fmt.Errorf("%w: resolved_by is required", ErrInvalidInput)
	}

	inc, err := s.getScoped(ctx, user.CompanyID, incidentID)
	if err != nil {
		return nil, err
	}
	if inc.Status.Terminal() {
		return nil, fmt.Errorf("%w: incident %s is already resolved", ErrConflict, incidentID)
	}

	now := s.clock.Now()
	if err := s.store.ResolveIncident(ctx, incidentID, resolvedBy, now); err != nil {
		return nil, err
	}

	mttr := now.Sub(inc.CreatedAt)
	s.audit(ctx, user.CompanyID, user.LoginID, model.AuditIncidentResolved, incidentID, map[string]any{
		"resolved_by":  resolvedBy,
		"mttr_seconds": int64(mttr / time.Second),
	})
	log.Printf("[Incident] Resolved (company=%s, incident=%s, by=%s, mttr=%s)", user.CompanyID, incidentID, resolvedBy, mttr)

	updated, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	// 종료 인시던트 요약 임베딩 (실패해도 종료는 유지)
	if s.embedder != nil {
		if err := s.embedder.IndexIncident(ctx, *updated); err != nil {
			log.Printf("[Incident] Failed to index resolved incident (incident=%s): %v", incidentID, err)
		}
	}

	return updated, nil
}

func (s *IncidentService) getScoped(ctx context.Context, companyID, incidentID string) (*model.Incident, error) {
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
	return inc, nil
}

func (s *IncidentService) audit(ctx context.Context, companyID, actor, action, incidentID string, detail map[string]any) {
	raw, _ := json.Marshal(detail)
	if err := s.store.InsertAudit(ctx, model.AuditEntry{
		CompanyID:  companyID,
		Actor:      actor,
		Action:     action,
		IncidentID: incidentID,
		Detail:     raw,
	}); err != nil {
		log.Printf("[Incident] Failed to write audit (company=%s, action=%s): %v", companyID, action, err)
	}
}
