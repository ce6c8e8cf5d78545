// Approval Gate - 자동조치 실행 전 위험 등급별 승인 판정
//
// 판정 규칙:
//  - low: 즉시 실행 (dispatched)
//  - medium/high: ApprovalRequest 생성 (pending_approval), 1시간 뒤 만료
//  - 승인 권한: medium은 operator 이상, high는 admin만
//  - pending에서만 approved/rejected/expired로 전이 가능 (DB 조건으로 경합 방지)
//  - 만료된 요청은 어떤 경우에도 자동 실행되지 않는다
//
// 실행(dispatch)은 승인 전이가 확정된 뒤에만 일어난다. 실행 실패는
// 승인을 되돌리지 않고 에러로 반환한다 (운영자가 재시도 판단).

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/alertops/backend/internal/client"
	"github.com/alertops/backend/internal/db"
	"github.com/alertops/backend/internal/model"
)

const approvalTTL = time.Hour

// approvalStore - Approval Gate가 쓰는 DB 인터페이스
type approvalStore interface {
	GetIncident(ctx context.Context, incidentID string) (*model.Incident, error)
	CreateApproval(ctx context.Context, req model.ApprovalRequest) error
	GetApproval(ctx context.Context, requestID string) (*model.ApprovalRequest, error)
	ListApprovals(ctx context.Context, companyID string, status model.ApprovalStatus) ([]model.ApprovalRequest, error)
	TransitionApproval(ctx context.Context, requestID string, to model.ApprovalStatus, approvedBy string) (bool, error)
	ExpireOverdueApprovals(ctx context.Context, now time.Time) ([]model.ApprovalRequest, error)
	InsertAudit(ctx context.Context, entry model.AuditEntry) error
}

// actionDispatcher - 조치 실행 인터페이스 (ExecutorClient가 구현)
type actionDispatcher interface {
	IsConfigured() bool
	Dispatch(ctx context.Context, req client.DispatchCommandRequest) (*client.DispatchCommandResponse, error)
}

// ApprovalService 구조체 정의
type ApprovalService struct {
	store      approvalStore
	dispatcher actionDispatcher
	clock      Clock
}

// NewApprovalService 객체 생성
func NewApprovalService(store approvalStore, dispatcher actionDispatcher, clock Clock) *ApprovalService {
	return &ApprovalService{store: store, dispatcher: dispatcher, clock: clock}
}

// RequestDispatch - 조치 실행 요청 판정
func (s *ApprovalService) RequestDispatch(ctx context.Context, user model.AuthUser, incidentID string, req model.DispatchRequest) (*model.DispatchResponse, error) {
	risk := model.RiskLevel(req.RiskLevel)
	if !risk.Valid() {
		return nil, fmt.Errorf("%w: risk_level must be one of low, medium, high", ErrInvalidInput)
	}
	if req.Action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidInput)
	}

	inc, err := s.store.GetIncident(ctx, incidentID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if inc.CompanyID != user.CompanyID {
		return nil, ErrNotFound
	}
	if inc.Status.Terminal() {
		return nil, fmt.Errorf("%w: incident %s is already resolved", ErrConflict, incidentID)
	}

	// low 위험은 즉시 실행
	if risk == model.RiskLow {
		if err := s.dispatch(ctx, user.LoginID, inc.CompanyID, incidentID, "", req.Action, risk); err != nil {
			return nil, err
		}
		return &model.DispatchResponse{Result: "dispatched"}, nil
	}

	// medium/high는 승인 대기
	now := s.clock.Now()
	approval := model.ApprovalRequest{
		RequestID:  "APR-" + uuid.NewString(),
		CompanyID:  inc.CompanyID,
		IncidentID: incidentID,
		Action:     req.Action,
		RiskLevel:  risk,
		Status:     model.ApprovalPending,
		ExpiresAt:  now.Add(approvalTTL),
		CreatedAt:  now,
	}
	if err := s.store.CreateApproval(ctx, approval); err != nil {
		return nil, err
	}
	s.audit(ctx, inc.CompanyID, user.LoginID, model.AuditApprovalCreated, incidentID, map[string]any{
		"request_id": approval.RequestID,
		"action":     req.Action,
		"risk_level": string(risk),
	})
	log.Printf("[Approval] Request created (company=%s, request=%s, incident=%s, risk=%s)",
		inc.CompanyID, approval.RequestID, incidentID, risk)

	return &model.DispatchResponse{
		Result:    "pending_approval",
		RequestID: approval.RequestID,
		Detail:    fmt.Sprintf("%s-risk action requires approval, expires at %s", risk, approval.ExpiresAt.UTC().Format(time.RFC3339)),
	}, nil
}

// Approve - 승인 + 실행
func (s *ApprovalService) Approve(ctx context.Context, user model.AuthUser, requestID string) (*model.ApprovalRequest, error) {
	approval, err := s.loadPending(ctx, user, requestID)
	if err != nil {
		return nil, err
	}

	if !canApprove(user.Role, approval.RiskLevel) {
		return nil, fmt.Errorf("%w: %s-risk actions require %s role", ErrForbidden, approval.RiskLevel, requiredRole(approval.RiskLevel))
	}

	ok, err := s.store.TransitionApproval(ctx, requestID, model.ApprovalApproved, user.LoginID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 다른 승인자나 만료 스윕이 먼저 전이시킨 경우
		return nil, fmt.Errorf("%w: request %s is no longer pending", ErrConflict, requestID)
	}

	s.audit(ctx, approval.CompanyID, user.LoginID, model.AuditApprovalApproved, approval.IncidentID, map[string]any{
		"request_id": requestID,
		"action":     approval.Action,
		"risk_level": string(approval.RiskLevel),
	})

	if err := s.dispatch(ctx, user.LoginID, approval.CompanyID, approval.IncidentID, approval.RequestID, approval.Action, approval.RiskLevel); err != nil {
		return nil, err
	}

	updated, err := s.store.GetApproval(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Reject - 거부 (실행 없음)
func (s *ApprovalService) Reject(ctx context.Context, user model.AuthUser, requestID string) (*model.ApprovalRequest, error) {
	approval, err := s.loadPending(ctx, user, requestID)
	if err != nil {
		return nil, err
	}

	if !canApprove(user.Role, approval.RiskLevel) {
		return nil, fmt.Errorf("%w: %s-risk actions require %s role", ErrForbidden, approval.RiskLevel, requiredRole(approval.RiskLevel))
	}

	ok, err := s.store.TransitionApproval(ctx, requestID, model.ApprovalRejected, user.LoginID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %s is no longer pending", ErrConflict, requestID)
	}

	s.audit(ctx, approval.CompanyID, user.LoginID, model.AuditApprovalRejected, approval.IncidentID, map[string]any{
		"request_id": requestID,
		"action":     approval.Action,
		"risk_level": string(approval.RiskLevel),
	})
	log.Printf("[Approval] Request rejected (company=%s, request=%s, by=%s)", approval.CompanyID, requestID, user.LoginID)

	updated, err := s.store.GetApproval(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// List - 테넌트 승인 요청 목록
func (s *ApprovalService) List(ctx context.Context, companyID string, status string) ([]model.ApprovalRequest, error) {
	if status != "" {
		st := model.ApprovalStatus(status)
		switch st {
		case model.ApprovalPending, model.ApprovalApproved, model.ApprovalRejected, model.ApprovalExpired:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
		}
	}
	return s.store.ListApprovals(ctx, companyID, model.ApprovalStatus(status))
}

// SweepExpired - 만료된 pending 요청 일괄 만료 + 감사 기록
func (s *ApprovalService) SweepExpired(ctx context.Context) {
	expired, err := s.store.ExpireOverdueApprovals(ctx, s.clock.Now())
	if err != nil {
		log.Printf("[Approval] Expiry sweep failed: %v", err)
		return
	}
	for _, req := range expired {
		s.audit(ctx, req.CompanyID, "scheduler", model.AuditApprovalExpired, req.IncidentID, map[string]any{
			"request_id": req.RequestID,
			"action":     req.Action,
		})
		log.Printf("[Approval] Request expired (company=%s, request=%s)", req.CompanyID, req.RequestID)
	}
}

// RunExpirySweeper - 만료 스윕 루프. ctx 취소 시 종료.
func (s *ApprovalService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepExpired(ctx)
		}
	}
}

// loadPending - 요청 조회 + 테넌트 범위 확인 + lazy 만료
// 스윕보다 먼저 만료 시각이 지난 요청을 발견하면 그 자리에서 만료 처리한다.
func (s *ApprovalService) loadPending(ctx context.Context, user model.AuthUser, requestID string) (*model.ApprovalRequest, error) {
	approval, err := s.store.GetApproval(ctx, requestID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if approval.CompanyID != user.CompanyID {
		return nil, ErrNotFound
	}
	if approval.Status != model.ApprovalPending {
		return nil, fmt.Errorf("%w: request %s is %s", ErrConflict, requestID, approval.Status)
	}
	if s.clock.Now().After(approval.ExpiresAt) {
		if ok, err := s.store.TransitionApproval(ctx, requestID, model.ApprovalExpired, ""); err == nil && ok {
			s.audit(ctx, approval.CompanyID, "scheduler", model.AuditApprovalExpired, approval.IncidentID, map[string]any{
				"request_id": requestID,
				"action":     approval.Action,
			})
		}
		return nil, fmt.Errorf("%w: request %s expired at %s", ErrExpired, requestID, approval.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return approval, nil
}

// dispatch - Executor 호출 + 감사 기록
func (s *ApprovalService) dispatch(ctx context.Context, actor, companyID, incidentID, requestID, action string, risk model.RiskLevel) error {
	if !s.dispatcher.IsConfigured() {
		return fmt.Errorf("%w: executor endpoint is not configured", ErrMisconfigured)
	}
	resp, err := s.dispatcher.Dispatch(ctx, client.DispatchCommandRequest{
		CompanyID:  companyID,
		IncidentID: incidentID,
		RequestID:  requestID,
		Action:     action,
		RiskLevel:  string(risk),
	})
	if err != nil {
		return fmt.Errorf("failed to dispatch action: %w", err)
	}
	s.audit(ctx, companyID, actor, model.AuditActionDispatched, incidentID, map[string]any{
		"action":      action,
		"risk_level":  string(risk),
		"dispatch_id": resp.DispatchID,
	})
	log.Printf("[Approval] Action dispatched (company=%s, incident=%s, action=%q, risk=%s, dispatch=%s)", companyID, incidentID, action, risk, resp.DispatchID)
	return nil
}

func (s *ApprovalService) audit(ctx context.Context, companyID, actor, action, incidentID string, detail map[string]any) {
	raw, _ := json.Marshal(detail)
	if err := s.store.InsertAudit(ctx, model.AuditEntry{
		CompanyID:  companyID,
		Actor:      actor,
		Action:     action,
		IncidentID: incidentID,
		Detail:     raw,
	}); err != nil {
		log.Printf("[Approval] Failed to write audit (company=%s, action=%s): %v", companyID, action, err)
	}
}

// canApprove - 위험 등급별 승인 권한
func canApprove(role model.Role, risk model.RiskLevel) bool {
	switch risk {
	case model.RiskHigh:
		return role == model.RoleAdmin
	case model.RiskMedium:
		return role.AtLeast(model.RoleOperator)
	default:
		return role.AtLeast(model.RoleOperator)
	}
}

func requiredRole(risk model.RiskLevel) model.Role {
	if risk == model.RiskHigh {
		return model.RoleAdmin
	}
	return model.RoleOperator
}
