package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alertops/backend/internal/client"
	"github.com/alertops/backend/internal/model"
)

type fakeApprovalStore struct {
	incidents map[string]*model.Incident
	approvals map[string]*model.ApprovalRequest
	audits    []model.AuditEntry
}

func newFakeApprovalStore(incidents ...*model.Incident) *fakeApprovalStore {
	s := &fakeApprovalStore{
		incidents: make(map[string]*model.Incident),
		approvals: make(map[string]*model.ApprovalRequest),
	}
	for _, inc := range incidents {
		s.incidents[inc.IncidentID] = inc
	}
	return s
}

func (f *fakeApprovalStore) GetIncident(ctx context.Context, incidentID string) (*model.Incident, error) {
	if inc, ok := f.incidents[incidentID]; ok {
		return inc, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeApprovalStore) CreateApproval(ctx context.Context, req model.ApprovalRequest) error {
	f.approvals[req.RequestID] = &req
	return nil
}

func (f *fakeApprovalStore) GetApproval(ctx context.Context, requestID string) (*model.ApprovalRequest, error) {
	if req, ok := f.approvals[requestID]; ok {
		copied := *req
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeApprovalStore) ListApprovals(ctx context.Context, companyID string, status model.ApprovalStatus) ([]model.ApprovalRequest, error) {
	var out []model.ApprovalRequest
	for _, req := range f.approvals {
		if req.CompanyID != companyID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

// pending일 때만 전이시키는 DB의 조건부 UPDATE와 동일한 동작
func (f *fakeApprovalStore) TransitionApproval(ctx context.Context, requestID string, to model.ApprovalStatus, approvedBy string) (bool, error) {
	req, ok := f.approvals[requestID]
	if !ok || req.Status != model.ApprovalPending {
		return false, nil
	}
	req.Status = to
	if approvedBy != "" {
		req.ApprovedBy = &approvedBy
	}
	return true, nil
}

func (f *fakeApprovalStore) ExpireOverdueApprovals(ctx context.Context, now time.Time) ([]model.ApprovalRequest, error) {
	var expired []model.ApprovalRequest
	for _, req := range f.approvals {
		if req.Status == model.ApprovalPending && now.After(req.ExpiresAt) {
			req.Status = model.ApprovalExpired
			expired = append(expired, *req)
		}
	}
	return expired, nil
}

func (f *fakeApprovalStore) InsertAudit(ctx context.Context, entry model.AuditEntry) error {
	f.audits = append(f.audits, entry)
	return nil
}

func (f *fakeApprovalStore) pendingRequest() *model.ApprovalRequest {
	for _, req := range f.approvals {
		if req.Status == model.ApprovalPending {
			return req
		}
	}
	return nil
}

type fakeDispatcher struct {
	configured bool
	dispatched []client.DispatchCommandRequest
}

func (f *fakeDispatcher) IsConfigured() bool { return f.configured }

func (f *fakeDispatcher) Dispatch(ctx context.Context, req client.DispatchCommandRequest) (*client.DispatchCommandResponse, error) {
	f.dispatched = append(f.dispatched, req)
	return &client.DispatchCommandResponse{DispatchID: "disp-1", Status: "accepted"}, nil
}

func approvalIncident() *model.Incident {
	return &model.Incident{
		IncidentID: "INC-1",
		CompanyID:  "CMP-1",
		Severity:   model.SeverityHigh,
		Status:     model.IncidentStatusNew,
	}
}

func operatorUser() model.AuthUser {
	return model.AuthUser{LoginID: "op-1", CompanyID: "CMP-1", Role: model.RoleOperator}
}

func adminUser() model.AuthUser {
	return model.AuthUser{LoginID: "admin-1", CompanyID: "CMP-1", Role: model.RoleAdmin}
}

func TestDispatchLowRiskImmediate(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeApprovalStore(approvalIncident())
	dispatcher := &fakeDispatcher{configured: true}
	svc := NewApprovalService(store, dispatcher, clock)

	resp, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "restart nginx", RiskLevel: "low"})
	if err != nil {
		t.Fatalf("low-risk dispatch failed: %v", err)
	}
	if resp.Result != "dispatched" {
		t.Fatalf("expected dispatched, got %s", resp.Result)
	}
	if len(dispatcher.dispatched) != 1 {
		t.Fatalf("executor must be called exactly once, got %d", len(dispatcher.dispatched))
	}
	if len(store.approvals) != 0 {
		t.Fatalf("low risk must not create approval request")
	}
}

func TestDispatchHighRiskRequiresApproval(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeApprovalStore(approvalIncident())
	dispatcher := &fakeDispatcher{configured: true}
	svc := NewApprovalService(store, dispatcher, clock)

	resp, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "failover db", RiskLevel: "high"})
	if err != nil {
		t.Fatalf("high-risk request failed: %v", err)
	}
	if resp.Result != "pending_approval" || resp.RequestID == "" {
		t.Fatalf("expected pending_approval with request id, got %+v", resp)
	}
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("high risk must not dispatch before approval")
	}

	req := store.approvals[resp.RequestID]
	if req == nil || req.Status != model.ApprovalPending {
		t.Fatalf("approval request must be pending")
	}
	if !req.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected ttl: %v", req.ExpiresAt)
	}
}

func TestDispatchInvalidRisk(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewApprovalService(newFakeApprovalStore(approvalIncident()), &fakeDispatcher{configured: true}, clock)

	_, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "x", RiskLevel: "extreme"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDispatchScopedToTenant(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	inc := approvalIncident()
	inc.CompanyID = "CMP-other"
	svc := NewApprovalService(newFakeApprovalStore(inc), &fakeDispatcher{configured: true}, clock)

	_, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "x", RiskLevel: "low"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-tenant incident, got %v", err)
	}
}

func TestDispatchRejectsResolvedIncident(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	inc := approvalIncident()
	inc.Status = model.IncidentStatusResolved
	svc := NewApprovalService(newFakeApprovalStore(inc), &fakeDispatcher{configured: true}, clock)

	_, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "x", RiskLevel: "low"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestApproveHighRiskNeedsAdmin(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeApprovalStore(approvalIncident())
	dispatcher := &fakeDispatcher{configured: true}
	svc := NewApprovalService(store, dispatcher, clock)

	resp, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "failover db", RiskLevel: "high"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// operator는 high 승인 불가
	if _, err := svc.Approve(context.Background(), operatorUser(), resp.RequestID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for operator, got %v", err)
	}
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("forbidden approval must not dispatch")
	}

	// admin은 가능
	approved, err := svc.Approve(context.Background(), adminUser(), resp.RequestID)
	if err != nil {
		t.Fatalf("admin approval failed: %v", err)
	}
	if approved.Status != model.ApprovalApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != "admin-1" {
		t.Fatalf("approved_by must record the approver")
	}
	if len(dispatcher.dispatched) != 1 {
		t.Fatalf("approved action must dispatch once, got %d", len(dispatcher.dispatched))
	}
	if dispatcher.dispatched[0].RequestID != resp.RequestID {
		t.Fatalf("dispatch must carry request id")
	}
}

func TestApproveMediumRiskByOperator(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeApprovalStore(approvalIncident())
	dispatcher := &fakeDispatcher{configured: true}
	svc := NewApprovalService(store, dispatcher, clock)

	resp, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "scale out", RiskLevel: "medium"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	viewer := model.AuthUser{LoginID: "v-1", CompanyID: "CMP-1", Role: model.RoleViewer}
	if _, err := svc.Approve(context.Background(), viewer, resp.RequestID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for viewer, got %v", err)
	}

	approved, err := svc.Approve(context.Background(), operatorUser(), resp.RequestID)
	if err != nil {
		t.Fatalf("operator approval failed: %v", err)
	}
	if approved.Status != model.ApprovalApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
}

func TestRejectSkipsDispatch(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeApprovalStore(approvalIncident())
	dispatcher := &fakeDispatcher{configured: true}
	svc := NewApprovalService(store, dispatcher, clock)

	resp, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "scale out", RiskLevel: "medium"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	rejected, err := svc.Reject(context.Background(), operatorUser(), resp.RequestID)
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != model.ApprovalRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("rejected action must never dispatch")
	}

	// 종료 상태에서 재승인 시도는 conflict
	if _, err := svc.Approve(context.Background(), adminUser(), resp.RequestID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on double transition, got %v", err)
	}
}

func TestApproveExpiredRequest(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeApprovalStore(approvalIncident())
	dispatcher := &fakeDispatcher{configured: true}
	svc := NewApprovalService(store, dispatcher, clock)

	resp, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "failover db", RiskLevel: "high"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// TTL 1시간 경과 후 승인 시도
	clock.Advance(61 * time.Minute)
	if _, err := svc.Approve(context.Background(), adminUser(), resp.RequestID); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if store.approvals[resp.RequestID].Status != model.ApprovalExpired {
		t.Fatalf("lazy expiry must flip status to expired")
	}
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("expired request must never dispatch")
	}
}

func TestSweepExpiredWritesAudit(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeApprovalStore(approvalIncident())
	svc := NewApprovalService(store, &fakeDispatcher{configured: true}, clock)

	if _, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "x", RiskLevel: "medium"}); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	clock.Advance(2 * time.Hour)
	svc.SweepExpired(context.Background())

	req := store.pendingRequest()
	if req != nil {
		t.Fatalf("sweep must expire overdue requests")
	}
	found := false
	for _, a := range store.audits {
		if a.Action == model.AuditApprovalExpired {
			found = true
		}
	}
	if !found {
		t.Fatalf("sweep must write expiry audit")
	}
}

func TestDispatchWithoutExecutor(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewApprovalService(newFakeApprovalStore(approvalIncident()), &fakeDispatcher{configured: false}, clock)

	_, err := svc.RequestDispatch(context.Background(), operatorUser(), "INC-1", model.DispatchRequest{Action: "x", RiskLevel: "low"})
	if !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}
}

func TestListApprovalsValidatesStatus(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewApprovalService(newFakeApprovalStore(), &fakeDispatcher{configured: true}, clock)

	if _, err := svc.List(context.Background(), "CMP-1", "bogus"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.List(context.Background(), "CMP-1", "pending"); err != nil {
		t.Fatalf("valid status rejected: %v", err)
	}
}
