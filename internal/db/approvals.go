package db

import (
	"context"
	"time"

	"github.com/alertops/backend/internal/model"
)

// EnsureApprovalSchema - approval_requests 테이블 생성
func (db *Postgres) EnsureApprovalSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS approval_requests (
			request_id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL REFERENCES companies(company_id),
			incident_id TEXT NOT NULL,
			action TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			expires_at TIMESTAMPTZ NOT NULL,
			approved_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS approval_requests_company_status_idx ON approval_requests(company_id, status)`,
		`CREATE INDEX IF NOT EXISTS approval_requests_expires_at_idx ON approval_requests(expires_at) WHERE status = 'pending'`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

const approvalColumns = `
	request_id, company_id, incident_id, action, risk_level, status,
	expires_at, approved_by, created_at, updated_at
`

func scanApproval(row interface{ Scan(...any) error }) (*model.ApprovalRequest, error) {
	var r model.ApprovalRequest
	err := row.Scan(
		&r.RequestID, &r.CompanyID, &r.IncidentID, &r.Action, &r.RiskLevel, &r.Status,
		&r.ExpiresAt, &r.ApprovedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *Postgres) CreateApproval(ctx context.Context, req model.ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests (
			request_id, company_id, incident_id, action, risk_level, status,
			expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	_, err := db.Pool.Exec(ctx, query,
		req.RequestID, req.CompanyID, req.IncidentID, req.Action, req.RiskLevel, req.Status,
		req.ExpiresAt, req.CreatedAt,
	)
	return err
}

func (db *Postgres) GetApproval(ctx context.Context, requestID string) (*model.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE request_id = $1`
	return scanApproval(db.Pool.QueryRow(ctx, query, requestID))
}

// ListApprovals - 테넌트 승인 요청 목록 (status 비어 있으면 전체)
func (db *Postgres) ListApprovals(ctx context.Context, companyID string, status model.ApprovalStatus) ([]model.ApprovalRequest, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests
		WHERE company_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`
	rows, err := db.Pool.Query(ctx, query, companyID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.ApprovalRequest
	for rows.Next() {
		r, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}

	if list == nil {
		list = []model.ApprovalRequest{}
	}
	return list, rows.Err()
}

// TransitionApproval - pending 상태에서만 전이 허용 (동시 승인/만료 경합 방지)
// 반환값은 전이 성공 여부.
func (db *Postgres) TransitionApproval(ctx context.Context, requestID string, to model.ApprovalStatus, approvedBy string) (bool, error) {
	query := `
		UPDATE approval_requests
		SET status = $2, approved_by = NULLIF($3, ''), updated_at = NOW()
		WHERE request_id = $1 AND status = 'pending'
	`
	tag, err := db.Pool.Exec(ctx, query, requestID, to, approvedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireOverdueApprovals - 만료 시각이 지난 pending 요청 일괄 만료 (주기 스윕)
func (db *Postgres) ExpireOverdueApprovals(ctx context.Context, now time.Time) ([]model.ApprovalRequest, error) {
	query := `
		UPDATE approval_requests
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND expires_at < $1
		RETURNING ` + approvalColumns + `
	`
	rows, err := db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.ApprovalRequest
	for rows.Next() {
		r, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}
