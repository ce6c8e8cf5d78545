package db

import (
	"context"

	"github.com/alertops/backend/internal/model"
)

// EnsureAuditSchema - audit_log 테이블 생성
func (db *Postgres) EnsureAuditSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			company_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			incident_id TEXT NOT NULL DEFAULT '',
			detail JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS audit_log_company_idx ON audit_log(company_id, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// InsertAudit - 감사 기록 1건 저장
func (db *Postgres) InsertAudit(ctx context.Context, entry model.AuditEntry) error {
	detail := entry.Detail
	if len(detail) == 0 {
		detail = []byte(`{}`)
	}
	query := `
		INSERT INTO audit_log (company_id, actor, action, incident_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := db.Pool.Exec(ctx, query, entry.CompanyID, entry.Actor, entry.Action, entry.IncidentID, detail)
	return err
}

// ListAudit - 테넌트 감사 기록 조회 (최신순)
func (db *Postgres) ListAudit(ctx context.Context, companyID string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, company_id, actor, action, incident_id, detail, created_at
		FROM audit_log
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := db.Pool.Query(ctx, query, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Actor, &e.Action, &e.IncidentID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}

	if list == nil {
		list = []model.AuditEntry{}
	}
	return list, rows.Err()
}
