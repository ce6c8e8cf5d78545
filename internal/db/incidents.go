package db

import (
	"context"
	"time"

	"github.com/alertops/backend/internal/model"
)

// EnsureIncidentSchema - incidents 테이블 생성
func (db *Postgres) EnsureIncidentSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS incidents (
			incident_id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL REFERENCES companies(company_id),
			aggregation_key TEXT NOT NULL,
			asset_name TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL,
			priority_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'new',
			tool_sources TEXT[] NOT NULL DEFAULT '{}',
			alert_count INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			assigned_at TIMESTAMPTZ,
			resolved_at TIMESTAMPTZ,
			response_deadline TIMESTAMPTZ NOT NULL,
			resolution_deadline TIMESTAMPTZ NOT NULL,
			escalation_level INT NOT NULL DEFAULT 0,
			last_notified_level INT NOT NULL DEFAULT 0,
			last_warning_sent_at TIMESTAMPTZ,
			assigned_to TEXT NOT NULL DEFAULT '',
			resolved_by TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS incidents_company_status_idx ON incidents(company_id, status)`,
		`CREATE INDEX IF NOT EXISTS incidents_agg_key_idx ON incidents(company_id, aggregation_key)`,
		`CREATE INDEX IF NOT EXISTS incidents_created_at_idx ON incidents(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

const incidentColumns = `
	incident_id, company_id, aggregation_key, asset_name, severity, priority_score, status,
	tool_sources, alert_count, created_at, assigned_at, resolved_at,
	response_deadline, resolution_deadline, escalation_level, last_notified_level, last_warning_sent_at
`

func scanIncident(row interface{ Scan(...any) error }) (*model.Incident, error) {
	var i model.Incident
	err := row.Scan(
		&i.IncidentID, &i.CompanyID, &i.AggregationKey, &i.AssetName, &i.Severity, &i.PriorityScore, &i.Status,
		&i.ToolSources, &i.AlertCount, &i.CreatedAt, &i.AssignedAt, &i.ResolvedAt,
		&i.ResponseDeadline, &i.ResolutionDeadline, &i.EscalationLevel, &i.LastNotifiedLevel, &i.LastWarningSentAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// CreateIncident - 새 인시던트 저장
func (db *Postgres) CreateIncident(ctx context.Context, inc model.Incident) error {
	query := `
		INSERT INTO incidents (
			incident_id, company_id, aggregation_key, asset_name, severity, priority_score, status,
			tool_sources, alert_count, created_at,
			response_deadline, resolution_deadline, escalation_level, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
	`
	_, err := db.Pool.Exec(ctx, query,
		inc.IncidentID, inc.CompanyID, inc.AggregationKey, inc.AssetName, inc.Severity, inc.PriorityScore, inc.Status,
		inc.ToolSources, inc.AlertCount, inc.CreatedAt,
		inc.ResponseDeadline, inc.ResolutionDeadline, inc.EscalationLevel,
	)
	return err
}

// GetOpenIncidentByKey - 같은 aggregation_key의 미종료 인시던트 조회
// resolved 인시던트는 제외한다 (재오픈 금지 - 새 인시던트를 만들어야 함).
func (db *Postgres) GetOpenIncidentByKey(ctx context.Context, companyID, aggregationKey string) (*model.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE company_id = $1 AND aggregation_key = $2 AND status != 'resolved'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanIncident(db.Pool.QueryRow(ctx, query, companyID, aggregationKey))
}

func (db *Postgres) GetIncident(ctx context.Context, incidentID string) (*model.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE incident_id = $1`
	return scanIncident(db.Pool.QueryRow(ctx, query, incidentID))
}

// UpdateIncidentAggregates - 멤버 추가 후 집계값 갱신
func (db *Postgres) UpdateIncidentAggregates(ctx context.Context, incidentID string, severity model.Severity, score float64, toolSources []string, alertCount int) error {
	query := `
		UPDATE incidents
		SET severity = $2, priority_score = $3, tool_sources = $4, alert_count = $5, updated_at = NOW()
		WHERE incident_id = $1
	`
	_, err := db.Pool.Exec(ctx, query, incidentID, severity, score, toolSources, alertCount)
	return err
}

// UpdateIncidentScore - 점수만 갱신 (스케줄러 tick의 age decay 재계산)
func (db *Postgres) UpdateIncidentScore(ctx context.Context, incidentID string, score float64) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE incidents SET priority_score = $2, updated_at = NOW() WHERE incident_id = $1`,
		incidentID, score,
	)
	return err
}

// AssignIncident - 담당자 배정 (new 상태에서만, 응답 SLA 시계는 여기서 멈춘다)
func (db *Postgres) AssignIncident(ctx context.Context, incidentID, assignedTo string, assignedAt time.Time) error {
	query := `
		UPDATE incidents
		SET status = 'assigned', assigned_to = $2, assigned_at = $3, updated_at = NOW()
		WHERE incident_id = $1 AND assigned_at IS NULL AND status != 'resolved'
	`
	_, err := db.Pool.Exec(ctx, query, incidentID, assignedTo, assignedAt)
	return err
}

// ResolveIncident - 인시던트 종료 (종료 후엔 어떤 갱신도 불가)
func (db *Postgres) ResolveIncident(ctx context.Context, incidentID, resolvedBy string, resolvedAt time.Time) error {
	query := `
		UPDATE incidents
		SET status = 'resolved', resolved_by = $2, resolved_at = $3, updated_at = NOW()
		WHERE incident_id = $1 AND status != 'resolved'
	`
	_, err := db.Pool.Exec(ctx, query, incidentID, resolvedBy, resolvedAt)
	return err
}

// UpdateEscalation - 에스컬레이션 레벨 상향 (단조 증가 보장: 현재 레벨보다 클 때만)
func (db *Postgres) UpdateEscalation(ctx context.Context, incidentID string, level int) error {
	query := `
		UPDATE incidents
		SET escalation_level = $2, status = 'escalated', updated_at = NOW()
		WHERE incident_id = $1 AND escalation_level < $2 AND status != 'resolved'
	`
	_, err := db.Pool.Exec(ctx, query, incidentID, level)
	return err
}

// UpdateLastNotifiedLevel - 에스컬레이션 알림 발송 완료 레벨 기록
// escalation_level보다 낮게 남아 있으면 다음 tick이 재발송한다.
func (db *Postgres) UpdateLastNotifiedLevel(ctx context.Context, incidentID string, level int) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE incidents SET last_notified_level = $2, updated_at = NOW() WHERE incident_id = $1 AND last_notified_level < $2`,
		incidentID, level,
	)
	return err
}

// UpdateLastWarningSentAt - SLA 경고 발송 시각 기록 (tick마다 재발송 방지)
func (db *Postgres) UpdateLastWarningSentAt(ctx context.Context, incidentID string, sentAt time.Time) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE incidents SET last_warning_sent_at = $2, updated_at = NOW() WHERE incident_id = $1`,
		incidentID, sentAt,
	)
	return err
}

// ListOpenIncidents - 미종료 인시던트 목록 (Escalation Scheduler 순회용)
func (db *Postgres) ListOpenIncidents(ctx context.Context, companyID string) ([]model.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE company_id = $1 AND status != 'resolved'
		ORDER BY created_at ASC
	`
	rows, err := db.Pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *inc)
	}
	return list, rows.Err()
}

// CountOpenIncidents - 미종료 인시던트 개수 (noise reduction 계산용)
func (db *Postgres) CountOpenIncidents(ctx context.Context, companyID string) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM incidents WHERE company_id = $1 AND status != 'resolved'`,
		companyID,
	).Scan(&count)
	return count, err
}

// GetIncidentList - 인시던트 목록 조회 (API)
func (db *Postgres) GetIncidentList(ctx context.Context, companyID string, limit int) ([]model.IncidentListResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT incident_id, aggregation_key, severity, priority_score, status,
		       escalation_level, alert_count, created_at, resolved_at
		FROM incidents
		WHERE company_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := db.Pool.Query(ctx, query, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.IncidentListResponse
	for rows.Next() {
		var i model.IncidentListResponse
		if err := rows.Scan(&i.IncidentID, &i.AggregationKey, &i.Severity, &i.PriorityScore, &i.Status,
			&i.EscalationLevel, &i.AlertCount, &i.CreatedAt, &i.ResolvedAt); err != nil {
			return nil, err
		}
		list = append(list, i)
	}

	if list == nil {
		list = []model.IncidentListResponse{}
	}
	return list, rows.Err()
}

// ListIncidentsSince - SLA 리포트용: 조회 기간 내 생성된 인시던트 전체
func (db *Postgres) ListIncidentsSince(ctx context.Context, companyID string, since time.Time) ([]model.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE company_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`
	rows, err := db.Pool.Query(ctx, query, companyID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *inc)
	}
	return list, rows.Err()
}
