package db

import (
	"context"
	"time"

	"github.com/alertops/backend/internal/model"
)

// EnsureAlertSchema - alerts, alert_deliveries 테이블 생성
// alert_deliveries는 (company_id, delivery_id) PK로 멱등성 체크를
// check-and-insert 한 문장으로 처리하기 위한 테이블.
func (db *Postgres) EnsureAlertSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS alerts (
			alert_id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL REFERENCES companies(company_id),
			asset_name TEXT NOT NULL,
			signature TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			tool_source TEXT NOT NULL DEFAULT '',
			delivery_id TEXT NOT NULL,
			incident_id TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			received_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS alerts_company_status_idx ON alerts(company_id, status)`,
		`CREATE INDEX IF NOT EXISTS alerts_incident_id_idx ON alerts(incident_id) WHERE incident_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS alerts_received_at_idx ON alerts(received_at DESC)`,
		`
		CREATE TABLE IF NOT EXISTS alert_deliveries (
			company_id TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			alert_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (company_id, delivery_id)
		)
		`,
		`CREATE INDEX IF NOT EXISTS alert_deliveries_created_at_idx ON alert_deliveries(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// ClaimDelivery - delivery_id 선점 시도 (원자적 check-and-insert)
// 반환: (선점 성공 여부, 이미 선점한 원본 alert_id)
// 거의 동시에 도착한 중복 전송 중 정확히 한 건만 선점에 성공한다.
func (db *Postgres) ClaimDelivery(ctx context.Context, companyID, deliveryID, alertID string) (bool, string, error) {
	insert := `
		INSERT INTO alert_deliveries (company_id, delivery_id, alert_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (company_id, delivery_id) DO NOTHING
	`
	tag, err := db.Pool.Exec(ctx, insert, companyID, deliveryID, alertID)
	if err != nil {
		return false, "", err
	}
	if tag.RowsAffected() == 1 {
		return true, "", nil
	}

	var existing string
	err = db.Pool.QueryRow(ctx,
		`SELECT alert_id FROM alert_deliveries WHERE company_id = $1 AND delivery_id = $2`,
		companyID, deliveryID,
	).Scan(&existing)
	if err != nil {
		return false, "", err
	}
	return false, existing, nil
}

// ReleaseDelivery - 선점 해제 (선점 후 검증 실패로 Alert를 만들지 않은 경우)
func (db *Postgres) ReleaseDelivery(ctx context.Context, companyID, deliveryID string) error {
	_, err := db.Pool.Exec(ctx,
		`DELETE FROM alert_deliveries WHERE company_id = $1 AND delivery_id = $2`,
		companyID, deliveryID,
	)
	return err
}

// DeleteExpiredDeliveries - 보존 시간이 지난 delivery 기록 삭제 (주기 스윕)
func (db *Postgres) DeleteExpiredDeliveries(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM alert_deliveries WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SaveAlert - 수락된 알림 저장
func (db *Postgres) SaveAlert(ctx context.Context, alert model.Alert) error {
	query := `
		INSERT INTO alerts (
			alert_id, company_id, asset_name, signature, severity, message,
			tool_source, delivery_id, status, received_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err := db.Pool.Exec(ctx, query,
		alert.AlertID,
		alert.CompanyID,
		alert.AssetName,
		alert.Signature,
		alert.Severity,
		alert.Message,
		alert.ToolSource,
		alert.DeliveryID,
		alert.Status,
		alert.ReceivedAt,
	)
	return err
}

// GetActiveAlertsSince - 상관분석 윈도우 안의 active 알림 조회
// 윈도우는 실행 시점에서 뒤로 계산하며, received_at 오름차순으로 반환한다.
func (db *Postgres) GetActiveAlertsSince(ctx context.Context, companyID string, since time.Time) ([]model.Alert, error) {
	query := `
		SELECT alert_id, company_id, asset_name, signature, severity, message,
		       tool_source, delivery_id, incident_id, status, received_at
		FROM alerts
		WHERE company_id = $1 AND status = 'active' AND received_at >= $2
		ORDER BY received_at ASC
	`
	rows, err := db.Pool.Query(ctx, query, companyID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(
			&a.AlertID, &a.CompanyID, &a.AssetName, &a.Signature, &a.Severity, &a.Message,
			&a.ToolSource, &a.DeliveryID, &a.IncidentID, &a.Status, &a.ReceivedAt,
		); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// CountActiveAlerts - 테넌트의 active 알림 개수 (CorrelationResult 집계용)
func (db *Postgres) CountActiveAlerts(ctx context.Context, companyID string) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE company_id = $1 AND status = 'active'`,
		companyID,
	).Scan(&count)
	return count, err
}

// MarkAlertsCorrelated - 알림들을 인시던트에 연결하고 correlated로 전환
func (db *Postgres) MarkAlertsCorrelated(ctx context.Context, alertIDs []string, incidentID string) error {
	if len(alertIDs) == 0 {
		return nil
	}
	query := `
		UPDATE alerts
		SET incident_id = $2, status = 'correlated', updated_at = NOW()
		WHERE alert_id = ANY($1)
	`
	_, err := db.Pool.Exec(ctx, query, alertIDs, incidentID)
	return err
}

// GetAlertsByIncidentID - 특정 인시던트의 멤버 알림 목록 (수신 시각 오름차순)
func (db *Postgres) GetAlertsByIncidentID(ctx context.Context, incidentID string) ([]model.AlertListResponse, error) {
	query := `
		SELECT alert_id, incident_id, asset_name, signature, severity, tool_source, status, received_at
		FROM alerts
		WHERE incident_id = $1
		ORDER BY received_at ASC
	`
	rows, err := db.Pool.Query(ctx, query, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.AlertListResponse
	for rows.Next() {
		var a model.AlertListResponse
		if err := rows.Scan(&a.AlertID, &a.IncidentID, &a.AssetName, &a.Signature, &a.Severity, &a.ToolSource, &a.Status, &a.ReceivedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}

	if list == nil {
		list = []model.AlertListResponse{}
	}
	return list, rows.Err()
}

// GetAlertList - 테넌트의 알림 목록 조회
func (db *Postgres) GetAlertList(ctx context.Context, companyID string, limit int) ([]model.AlertListResponse, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT alert_id, incident_id, asset_name, signature, severity, tool_source, status, received_at
		FROM alerts
		WHERE company_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`
	rows, err := db.Pool.Query(ctx, query, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.AlertListResponse
	for rows.Next() {
		var a model.AlertListResponse
		if err := rows.Scan(&a.AlertID, &a.IncidentID, &a.AssetName, &a.Signature, &a.Severity, &a.ToolSource, &a.Status, &a.ReceivedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}

	if list == nil {
		list = []model.AlertListResponse{}
	}
	return list, rows.Err()
}
