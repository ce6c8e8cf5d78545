package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/alertops/backend/internal/model"
)

// EnsureCompanySchema - companies, assets, 테넌트 설정 테이블 생성
func (db *Postgres) EnsureCompanySchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS companies (
			company_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL UNIQUE,
			webhook_secret TEXT NOT NULL DEFAULT '',
			hmac_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			rate_limit_per_minute INT NOT NULL DEFAULT 120,
			burst_size INT NOT NULL DEFAULT 150,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS assets (
			asset_id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL REFERENCES companies(company_id),
			name TEXT NOT NULL,
			is_critical BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (company_id, name)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS correlation_configs (
			company_id TEXT PRIMARY KEY REFERENCES companies(company_id),
			time_window_minutes INT NOT NULL DEFAULT 15,
			aggregation_key_pattern TEXT NOT NULL DEFAULT 'asset|signature',
			auto_correlate BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS sla_configs (
			company_id TEXT PRIMARY KEY REFERENCES companies(company_id),
			response_minutes JSONB NOT NULL DEFAULT '{}',
			resolution_minutes JSONB NOT NULL DEFAULT '{}',
			escalation_chain JSONB NOT NULL DEFAULT '[]',
			warning_threshold_minutes INT NOT NULL DEFAULT 10,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// GetCompanyByAPIKey - 인입 요청의 api_key로 테넌트 조회
func (db *Postgres) GetCompanyByAPIKey(ctx context.Context, apiKey string) (*model.Company, error) {
	query := `
		SELECT company_id, name, api_key, webhook_secret, hmac_enabled,
		       rate_limit_per_minute, burst_size, created_at
		FROM companies
		WHERE api_key = $1
	`
	var c model.Company
	err := db.Pool.QueryRow(ctx, query, apiKey).Scan(
		&c.CompanyID, &c.Name, &c.APIKey, &c.WebhookSecret, &c.HMACEnabled,
		&c.RateLimitPerMinute, &c.BurstSize, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *Postgres) GetCompanyByID(ctx context.Context, companyID string) (*model.Company, error) {
	query := `
		SELECT company_id, name, api_key, webhook_secret, hmac_enabled,
		       rate_limit_per_minute, burst_size, created_at
		FROM companies
		WHERE company_id = $1
	`
	var c model.Company
	err := db.Pool.QueryRow(ctx, query, companyID).Scan(
		&c.CompanyID, &c.Name, &c.APIKey, &c.WebhookSecret, &c.HMACEnabled,
		&c.RateLimitPerMinute, &c.BurstSize, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCompanyIDs - 백그라운드 스케줄러 순회용
func (db *Postgres) ListCompanyIDs(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT company_id FROM companies ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetOrCreateAsset - 이름으로 자산 조회, 없으면 생성 (Ingress Gate의 lazy create)
func (db *Postgres) GetOrCreateAsset(ctx context.Context, companyID, name string) (*model.Asset, error) {
	query := `
		INSERT INTO assets (asset_id, company_id, name, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (company_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING asset_id, company_id, name, is_critical, created_at
	`
	var a model.Asset
	err := db.Pool.QueryRow(ctx, query, "AST-"+uuid.NewString(), companyID, name).Scan(
		&a.AssetID, &a.CompanyID, &a.Name, &a.IsCritical, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAssetByName - 자산 조회 (행이 없으면 pgx.ErrNoRows)
func (db *Postgres) GetAssetByName(ctx context.Context, companyID, name string) (*model.Asset, error) {
	query := `
		SELECT asset_id, company_id, name, is_critical, created_at
		FROM assets
		WHERE company_id = $1 AND name = $2
	`
	var a model.Asset
	err := db.Pool.QueryRow(ctx, query, companyID, name).Scan(
		&a.AssetID, &a.CompanyID, &a.Name, &a.IsCritical, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetCorrelationConfig - 테넌트 상관분석 설정 (행이 없으면 pgx.ErrNoRows)
func (db *Postgres) GetCorrelationConfig(ctx context.Context, companyID string) (*model.CorrelationConfig, error) {
	query := `
		SELECT company_id, time_window_minutes, aggregation_key_pattern, auto_correlate
		FROM correlation_configs
		WHERE company_id = $1
	`
	var c model.CorrelationConfig
	err := db.Pool.QueryRow(ctx, query, companyID).Scan(
		&c.CompanyID, &c.TimeWindowMinutes, &c.AggregationKeyPattern, &c.AutoCorrelate,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *Postgres) UpsertCorrelationConfig(ctx context.Context, cfg model.CorrelationConfig) error {
	query := `
		INSERT INTO correlation_configs (company_id, time_window_minutes, aggregation_key_pattern, auto_correlate, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (company_id) DO UPDATE SET
			time_window_minutes = EXCLUDED.time_window_minutes,
			aggregation_key_pattern = EXCLUDED.aggregation_key_pattern,
			auto_correlate = EXCLUDED.auto_correlate,
			updated_at = NOW()
	`
	_, err := db.Pool.Exec(ctx, query, cfg.CompanyID, cfg.TimeWindowMinutes, cfg.AggregationKeyPattern, cfg.AutoCorrelate)
	return err
}

// GetSLAConfig - 테넌트 SLA 설정 (행이 없으면 pgx.ErrNoRows)
func (db *Postgres) GetSLAConfig(ctx context.Context, companyID string) (*model.SLAConfig, error) {
	query := `
		SELECT company_id, response_minutes, resolution_minutes, escalation_chain, warning_threshold_minutes
		FROM sla_configs
		WHERE company_id = $1
	`
	var (
		c        model.SLAConfig
		respRaw  []byte
		resoRaw  []byte
		chainRaw []byte
	)
	err := db.Pool.QueryRow(ctx, query, companyID).Scan(
		&c.CompanyID, &respRaw, &resoRaw, &chainRaw, &c.WarningThresholdMinutes,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(respRaw, &c.ResponseMinutes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resoRaw, &c.ResolutionMinutes); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(chainRaw, &c.EscalationChain); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *Postgres) UpsertSLAConfig(ctx context.Context, cfg model.SLAConfig) error {
	respRaw, err := json.Marshal(cfg.ResponseMinutes)
	if err != nil {
		return err
	}
	resoRaw, err := json.Marshal(cfg.ResolutionMinutes)
	if err != nil {
		return err
	}
	chainRaw, err := json.Marshal(cfg.EscalationChain)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sla_configs (company_id, response_minutes, resolution_minutes, escalation_chain, warning_threshold_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (company_id) DO UPDATE SET
			response_minutes = EXCLUDED.response_minutes,
			resolution_minutes = EXCLUDED.resolution_minutes,
			escalation_chain = EXCLUDED.escalation_chain,
			warning_threshold_minutes = EXCLUDED.warning_threshold_minutes,
			updated_at = NOW()
	`
	_, err = db.Pool.Exec(ctx, query, cfg.CompanyID, respRaw, resoRaw, chainRaw, cfg.WarningThresholdMinutes)
	return err
}

// CreateCompany - 테넌트 등록 (운영 편의용)
func (db *Postgres) CreateCompany(ctx context.Context, name, apiKey, webhookSecret string, hmacEnabled bool, limitPerMinute, burst int) (*model.Company, error) {
	query := `
		INSERT INTO companies (company_id, name, api_key, webhook_secret, hmac_enabled, rate_limit_per_minute, burst_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING company_id, name, api_key, webhook_secret, hmac_enabled, rate_limit_per_minute, burst_size, created_at
	`
	var c model.Company
	err := db.Pool.QueryRow(ctx, query,
		"CMP-"+uuid.NewString(), name, apiKey, webhookSecret, hmacEnabled, limitPerMinute, burst,
	).Scan(
		&c.CompanyID, &c.Name, &c.APIKey, &c.WebhookSecret, &c.HMACEnabled,
		&c.RateLimitPerMinute, &c.BurstSize, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
