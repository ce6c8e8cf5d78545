package db

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/alertops/backend/internal/model"
)

// EnsureEmbeddingSchema - incident_embeddings 테이블 생성
// 종료된 인시던트의 요약 임베딩을 저장하고 유사 인시던트 검색에 사용한다.
func (db *Postgres) EnsureEmbeddingSchema(ctx context.Context) error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`
		CREATE TABLE IF NOT EXISTS incident_embeddings (
			id BIGSERIAL PRIMARY KEY,
			incident_id TEXT NOT NULL UNIQUE,
			company_id TEXT NOT NULL,
			summary TEXT NOT NULL,
			embedding vector(768) NOT NULL,
			model TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS incident_embeddings_company_idx ON incident_embeddings(company_id)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Postgres) InsertIncidentEmbedding(ctx context.Context, incidentID, companyID, summary, embModel string, vector []float32) (int64, error) {
	query := `
		INSERT INTO incident_embeddings (incident_id, company_id, summary, embedding, model)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (incident_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			embedding = EXCLUDED.embedding,
			model = EXCLUDED.model
		RETURNING id
	`
	var id int64
	err := db.Pool.QueryRow(ctx, query, incidentID, companyID, summary, pgvector.NewVector(vector), embModel).Scan(&id)
	return id, err
}

// SearchSimilarIncidents - 코사인 거리 기준 KNN 검색 (자기 자신 제외)
func (db *Postgres) SearchSimilarIncidents(ctx context.Context, companyID, excludeIncidentID string, vector []float32, limit int) ([]model.SimilarIncident, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `
		SELECT e.incident_id, i.aggregation_key, i.severity, e.summary,
		       e.embedding <=> $3 AS distance
		FROM incident_embeddings e
		JOIN incidents i ON i.incident_id = e.incident_id
		WHERE e.company_id = $1 AND e.incident_id != $2
		ORDER BY e.embedding <=> $3
		LIMIT $4
	`
	rows, err := db.Pool.Query(ctx, query, companyID, excludeIncidentID, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.SimilarIncident
	for rows.Next() {
		var s model.SimilarIncident
		if err := rows.Scan(&s.IncidentID, &s.AggregationKey, &s.Severity, &s.Summary, &s.Distance); err != nil {
			return nil, err
		}
		list = append(list, s)
	}

	if list == nil {
		list = []model.SimilarIncident{}
	}
	return list, rows.Err()
}

// GetIncidentEmbedding - 인시던트의 저장된 임베딩 조회
func (db *Postgres) GetIncidentEmbedding(ctx context.Context, incidentID string) ([]float32, error) {
	var vec pgvector.Vector
	err := db.Pool.QueryRow(ctx,
		`SELECT embedding FROM incident_embeddings WHERE incident_id = $1`, incidentID,
	).Scan(&vec)
	if err != nil {
		return nil, err
	}
	return vec.Slice(), nil
}
