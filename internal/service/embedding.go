// 유사 인시던트 검색 - 종료 인시던트 요약을 임베딩해 pgvector에 저장하고
// 코사인 거리 KNN으로 과거 유사 사례를 찾는다.

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/alertops/backend/internal/db"
	"github.com/alertops/backend/internal/model"
)

// embeddingStore - 유사 검색이 쓰는 DB 인터페이스
type embeddingStore interface {
	GetIncident(ctx context.Context, incidentID string) (*model.Incident, error)
	GetAlertsByIncidentID(ctx context.Context, incidentID string) ([]model.AlertListResponse, error)
	InsertIncidentEmbedding(ctx context.Context, incidentID, companyID, summary, embModel string, vector []float32) (int64, error)
	SearchSimilarIncidents(ctx context.Context, companyID, excludeIncidentID string, vector []float32, limit int) ([]model.SimilarIncident, error)
	GetIncidentEmbedding(ctx context.Context, incidentID string) ([]float32, error)
}

// textEmbedder - 텍스트 임베딩 인터페이스 (AIClient가 구현)
type textEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, string, error)
}

// EmbeddingService 구조체 정의
type EmbeddingService struct {
	store    embeddingStore
	embedder textEmbedder
}

// NewEmbeddingService 객체 생성
func NewEmbeddingService(store embeddingStore, embedder textEmbedder) *EmbeddingService {
	return &EmbeddingService{store: store, embedder: embedder}
}

// IndexIncident - 인시던트 요약 임베딩 저장 (종료 시 호출)
func (s *EmbeddingService) IndexIncident(ctx context.Context, inc model.Incident) error {
	summary := buildIncidentSummary(inc)
	vector, embModel, err := s.embedder.EmbedText(ctx, summary)
	if err != nil {
		return fmt.Errorf("failed to embed incident summary: %w", err)
	}
	_, err = s.store.InsertIncidentEmbedding(ctx, inc.IncidentID, inc.CompanyID, summary, embModel, vector)
	return err
}

// FindSimilar - 과거 유사 인시던트 검색
// 대상 인시던트의 저장 임베딩이 있으면 재사용하고, 없으면 그 자리에서 계산한다.
func (s *EmbeddingService) FindSimilar(ctx context.Context, companyID, incidentID string, limit int) ([]model.SimilarIncident, error) {
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

	vector, err := s.store.GetIncidentEmbedding(ctx, incidentID)
	if err != nil {
		if !db.IsNoRows(err) {
			return nil, err
		}
		vector, _, err = s.embedder.EmbedText(ctx, buildIncidentSummary(*inc))
		if err != nil {
			return nil, fmt.Errorf("failed to embed incident summary: %w", err)
		}
	}

	return s.store.SearchSimilarIncidents(ctx, companyID, incidentID, vector, limit)
}

// buildIncidentSummary - 임베딩 입력 텍스트 구성
func buildIncidentSummary(inc model.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "asset: %s\n", inc.AssetName)
	fmt.Fprintf(&b, "key: %s\n", inc.AggregationKey)
	fmt.Fprintf(&b, "severity: %s\n", inc.Severity)
	fmt.Fprintf(&b, "alerts: %d\n", inc.AlertCount)
	if len(inc.ToolSources) > 0 {
		fmt.Fprintf(&b, "sources: %s\n", strings.Join(inc.ToolSources, ", "))
	}
	return b.String()
}
