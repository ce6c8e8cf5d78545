package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/alertops/backend/internal/config"
	"github.com/alertops/backend/internal/model"
)

// AIClient - genai 기반 보조 클라이언트
// 용도 두 가지:
//   - EmbedText: 종료 인시던트 요약 임베딩 (유사 인시던트 검색)
//   - SuggestSeverity: severity 재분류 advisory (실패해도 무시 가능)
type AIClient struct {
	client        *genai.Client
	embedModel    string
	classifyModel string
}

// SeveritySuggestion - advisory 분류 결과
// Confidence가 낮으면 호출부에서 무시한다.
type SeveritySuggestion struct {
	Severity   model.Severity `json:"severity"`
	Confidence float64        `json:"confidence"`
}

func NewAIClient(cfg config.AIConfig) (*AIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing AI_API_KEY")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, err
	}
	return &AIClient{
		client:        client,
		embedModel:    "text-embedding-004",
		classifyModel: "gemini-2.0-flash",
	}, nil
}

func (c *AIClient) EmbedText(ctx context.Context, text string) ([]float32, string, error) {
	res, err := c.client.Models.EmbedContent(ctx, c.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, c.embedModel, err
	}
	if res == nil || len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, c.embedModel, fmt.Errorf("empty embedding result")
	}
	return res.Embeddings[0].Values, c.embedModel, nil
}

// SuggestSeverity - 알림 내용으로 severity 재분류 제안 요청
// 응답 포맷이 어긋나면 에러를 반환하고 호출부는 원래 severity를 유지한다.
func (c *AIClient) SuggestSeverity(ctx context.Context, assetName, signature, message string) (*SeveritySuggestion, error) {
	prompt := fmt.Sprintf(
		`Classify the severity of this infrastructure alert as one of: low, medium, high, critical.
Asset: %s
Issue: %s
Message: %s
Respond with JSON only: {"severity": "...", "confidence": 0.0-1.0}`,
		assetName, signature, message,
	)

	res, err := c.client.Models.GenerateContent(ctx, c.classifyModel, genai.Text(prompt), nil)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(res.Text())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var suggestion SeveritySuggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &suggestion); err != nil {
		return nil, fmt.Errorf("failed to parse severity suggestion: %w", err)
	}
	if !suggestion.Severity.Valid() {
		return nil, fmt.Errorf("invalid suggested severity: %q", suggestion.Severity)
	}
	return &suggestion, nil
}
