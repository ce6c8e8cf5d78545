// Ingress Gate - 인입 알림 수락 비즈니스 로직 정의
//
// 처리 흐름 (순서대로, 각 단계는 fail-closed):
//  1. api_key로 테넌트 조회 - 실패 시 401
//  2. 테넌트별 rate limit (60초 슬라이딩 윈도우 + burst) - 초과 시 429
//  3. HMAC-SHA256 서명 검증 (테넌트 설정 시) - timestamp + "." + body,
//     상수 시간 비교, timestamp 허용 오차 검사 (replay 방지)
//  4. delivery_id 멱등성 - 24시간 내 같은 delivery는 Duplicate로 응답
//  5. 페이로드 검증 + 자산 lazy 생성 + Alert 저장 (active)
//
// 게이트 내부에서 재시도하지 않는다. 멱등성이 보장되므로
// 호출자의 backoff 재시도가 곧 시스템의 복원 수단이다.

package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alertops/backend/internal/client"
	"github.com/alertops/backend/internal/config"
	"github.com/alertops/backend/internal/db"
	"github.com/alertops/backend/internal/metrics"
	"github.com/alertops/backend/internal/model"
)

// ingestStore - Ingress Gate가 쓰는 DB 인터페이스
type ingestStore interface {
	GetCompanyByAPIKey(ctx context.Context, apiKey string) (*model.Company, error)
	ClaimDelivery(ctx context.Context, companyID, deliveryID, alertID string) (bool, string, error)
	ReleaseDelivery(ctx context.Context, companyID, deliveryID string) error
	GetOrCreateAsset(ctx context.Context, companyID, name string) (*model.Asset, error)
	SaveAlert(ctx context.Context, alert model.Alert) error
}

// severityAdvisor - AI severity 재분류 advisory (선택, 실패 무시)
type severityAdvisor interface {
	SuggestSeverity(ctx context.Context, assetName, signature, message string) (*client.SeveritySuggestion, error)
}

// IngestHeaders - 인입 요청에서 꺼낸 헤더 값들
type IngestHeaders struct {
	Signature  string // X-Signature: sha256=<hex>
	Timestamp  string // X-Timestamp: unix seconds
	DeliveryID string // X-Delivery-ID (없으면 body 해시로 대체)
}

// IngestResult - 수락/중복 결과
type IngestResult struct {
	AlertID   string
	Duplicate bool
}

// IngestService 구조체 정의
type IngestService struct {
	store   ingestStore
	limiter *RateLimiter
	clock   Clock

	// advisory 분류기 (nil이면 비활성)
	advisor         severityAdvisor
	advisoryMinConf float64

	timestampSkew time.Duration
}

// NewIngestService 객체 생성
func NewIngestService(store ingestStore, limiter *RateLimiter, clock Clock, advisor severityAdvisor, cfg config.IngestConfig) *IngestService {
	skewMinutes, err := strconv.Atoi(cfg.TimestampSkewMinutes)
	if err != nil || skewMinutes <= 0 {
		skewMinutes = 5
	}
	return &IngestService{
		store:           store,
		limiter:         limiter,
		clock:           clock,
		advisor:         advisor,
		advisoryMinConf: 0.8,
		timestampSkew:   time.Duration(skewMinutes) * time.Minute,
	}
}

// Accept - 인입 알림 1건 처리
// 에러 분류: ErrUnauthorized(401), *RateLimitError(429), ErrInvalidInput(400)
func (s *IngestService) Accept(ctx context.Context, apiKey string, headers IngestHeaders, rawBody []byte) (*IngestResult, error) {
	// 1. 테넌트 조회
	if apiKey == "" {
		return nil, ErrUnauthorized
	}
	company, err := s.store.GetCompanyByAPIKey(ctx, apiKey)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	// 2. rate limit
	ok, retryAfter, remaining := s.limiter.Allow(company.CompanyID, company.RateLimitPerMinute, company.BurstSize)
	if !ok {
		metrics.CountIngest(metrics.IngestRateLimited)
		return nil, &RateLimitError{
			RetryAfterSeconds: retryAfter,
			Limit:             company.RateLimitPerMinute,
			Remaining:         remaining,
			Burst:             company.BurstSize,
		}
	}

	// 3. HMAC 서명 검증 (테넌트 설정 시에만)
	if company.HMACEnabled {
		if err := s.verifySignature(company.WebhookSecret, headers, rawBody); err != nil {
			metrics.CountIngest(metrics.IngestRejected)
			return nil, err
		}
	}

	// 4. 멱등성 - delivery_id 선점
	deliveryID := headers.DeliveryID
	if deliveryID == "" {
		// 호출자가 delivery id를 안 보내면 body 해시로 대체
		// (동일 페이로드 재전송도 중복으로 잡힌다)
		sum := sha256.Sum256(rawBody)
		deliveryID = hex.EncodeToString(sum[:])
	}

	alertID := "ALT-" + uuid.NewString()
	claimed, existingAlertID, err := s.store.ClaimDelivery(ctx, company.CompanyID, deliveryID, alertID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		metrics.CountIngest(metrics.IngestDuplicate)
		return &IngestResult{AlertID: existingAlertID, Duplicate: true}, nil
	}

	// 5. 페이로드 검증 + Alert 저장
	// 검증 실패 시 선점을 해제해서 수정된 페이로드의 재시도가 막히지 않게 한다.
	alert, err := s.buildAlert(ctx, company, alertID, deliveryID, rawBody)
	if err != nil {
		if relErr := s.store.ReleaseDelivery(ctx, company.CompanyID, deliveryID); relErr != nil {
			log.Printf("[Ingest] Failed to release delivery claim (company=%s, delivery=%s): %v", company.CompanyID, deliveryID, relErr)
		}
		metrics.CountIngest(metrics.IngestRejected)
		return nil, err
	}

	if err := s.store.SaveAlert(ctx, *alert); err != nil {
		if relErr := s.store.ReleaseDelivery(ctx, company.CompanyID, deliveryID); relErr != nil {
			log.Printf("[Ingest] Failed to release delivery claim (company=%s, delivery=%s): %v", company.CompanyID, deliveryID, relErr)
		}
		return nil, err
	}

	log.Printf("[Ingest] Alert accepted (company=%s, alert=%s, asset=%s, signature=%s, severity=%s)",
		company.CompanyID, alert.AlertID, alert.AssetName, alert.Signature, alert.Severity)
	metrics.CountIngest(metrics.IngestAccepted)

	return &IngestResult{AlertID: alert.AlertID}, nil
}

// verifySignature - HMAC-SHA256 검증
// 서명 불일치와 키 오류를 구분해 주지 않는다. timestamp가 오차 범위를
// 벗어나면 stale로 거부한다 (replay 방지).
func (s *IngestService) verifySignature(secret string, headers IngestHeaders, rawBody []byte) error {
	if headers.Signature == "" || headers.Timestamp == "" {
		return ErrUnauthorized
	}

	ts, err := strconv.ParseInt(headers.Timestamp, 10, 64)
	if err != nil {
		return ErrUnauthorized
	}
	sentAt := time.Unix(ts, 0)
	now := s.clock.Now()
	if sentAt.Before(now.Add(-s.timestampSkew)) || sentAt.After(now.Add(s.timestampSkew)) {
		return fmt.Errorf("%w: stale timestamp", ErrUnauthorized)
	}

	provided := strings.TrimPrefix(headers.Signature, "sha256=")
	providedRaw, err := hex.DecodeString(provided)
	if err != nil {
		return ErrUnauthorized
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(headers.Timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	if !hmac.Equal(providedRaw, expected) {
		return ErrUnauthorized
	}
	return nil
}

// buildAlert - 페이로드 검증 + 자산 lazy 생성 + Alert 구성
func (s *IngestService) buildAlert(ctx context.Context, company *model.Company, alertID, deliveryID string, rawBody []byte) (*model.Alert, error) {
	var payload model.AlertWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid payload", ErrInvalidInput)
	}

	missing := []string{}
	if payload.AssetName == "" {
		missing = append(missing, "asset_name")
	}
	if payload.Signature == "" {
		missing = append(missing, "signature")
	}
	if payload.Severity == "" {
		missing = append(missing, "severity")
	}
	if payload.Message == "" {
		missing = append(missing, "message")
	}
	if payload.ToolSource == "" {
		missing = append(missing, "tool_source")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}

	severity, err := model.ParseSeverity(payload.Severity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// advisory 재분류 - 실패하거나 확신이 낮으면 원래 severity 유지
	if s.advisor != nil {
		if suggestion, err := s.advisor.SuggestSeverity(ctx, payload.AssetName, payload.Signature, payload.Message); err != nil {
			log.Printf("[Ingest] Severity advisory failed, keeping %s: %v", severity, err)
		} else if suggestion.Confidence >= s.advisoryMinConf && suggestion.Severity != severity {
			log.Printf("[Ingest] Severity advisory override %s -> %s (confidence=%.2f)", severity, suggestion.Severity, suggestion.Confidence)
			severity = suggestion.Severity
		}
	}

	// 자산 lazy 생성 (side effect, 로깅)
	asset, err := s.store.GetOrCreateAsset(ctx, company.CompanyID, payload.AssetName)
	if err != nil {
		return nil, err
	}
	log.Printf("[Ingest] Asset resolved (company=%s, asset=%s, critical=%v)", company.CompanyID, asset.Name, asset.IsCritical)

	return &model.Alert{
		AlertID:    alertID,
		CompanyID:  company.CompanyID,
		AssetName:  payload.AssetName,
		Signature:  payload.Signature,
		Severity:   severity,
		Message:    payload.Message,
		ToolSource: payload.ToolSource,
		DeliveryID: deliveryID,
		Status:     model.AlertStatusActive,
		ReceivedAt: s.clock.Now(),
	}, nil
}
