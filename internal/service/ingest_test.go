package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alertops/backend/internal/config"
	"github.com/alertops/backend/internal/model"
)

type fakeIngestStore struct {
	company    *model.Company
	deliveries map[string]string // delivery_id -> alert_id
	alerts     []model.Alert
}

func newFakeIngestStore(company *model.Company) *fakeIngestStore {
	return &fakeIngestStore{
		company:    company,
		deliveries: make(map[string]string),
	}
}

func (f *fakeIngestStore) GetCompanyByAPIKey(ctx context.Context, apiKey string) (*model.Company, error) {
	if f.company != nil && f.company.APIKey == apiKey {
		return f.company, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeIngestStore) ClaimDelivery(ctx context.Context, companyID, deliveryID, alertID string) (bool, string, error) {
	if existing, ok := f.deliveries[deliveryID]; ok {
		return false, existing, nil
	}
	f.deliveries[deliveryID] = alertID
	return true, "", nil
}

func (f *fakeIngestStore) ReleaseDelivery(ctx context.Context, companyID, deliveryID string) error {
	delete(f.deliveries, deliveryID)
	return nil
}

func (f *fakeIngestStore) GetOrCreateAsset(ctx context.Context, companyID, name string) (*model.Asset, error) {
	return &model.Asset{AssetID: "AST-1", CompanyID: companyID, Name: name}, nil
}

func (f *fakeIngestStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func testCompany() *model.Company {
	return &model.Company{
		CompanyID:          "CMP-1",
		Name:               "acme",
		APIKey:             "key-1",
		WebhookSecret:      "secret-1",
		RateLimitPerMinute: 100,
		BurstSize:          100,
	}
}

func newTestIngest(store *fakeIngestStore, clock Clock) *IngestService {
	limiter := NewRateLimiter(clock)
	return NewIngestService(store, limiter, clock, nil, config.IngestConfig{TimestampSkewMinutes: "5"})
}

const validPayload = `{"asset_name":"srv-web-01","signature":"high_cpu","severity":"high","message":"cpu over 95%","tool_source":"datadog"}`

func TestIngestIdempotency(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeIngestStore(testCompany())
	svc := newTestIngest(store, clock)

	headers := IngestHeaders{DeliveryID: "d-1"}

	first, err := svc.Accept(context.Background(), "key-1", headers, []byte(validPayload))
	if err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if first.Duplicate {
		t.Fatalf("first delivery must not be duplicate")
	}

	for i := 0; i < 3; i++ {
		res, err := svc.Accept(context.Background(), "key-1", headers, []byte(validPayload))
		if err != nil {
			t.Fatalf("retry %d failed: %v", i+1, err)
		}
		if !res.Duplicate {
			t.Fatalf("retry %d must report duplicate", i+1)
		}
		if res.AlertID != first.AlertID {
			t.Fatalf("duplicate must return original alert_id: %s != %s", res.AlertID, first.AlertID)
		}
	}

	if len(store.alerts) != 1 {
		t.Fatalf("expected exactly 1 stored alert, got %d", len(store.alerts))
	}
}

func TestIngestUnknownAPIKey(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestIngest(newFakeIngestStore(testCompany()), clock)

	_, err := svc.Accept(context.Background(), "wrong-key", IngestHeaders{}, []byte(validPayload))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestIngestRateLimited(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	company := testCompany()
	company.RateLimitPerMinute = 2
	company.BurstSize = 2
	svc := newTestIngest(newFakeIngestStore(company), clock)

	for i := 0; i < 2; i++ {
		headers := IngestHeaders{DeliveryID: fmt.Sprintf("d-%d", i)}
		if _, err := svc.Accept(context.Background(), "key-1", headers, []byte(validPayload)); err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
	}

	_, err := svc.Accept(context.Background(), "key-1", IngestHeaders{DeliveryID: "d-over"}, []byte(validPayload))
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfterSeconds <= 0 {
		t.Fatalf("retry-after must be positive, got %d", rateErr.RetryAfterSeconds)
	}
	if rateErr.Limit != 2 {
		t.Fatalf("expected limit 2, got %d", rateErr.Limit)
	}
}

func signBody(secret string, ts time.Time, body []byte) IngestHeaders {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return IngestHeaders{
		Signature:  "sha256=" + hex.EncodeToString(mac.Sum(nil)),
		Timestamp:  timestamp,
		DeliveryID: "d-signed",
	}
}

func TestIngestHMACValid(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	company := testCompany()
	company.HMACEnabled = true
	svc := newTestIngest(newFakeIngestStore(company), clock)

	headers := signBody("secret-1", clock.Now(), []byte(validPayload))
	if _, err := svc.Accept(context.Background(), "key-1", headers, []byte(validPayload)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestIngestHMACMismatch(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	company := testCompany()
	company.HMACEnabled = true
	svc := newTestIngest(newFakeIngestStore(company), clock)

	headers := signBody("wrong-secret", clock.Now(), []byte(validPayload))
	_, err := svc.Accept(context.Background(), "key-1", headers, []byte(validPayload))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestIngestHMACStaleTimestamp(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	company := testCompany()
	company.HMACEnabled = true
	svc := newTestIngest(newFakeIngestStore(company), clock)

	headers := signBody("secret-1", clock.Now().Add(-10*time.Minute), []byte(validPayload))
	_, err := svc.Accept(context.Background(), "key-1", headers, []byte(validPayload))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for stale timestamp, got %v", err)
	}
}

func TestIngestHMACMissingHeaders(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	company := testCompany()
	company.HMACEnabled = true
	svc := newTestIngest(newFakeIngestStore(company), clock)

	_, err := svc.Accept(context.Background(), "key-1", IngestHeaders{DeliveryID: "d-1"}, []byte(validPayload))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing signature headers, got %v", err)
	}
}

func TestIngestMissingFieldsReleasesClaim(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeIngestStore(testCompany())
	svc := newTestIngest(store, clock)

	bad := []byte(`{"asset_name":"srv-web-01"}`)
	_, err := svc.Accept(context.Background(), "key-1", IngestHeaders{DeliveryID: "d-1"}, bad)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// 수정된 페이로드의 같은 delivery_id 재시도가 막히면 안 된다
	res, err := svc.Accept(context.Background(), "key-1", IngestHeaders{DeliveryID: "d-1"}, []byte(validPayload))
	if err != nil {
		t.Fatalf("corrected retry failed: %v", err)
	}
	if res.Duplicate {
		t.Fatalf("corrected retry must not be duplicate")
	}
}

func TestIngestInvalidSeverity(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestIngest(newFakeIngestStore(testCompany()), clock)

	bad := []byte(`{"asset_name":"a","signature":"s","severity":"urgent","message":"m","tool_source":"t"}`)
	_, err := svc.Accept(context.Background(), "key-1", IngestHeaders{DeliveryID: "d-1"}, bad)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestFallbackDeliveryID(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newFakeIngestStore(testCompany())
	svc := newTestIngest(store, clock)

	// delivery id가 없으면 바디 해시가 키가 되므로 동일 페이로드 재전송도 중복으로 잡힌다
	first, err := svc.Accept(context.Background(), "key-1", IngestHeaders{}, []byte(validPayload))
	if err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	second, err := svc.Accept(context.Background(), "key-1", IngestHeaders{}, []byte(validPayload))
	if err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}
	if !second.Duplicate || second.AlertID != first.AlertID {
		t.Fatalf("identical payload without delivery id must be duplicate")
	}
}
