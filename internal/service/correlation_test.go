package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alertops/backend/internal/model"
)

type fakeCorrelationStore struct {
	config    *model.CorrelationConfig
	alerts    []model.Alert
	incidents []*model.Incident
	assets    map[string]*model.Asset
}

func (f *fakeCorrelationStore) GetCorrelationConfig(ctx context.Context, companyID string) (*model.CorrelationConfig, error) {
	if f.config == nil {
		return nil, pgx.ErrNoRows
	}
	return f.config, nil
}

func (f *fakeCorrelationStore) GetActiveAlertsSince(ctx context.Context, companyID string, since time.Time) ([]model.Alert, error) {
	var out []model.Alert
	for _, a := range f.alerts {
		if a.Status == model.AlertStatusActive && !a.ReceivedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeCorrelationStore) CountActiveAlerts(ctx context.Context, companyID string) (int, error) {
	count := 0
	for _, a := range f.alerts {
		if a.Status == model.AlertStatusActive {
			count++
		}
	}
	return count, nil
}

func (f *fakeCorrelationStore) CountOpenIncidents(ctx context.Context, companyID string) (int, error) {
	count := 0
	for _, inc := range f.incidents {
		if !inc.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (f *fakeCorrelationStore) GetOpenIncidentByKey(ctx context.Context, companyID, key string) (*model.Incident, error) {
	for _, inc := range f.incidents {
		if inc.AggregationKey == key && !inc.Status.Terminal() {
			return inc, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeCorrelationStore) CreateIncident(ctx context.Context, inc model.Incident) error {
	copied := inc
	f.incidents = append(f.incidents, &copied)
	return nil
}

func (f *fakeCorrelationStore) UpdateIncidentAggregates(ctx context.Context, incidentID string, severity model.Severity, score float64, toolSources []string, alertCount int) error {
	for _, inc := range f.incidents {
		if inc.IncidentID == incidentID {
			inc.Severity = severity
			inc.PriorityScore = score
			inc.ToolSources = toolSources
			inc.AlertCount = alertCount
		}
	}
	return nil
}

func (f *fakeCorrelationStore) MarkAlertsCorrelated(ctx context.Context, alertIDs []string, incidentID string) error {
	ids := make(map[string]struct{}, len(alertIDs))
	for _, id := range alertIDs {
		ids[id] = struct{}{}
	}
	for i := range f.alerts {
		if _, ok := ids[f.alerts[i].AlertID]; ok {
			f.alerts[i].Status = model.AlertStatusCorrelated
			f.alerts[i].IncidentID = &incidentID
		}
	}
	return nil
}

func (f *fakeCorrelationStore) GetAssetByName(ctx context.Context, companyID, name string) (*model.Asset, error) {
	if asset, ok := f.assets[name]; ok {
		return asset, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeCorrelationStore) GetAlertsByIncidentID(ctx context.Context, incidentID string) ([]model.AlertListResponse, error) {
	return nil, nil
}

func (f *fakeCorrelationStore) ListCompanyIDs(ctx context.Context) ([]string, error) {
	return []string{"CMP-1"}, nil
}

type fixedDeadliner struct{}

func (fixedDeadliner) Deadlines(ctx context.Context, companyID string, severity model.Severity, createdAt time.Time) (time.Time, time.Time, error) {
	return createdAt.Add(30 * time.Minute), createdAt.Add(4 * time.Hour), nil
}

func activeAlert(id, asset, signature string, severity model.Severity, source string, receivedAt time.Time) model.Alert {
	return model.Alert{
		AlertID:    id,
		CompanyID:  "CMP-1",
		AssetName:  asset,
		Signature:  signature,
		Severity:   severity,
		ToolSource: source,
		Status:     model.AlertStatusActive,
		ReceivedAt: receivedAt,
	}
}

func newTestCorrelation(store *fakeCorrelationStore, clock Clock) *CorrelationService {
	return NewCorrelationService(store, fixedDeadliner{}, clock, 15, "asset|signature")
}

func TestCorrelateGroupsByAssetAndSignature(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	store := &fakeCorrelationStore{
		alerts: []model.Alert{
			activeAlert("ALT-1", "srv-web-01", "high_cpu", model.SeverityHigh, "datadog", now.Add(-2*time.Minute)),
			activeAlert("ALT-2", "srv-web-01", "high_cpu", model.SeverityCritical, "zabbix", now.Add(-1*time.Minute)),
			activeAlert("ALT-3", "srv-db-01", "disk_full", model.SeverityMedium, "datadog", now.Add(-1*time.Minute)),
		},
	}
	svc := newTestCorrelation(store, clock)

	res, err := svc.Correlate(context.Background(), "CMP-1")
	if err != nil {
		t.Fatalf("correlate failed: %v", err)
	}

	if res.IncidentsCreated != 2 {
		t.Fatalf("expected 2 incidents, got %d", res.IncidentsCreated)
	}
	if res.DuplicatesFound != 1 {
		t.Fatalf("expected 1 duplicate, got %d", res.DuplicatesFound)
	}
	if res.AlertsBefore != 3 || res.AlertsAfter != 0 {
		t.Fatalf("expected 3 alerts consumed, got before=%d after=%d", res.AlertsBefore, res.AlertsAfter)
	}

	web, err := store.GetOpenIncidentByKey(context.Background(), "CMP-1", "srv-web-01|high_cpu")
	if err != nil {
		t.Fatalf("web incident missing: %v", err)
	}
	if web.Severity != model.SeverityCritical {
		t.Fatalf("incident severity must be max of members, got %s", web.Severity)
	}
	if web.AlertCount != 2 {
		t.Fatalf("expected 2 member alerts, got %d", web.AlertCount)
	}
	if len(web.ToolSources) != 2 {
		t.Fatalf("expected 2 tool sources, got %v", web.ToolSources)
	}
	if !web.ResponseDeadline.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected response deadline: %v", web.ResponseDeadline)
	}

	for _, a := range store.alerts {
		if a.Status != model.AlertStatusCorrelated {
			t.Fatalf("alert %s not marked correlated", a.AlertID)
		}
	}
}

func TestCorrelateIdempotentWithoutNewAlerts(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	store := &fakeCorrelationStore{
		alerts: []model.Alert{
			activeAlert("ALT-1", "srv-web-01", "high_cpu", model.SeverityHigh, "datadog", now.Add(-time.Minute)),
		},
	}
	svc := newTestCorrelation(store, clock)

	if _, err := svc.Correlate(context.Background(), "CMP-1"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	res, err := svc.Correlate(context.Background(), "CMP-1")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if res.IncidentsCreated != 0 || res.IncidentsUpdated != 0 {
		t.Fatalf("second run must be a no-op, got created=%d updated=%d", res.IncidentsCreated, res.IncidentsUpdated)
	}
	if len(store.incidents) != 1 {
		t.Fatalf("expected 1 incident after re-run, got %d", len(store.incidents))
	}
}

func TestCorrelateAppendsToOpenIncident(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	store := &fakeCorrelationStore{
		incidents: []*model.Incident{{
			IncidentID:     "INC-1",
			CompanyID:      "CMP-1",
			AggregationKey: "srv-web-01|high_cpu",
			Severity:       model.SeverityHigh,
			Status:         model.IncidentStatusNew,
			ToolSources:    []string{"datadog"},
			AlertCount:     2,
			CreatedAt:      now.Add(-10 * time.Minute),
		}},
		alerts: []model.Alert{
			activeAlert("ALT-9", "srv-web-01", "high_cpu", model.SeverityCritical, "zabbix", now.Add(-time.Minute)),
		},
	}
	svc := newTestCorrelation(store, clock)

	res, err := svc.Correlate(context.Background(), "CMP-1")
	if err != nil {
		t.Fatalf("correlate failed: %v", err)
	}
	if res.IncidentsCreated != 0 || res.IncidentsUpdated != 1 {
		t.Fatalf("expected append to open incident, got created=%d updated=%d", res.IncidentsCreated, res.IncidentsUpdated)
	}

	inc := store.incidents[0]
	if inc.AlertCount != 3 {
		t.Fatalf("expected 3 members, got %d", inc.AlertCount)
	}
	if inc.Severity != model.SeverityCritical {
		t.Fatalf("severity must escalate to critical, got %s", inc.Severity)
	}
	if len(inc.ToolSources) != 2 {
		t.Fatalf("tool sources must merge, got %v", inc.ToolSources)
	}
}

func TestCorrelateDoesNotReopenResolved(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	resolvedAt := now.Add(-5 * time.Minute)
	store := &fakeCorrelationStore{
		incidents: []*model.Incident{{
			IncidentID:     "INC-1",
			CompanyID:      "CMP-1",
			AggregationKey: "srv-web-01|high_cpu",
			Severity:       model.SeverityHigh,
			Status:         model.IncidentStatusResolved,
			ResolvedAt:     &resolvedAt,
			CreatedAt:      now.Add(-time.Hour),
		}},
		alerts: []model.Alert{
			activeAlert("ALT-9", "srv-web-01", "high_cpu", model.SeverityHigh, "datadog", now.Add(-time.Minute)),
		},
	}
	svc := newTestCorrelation(store, clock)

	res, err := svc.Correlate(context.Background(), "CMP-1")
	if err != nil {
		t.Fatalf("correlate failed: %v", err)
	}
	if res.IncidentsCreated != 1 {
		t.Fatalf("resolved incident must not reopen: created=%d", res.IncidentsCreated)
	}
	if len(store.incidents) != 2 {
		t.Fatalf("expected a new incident, got %d total", len(store.incidents))
	}
	if store.incidents[0].Status != model.IncidentStatusResolved {
		t.Fatalf("resolved incident must stay resolved")
	}
}

func TestCorrelateRejectsConcurrentRun(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestCorrelation(&fakeCorrelationStore{}, clock)

	if !svc.tryLock("CMP-1") {
		t.Fatalf("initial lock must succeed")
	}
	defer svc.unlock("CMP-1")

	_, err := svc.Correlate(context.Background(), "CMP-1")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while locked, got %v", err)
	}
}

func TestCorrelateIgnoresAlertsOutsideWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	store := &fakeCorrelationStore{
		config: &model.CorrelationConfig{
			CompanyID:             "CMP-1",
			TimeWindowMinutes:     5,
			AggregationKeyPattern: "asset|signature",
		},
		alerts: []model.Alert{
			activeAlert("ALT-old", "srv-web-01", "high_cpu", model.SeverityHigh, "datadog", now.Add(-10*time.Minute)),
			activeAlert("ALT-new", "srv-web-01", "high_cpu", model.SeverityHigh, "datadog", now.Add(-time.Minute)),
		},
	}
	svc := newTestCorrelation(store, clock)

	if _, err := svc.Correlate(context.Background(), "CMP-1"); err != nil {
		t.Fatalf("correlate failed: %v", err)
	}

	// 윈도우 밖 알림은 이번 실행에서 건드리지 않는다
	if store.alerts[0].Status != model.AlertStatusActive {
		t.Fatalf("out-of-window alert must stay active")
	}
	if store.alerts[1].Status != model.AlertStatusCorrelated {
		t.Fatalf("in-window alert must be correlated")
	}
}
