package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alertops/backend/internal/model"
)

type fakeSLAStore struct {
	config    *model.SLAConfig
	incidents []model.Incident
}

func (f *fakeSLAStore) GetSLAConfig(ctx context.Context, companyID string) (*model.SLAConfig, error) {
	if f.config == nil {
		return nil, pgx.ErrNoRows
	}
	return f.config, nil
}

func (f *fakeSLAStore) UpsertSLAConfig(ctx context.Context, cfg model.SLAConfig) error {
	f.config = &cfg
	return nil
}

func (f *fakeSLAStore) GetIncident(ctx context.Context, incidentID string) (*model.Incident, error) {
	for i := range f.incidents {
		if f.incidents[i].IncidentID == incidentID {
			return &f.incidents[i], nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSLAStore) ListIncidentsSince(ctx context.Context, companyID string, since time.Time) ([]model.Incident, error) {
	var out []model.Incident
	for _, inc := range f.incidents {
		if !inc.CreatedAt.Before(since) {
			out = append(out, inc)
		}
	}
	return out, nil
}

func TestDeadlinesUseConfig(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := &fakeSLAStore{config: &model.SLAConfig{
		CompanyID:       "CMP-1",
		ResponseMinutes: map[model.Severity]int{model.SeverityHigh: 30},
		ResolutionMinutes: map[model.Severity]int{
			model.SeverityHigh: 240,
		},
	}}
	svc := NewSLAService(store, clock, 10)

	created := clock.Now()
	resp, reso, err := svc.Deadlines(context.Background(), "CMP-1", model.SeverityHigh, created)
	if err != nil {
		t.Fatalf("deadlines failed: %v", err)
	}
	if !resp.Equal(created.Add(30 * time.Minute)) {
		t.Fatalf("unexpected response deadline: %v", resp)
	}
	if !reso.Equal(created.Add(240 * time.Minute)) {
		t.Fatalf("unexpected resolution deadline: %v", reso)
	}
}

func TestDeadlinesFallBackToDefaults(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewSLAService(&fakeSLAStore{}, clock, 10)

	created := clock.Now()
	resp, reso, err := svc.Deadlines(context.Background(), "CMP-1", model.SeverityCritical, created)
	if err != nil {
		t.Fatalf("deadlines failed: %v", err)
	}
	if !resp.After(created) || !reso.After(resp) {
		t.Fatalf("default deadlines must be ordered: resp=%v reso=%v", resp, reso)
	}
}

func TestSLAStatusClassification(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(created)
	assignedLate := created.Add(31 * time.Minute)

	store := &fakeSLAStore{incidents: []model.Incident{{
		IncidentID:         "INC-1",
		CompanyID:          "CMP-1",
		Severity:           model.SeverityHigh,
		Status:             model.IncidentStatusAssigned,
		CreatedAt:          created,
		AssignedAt:         &assignedLate,
		ResponseDeadline:   created.Add(30 * time.Minute),
		ResolutionDeadline: created.Add(4 * time.Hour),
	}}}
	svc := NewSLAService(store, clock, 10)

	clock.Advance(40 * time.Minute)
	status, err := svc.Status(context.Background(), "CMP-1", "INC-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.ResponseStatus != SLABreached {
		t.Fatalf("late assignment must be breached, got %s", status.ResponseStatus)
	}
	if status.ResolutionStatus != SLAOnTrack {
		t.Fatalf("resolution should be on_track, got %s", status.ResolutionStatus)
	}
}

func TestSLAStatusWarningWindow(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(created)

	store := &fakeSLAStore{incidents: []model.Incident{{
		IncidentID:         "INC-1",
		CompanyID:          "CMP-1",
		Severity:           model.SeverityHigh,
		Status:             model.IncidentStatusNew,
		CreatedAt:          created,
		ResponseDeadline:   created.Add(30 * time.Minute),
		ResolutionDeadline: created.Add(4 * time.Hour),
	}}}
	svc := NewSLAService(store, clock, 10)

	// 마감 5분 전 - warning 구간 (threshold 10분)
	clock.Advance(25 * time.Minute)
	status, err := svc.Status(context.Background(), "CMP-1", "INC-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.ResponseStatus != SLAWarning {
		t.Fatalf("expected warning near deadline, got %s", status.ResponseStatus)
	}
}

func TestSLAStatusMTTR(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(created)
	resolved := created.Add(90 * time.Minute)

	store := &fakeSLAStore{incidents: []model.Incident{{
		IncidentID:         "INC-1",
		CompanyID:          "CMP-1",
		Severity:           model.SeverityHigh,
		Status:             model.IncidentStatusResolved,
		CreatedAt:          created,
		ResolvedAt:         &resolved,
		ResponseDeadline:   created.Add(30 * time.Minute),
		ResolutionDeadline: created.Add(4 * time.Hour),
	}}}
	svc := NewSLAService(store, clock, 10)

	status, err := svc.Status(context.Background(), "CMP-1", "INC-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.ResolutionStatus != SLAMet {
		t.Fatalf("in-time resolution must be met, got %s", status.ResolutionStatus)
	}
	if status.MTTRSeconds == nil || *status.MTTRSeconds != 90*60 {
		t.Fatalf("unexpected mttr: %v", status.MTTRSeconds)
	}
}

func TestSLAStatusScopedToTenant(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(created)
	store := &fakeSLAStore{incidents: []model.Incident{{
		IncidentID: "INC-1",
		CompanyID:  "CMP-other",
		CreatedAt:  created,
	}}}
	svc := NewSLAService(store, clock, 10)

	if _, err := svc.Status(context.Background(), "CMP-1", "INC-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for cross-tenant access, got %v", err)
	}
}

func TestSLAReportCompliance(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(created.Add(24 * time.Hour))

	inTime := created.Add(10 * time.Minute)
	late := created.Add(2 * time.Hour)
	resolvedInTime := created.Add(3 * time.Hour)

	store := &fakeSLAStore{incidents: []model.Incident{
		{
			IncidentID: "INC-1", CompanyID: "CMP-1", Severity: model.SeverityHigh,
			CreatedAt: created, AssignedAt: &inTime, ResolvedAt: &resolvedInTime,
			ResponseDeadline: created.Add(30 * time.Minute), ResolutionDeadline: created.Add(4 * time.Hour),
		},
		{
			IncidentID: "INC-2", CompanyID: "CMP-1", Severity: model.SeverityHigh,
			CreatedAt: created, AssignedAt: &late,
			ResponseDeadline: created.Add(30 * time.Minute), ResolutionDeadline: created.Add(4 * time.Hour),
		},
	}}
	svc := NewSLAService(store, clock, 10)

	report, err := svc.Report(context.Background(), "CMP-1", 30)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.Overall.Total != 2 {
		t.Fatalf("expected 2 incidents, got %d", report.Overall.Total)
	}
	if report.Overall.ResponsePct != 50 {
		t.Fatalf("expected 50%% response compliance, got %v", report.Overall.ResponsePct)
	}
	row := report.BySeverity[model.SeverityHigh]
	if row.Total != 2 || row.AssignedInTime != 1 || row.ResolvedInTime != 1 {
		t.Fatalf("unexpected severity row: %+v", row)
	}
}

func TestUpdateConfigValidation(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewSLAService(&fakeSLAStore{}, clock, 10)

	err := svc.UpdateConfig(context.Background(), model.SLAConfig{
		CompanyID:       "CMP-1",
		ResponseMinutes: map[model.Severity]int{model.SeverityHigh: -5},
	})
	if err == nil {
		t.Fatalf("negative minutes must be rejected")
	}

	err = svc.UpdateConfig(context.Background(), model.SLAConfig{
		CompanyID:       "CMP-1",
		ResponseMinutes: map[model.Severity]int{"urgent": 10},
	})
	if err == nil {
		t.Fatalf("unknown severity must be rejected")
	}
}
