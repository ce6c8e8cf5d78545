package service

import (
	"testing"
	"time"

	"github.com/alertops/backend/internal/model"
)

func TestScoreDeterministic(t *testing.T) {
	in := ScoreInput{
		Severity:        model.SeverityHigh,
		AssetCritical:   true,
		MemberCount:     2,
		DistinctSources: 1,
		Age:             30 * time.Minute,
	}
	first := Score(in)
	for i := 0; i < 10; i++ {
		if got := Score(in); got != first {
			t.Fatalf("score not deterministic: %v != %v", got, first)
		}
	}
}

func TestScoreComposite(t *testing.T) {
	// critical(90) + 핵심 자산(20) + 멤버 3건(4) + 소스 2개(10) - 2시간 경과(2) = 122
	got := Score(ScoreInput{
		Severity:        model.SeverityCritical,
		AssetCritical:   true,
		MemberCount:     3,
		DistinctSources: 2,
		Age:             2 * time.Hour,
	})
	if got != 122 {
		t.Fatalf("expected 122, got %v", got)
	}
}

func TestScoreMemberBonusCapped(t *testing.T) {
	small := Score(ScoreInput{Severity: model.SeverityLow, MemberCount: 11, DistinctSources: 1})
	large := Score(ScoreInput{Severity: model.SeverityLow, MemberCount: 100, DistinctSources: 1})
	if small != large {
		t.Fatalf("member bonus not capped: %v != %v", small, large)
	}
}

func TestScoreAgeDecayCapped(t *testing.T) {
	day := Score(ScoreInput{Severity: model.SeverityMedium, MemberCount: 1, DistinctSources: 1, Age: 24 * time.Hour})
	week := Score(ScoreInput{Severity: model.SeverityMedium, MemberCount: 1, DistinctSources: 1, Age: 7 * 24 * time.Hour})
	if day != week {
		t.Fatalf("age decay not capped: %v != %v", day, week)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	got := Score(ScoreInput{Severity: model.SeverityLow, MemberCount: 1, DistinctSources: 1, Age: 100 * time.Hour})
	if got < 0 {
		t.Fatalf("score must not be negative, got %v", got)
	}
}
