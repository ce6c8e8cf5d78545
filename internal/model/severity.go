package model

import (
	"fmt"
	"strings"
)

// Severity - 알림/인시던트 심각도
// 서열이 있는 enum이며 인시던트 severity는 멤버 Alert 중 최대값으로 유지된다.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank - 비교용 서열 (클수록 심각)
var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// Valid - 알려진 severity 값인지 검사
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ParseSeverity - 외부 입력 문자열을 Severity로 변환 (대소문자/공백 허용)
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return s, nil
}

// MaxSeverity - 두 severity 중 더 심각한 쪽 반환
func MaxSeverity(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// AllSeverities - 심각한 순서대로 전체 severity 목록 (리포트 순회용)
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}
