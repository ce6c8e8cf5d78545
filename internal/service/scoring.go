// Priority Scorer - 인시던트/알림 긴급도 점수 계산
//
// 순수 함수이며 같은 입력이면 항상 같은 값을 반환한다 (AI/ML 미개입).
// 멤버 구성이 바뀔 때마다, 그리고 스케줄러 tick마다(age가 변하므로) 재계산된다.
//
// score = severity 기본점수 (critical=90, high=60, medium=30, low=10)
//       + 핵심 자산 가산 (+20)
//       + 중복 알림 가산 (멤버-1당 +2, 최대 +20)
//       + 다중 소스 교차확인 가산 (2개 이상이면 +10)
//       - 경과 시간 감쇠 (시간당 -1, 최대 -10)

package service

import (
	"math"
	"time"

	"github.com/alertops/backend/internal/model"
)

var severityBaseScore = map[model.Severity]float64{
	model.SeverityCritical: 90,
	model.SeverityHigh:     60,
	model.SeverityMedium:   30,
	model.SeverityLow:      10,
}

// ScoreInput - 점수 계산 입력 (모두 호출 시점에 고정된 값)
type ScoreInput struct {
	Severity        model.Severity
	AssetCritical   bool
	MemberCount     int
	DistinctSources int
	Age             time.Duration
}

// Score - 긴급도 점수 계산
func Score(in ScoreInput) float64 {
	score := severityBaseScore[in.Severity]

	if in.AssetCritical {
		score += 20
	}

	if in.MemberCount > 1 {
		dup := 2 * float64(in.MemberCount-1)
		if dup > 20 {
			dup = 20
		}
		score += dup
	}

	if in.DistinctSources >= 2 {
		score += 10
	}

	if in.Age > 0 {
		decay := math.Floor(in.Age.Hours())
		if decay > 10 {
			decay = 10
		}
		score -= decay
	}

	if score < 0 {
		score = 0
	}
	return score
}
