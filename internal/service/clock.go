package service

import "time"

// Clock - 시간 주입용 인터페이스
// 스케줄러/SLA 판정 테스트에서 벽시계 sleep 없이 시간을 제어하기 위함.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewRealClock - 운영용 Clock
func NewRealClock() Clock { return realClock{} }
