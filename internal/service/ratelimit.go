// 테넌트별 슬라이딩 윈도우 rate limiter
//
// 카운터는 프로세스 내 공유 상태라서 단일 mutex로 보호한다.
// 윈도우는 60초 고정이며 첫 요청 시각에서 시작한다.
// burst는 윈도우 안에서 limit을 넘는 단기 초과를 burst 총량까지 허용한다.

package service

import (
	"sync"
	"time"
)

const rateLimitWindow = 60 * time.Second

type rateWindow struct {
	windowStart time.Time
	count       int
}

// RateLimiter - 테넌트별 카운터 집합
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	clock   Clock
}

func NewRateLimiter(clock Clock) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		clock:   clock,
	}
}

// Allow - 요청 1건 허용 여부 판정 (허용 시 카운트 증가까지 원자적으로 수행)
// 반환: (허용 여부, 윈도우 리셋까지 남은 초, 남은 허용량)
func (rl *RateLimiter) Allow(companyID string, limitPerMinute, burstSize int) (bool, int, int) {
	if limitPerMinute <= 0 {
		limitPerMinute = 1
	}
	cap := limitPerMinute
	if burstSize > cap {
		cap = burstSize
	}

	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[companyID]
	if !ok || now.Sub(w.windowStart) >= rateLimitWindow {
		w = &rateWindow{windowStart: now}
		rl.windows[companyID] = w
	}

	retryAfter := int(rateLimitWindow.Seconds() - now.Sub(w.windowStart).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	if w.count >= cap {
		return false, retryAfter, 0
	}

	w.count++
	remaining := cap - w.count
	return true, retryAfter, remaining
}

// Reset - 테넌트 카운터 초기화 (테스트/운영 편의용)
func (rl *RateLimiter) Reset(companyID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, companyID)
}
