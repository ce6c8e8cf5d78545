package service

import (
	"errors"
	"fmt"
)

// 서비스 공통 에러 분류
// handler에서 HTTP 상태 코드로 변환된다.
// 401 응답은 키 오류인지 서명 오류인지 구분해 주지 않는다 (enumeration 방지).
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrExpired       = errors.New("expired")
	ErrMisconfigured = errors.New("config invalid")
)

// RateLimitError - 429 응답에 필요한 정보를 담는 에러
// retry 타이밍은 항상 응답에 실어야 하므로 sentinel이 아닌 구조체로 정의.
type RateLimitError struct {
	RetryAfterSeconds int
	Limit             int
	Remaining         int
	Burst             int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfterSeconds)
}
