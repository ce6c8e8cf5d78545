// 외부 실행기(executor)와 HTTP 통신하는 클라이언트 정의
//
// 환경변수:
//   - EXECUTOR_URL: 실행기 서비스 URL (예: http://alertops-executor.alertops.svc:8000)
//
// Approval Gate를 통과한 조치만 여기로 전달된다.
// 실행 결과는 실행기가 상태 콜백으로 보고하므로 dispatch 자체는
// 접수 확인(dispatch_id)만 받고 끝난다.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alertops/backend/internal/config"
)

// ExecutorClient 구조체 정의
type ExecutorClient struct {
	baseURL    string
	httpClient *http.Client
}

// DispatchCommandRequest - 실행기에 전달하는 조치 내용
type DispatchCommandRequest struct {
	CompanyID  string `json:"company_id"`
	IncidentID string `json:"incident_id"`
	RequestID  string `json:"request_id,omitempty"` // 승인 요청을 거친 경우
	Action     string `json:"action"`
	RiskLevel  string `json:"risk_level"`
}

// DispatchCommandResponse - 실행기 접수 응답
type DispatchCommandResponse struct {
	Status     string `json:"status"`
	DispatchID string `json:"dispatch_id"`
}

// ExecutorClient 객체 생성
func NewExecutorClient(cfg config.ExecutorConfig) *ExecutorClient {
	return &ExecutorClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// 실행기 설정 여부 체크
func (c *ExecutorClient) IsConfigured() bool {
	return c.baseURL != ""
}

// POST /dispatch - 조치 실행 요청 (접수 확인만 대기)
func (c *ExecutorClient) Dispatch(ctx context.Context, req DispatchCommandRequest) (*DispatchCommandResponse, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("executor is not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dispatch", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to executor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("executor returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var dispatchResp DispatchCommandResponse
	if err := json.Unmarshal(body, &dispatchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &dispatchResp, nil
}
