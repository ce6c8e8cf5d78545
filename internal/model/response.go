package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AuthLogoutResponse struct {
	Status string `json:"status"`
}

type AuthMeResponse struct {
	UserID    int64  `json:"userId"`
	LoginID   string `json:"loginId"`
	CompanyID string `json:"companyId"`
	Role      Role   `json:"role"`
}

type IncidentDetailEnvelope struct {
	Status string                  `json:"status"`
	Data   *IncidentDetailResponse `json:"data"`
}

type IncidentUpdateResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	IncidentID string `json:"incident_id"`
}

type ApprovalListResponse struct {
	Status string            `json:"status"`
	Data   []ApprovalRequest `json:"data"`
}

type ApprovalMutationResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type AuditListResponse struct {
	Status string       `json:"status"`
	Data   []AuditEntry `json:"data"`
}

type SimilarIncidentsResponse struct {
	Status string            `json:"status"`
	Data   []SimilarIncident `json:"data"`
}
