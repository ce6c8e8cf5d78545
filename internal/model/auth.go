package model

import "time"

// Role - 승인 권한 등급
// viewer < operator < admin. medium 위험 승인엔 operator 이상,
// high 위험 승인엔 admin만 허용된다.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast - r이 요구 등급 이상인지
func (r Role) AtLeast(required Role) bool {
	return roleRank[r] >= roleRank[required]
}

type AuthRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type AuthConfigResponse struct {
	AllowSignup bool `json:"allowSignup"`
	SSOEnabled  bool `json:"ssoEnabled"`
}

// SSOLoginRequest - OIDC SSO 로그인 요청
// idToken 또는 code 중 하나를 보낸다 (code는 authorization code flow).
type SSOLoginRequest struct {
	IDToken string `json:"idToken"`
	Code    string `json:"code"`
}

type AuthUser struct {
	ID        int64
	LoginID   string
	CompanyID string
	Role      Role
}

type User struct {
	ID           int64
	LoginID      string
	PasswordHash string
	CompanyID    string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
