package config

import "os"

type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	Auth        AuthConfig
	Bootstrap   BootstrapConfig
	Ingest      IngestConfig
	Correlation CorrelationConfig
	Escalation  EscalationConfig
	AI          AIConfig
	Executor    ExecutorConfig
	Notify      NotifyConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type AuthConfig struct {
	JWTSecret      string
	JWTAccessTTL   string
	JWTRefreshTTL  string
	AllowSignup    string
	AdminUsername  string
	AdminPassword  string
	CookieDomain   string
	CookiePath     string
	CookieSecure   string
	CookieSameSite string

	// OIDC SSO (선택)
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
}

// BootstrapConfig - 빈 DB로 기동할 때 기본 테넌트를 만들어 주는 설정
// BOOTSTRAP_API_KEY가 비어 있으면 아무것도 하지 않는다.
type BootstrapConfig struct {
	CompanyName   string
	APIKey        string
	WebhookSecret string
}

type IngestConfig struct {
	// 테넌트 설정이 없을 때 쓰는 기본 rate limit
	DefaultLimitPerMinute string
	DefaultBurstSize      string

	// HMAC 타임스탬프 허용 오차 (분) - replay 방지
	TimestampSkewMinutes string

	// delivery_id 멱등성 보존 시간
	DeliveryRetentionHours string
}

type CorrelationConfig struct {
	SweepIntervalSeconds string
	DefaultWindowMinutes string
	DefaultKeyPattern    string
}

type EscalationConfig struct {
	TickIntervalSeconds            string
	DefaultWarningThresholdMinutes string
}

type AIConfig struct {
	APIKey string
	// severity 재분류 advisory 사용 여부 (비어 있으면 비활성)
	ClassifyEnabled string
}

type ExecutorConfig struct {
	BaseURL string
}

type NotifyConfig struct {
	// 에스컬레이션 체인 대상에 webhook_url이 없을 때 쓰는 기본 수신 URL
	DefaultWebhookURL string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:           getenv("PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:        os.Getenv("JWT_SECRET"),
			JWTAccessTTL:     getenv("JWT_ACCESS_TTL", "15m"),
			JWTRefreshTTL:    getenv("JWT_REFRESH_TTL", "168h"),
			AllowSignup:      getenv("ALLOW_SIGNUP", "false"),
			AdminUsername:    os.Getenv("ADMIN_USERNAME"),
			AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
			CookieDomain:     os.Getenv("AUTH_COOKIE_DOMAIN"),
			CookiePath:       getenv("AUTH_COOKIE_PATH", "/"),
			CookieSecure:     getenv("AUTH_COOKIE_SECURE", "true"),
			CookieSameSite:   getenv("AUTH_COOKIE_SAMESITE", "lax"),
			OIDCIssuer:       os.Getenv("OIDC_ISSUER"),
			OIDCClientID:     os.Getenv("OIDC_CLIENT_ID"),
			OIDCClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
			OIDCRedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
		},
		Bootstrap: BootstrapConfig{
			CompanyName:   getenv("BOOTSTRAP_COMPANY_NAME", "default"),
			APIKey:        os.Getenv("BOOTSTRAP_API_KEY"),
			WebhookSecret: os.Getenv("BOOTSTRAP_WEBHOOK_SECRET"),
		},
		Ingest: IngestConfig{
			DefaultLimitPerMinute:  getenv("INGEST_LIMIT_PER_MINUTE", "120"),
			DefaultBurstSize:       getenv("INGEST_BURST_SIZE", "150"),
			TimestampSkewMinutes:   getenv("INGEST_TIMESTAMP_SKEW_MINUTES", "5"),
			DeliveryRetentionHours: getenv("INGEST_DELIVERY_RETENTION_HOURS", "24"),
		},
		Correlation: CorrelationConfig{
			SweepIntervalSeconds: getenv("CORRELATION_SWEEP_SECONDS", "60"),
			DefaultWindowMinutes: getenv("CORRELATION_WINDOW_MINUTES", "15"),
			DefaultKeyPattern:    getenv("CORRELATION_KEY_PATTERN", "asset|signature"),
		},
		Escalation: EscalationConfig{
			TickIntervalSeconds:            getenv("ESCALATION_TICK_SECONDS", "300"),
			DefaultWarningThresholdMinutes: getenv("SLA_WARNING_THRESHOLD_MINUTES", "10"),
		},
		AI: AIConfig{
			APIKey:          os.Getenv("AI_API_KEY"),
			ClassifyEnabled: getenv("AI_CLASSIFY_ENABLED", "false"),
		},
		Executor: ExecutorConfig{
			BaseURL: os.Getenv("EXECUTOR_URL"),
		},
		Notify: NotifyConfig{
			DefaultWebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
