package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alertops/backend/internal/client"
	"github.com/alertops/backend/internal/config"
	"github.com/alertops/backend/internal/db"
	"github.com/alertops/backend/internal/handler"
	"github.com/alertops/backend/internal/metrics"
	"github.com/alertops/backend/internal/model"
	"github.com/alertops/backend/internal/service"
)

// @title AlertOps Incident Engine API
// @version 1.0
// @description Alert ingestion, correlation, SLA tracking, escalation and remediation approvals.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// .env 파일 로드 (없으면 무시)
	_ = godotenv.Load()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB 연결 및 스키마 보장
	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("[Main] Failed to connect postgres: %v", err)
	}
	defer pool.Close()

	repo := &db.Postgres{Pool: pool}
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("[Main] Failed to ensure schema: %v", err)
	}

	// 기본 테넌트 부트스트랩 (BOOTSTRAP_API_KEY 설정 시)
	defaultCompanyID := bootstrapCompany(ctx, repo, cfg)

	// 인증
	authService, err := service.NewAuthService(ctx, repo, cfg.Auth)
	if err != nil {
		log.Fatalf("[Main] Failed to init auth service: %v", err)
	}
	if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, defaultCompanyID); err != nil {
		log.Fatalf("[Main] Failed to ensure admin user: %v", err)
	}

	// Prometheus 메트릭
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("[Main] Failed to register metrics: %v", err)
	}

	// 클라이언트
	clock := service.NewRealClock()
	executorClient := client.NewExecutorClient(cfg.Executor)
	notifyClient := client.NewNotifyClient(cfg.Notify)

	var aiClient *client.AIClient
	if cfg.AI.APIKey != "" {
		aiClient, err = client.NewAIClient(cfg.AI)
		if err != nil {
			log.Printf("[Main] AI client disabled: %v", err)
			aiClient = nil
		}
	}

	// 서비스 조립
	limiter := service.NewRateLimiter(clock)

	classifyEnabled, _ := strconv.ParseBool(cfg.AI.ClassifyEnabled)
	var ingestService *service.IngestService
	if aiClient != nil && classifyEnabled {
		ingestService = service.NewIngestService(repo, limiter, clock, aiClient, cfg.Ingest)
	} else {
		ingestService = service.NewIngestService(repo, limiter, clock, nil, cfg.Ingest)
	}

	slaService := service.NewSLAService(repo, clock, atoiDefault(cfg.Escalation.DefaultWarningThresholdMinutes, 10))
	correlationService := service.NewCorrelationService(
		repo, slaService, clock,
		atoiDefault(cfg.Correlation.DefaultWindowMinutes, 15),
		cfg.Correlation.DefaultKeyPattern,
	)
	escalationService := service.NewEscalationService(
		repo, slaService, notifyClient, clock,
		time.Duration(atoiDefault(cfg.Escalation.TickIntervalSeconds, 300))*time.Second,
	)
	approvalService := service.NewApprovalService(repo, executorClient, clock)

	var embeddingService *service.EmbeddingService
	var incidentService *service.IncidentService
	if aiClient != nil {
		embeddingService = service.NewEmbeddingService(repo, aiClient)
		incidentService = service.NewIncidentService(repo, embeddingService, clock)
	} else {
		incidentService = service.NewIncidentService(repo, nil, clock)
	}

	// 백그라운드 루프
	go correlationService.RunSweeper(ctx, time.Duration(atoiDefault(cfg.Correlation.SweepIntervalSeconds, 60))*time.Second)
	go escalationService.Run(ctx)
	go approvalService.RunExpirySweeper(ctx, time.Minute)
	go runDeliveryRetentionSweeper(ctx, repo, time.Duration(atoiDefault(cfg.Ingest.DeliveryRetentionHours, 24))*time.Hour)

	// 라우터 구성
	router := buildRouter(cfg, authService, repo, handlerSet{
		ingest:    handler.NewIngestHandler(ingestService),
		incidents: handler.NewIncidentHandler(incidentService, correlationService, slaService, approvalService, embeddingService),
		sla:       handler.NewSLAHandler(slaService),
		approvals: handler.NewApprovalHandler(approvalService),
		auth:      handler.NewAuthHandler(authService, defaultCompanyID),
		audit:     handler.NewAuditHandler(repo),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("[Main] Server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Main] Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[Main] Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] Graceful shutdown failed: %v", err)
	}
}

type handlerSet struct {
	ingest    *handler.IngestHandler
	incidents *handler.IncidentHandler
	sla       *handler.SLAHandler
	approvals *handler.ApprovalHandler
	auth      *handler.AuthHandler
	audit     *handler.AuditHandler
}

func buildRouter(cfg config.Config, authService *service.AuthService, repo *db.Postgres, h handlerSet) *gin.Engine {
	router := gin.Default()

	if cfg.Server.AllowedOrigins != "" {
		router.Use(handler.CORSMiddleware(strings.Split(cfg.Server.AllowedOrigins, ","), true))
	}

	router.GET("/", handler.Root)
	router.GET("/ping", handler.Ping)
	router.GET("/openapi.json", handler.OpenAPIDoc)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 인입 webhook은 JWT가 아니라 테넌트 API 키로 인증한다
	router.POST("/webhooks/alerts", h.ingest.ReceiveAlert)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", h.auth.Register)
		auth.POST("/login", h.auth.Login)
		auth.POST("/sso", h.auth.SSOLogin)
		auth.POST("/refresh", h.auth.Refresh)
		auth.POST("/logout", h.auth.Logout)
		auth.GET("/config", h.auth.Config)
		auth.GET("/me", handler.AuthMiddleware(authService), h.auth.Me)
	}

	api := router.Group("/api/v1")
	api.Use(handler.AuthMiddleware(authService))
	{
		api.GET("/incidents", h.incidents.ListIncidents)
		api.POST("/incidents/correlate", handler.RequireRole(model.RoleOperator), h.incidents.TriggerCorrelation)
		api.GET("/incidents/:id", h.incidents.GetIncidentDetail)
		api.POST("/incidents/:id/assign", handler.RequireRole(model.RoleOperator), h.incidents.AssignIncident)
		api.POST("/incidents/:id/resolve", handler.RequireRole(model.RoleOperator), h.incidents.ResolveIncident)
		api.GET("/incidents/:id/sla-status", h.incidents.GetSLAStatus)
		api.GET("/incidents/:id/similar", h.incidents.GetSimilarIncidents)
		api.POST("/incidents/:id/dispatch", handler.RequireRole(model.RoleOperator), h.incidents.DispatchAction)

		api.GET("/approvals", h.approvals.ListApprovals)
		api.POST("/approvals/:id/approve", handler.RequireRole(model.RoleOperator), h.approvals.ApproveRequest)
		api.POST("/approvals/:id/reject", handler.RequireRole(model.RoleOperator), h.approvals.RejectRequest)

		api.GET("/sla-config", h.sla.GetSLAConfig)
		api.PUT("/sla-config", handler.RequireRole(model.RoleAdmin), h.sla.PutSLAConfig)
		api.GET("/sla-report", h.sla.GetSLAReport)

		api.GET("/audit", h.audit.ListAudit)
	}

	return router
}

// bootstrapCompany - 빈 DB 기동 시 기본 테넌트 생성
// 반환값은 admin/가입 사용자가 소속될 테넌트 ID (없으면 빈 문자열).
func bootstrapCompany(ctx context.Context, repo *db.Postgres, cfg config.Config) string {
	if cfg.Bootstrap.APIKey == "" {
		ids, err := repo.ListCompanyIDs(ctx)
		if err == nil && len(ids) > 0 {
			return ids[0]
		}
		return ""
	}

	company, err := repo.GetCompanyByAPIKey(ctx, cfg.Bootstrap.APIKey)
	if err == nil {
		return company.CompanyID
	}
	if !db.IsNoRows(err) {
		log.Fatalf("[Main] Failed to look up bootstrap company: %v", err)
	}

	company, err = repo.CreateCompany(ctx,
		cfg.Bootstrap.CompanyName,
		cfg.Bootstrap.APIKey,
		cfg.Bootstrap.WebhookSecret,
		cfg.Bootstrap.WebhookSecret != "",
		atoiDefault(cfg.Ingest.DefaultLimitPerMinute, 120),
		atoiDefault(cfg.Ingest.DefaultBurstSize, 150),
	)
	if err != nil {
		log.Fatalf("[Main] Failed to create bootstrap company: %v", err)
	}
	log.Printf("[Main] Bootstrap company created (company=%s, name=%s)", company.CompanyID, company.Name)
	return company.CompanyID
}

// runDeliveryRetentionSweeper - 만료된 delivery 멱등성 기록 정리 루프
func runDeliveryRetentionSweeper(ctx context.Context, repo *db.Postgres, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteExpiredDeliveries(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Printf("[Main] Delivery retention sweep failed: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("[Main] Expired delivery records removed (count=%d)", deleted)
			}
		}
	}
}

func atoiDefault(value string, fallback int) int {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

