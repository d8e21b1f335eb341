package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/personaops/backend/internal/demo"
	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/featureflags"
	"github.com/personaops/backend/internal/handler"
	"github.com/personaops/backend/internal/infrastructure/apollo"
	"github.com/personaops/backend/internal/infrastructure/logger"
	"github.com/personaops/backend/internal/infrastructure/mailer"
	"github.com/personaops/backend/internal/infrastructure/openrouter"
	"github.com/personaops/backend/internal/infrastructure/redis"
	"github.com/personaops/backend/internal/observability/metrics"
	"github.com/personaops/backend/internal/observability/tracing"
	"github.com/personaops/backend/internal/repository"
	"github.com/personaops/backend/internal/security"
	"github.com/personaops/backend/internal/security/audit"
	"github.com/personaops/backend/internal/security/auth"
	"github.com/personaops/backend/internal/security/middleware"
	"github.com/personaops/backend/internal/security/ratelimit"
	"github.com/personaops/backend/internal/service"
	"github.com/personaops/backend/internal/worker"
	"github.com/personaops/backend/pkg/config"
	"github.com/personaops/backend/pkg/database"
)

const serviceName = "personaops-backend"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting PersonaOps backend", slog.String("environment", cfg.Environment))

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 4. Database and migrations
	pool, err := database.NewConnectionPool(ctx, &database.Config{URL: cfg.DatabaseURL}, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := database.Migrate(ctx, pool.GetDB(), log); err != nil {
		return err
	}
	db := pool.GetDB()

	// 5. Rate limiting: Redis when configured, otherwise per-process
	var (
		limiter     ratelimit.Limiter
		redisPinger handler.RedisPinger
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitPerMinute, time.Minute, log)
		redisPinger = redisClient
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
		defer memLimiter.Stop()
		limiter = memLimiter
	}

	// 6. Auth
	verifier, err := auth.NewVerifier(ctx, auth.VerifierConfig{
		Secret:  cfg.SupabaseJWTSecret,
		JWKSURL: cfg.SupabaseJWKSURL,
	})
	if err != nil {
		return fmt.Errorf("failed to init token verifier: %w", err)
	}
	authz := security.NewAuthorizationService(log)
	auditLogger := audit.NewLogger(log)

	// 7. Providers. Missing keys leave the interface nil so services fall
	// back to demo data.
	var llm domain.LLM
	if cfg.OpenRouterEnabled() {
		c, err := openrouter.NewClient(openrouter.Config{
			APIKey:  cfg.OpenRouterAPIKey,
			BaseURL: cfg.OpenRouterBaseURL,
			Model:   cfg.OpenRouterModel,
			Timeout: cfg.ProviderTimeout,
			Referer: cfg.FrontendURL,
			Title:   "PersonaOps",
		})
		if err != nil {
			return err
		}
		llm = c
	}

	var leads domain.LeadSource
	if cfg.ApolloEnabled() {
		c, err := apollo.NewClient(cfg.ApolloAPIKey, cfg.ApolloBaseURL, cfg.ProviderTimeout)
		if err != nil {
			return err
		}
		leads = c
	}

	var mail domain.Mailer
	if m := mailer.NewSMTP(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, log); m != nil {
		mail = m
	}

	log.Info("providers configured",
		slog.Bool("openrouter", llm != nil),
		slog.Bool("apollo", leads != nil),
		slog.Bool("smtp", mail != nil),
	)

	// 8. Initialize repositories
	icpAnalyses := repository.NewPostgresICPAnalysisRepository(db, log)
	playbookAnalyses := repository.NewPostgresPlaybookAnalysisRepository(db, log)
	analyzerOutputs := repository.NewPostgresAnalyzerOutputRepository(db, log)
	researchSteps := repository.NewPostgresResearchStepRepository(db, log)
	profiles := repository.NewPostgresProfileRepository(db, log)
	icps := repository.NewPostgresICPRepository(db, log)
	invitations := repository.NewPostgresInvitationRepository(db, log)
	crmDeals := repository.NewPostgresCRMRepository(db, log)
	reports := repository.NewPostgresReportRepository(db, log)

	// 9. Initialize services
	flags := featureflags.FromEnv()
	forceDemo := func() bool { return flags.Enabled(featureflags.ForceDemo) }
	catalog := demo.Default()
	llmBreaker := service.NewProviderBreaker(service.SourceOpenRouter)
	apolloBreaker := service.NewProviderBreaker(service.SourceApollo)

	icpService := service.NewICPService(icpAnalyses, llm, llmBreaker, catalog, log)
	playbookService := service.NewPlaybookService(playbookAnalyses, llm, llmBreaker, catalog, log)
	discoveryService := service.NewDiscoveryService(leads, apolloBreaker, catalog, forceDemo, log)
	personalizationService := service.NewPersonalizationService(llm, llmBreaker, forceDemo, log)
	analyzerService := service.NewAnalyzerService(llm, llmBreaker, analyzerOutputs, researchSteps, log)
	backfillWorker := worker.NewBackfillWorker(analyzerOutputs, log, time.Duration(cfg.BackfillIntervalMinutes)*time.Minute)

	// 10. Initialize handlers
	router := handler.NewRouter(handler.RouterConfig{
		Functions: handler.NewFunctionsHandler(icpService, playbookService, discoveryService, personalizationService, analyzerService, log),
		Proxy:     handler.NewProxyHandler(cfg.FunctionsBaseURL, nil, log),
		Workspace: handler.NewWorkspaceHandler(handler.WorkspaceServices{
			Profiles:    service.NewProfileService(profiles, log),
			ICPs:        service.NewICPLibraryService(icps),
			Outputs:     analyzerService,
			Invitations: service.NewInvitationService(invitations, mail, cfg.FrontendURL, log),
			CRM:         service.NewCRMService(crmDeals),
			Reports:     service.NewReportService(reports),
			Backfill:    backfillWorker,
		}, log),
		Research: handler.NewResearchStreamHandler(analyzerService, verifier, cfg.CORSAllowedOrigins,
			func() bool { return flags.Enabled(featureflags.ResearchStream) }, log),
		Health:   handler.NewHealthHandler(pool, redisPinger, log),
		Metrics:  promhttp.Handler(),
		Verifier: verifier,
		Authz:    authz,
		Audit:    auditLogger,
		Limiter:  limiter,
		Logger:   log,
	})

	// Metrics sits directly on the mux so it sees the matched pattern.
	rootHandler := otelhttp.NewHandler(
		middleware.Chain(router,
			middleware.RequestID(log),
			middleware.CORS(cfg.CORSAllowedOrigins),
			metrics.HTTPMetricsMiddleware,
		),
		serviceName,
	)

	// 11. Start HTTP server and background worker
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           rootHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting",
			slog.Int("port", cfg.ServerPort),
			slog.Int("rate_limit_per_minute", cfg.RateLimitPerMinute),
			slog.Bool("redis", redisPinger != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if cfg.BackfillIntervalMinutes > 0 {
		g.Go(func() error {
			backfillWorker.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}
