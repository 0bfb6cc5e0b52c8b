package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/havana-support/cmd/mainconfig"
	"github.com/wolfman30/havana-support/internal/api/router"
	"github.com/wolfman30/havana-support/internal/app/bootstrap"
	appconfig "github.com/wolfman30/havana-support/internal/config"
	"github.com/wolfman30/havana-support/internal/conversation"
	"github.com/wolfman30/havana-support/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/havana-support/internal/http/middleware"
	"github.com/wolfman30/havana-support/internal/live"
	"github.com/wolfman30/havana-support/internal/notify"
	"github.com/wolfman30/havana-support/internal/observability/metrics"
	"github.com/wolfman30/havana-support/internal/webchat"
	"github.com/wolfman30/havana-support/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting havana-support API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx := context.Background()
	application, err := buildApp(ctx, cfg, logger, registry)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	// Websocket streams are long-lived, so only header reads are bounded.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler http.Handler
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, registry *prometheus.Registry) (*app, error) {
	a := &app{}
	checks := map[string]router.HealthCheck{}

	pool, sqlDB, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close, func() { _ = sqlDB.Close() })
		checks["postgres"] = pool.Ping
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	chatMetrics := metrics.NewChatMetrics(registry)
	broker := bootstrap.BuildBroker(cfg, redisClient, logger)
	repo := live.NewPublishingRepository(bootstrap.BuildChatRepository(pool, logger), broker, logger).
		WithObserver(chatMetrics)
	taxonomy := bootstrap.BuildFAQRepository(cfg, sqlDB, redisClient, logger)

	llm, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, chatMetrics, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	callLoc := conversation.CallLocation(cfg.CallTZName, cfg.CallTZOffsetHours)
	notifier := notify.NewEscalationNotifier(
		bootstrap.BuildEmailSender(cfg, awsCfg, logger),
		cfg.AdminNotifyEmail,
		callLoc,
		logger,
	)
	orchestrator := conversation.NewOrchestrator(repo, taxonomy, llm, logger,
		conversation.WithNotifier(notifier),
		conversation.WithOutcomeObserver(chatMetrics),
		conversation.WithCallLocation(callLoc),
		conversation.WithHistoryLimit(cfg.HistoryLimit),
		conversation.WithAssistantName(cfg.AssistantName),
	)

	origins := httpmiddleware.NewOriginPolicy(cfg.CORSAllowedOrigins)
	greeting := webchat.Greeting(cfg.AssistantName)
	routerCfg := &router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(orchestrator, logger),
		WebChat: webchat.NewHandler(repo, orchestrator, broker, logger,
			webchat.WithGreeting(greeting),
			webchat.WithOriginCheck(origins.CheckOrigin),
		),
		AdminSessions: handlers.NewAdminSessionsHandler(repo, broker, cfg.AdminActiveWindow, origins.CheckOrigin, logger).
			WithGreeting(greeting),
		FAQ:                handlers.NewFAQHandler(taxonomy, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:       checks,
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin dashboard routes are disabled")
	}
	if cfg.ChatRateLimitRPS > 0 {
		limiter := httpmiddleware.NewRateLimiter(cfg.ChatRateLimitRPS, cfg.ChatRateLimitBurst)
		a.closers = append(a.closers, limiter.Stop)
		routerCfg.ChatLimiter = limiter
	}

	a.handler = router.New(routerCfg)
	return a, nil
}
