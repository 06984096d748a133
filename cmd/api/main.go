package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rentdesk/rentdesk-platform/cmd/mainconfig"
	"github.com/rentdesk/rentdesk-platform/internal/api/router"
	"github.com/rentdesk/rentdesk-platform/internal/chat"
	appconfig "github.com/rentdesk/rentdesk-platform/internal/config"
	"github.com/rentdesk/rentdesk-platform/internal/events"
	"github.com/rentdesk/rentdesk-platform/internal/leads"
	"github.com/rentdesk/rentdesk-platform/internal/media"
	"github.com/rentdesk/rentdesk-platform/internal/notify"
	"github.com/rentdesk/rentdesk-platform/internal/observability/metrics"
	"github.com/rentdesk/rentdesk-platform/internal/staff"
	"github.com/rentdesk/rentdesk-platform/internal/webhook"
	"github.com/rentdesk/rentdesk-platform/internal/whatsapp"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting rentdesk-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := mainconfig.NewRedisClient(cfg)
	defer redisClient.Close()

	waClient, err := whatsapp.New(whatsapp.Config{
		BaseURL:     cfg.WhatsAppAPIBaseURL,
		AccessToken: cfg.WhatsAppAccessToken,
		Timeout:     cfg.WhatsAppAPITimeout,
		Logger:      logger.Component("whatsapp").Logger,
	})
	if err != nil {
		logger.Error("failed to create WhatsApp client", "error", err)
		os.Exit(1)
	}

	var mediaResolver *media.Resolver
	if cfg.StorageBucket != "" {
		s3Client, err := mainconfig.NewS3Client(ctx, cfg)
		if err != nil {
			logger.Error("failed to build storage client", "error", err)
			os.Exit(1)
		}
		mediaResolver = media.NewResolver(waClient, s3Client, cfg.StorageBucket, cfg.CDNBaseURL, logger.Component("media"))
	} else {
		logger.Warn("media storage not configured; inbound media will not be persisted")
	}

	chatStore := chat.NewStore(pool)
	readStates := chat.NewReadStateStore(redisClient)
	staffStore := staff.NewStore(pool)
	leadRepo := leads.NewPostgresRepository(pool)

	hub := events.NewHub(logger.Component("events"))
	notifier := notify.NewService(
		hub,
		staffStore,
		readStates,
		notify.NewDebouncer(cfg.NotifyDebounceWindow),
		logger.Component("notify"),
	)

	sender := chat.NewSender(waClient, chatStore, cfg.TemplateLanguageCode, logger.Component("chat"))
	automation := webhook.NewAutomation(
		chatStore, sender, leadRepo,
		cfg.GreetingTemplateName, cfg.FollowupTemplateName,
		logger.Component("automation"),
	)

	webhookMetrics := metrics.NewWebhookMetrics(nil)
	processor := webhook.NewProcessor(webhook.ProcessorConfig{
		Store:      chatStore,
		Lines:      staffStore,
		Media:      mediaResolver,
		Notifier:   notifier,
		Leads:      leadRepo,
		Automation: automation,
		Metrics:    webhookMetrics,
		Logger:     logger.Component("webhook"),
	})
	webhookHandler := webhook.NewHandler(cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, processor, logger.Component("webhook"))

	r := router.New(&router.Config{
		Logger:             logger,
		WebhookHandler:     webhookHandler,
		LeadsHandler:       leads.NewHandler(leadRepo, logger.Component("leads")),
		ChatHandler:        chat.NewHandler(chatStore, readStates, logger.Component("chat")),
		Hub:                hub,
		MetricsHandler:     promhttp.Handler(),
		StaffAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
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

	// Let in-flight automated sends finish before the process exits.
	automation.Wait()

	logger.Info("server stopped")
}
