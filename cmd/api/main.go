package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"blinkshop/core"
)

func main() {
	_ = godotenv.Load()
	cfg := core.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()
	defer logger.Sync()

	if cfg.MigrateOnStart {
		if err := core.Migrate(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal("migrate failed", zap.Error(err))
		}
	}

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// Counters are optional; auth keeps working without redis.
	var metrics *core.MetricsService
	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, metrics disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		metrics = core.NewMetricsService(redisClient, logger)
	}

	if err := core.BootstrapAutomationSecret(&cfg, logger); err != nil {
		logger.Fatal("bootstrap automation secret failed", zap.Error(err))
	}
	if cfg.AutomationSecret == "" && cfg.AutomationBcrypt == "" {
		logger.Warn("no automation secret configured; bypass and operator endpoints are disabled")
	}

	images, err := core.NewS3ImageStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to configure image store", zap.Error(err))
	}

	// Gorilla cookie store for session management.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	credentials := core.NewGoTrueClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	verifier := core.NewTokenVerifier(cfg, credentials)
	ledger := core.NewPgFreshnessLedger(db)
	checker := core.NewFreshnessChecker(ledger, cfg.AuthWindow(), time.Now, logger)
	recorder := core.NewFreshnessRecorder(ledger, verifier, time.Now)
	trigger := core.NewMagicLinkTrigger(credentials, cfg.ConfirmRedirectURL())
	bypass := core.NewBypassStrategy(cfg.AutomationSecret, cfg.AutomationBcrypt)
	gate := core.NewHeadlessGate(trigger, logger, bypass, core.NewFreshnessStrategy(checker))

	router := core.NewRouter(cfg, core.Deps{
		Sessions: store,
		Ledger:   ledger,
		Checker:  checker,
		Recorder: recorder,
		Trigger:  trigger,
		Confirm:  core.NewConfirmationHandler(credentials, recorder, cfg.RecordFailureFatal, logger),
		Gate:     gate,
		Bypass:   bypass,
		Verifier: verifier,
		Uploads:  core.NewUploadService(images, core.NewPgImageUploadRepository(db), cfg.UploadFolder, time.Now, logger),
		Listings: core.NewPgListingRepository(db),
		Metrics:  metrics,
		Log:      logger,
		Now:      time.Now,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting api server",
		zap.String("addr", srv.Addr),
		zap.Int("auth_window_days", cfg.AuthWindowDays),
		zap.Bool("record_failure_fatal", cfg.RecordFailureFatal),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("api server stopped")
}
