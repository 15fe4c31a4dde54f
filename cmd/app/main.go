package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"assistant-backend/internal/account"
	"assistant-backend/internal/billing"
	"assistant-backend/internal/cache"
	"assistant-backend/internal/config"
	"assistant-backend/internal/httpserver"
	"assistant-backend/internal/llm"
	"assistant-backend/internal/logging"
	"assistant-backend/internal/metrics"
	"assistant-backend/internal/notify"
	"assistant-backend/internal/receipts"
	"assistant-backend/internal/store"
	"assistant-backend/internal/usage"
	"assistant-backend/internal/voice"
	"assistant-backend/internal/whatsapp"
	"assistant-backend/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting assistant-backend", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, cfg.SupabaseSchema, logger)
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		if err := pg.RunMigrations(ctx, migrations.Files); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		st = pg
	} else {
		logger.Warn("DATABASE_URL not set, using local sqlite", "path", cfg.SQLitePath)
		sq, err := store.NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return fmt.Errorf("init sqlite: %w", err)
		}
		if err := sq.RunMigrations(ctx, migrations.Files); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		st = sq
	}
	defer st.Close()
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	tracker := usage.NewTracker(st, redisClient, logger)

	stripeProvider := billing.NewStripeProvider(cfg.StripeSecretKey)
	checkout := billing.NewCheckout(stripeProvider, redisClient, logger)
	billingProcessor := billing.NewProcessor(st, stripeProvider, logger)
	stripeWebhook := billing.NewWebhookHandler(cfg.StripeWebhookSecret, billingProcessor, logger, metricRegistry)

	llmClient := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})
	chat := llm.NewChat(llmClient, st, tracker, logger, metricRegistry)
	categorizer := llm.NewCategorizer(llmClient, logger, metricRegistry)

	voiceClient := voice.New(voice.Config{
		BaseURL: cfg.RetellBaseURL,
		APIKey:  cfg.RetellAPIKey,
		Timeout: cfg.RetellTimeout,
	}, logger, metricRegistry)

	receiptStorage := receipts.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.ReceiptBucket, logger)
	receiptProcessor := receipts.NewProcessor(st, receipts.NewMockExtractor(), receiptStorage, tracker, logger, metricRegistry)

	notifier := notify.NewDispatcher(st, []notify.ChannelSender{
		notify.NewEmailSender(logger),
		notify.NewPushSender(logger),
		notify.NewSMSSender(logger),
	}, logger, metricRegistry)

	waSender := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
	}, logger)
	waProcessor := whatsapp.NewProcessor(st, waSender, logger, metricRegistry)
	waWebhook := whatsapp.NewWebhookHandler(cfg.WhatsAppVerifyToken, waProcessor, logger)

	deleter := account.NewDeleter(
		account.NewTokenVerifier(cfg.SupabaseJWTSecret),
		st,
		[]account.Bucket{{Name: cfg.ReceiptBucket, Cleaner: receiptStorage}},
		account.NewAdminClient(cfg.SupabaseURL, cfg.SupabaseServiceKey),
		logger,
		metricRegistry,
	)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Services{
		Checkout:        checkout,
		StripeWebhook:   stripeWebhook,
		Voice:           voiceClient,
		Chat:            chat,
		Categorizer:     categorizer,
		Receipts:        receiptProcessor,
		Usage:           tracker,
		Notifier:        notifier,
		WhatsAppWebhook: waWebhook,
		Deleter:         deleter,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
