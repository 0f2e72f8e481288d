package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xaenox/wa-crm-bot/internal/api"
	"github.com/xaenox/wa-crm-bot/internal/bot"
	"github.com/xaenox/wa-crm-bot/internal/classifier"
	"github.com/xaenox/wa-crm-bot/internal/language"
	"github.com/xaenox/wa-crm-bot/internal/llm"
	"github.com/xaenox/wa-crm-bot/internal/metrics"
	"github.com/xaenox/wa-crm-bot/internal/notify"
	"github.com/xaenox/wa-crm-bot/internal/reply"
	"github.com/xaenox/wa-crm-bot/internal/storage"
	"github.com/xaenox/wa-crm-bot/internal/whatsapp"
	"github.com/xaenox/wa-crm-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewProduction()
	if cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err), zap.String("path", *configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:          cfg.Database.Host,
			Port:          cfg.Database.Port,
			User:          cfg.Database.User,
			Password:      cfg.Database.Password,
			DBName:        cfg.Database.DBName,
			SSLMode:       cfg.Database.SSLMode,
			RunMigrations: cfg.Database.RunMigrations,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize language model
	llmConfig := llm.Config{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	}
	if cfg.LLM.Provider == llm.ProviderOpenAI {
		llmConfig.APIKey = cfg.OpenAI.APIKey
		llmConfig.Model = cfg.OpenAI.Model
		llmConfig.BaseURL = cfg.OpenAI.BaseURL
	}
	model, closeModel, err := llm.New(ctx, llmConfig)
	if err != nil {
		logger.Fatal("Failed to create language model client", zap.Error(err), zap.String("provider", cfg.LLM.Provider))
	}
	defer closeModel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relayMetrics := metrics.New(reg)

	// Outbound WhatsApp client
	dispatcher := whatsapp.NewClient(cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.Timeout, logger)
	dispatcher.SetGraphAPIBase(cfg.WhatsApp.GraphAPIBase)
	dispatcher.SetObserver(relayMetrics)

	var notifier notify.LeadNotifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Fatal("Failed to create lead notifier", zap.Error(err))
		}
		notifier = tg
	}

	detector := language.NewDetector(cfg.Language.Fallback, logger)
	generator := reply.NewGenerator(store, model, detector, reply.Options{
		SystemPrompt:             cfg.Reply.SystemPrompt,
		IncludeLanguageDirective: cfg.Reply.IncludeLanguageDirective,
	}, logger)
	clf := classifier.NewIntentClassifier(model, logger)

	b := bot.New(store, clf, generator, dispatcher, logger,
		bot.WithRecipient(cfg.WhatsApp.RecipientWaID),
		bot.WithNotifier(notifier),
		bot.WithMetrics(relayMetrics),
	)

	router := api.New(&api.Config{
		Logger:         logger,
		WebhookHandler: api.NewWebhookHandler(b, cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
