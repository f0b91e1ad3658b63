package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/config"
	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/handlers"
	"github.com/atelierops/pipeline-engine/pkg/llm"
	"github.com/atelierops/pipeline-engine/pkg/logging"
	"github.com/atelierops/pipeline-engine/pkg/metrics"
	"github.com/atelierops/pipeline-engine/pkg/middleware"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
	"github.com/atelierops/pipeline-engine/pkg/retry"
	"github.com/atelierops/pipeline-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Strings("code_prefixes", cfg.Matching.CodePrefixes),
		zap.Bool("ai_configured", cfg.AI.IsConfigured()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := retry.DoWithResult(ctx, nil, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}

	// Repositories
	sourceRepo := repositories.NewSourceRecordRepository()
	entityRepo := repositories.NewEntityRepository()
	aliasRepo := repositories.NewAliasRepository()
	linkRepo := repositories.NewLinkRepository()
	suggestionRepo := repositories.NewSuggestionRepository()
	feedbackRepo := repositories.NewFeedbackRepository()

	// Services
	linkService := services.NewLinkService(db, sourceRepo, entityRepo, linkRepo, feedbackRepo,
		logger.Named("link-service"))
	suggestionService := services.NewSuggestionService(db, suggestionRepo, entityRepo, aliasRepo, feedbackRepo,
		logger.Named("suggestion-service"))
	ingestService := services.NewIngestService(db, sourceRepo, entityRepo, aliasRepo, linkRepo,
		linkService, suggestionService, cfg.Matching.CodePrefixes,
		logger.Named("ingest-service"))

	var llmClient llm.Client
	if cfg.AI.IsConfigured() {
		llmClient, err = llm.New(&llm.Config{
			Provider: cfg.AI.Provider,
			Endpoint: cfg.AI.Endpoint,
			Model:    cfg.AI.Model,
			APIKey:   cfg.AI.APIKey,
		})
		if err != nil {
			logger.Fatal("Failed to create LLM client", zap.Error(err))
		}
		logger.Info("Contact extraction enabled",
			zap.String("provider", cfg.AI.Provider),
			zap.String("model", cfg.AI.Model))
	} else {
		logger.Info("Contact extraction disabled (no AI provider configured)")
	}
	contactSuggester := services.NewContactSuggester(db, sourceRepo, entityRepo, suggestionService, llmClient,
		logger.Named("contact-suggester"))

	// Routes
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewRecordHandler(linkService, ingestService, logger.Named("record-handler")).RegisterRoutes(mux)
	handlers.NewSuggestionHandler(suggestionService, logger.Named("suggestion-handler")).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	handler := middleware.RequestLogger(logger.Named("http"))(middleware.Actor()(mux))

	if cfg.AI.IsConfigured() {
		go contactPassLoop(ctx, contactSuggester, logger)
	}

	addr := net.JoinHostPort(cfg.BindAddr, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server shutdown", zap.Error(err))
		}
	}()

	logger.Info("Starting pipeline-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runMigrations applies pending migrations through database/sql, which
// golang-migrate requires.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}

// contactPassLoop periodically scans unlinked correspondence for new
// contacts. Failures are logged and the next tick tries again.
func contactPassLoop(ctx context.Context, suggester services.ContactSuggester, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := suggester.SuggestContacts(ctx, 0); err != nil {
				logger.Warn("Contact extraction pass failed", zap.Error(err))
			}
		}
	}
}
