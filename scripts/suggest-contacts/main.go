// suggest-contacts runs one LLM contact-extraction pass over unlinked
// correspondence and enqueues new_contact suggestions for review. Requires a
// configured AI provider; the pass refuses to start without one.
//
// Usage: go run ./scripts/suggest-contacts [-limit 50]
//
// Database and AI configuration: config.yaml plus the standard PG*, AI_*
// environment variables, same as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/config"
	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/llm"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
	"github.com/atelierops/pipeline-engine/pkg/services"
)

func main() {
	limit := flag.Int("limit", 50, "Maximum number of records to scan")
	flag.Parse()

	if err := run(*limit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(limit int) error {
	cfg, err := config.Load("suggest-contacts")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.AI.IsConfigured() {
		return fmt.Errorf("no AI provider configured; set AI_PROVIDER and AI_MODEL")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := llm.New(&llm.Config{
		Provider: cfg.AI.Provider,
		Endpoint: cfg.AI.Endpoint,
		Model:    cfg.AI.Model,
		APIKey:   cfg.AI.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: 5,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	entityRepo := repositories.NewEntityRepository()
	suggestionService := services.NewSuggestionService(
		db,
		repositories.NewSuggestionRepository(),
		entityRepo,
		repositories.NewAliasRepository(),
		repositories.NewFeedbackRepository(),
		logger.Named("suggestion-service"),
	)
	suggester := services.NewContactSuggester(
		db,
		repositories.NewSourceRecordRepository(),
		entityRepo,
		suggestionService,
		client,
		logger.Named("contact-suggester"),
	)

	enqueued, err := suggester.SuggestContacts(ctx, limit)
	if err != nil {
		return fmt.Errorf("extraction pass failed: %w", err)
	}

	fmt.Printf("Enqueued %d contact suggestions (model: %s)\n", enqueued, client.Model())
	return nil
}
