package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/models"
)

// SuggestionRepository provides data access for queued suggestions.
type SuggestionRepository interface {
	// Create inserts a suggestion in pending status.
	Create(ctx context.Context, suggestion *models.Suggestion) error

	// GetByID returns a single suggestion, or nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error)

	// FindPendingByDedupeKey returns the pending suggestion with an
	// equivalent payload, or nil.
	FindPendingByDedupeKey(ctx context.Context, kind, dedupeKey string) (*models.Suggestion, error)

	// ListPending returns pending suggestions filtered by kind (empty for
	// any) and minimum confidence, paginated, highest confidence first.
	ListPending(ctx context.Context, kind string, minConfidence float64, limit, offset int) ([]*models.Suggestion, error)

	// Resolve transitions a pending suggestion to a terminal status. Returns
	// false when the suggestion was no longer pending, which concurrent
	// reviewers treat as a skip, not an error.
	Resolve(ctx context.Context, id uuid.UUID, status, actor string) (bool, error)
}

type suggestionRepository struct{}

// NewSuggestionRepository creates a new SuggestionRepository.
func NewSuggestionRepository() SuggestionRepository {
	return &suggestionRepository{}
}

var _ SuggestionRepository = (*suggestionRepository)(nil)

func (r *suggestionRepository) Create(ctx context.Context, suggestion *models.Suggestion) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	payload, err := json.Marshal(suggestion.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestion payload: %w", err)
	}

	query := `
		INSERT INTO pipeline_suggestions (kind, payload, dedupe_key, confidence, evidence, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = scope.Conn.QueryRow(ctx, query,
		suggestion.Kind,
		payload,
		suggestion.DedupeKey,
		suggestion.Confidence,
		suggestion.Evidence,
		models.SuggestionStatusPending,
		time.Now(),
	).Scan(&suggestion.ID, &suggestion.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create suggestion: %w", err)
	}
	suggestion.Status = models.SuggestionStatusPending

	return nil
}

func (r *suggestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Suggestion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := suggestionColumns + ` WHERE id = $1`
	return scanSuggestion(scope.Conn.QueryRow(ctx, query, id))
}

func (r *suggestionRepository) FindPendingByDedupeKey(ctx context.Context, kind, dedupeKey string) (*models.Suggestion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := suggestionColumns + ` WHERE kind = $1 AND dedupe_key = $2 AND status = 'pending'`
	return scanSuggestion(scope.Conn.QueryRow(ctx, query, kind, dedupeKey))
}

func (r *suggestionRepository) ListPending(ctx context.Context, kind string, minConfidence float64, limit, offset int) ([]*models.Suggestion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := suggestionColumns + `
		WHERE status = 'pending' AND ($1 = '' OR kind = $1) AND confidence >= $2
		ORDER BY confidence DESC, created_at, id
		LIMIT $3 OFFSET $4`

	rows, err := scope.Conn.Query(ctx, query, kind, minConfidence, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var out []*models.Suggestion
	for rows.Next() {
		s, err := scanSuggestionFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestions: %w", err)
	}

	return out, nil
}

func (r *suggestionRepository) Resolve(ctx context.Context, id uuid.UUID, status, actor string) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	// The status guard makes resolution race-safe: a transition that lost
	// the race affects zero rows.
	query := `
		UPDATE pipeline_suggestions
		SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1 AND status = 'pending'`

	result, err := scope.Conn.Exec(ctx, query, id, status, time.Now(), actor)
	if err != nil {
		return false, fmt.Errorf("failed to resolve suggestion: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

const suggestionColumns = `
	SELECT id, kind, payload, dedupe_key, confidence, evidence, status, created_at, resolved_at, resolved_by
	FROM pipeline_suggestions`

func scanSuggestion(row pgx.Row) (*models.Suggestion, error) {
	s, err := scanSuggestionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSuggestionFromRows(rows pgx.Rows) (*models.Suggestion, error) {
	return scanSuggestionRow(rows)
}

func scanSuggestionRow(row pgx.Row) (*models.Suggestion, error) {
	var s models.Suggestion
	var payload []byte

	err := row.Scan(
		&s.ID, &s.Kind, &payload, &s.DedupeKey, &s.Confidence, &s.Evidence,
		&s.Status, &s.CreatedAt, &s.ResolvedAt, &s.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan suggestion: %w", err)
	}

	if err := json.Unmarshal(payload, &s.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suggestion payload: %w", err)
	}

	return &s, nil
}
