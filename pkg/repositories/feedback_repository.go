package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/models"
)

// FeedbackRepository provides access to the append-only feedback log. There
// is deliberately no update or delete method; entries must be written in the
// same transaction as the mutation they describe.
type FeedbackRepository interface {
	// Create appends a feedback entry.
	Create(ctx context.Context, entry *models.FeedbackEntry) error

	// ListByFeature returns entries for one link or suggestion, oldest first.
	ListByFeature(ctx context.Context, featureType string, featureID uuid.UUID) ([]*models.FeedbackEntry, error)
}

type feedbackRepository struct{}

// NewFeedbackRepository creates a new FeedbackRepository.
func NewFeedbackRepository() FeedbackRepository {
	return &feedbackRepository{}
}

var _ FeedbackRepository = (*feedbackRepository)(nil)

func (r *feedbackRepository) Create(ctx context.Context, entry *models.FeedbackEntry) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO pipeline_feedback (feature_type, feature_id, helpful, issue_type, expected_value, current_value, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := scope.Conn.QueryRow(ctx, query,
		entry.FeatureType,
		entry.FeatureID,
		entry.Helpful,
		entry.IssueType,
		entry.ExpectedValue,
		entry.CurrentValue,
		entry.Reason,
		entry.Actor,
		time.Now(),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create feedback entry: %w", err)
	}

	return nil
}

func (r *feedbackRepository) ListByFeature(ctx context.Context, featureType string, featureID uuid.UUID) ([]*models.FeedbackEntry, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, feature_type, feature_id, helpful, issue_type, expected_value, current_value, reason, actor, created_at
		FROM pipeline_feedback
		WHERE feature_type = $1 AND feature_id = $2
		ORDER BY created_at, id`

	rows, err := scope.Conn.Query(ctx, query, featureType, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var out []*models.FeedbackEntry
	for rows.Next() {
		var e models.FeedbackEntry
		err := rows.Scan(
			&e.ID, &e.FeatureType, &e.FeatureID, &e.Helpful, &e.IssueType,
			&e.ExpectedValue, &e.CurrentValue, &e.Reason, &e.Actor, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback entry: %w", err)
		}
		out = append(out, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback: %w", err)
	}

	return out, nil
}
