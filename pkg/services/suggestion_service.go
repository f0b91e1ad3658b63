package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/apperrors"
	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/matching"
	"github.com/atelierops/pipeline-engine/pkg/metrics"
	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
)

// SuggestionService owns the pending → {approved, rejected} state machine.
// Approval materializes the payload; both dispositions write feedback in the
// same transaction. Terminal states are final: a rejected suggestion is
// never resurrected, a fresh one is created if the evidence recurs.
type SuggestionService interface {
	// Enqueue inserts a suggestion unless an equivalent pending one exists,
	// in which case the existing one is returned. Duplicate suppression is
	// silent; repeated extraction runs must not flood the queue.
	Enqueue(ctx context.Context, suggestion *models.Suggestion) (*models.Suggestion, error)

	// Approve materializes a pending suggestion's payload. Approving a
	// suggestion that already left pending returns ErrSuggestionResolved.
	Approve(ctx context.Context, id uuid.UUID, actor string) (*models.Suggestion, error)

	// Reject marks a pending suggestion rejected with an optional reason.
	Reject(ctx context.Context, id uuid.UUID, reason, actor string) (*models.Suggestion, error)

	// BulkApprove approves every pending suggestion at or above the
	// confidence floor, item by item. One failure does not roll back prior
	// successes; the result reports approved, skipped, and errored counts.
	BulkApprove(ctx context.Context, minConfidence float64, actor string) (*models.BulkApproveResult, error)

	// List returns pending suggestions filtered by kind and minimum
	// confidence, paginated.
	List(ctx context.Context, kind string, minConfidence float64, limit, offset int) ([]*models.Suggestion, error)
}

type suggestionService struct {
	db             database.Runner
	suggestionRepo repositories.SuggestionRepository
	entityRepo     repositories.EntityRepository
	aliasRepo      repositories.AliasRepository
	feedbackRepo   repositories.FeedbackRepository
	logger         *zap.Logger
}

// NewSuggestionService creates a new SuggestionService.
func NewSuggestionService(
	db database.Runner,
	suggestionRepo repositories.SuggestionRepository,
	entityRepo repositories.EntityRepository,
	aliasRepo repositories.AliasRepository,
	feedbackRepo repositories.FeedbackRepository,
	logger *zap.Logger,
) SuggestionService {
	return &suggestionService{
		db:             db,
		suggestionRepo: suggestionRepo,
		entityRepo:     entityRepo,
		aliasRepo:      aliasRepo,
		feedbackRepo:   feedbackRepo,
		logger:         logger.Named("suggestion-service"),
	}
}

var _ SuggestionService = (*suggestionService)(nil)

// bulkApproveBatchSize caps a single bulk pass. Larger queues need repeated
// invocations, which keeps each pass's transaction count bounded.
const bulkApproveBatchSize = 500

func (s *suggestionService) Enqueue(ctx context.Context, suggestion *models.Suggestion) (*models.Suggestion, error) {
	if err := suggestion.Validate(); err != nil {
		return nil, err
	}
	suggestion.DedupeKey = suggestion.ComputeDedupeKey()

	var out *models.Suggestion
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.suggestionRepo.FindPendingByDedupeKey(ctx, suggestion.Kind, suggestion.DedupeKey)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		if err := s.suggestionRepo.Create(ctx, suggestion); err != nil {
			return err
		}
		out = suggestion
		metrics.SuggestionsTotal.WithLabelValues(suggestion.Kind, "enqueued").Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *suggestionService) Approve(ctx context.Context, id uuid.UUID, actor string) (*models.Suggestion, error) {
	if actor == "" {
		return nil, apperrors.ErrMissingActor
	}

	var out *models.Suggestion
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		suggestion, err := s.approveInTx(ctx, id, actor)
		if err != nil {
			return err
		}
		out = suggestion
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SuggestionsTotal.WithLabelValues(out.Kind, "approved").Inc()
	return out, nil
}

// approveInTx performs one approval inside an existing transaction scope.
// Shared by Approve and BulkApprove so each bulk item commits independently.
func (s *suggestionService) approveInTx(ctx context.Context, id uuid.UUID, actor string) (*models.Suggestion, error) {
	suggestion, err := s.suggestionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if suggestion == nil {
		return nil, fmt.Errorf("suggestion %s: %w", id, apperrors.ErrSuggestionNotFound)
	}
	if suggestion.IsTerminal() {
		return nil, fmt.Errorf("suggestion %s is %s: %w", id, suggestion.Status, apperrors.ErrSuggestionResolved)
	}

	ok, err := s.suggestionRepo.Resolve(ctx, id, models.SuggestionStatusApproved, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent reviewer.
		return nil, fmt.Errorf("suggestion %s: %w", id, apperrors.ErrSuggestionResolved)
	}

	if err := s.materialize(ctx, suggestion); err != nil {
		return nil, err
	}

	if err := s.feedbackRepo.Create(ctx, &models.FeedbackEntry{
		FeatureType: models.FeedbackFeatureSuggestion,
		FeatureID:   suggestion.ID,
		Helpful:     true,
		Actor:       actor,
	}); err != nil {
		return nil, err
	}
	metrics.FeedbackEntriesTotal.WithLabelValues(models.FeedbackFeatureSuggestion).Inc()

	suggestion.Status = models.SuggestionStatusApproved
	return suggestion, nil
}

// materialize turns an approved payload into its canonical row.
func (s *suggestionService) materialize(ctx context.Context, suggestion *models.Suggestion) error {
	switch suggestion.Kind {
	case models.SuggestionKindNewContact:
		p := suggestion.Payload.NewContact
		entity := &models.CanonicalEntity{
			Kind:        models.EntityKindContact,
			Code:        contactCode(p.Email),
			DisplayName: p.Name,
			Email:       strings.ToLower(strings.TrimSpace(p.Email)),
			Company:     p.Company,
		}
		if err := s.entityRepo.Create(ctx, entity); err != nil {
			return fmt.Errorf("materialize new_contact: %w", err)
		}
	case models.SuggestionKindProjectAlias:
		p := suggestion.Payload.ProjectAlias
		target, err := s.entityRepo.GetByID(ctx, p.EntityID)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("entity %s: %w", p.EntityID, apperrors.ErrEntityNotFound)
		}
		alias := &models.EntityAlias{Alias: p.Alias, EntityID: p.EntityID}
		if err := s.aliasRepo.Create(ctx, alias); err != nil {
			return fmt.Errorf("materialize project_alias: %w", err)
		}
	default:
		return fmt.Errorf("unknown suggestion kind %q", suggestion.Kind)
	}
	return nil
}

func (s *suggestionService) Reject(ctx context.Context, id uuid.UUID, reason, actor string) (*models.Suggestion, error) {
	if actor == "" {
		return nil, apperrors.ErrMissingActor
	}

	var out *models.Suggestion
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		suggestion, err := s.suggestionRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if suggestion == nil {
			return fmt.Errorf("suggestion %s: %w", id, apperrors.ErrSuggestionNotFound)
		}
		if suggestion.IsTerminal() {
			return fmt.Errorf("suggestion %s is %s: %w", id, suggestion.Status, apperrors.ErrSuggestionResolved)
		}

		ok, err := s.suggestionRepo.Resolve(ctx, id, models.SuggestionStatusRejected, actor)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("suggestion %s: %w", id, apperrors.ErrSuggestionResolved)
		}

		if err := s.feedbackRepo.Create(ctx, &models.FeedbackEntry{
			FeatureType: models.FeedbackFeatureSuggestion,
			FeatureID:   suggestion.ID,
			Helpful:     false,
			Reason:      reason,
			Actor:       actor,
		}); err != nil {
			return err
		}
		metrics.FeedbackEntriesTotal.WithLabelValues(models.FeedbackFeatureSuggestion).Inc()

		suggestion.Status = models.SuggestionStatusRejected
		out = suggestion
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SuggestionsTotal.WithLabelValues(out.Kind, "rejected").Inc()
	return out, nil
}

func (s *suggestionService) BulkApprove(ctx context.Context, minConfidence float64, actor string) (*models.BulkApproveResult, error) {
	if actor == "" {
		return nil, apperrors.ErrMissingActor
	}

	pending, err := s.suggestionRepo.ListPending(s.db.WithPool(ctx), "", minConfidence, bulkApproveBatchSize, 0)
	if err != nil {
		return nil, err
	}

	// Each item runs in its own transaction: one failure must not roll back
	// prior successes, and a suggestion resolved concurrently is a skip.
	result := &models.BulkApproveResult{}
	for _, suggestion := range pending {
		err := s.db.InTx(ctx, func(ctx context.Context) error {
			_, err := s.approveInTx(ctx, suggestion.ID, actor)
			return err
		})
		switch {
		case err == nil:
			result.Approved++
			metrics.SuggestionsTotal.WithLabelValues(suggestion.Kind, "approved").Inc()
		case isSkippable(err):
			result.Skipped++
		default:
			result.Errors++
			s.logger.Warn("bulk approve item failed",
				zap.String("suggestion_id", suggestion.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("bulk approve finished",
		zap.Float64("min_confidence", minConfidence),
		zap.Int("approved", result.Approved),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors))
	return result, nil
}

func (s *suggestionService) List(ctx context.Context, kind string, minConfidence float64, limit, offset int) ([]*models.Suggestion, error) {
	return s.suggestionRepo.ListPending(s.db.WithPool(ctx), kind, minConfidence, limit, offset)
}

// isSkippable reports whether a bulk-approve item error means the suggestion
// was concurrently resolved rather than genuinely failing.
func isSkippable(err error) bool {
	return errors.Is(err, apperrors.ErrSuggestionResolved) || errors.Is(err, apperrors.ErrSuggestionNotFound)
}

// contactCode derives a stable canonical code for a materialized contact.
func contactCode(email string) string {
	local := strings.ToLower(strings.TrimSpace(email))
	if at := strings.IndexByte(local, '@'); at > 0 {
		local = local[:at]
	}
	return "CT-" + strings.ToUpper(local)
}

// MatchEvidence formats a ranked match for storage as suggestion evidence.
func MatchEvidence(m matching.Match) string {
	return fmt.Sprintf("%s (%.2f): %s", m.Method, m.Confidence, m.Evidence)
}
