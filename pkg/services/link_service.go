// Package services implements the linking subsystem's business operations on
// top of the repository layer.
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/apperrors"
	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/metrics"
	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
)

// RecordDetail is the full read-only view of one source record for the
// review UI: the record, its current link and target, and the feedback trail.
type RecordDetail struct {
	Record   *models.SourceRecord    `json:"record"`
	Link     *models.Link            `json:"link,omitempty"`
	Entity   *models.CanonicalEntity `json:"entity,omitempty"`
	Feedback []*models.FeedbackEntry `json:"feedback"`
}

// LinkService owns the current-link invariant: at most one link per source
// record, replaced by delete-then-insert, every human mutation writing its
// feedback entry in the same transaction.
type LinkService interface {
	// SetLink commits a link for a source record. Non-manual methods below
	// the auto-commit threshold are rejected with ErrBelowThreshold; the
	// caller routes those to the suggestion queue or defers.
	SetLink(ctx context.Context, sourceID, entityID uuid.UUID, confidence float64, method, evidence, actor string) (*models.Link, error)

	// ConfirmLink records a human confirmation of the existing link. The
	// link is promoted to manual with confidence 1.0 so automated passes
	// can no longer supersede it.
	ConfirmLink(ctx context.Context, sourceID uuid.UUID, actor string) (*models.Link, error)

	// Relink replaces a record's link with a human-chosen target. Always
	// permitted; re-issuing with the current target is a no-op.
	Relink(ctx context.Context, sourceID, newEntityID uuid.UUID, reason, actor string) (*models.Link, error)

	// Unlink removes a record's link. Removing an absent link is a no-op.
	Unlink(ctx context.Context, sourceID uuid.UUID, reason, actor string) error

	// ListRecords returns records filtered by attention state, paginated.
	ListRecords(ctx context.Context, filter string, limit, offset int) ([]*models.RecordWithLink, error)

	// GetRecordDetail returns the full review view of one record.
	GetRecordDetail(ctx context.Context, sourceID uuid.UUID) (*RecordDetail, error)
}

type linkService struct {
	db           database.Runner
	sourceRepo   repositories.SourceRecordRepository
	entityRepo   repositories.EntityRepository
	linkRepo     repositories.LinkRepository
	feedbackRepo repositories.FeedbackRepository
	logger       *zap.Logger
}

// NewLinkService creates a new LinkService.
func NewLinkService(
	db database.Runner,
	sourceRepo repositories.SourceRecordRepository,
	entityRepo repositories.EntityRepository,
	linkRepo repositories.LinkRepository,
	feedbackRepo repositories.FeedbackRepository,
	logger *zap.Logger,
) LinkService {
	return &linkService{
		db:           db,
		sourceRepo:   sourceRepo,
		entityRepo:   entityRepo,
		linkRepo:     linkRepo,
		feedbackRepo: feedbackRepo,
		logger:       logger.Named("link-service"),
	}
}

var _ LinkService = (*linkService)(nil)

func (s *linkService) SetLink(ctx context.Context, sourceID, entityID uuid.UUID, confidence float64, method, evidence, actor string) (*models.Link, error) {
	if !models.ValidMethod(method) {
		return nil, fmt.Errorf("invalid link method %q", method)
	}
	if method == models.MethodManual {
		confidence = 1.0
	} else if confidence < models.AutoCommitThreshold {
		return nil, fmt.Errorf("confidence %.2f for source %s: %w", confidence, sourceID, apperrors.ErrBelowThreshold)
	}
	if actor == "" {
		return nil, apperrors.ErrMissingActor
	}

	var link *models.Link
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.requireSource(ctx, sourceID); err != nil {
			return err
		}
		if err := s.requireEntity(ctx, entityID); err != nil {
			return err
		}

		existing, err := s.linkRepo.GetBySourceID(ctx, sourceID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.IsManual() && method != models.MethodManual {
				return fmt.Errorf("source %s: %w", sourceID, apperrors.ErrManualLink)
			}
			if existing.EntityID == entityID && existing.Method == method && existing.Confidence == confidence {
				link = existing
				return nil
			}
			if _, err := s.linkRepo.Delete(ctx, sourceID); err != nil {
				return err
			}
		}

		link = &models.Link{
			SourceRecordID: sourceID,
			EntityID:       entityID,
			Confidence:     confidence,
			Method:         method,
			Evidence:       evidence,
			CreatedBy:      actor,
		}
		return s.linkRepo.Insert(ctx, link)
	})
	if err != nil {
		return nil, err
	}

	metrics.LinkMutationsTotal.WithLabelValues("set_link").Inc()
	s.logger.Debug("link set",
		zap.String("source_id", sourceID.String()),
		zap.String("entity_id", entityID.String()),
		zap.String("method", method),
		zap.Float64("confidence", confidence))
	return link, nil
}

func (s *linkService) ConfirmLink(ctx context.Context, sourceID uuid.UUID, actor string) (*models.Link, error) {
	if actor == "" {
		return nil, apperrors.ErrMissingActor
	}

	var link *models.Link
	var confirmed bool
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.linkRepo.GetBySourceID(ctx, sourceID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("source %s: %w", sourceID, apperrors.ErrLinkNotFound)
		}
		// Re-confirming an already-manual link is an idempotent no-op,
		// without a duplicate feedback entry.
		if existing.IsManual() {
			link = existing
			return nil
		}

		if _, err := s.linkRepo.Delete(ctx, sourceID); err != nil {
			return err
		}
		link = &models.Link{
			SourceRecordID: sourceID,
			EntityID:       existing.EntityID,
			Confidence:     1.0,
			Method:         models.MethodManual,
			Evidence:       existing.Evidence,
			CreatedBy:      actor,
		}
		if err := s.linkRepo.Insert(ctx, link); err != nil {
			return err
		}
		confirmed = true

		current := existing.EntityID.String()
		return s.writeFeedback(ctx, &models.FeedbackEntry{
			FeatureType:  models.FeedbackFeatureLink,
			FeatureID:    link.ID,
			Helpful:      true,
			CurrentValue: &current,
			Actor:        actor,
		})
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		metrics.LinkMutationsTotal.WithLabelValues("confirm_link").Inc()
	}
	return link, nil
}

func (s *linkService) Relink(ctx context.Context, sourceID, newEntityID uuid.UUID, reason, actor string) (*models.Link, error) {
	if actor == "" {
		return nil, apperrors.ErrMissingActor
	}
	if reason == "" {
		return nil, apperrors.ErrMissingReason
	}

	var link *models.Link
	var replaced bool
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.requireSource(ctx, sourceID); err != nil {
			return err
		}
		if err := s.requireEntity(ctx, newEntityID); err != nil {
			return err
		}

		existing, err := s.linkRepo.GetBySourceID(ctx, sourceID)
		if err != nil {
			return err
		}
		// Re-issuing the same relink is a no-op, not a duplicate history
		// entry.
		if existing != nil && existing.EntityID == newEntityID && existing.IsManual() {
			link = existing
			return nil
		}

		var currentValue *string
		if existing != nil {
			v := existing.EntityID.String()
			currentValue = &v
			if _, err := s.linkRepo.Delete(ctx, sourceID); err != nil {
				return err
			}
		}

		link = &models.Link{
			SourceRecordID: sourceID,
			EntityID:       newEntityID,
			Confidence:     1.0,
			Method:         models.MethodManual,
			Evidence:       reason,
			CreatedBy:      actor,
		}
		if err := s.linkRepo.Insert(ctx, link); err != nil {
			return err
		}
		replaced = true

		issue := models.IssueIncorrectEntity
		expected := newEntityID.String()
		return s.writeFeedback(ctx, &models.FeedbackEntry{
			FeatureType:   models.FeedbackFeatureLink,
			FeatureID:     link.ID,
			Helpful:       false,
			IssueType:     &issue,
			ExpectedValue: &expected,
			CurrentValue:  currentValue,
			Reason:        reason,
			Actor:         actor,
		})
	})
	if err != nil {
		return nil, err
	}

	if replaced {
		metrics.LinkMutationsTotal.WithLabelValues("relink").Inc()
		s.logger.Info("link replaced by human",
			zap.String("source_id", sourceID.String()),
			zap.String("entity_id", newEntityID.String()),
			zap.String("actor", actor))
	}
	return link, nil
}

func (s *linkService) Unlink(ctx context.Context, sourceID uuid.UUID, reason, actor string) error {
	if actor == "" {
		return apperrors.ErrMissingActor
	}
	if reason == "" {
		return apperrors.ErrMissingReason
	}

	var removed bool
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.requireSource(ctx, sourceID); err != nil {
			return err
		}

		existing, err := s.linkRepo.GetBySourceID(ctx, sourceID)
		if err != nil {
			return err
		}
		// Unlinking an already-unlinked record is a safe retry.
		if existing == nil {
			return nil
		}

		if _, err := s.linkRepo.Delete(ctx, sourceID); err != nil {
			return err
		}
		removed = true

		issue := models.IssueWrongEntity
		current := existing.EntityID.String()
		return s.writeFeedback(ctx, &models.FeedbackEntry{
			FeatureType:  models.FeedbackFeatureLink,
			FeatureID:    existing.ID,
			Helpful:      false,
			IssueType:    &issue,
			CurrentValue: &current,
			Reason:       reason,
			Actor:        actor,
		})
	})
	if err != nil {
		return err
	}

	if removed {
		metrics.LinkMutationsTotal.WithLabelValues("unlink").Inc()
	}
	return nil
}

func (s *linkService) ListRecords(ctx context.Context, filter string, limit, offset int) ([]*models.RecordWithLink, error) {
	return s.sourceRepo.List(s.db.WithPool(ctx), filter, limit, offset)
}

func (s *linkService) GetRecordDetail(ctx context.Context, sourceID uuid.UUID) (*RecordDetail, error) {
	ctx = s.db.WithPool(ctx)

	record, err := s.sourceRepo.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("source %s: %w", sourceID, apperrors.ErrSourceNotFound)
	}

	detail := &RecordDetail{Record: record, Feedback: []*models.FeedbackEntry{}}

	link, err := s.linkRepo.GetBySourceID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if link != nil {
		detail.Link = link
		entity, err := s.entityRepo.GetByID(ctx, link.EntityID)
		if err != nil {
			return nil, err
		}
		detail.Entity = entity

		feedback, err := s.feedbackRepo.ListByFeature(ctx, models.FeedbackFeatureLink, link.ID)
		if err != nil {
			return nil, err
		}
		if feedback != nil {
			detail.Feedback = feedback
		}
	}

	return detail, nil
}

func (s *linkService) requireSource(ctx context.Context, sourceID uuid.UUID) error {
	record, err := s.sourceRepo.GetByID(ctx, sourceID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("source %s: %w", sourceID, apperrors.ErrSourceNotFound)
	}
	return nil
}

func (s *linkService) requireEntity(ctx context.Context, entityID uuid.UUID) error {
	entity, err := s.entityRepo.GetByID(ctx, entityID)
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("entity %s: %w", entityID, apperrors.ErrEntityNotFound)
	}
	return nil
}

func (s *linkService) writeFeedback(ctx context.Context, entry *models.FeedbackEntry) error {
	if err := s.feedbackRepo.Create(ctx, entry); err != nil {
		return err
	}
	metrics.FeedbackEntriesTotal.WithLabelValues(entry.FeatureType).Inc()
	return nil
}
