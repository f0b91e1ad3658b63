package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/apperrors"
	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/matching"
	"github.com/atelierops/pipeline-engine/pkg/metrics"
	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
)

// LinkOutcome describes what the automated pass did with one record.
type LinkOutcome struct {
	Record     *models.SourceRecord `json:"record"`
	Link       *models.Link         `json:"link,omitempty"`
	Suggestion *models.Suggestion   `json:"suggestion,omitempty"`
	// Outcome is one of "linked", "suggested", "unmatched".
	Outcome string `json:"outcome"`
}

const (
	OutcomeLinked    = "linked"
	OutcomeSuggested = "suggested"
	OutcomeUnmatched = "unmatched"
)

// IngestService runs the extract → match → route pipeline. High-confidence
// code and alias matches commit links directly under the automated actor;
// text-evidence matches become alias suggestions for a human to review;
// everything else stays unlinked.
type IngestService interface {
	// IngestRecord stores a new source record and immediately runs the
	// automated linking pass over it.
	IngestRecord(ctx context.Context, record *models.SourceRecord) (*LinkOutcome, error)

	// LinkRecord re-runs the automated pass over an existing record.
	// Manual links are never overwritten.
	LinkRecord(ctx context.Context, sourceID uuid.UUID) (*LinkOutcome, error)
}

type ingestService struct {
	db           database.Runner
	sourceRepo   repositories.SourceRecordRepository
	entityRepo   repositories.EntityRepository
	aliasRepo    repositories.AliasRepository
	linkRepo     repositories.LinkRepository
	linkService  LinkService
	suggestions  SuggestionService
	codePrefixes []string
	logger       *zap.Logger
}

// NewIngestService creates a new IngestService. An empty prefix list falls
// back to the built-in defaults.
func NewIngestService(
	db database.Runner,
	sourceRepo repositories.SourceRecordRepository,
	entityRepo repositories.EntityRepository,
	aliasRepo repositories.AliasRepository,
	linkRepo repositories.LinkRepository,
	linkService LinkService,
	suggestions SuggestionService,
	codePrefixes []string,
	logger *zap.Logger,
) IngestService {
	if len(codePrefixes) == 0 {
		codePrefixes = matching.DefaultCodePrefixes
	}
	return &ingestService{
		db:           db,
		sourceRepo:   sourceRepo,
		entityRepo:   entityRepo,
		aliasRepo:    aliasRepo,
		linkRepo:     linkRepo,
		linkService:  linkService,
		suggestions:  suggestions,
		codePrefixes: codePrefixes,
		logger:       logger.Named("ingest-service"),
	}
}

var _ IngestService = (*ingestService)(nil)

func (s *ingestService) IngestRecord(ctx context.Context, record *models.SourceRecord) (*LinkOutcome, error) {
	if record.Kind == "" {
		record.Kind = models.SourceKindOther
	}
	if !models.ValidSourceKind(record.Kind) {
		return nil, fmt.Errorf("invalid record kind %q", record.Kind)
	}

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		return s.sourceRepo.Create(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	return s.linkRecord(ctx, record)
}

func (s *ingestService) LinkRecord(ctx context.Context, sourceID uuid.UUID) (*LinkOutcome, error) {
	record, err := s.sourceRepo.GetByID(s.db.WithPool(ctx), sourceID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("record %s: %w", sourceID, apperrors.ErrSourceNotFound)
	}

	existing, err := s.linkRepo.GetBySourceID(s.db.WithPool(ctx), sourceID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsManual() {
		// A reviewer already decided; the automated pass keeps its hands off.
		return &LinkOutcome{Record: record, Link: existing, Outcome: OutcomeLinked}, nil
	}

	return s.linkRecord(ctx, record)
}

func (s *ingestService) linkRecord(ctx context.Context, record *models.SourceRecord) (*LinkOutcome, error) {
	matcher, err := s.buildMatcher(ctx)
	if err != nil {
		return nil, err
	}

	candidates := matching.ExtractWithPrefixes(record.RawIdentifier, s.codePrefixes)
	matches := matcher.Match(record.RawIdentifier, candidates, record.EvidenceFields(), record.RecordDate)

	if len(matches) == 0 {
		metrics.ExtractionTotal.WithLabelValues("miss").Inc()
		s.logger.Debug("no match for record",
			zap.String("record_id", record.ID.String()),
			zap.String("raw_identifier", record.RawIdentifier))
		return &LinkOutcome{Record: record, Outcome: OutcomeUnmatched}, nil
	}

	metrics.ExtractionTotal.WithLabelValues("hit").Inc()
	best := matches[0]

	if best.Method != models.MethodTextEvidence && best.Confidence >= models.AutoCommitThreshold {
		link, err := s.linkService.SetLink(ctx, record.ID, best.Entity.ID,
			best.Confidence, best.Method, best.Evidence, models.ActorMatcher)
		if err != nil {
			return nil, err
		}
		return &LinkOutcome{Record: record, Link: link, Outcome: OutcomeLinked}, nil
	}

	// Below the auto-commit bar the match is a hint, not a decision.
	suggestion := &models.Suggestion{
		Kind:       models.SuggestionKindProjectAlias,
		Confidence: best.Confidence,
		Evidence:   MatchEvidence(best),
		Payload: models.SuggestionPayload{
			ProjectAlias: &models.ProjectAliasPayload{
				Alias:    record.RawIdentifier,
				EntityID: best.Entity.ID,
			},
		},
	}
	enqueued, err := s.suggestions.Enqueue(ctx, suggestion)
	if err != nil {
		return nil, err
	}
	return &LinkOutcome{Record: record, Suggestion: enqueued, Outcome: OutcomeSuggested}, nil
}

// buildMatcher snapshots the canonical entities, aliases, and link counts
// into an in-memory index for one linking pass.
func (s *ingestService) buildMatcher(ctx context.Context) (*matching.Matcher, error) {
	ctx = s.db.WithPool(ctx)

	entities, err := s.entityRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := s.aliasRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.linkRepo.CountByEntity(ctx)
	if err != nil {
		return nil, err
	}

	return matching.NewMatcher(matching.NewIndex(entities, aliases, counts)), nil
}
