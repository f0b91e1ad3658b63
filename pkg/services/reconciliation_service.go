package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/matching"
	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
)

// DefaultReconciliationMargin is how much a re-derived match must beat the
// stored confidence by before it shows up as a proposed correction. Small
// improvements are noise; a human only wants to see real disagreements.
const DefaultReconciliationMargin = 0.10

// ReconciliationService re-derives the best match for every linked record and
// reports disagreements. It never writes: the report is a review artifact and
// every correction goes through the normal relink path if a human agrees.
type ReconciliationService interface {
	BuildReport(ctx context.Context, margin float64) (*models.ReconciliationReport, error)
}

type reconciliationService struct {
	db           database.Runner
	sourceRepo   repositories.SourceRecordRepository
	entityRepo   repositories.EntityRepository
	aliasRepo    repositories.AliasRepository
	linkRepo     repositories.LinkRepository
	codePrefixes []string
	logger       *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService. It takes only
// read repositories; there is no code path through which it could mutate.
func NewReconciliationService(
	db database.Runner,
	sourceRepo repositories.SourceRecordRepository,
	entityRepo repositories.EntityRepository,
	aliasRepo repositories.AliasRepository,
	linkRepo repositories.LinkRepository,
	codePrefixes []string,
	logger *zap.Logger,
) ReconciliationService {
	if len(codePrefixes) == 0 {
		codePrefixes = matching.DefaultCodePrefixes
	}
	return &reconciliationService{
		db:           db,
		sourceRepo:   sourceRepo,
		entityRepo:   entityRepo,
		aliasRepo:    aliasRepo,
		linkRepo:     linkRepo,
		codePrefixes: codePrefixes,
		logger:       logger.Named("reconciliation-service"),
	}
}

var _ ReconciliationService = (*reconciliationService)(nil)

func (s *reconciliationService) BuildReport(ctx context.Context, margin float64) (*models.ReconciliationReport, error) {
	if margin <= 0 {
		margin = DefaultReconciliationMargin
	}
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
	linked, err := s.sourceRepo.ListLinked(ctx)
	if err != nil {
		return nil, err
	}

	idx := matching.NewIndex(entities, aliases, counts)
	matcher := matching.NewMatcher(idx)
	byID := make(map[string]*models.CanonicalEntity, len(entities))
	for _, e := range entities {
		byID[e.ID.String()] = e
	}

	// Corrections is non-nil even when empty so the serialized report is
	// identical across runs regardless of how it was built.
	report := &models.ReconciliationReport{Corrections: []models.ProposedCorrection{}}

	for _, rl := range linked {
		report.RecordsScanned++
		record, link := rl.Record, rl.Link

		if link.IsManual() {
			// A human decided; the batch does not second-guess.
			continue
		}

		candidates := matching.ExtractWithPrefixes(record.RawIdentifier, s.codePrefixes)
		matches := matcher.Match(record.RawIdentifier, candidates, record.EvidenceFields(), record.RecordDate)
		if len(matches) == 0 {
			continue
		}
		best := matches[0]

		if best.Entity.ID == link.EntityID {
			continue
		}
		if best.Confidence < link.Confidence+margin {
			continue
		}

		currentCode := ""
		if current, ok := byID[link.EntityID.String()]; ok {
			currentCode = current.Code
		}
		report.Corrections = append(report.Corrections, models.ProposedCorrection{
			SourceRecordID:      record.ID,
			RawIdentifier:       record.RawIdentifier,
			CurrentEntityID:     link.EntityID,
			CurrentEntityCode:   currentCode,
			CurrentConfidence:   link.Confidence,
			SuggestedEntityID:   best.Entity.ID,
			SuggestedEntityCode: best.Entity.Code,
			SuggestedConfidence: best.Confidence,
			SuggestedMethod:     best.Method,
			Evidence:            best.Evidence,
		})
	}

	s.logger.Info("reconciliation report built",
		zap.Int("records_scanned", report.RecordsScanned),
		zap.Int("corrections", len(report.Corrections)))
	return report, nil
}
