// Package repositories provides pgx data access for the linking subsystem's
// tables. All methods read their connection from the scope in context, so
// the same code runs inside and outside transactions.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/models"
)

// Attention filter constants for listing source records.
const (
	FilterUnlinked      = "unlinked"
	FilterLowConfidence = "low_confidence"
	FilterAll           = "all"
)

// SourceRecordRepository provides data access for source records.
type SourceRecordRepository interface {
	// Create inserts a new source record. Records are immutable afterwards.
	Create(ctx context.Context, record *models.SourceRecord) error

	// GetByID returns a single source record, or nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.SourceRecord, error)

	// List returns records paired with their current link, filtered by
	// attention state, paginated, newest record date first.
	List(ctx context.Context, filter string, limit, offset int) ([]*models.RecordWithLink, error)

	// ListLinked returns every record that currently has a link, ordered by
	// record id for deterministic reconciliation scans.
	ListLinked(ctx context.Context) ([]*models.RecordWithLink, error)
}

type sourceRecordRepository struct{}

// NewSourceRecordRepository creates a new SourceRecordRepository.
func NewSourceRecordRepository() SourceRecordRepository {
	return &sourceRecordRepository{}
}

var _ SourceRecordRepository = (*sourceRecordRepository)(nil)

func (r *sourceRecordRepository) Create(ctx context.Context, record *models.SourceRecord) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if record.Kind == "" {
		record.Kind = models.SourceKindOther
	}

	query := `
		INSERT INTO pipeline_source_records (kind, raw_identifier, subject, description, record_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := scope.Conn.QueryRow(ctx, query,
		record.Kind,
		record.RawIdentifier,
		record.Subject,
		record.Description,
		record.RecordDate,
		time.Now(),
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create source record: %w", err)
	}

	return nil
}

func (r *sourceRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SourceRecord, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, kind, raw_identifier, subject, description, record_date, created_at
		FROM pipeline_source_records
		WHERE id = $1`

	var rec models.SourceRecord
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Kind, &rec.RawIdentifier, &rec.Subject, &rec.Description,
		&rec.RecordDate, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source record: %w", err)
	}

	return &rec, nil
}

func (r *sourceRecordRepository) List(ctx context.Context, filter string, limit, offset int) ([]*models.RecordWithLink, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := "TRUE"
	switch filter {
	case FilterUnlinked:
		where = "l.id IS NULL"
	case FilterLowConfidence:
		where = fmt.Sprintf("l.id IS NOT NULL AND l.confidence < %v", models.LowConfidenceThreshold)
	case FilterAll, "":
	default:
		return nil, fmt.Errorf("unknown filter %q", filter)
	}

	query := fmt.Sprintf(`
		SELECT r.id, r.kind, r.raw_identifier, r.subject, r.description, r.record_date, r.created_at,
		       l.id, l.entity_id, l.confidence, l.method, l.evidence, l.created_at, l.created_by
		FROM pipeline_source_records r
		LEFT JOIN pipeline_links l ON l.source_record_id = r.id
		WHERE %s
		ORDER BY r.record_date DESC, r.id
		LIMIT $1 OFFSET $2`, where)

	rows, err := scope.Conn.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list source records: %w", err)
	}
	defer rows.Close()

	return scanRecordsWithLinks(rows)
}

func (r *sourceRecordRepository) ListLinked(ctx context.Context) ([]*models.RecordWithLink, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT r.id, r.kind, r.raw_identifier, r.subject, r.description, r.record_date, r.created_at,
		       l.id, l.entity_id, l.confidence, l.method, l.evidence, l.created_at, l.created_by
		FROM pipeline_source_records r
		JOIN pipeline_links l ON l.source_record_id = r.id
		ORDER BY r.id`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked source records: %w", err)
	}
	defer rows.Close()

	return scanRecordsWithLinks(rows)
}

func scanRecordsWithLinks(rows pgx.Rows) ([]*models.RecordWithLink, error) {
	var out []*models.RecordWithLink
	for rows.Next() {
		var rec models.SourceRecord
		var linkID, entityID *uuid.UUID
		var confidence *float64
		var method, evidence, createdBy *string
		var linkCreatedAt *time.Time

		err := rows.Scan(
			&rec.ID, &rec.Kind, &rec.RawIdentifier, &rec.Subject, &rec.Description,
			&rec.RecordDate, &rec.CreatedAt,
			&linkID, &entityID, &confidence, &method, &evidence, &linkCreatedAt, &createdBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source record: %w", err)
		}

		item := &models.RecordWithLink{Record: &rec}
		if linkID != nil {
			item.Link = &models.Link{
				ID:             *linkID,
				SourceRecordID: rec.ID,
				EntityID:       *entityID,
				Confidence:     *confidence,
				Method:         *method,
				Evidence:       *evidence,
				CreatedAt:      *linkCreatedAt,
				CreatedBy:      *createdBy,
			}
		}
		out = append(out, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source records: %w", err)
	}

	return out, nil
}
