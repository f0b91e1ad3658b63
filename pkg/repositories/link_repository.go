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

// LinkRepository provides data access for links. The UNIQUE constraint on
// source_record_id backs the at-most-one-active-link invariant; callers
// replace links with Delete followed by Insert inside one transaction.
type LinkRepository interface {
	// Insert creates a link row.
	Insert(ctx context.Context, link *models.Link) error

	// GetBySourceID returns the current link for a source record, or nil.
	GetBySourceID(ctx context.Context, sourceID uuid.UUID) (*models.Link, error)

	// Delete removes the link for a source record. Returns true when a row
	// was deleted.
	Delete(ctx context.Context, sourceID uuid.UUID) (bool, error)

	// CountByEntity returns the number of links per target entity.
	CountByEntity(ctx context.Context) (map[uuid.UUID]int, error)
}

type linkRepository struct{}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository() LinkRepository {
	return &linkRepository{}
}

var _ LinkRepository = (*linkRepository)(nil)

func (r *linkRepository) Insert(ctx context.Context, link *models.Link) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO pipeline_links (source_record_id, entity_id, confidence, method, evidence, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := scope.Conn.QueryRow(ctx, query,
		link.SourceRecordID,
		link.EntityID,
		link.Confidence,
		link.Method,
		link.Evidence,
		time.Now(),
		link.CreatedBy,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetBySourceID(ctx context.Context, sourceID uuid.UUID) (*models.Link, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, source_record_id, entity_id, confidence, method, evidence, created_at, created_by
		FROM pipeline_links
		WHERE source_record_id = $1`

	var l models.Link
	err := scope.Conn.QueryRow(ctx, query, sourceID).Scan(
		&l.ID, &l.SourceRecordID, &l.EntityID, &l.Confidence, &l.Method,
		&l.Evidence, &l.CreatedAt, &l.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return &l, nil
}

func (r *linkRepository) Delete(ctx context.Context, sourceID uuid.UUID) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM pipeline_links WHERE source_record_id = $1`, sourceID)
	if err != nil {
		return false, fmt.Errorf("failed to delete link: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *linkRepository) CountByEntity(ctx context.Context) (map[uuid.UUID]int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT entity_id, COUNT(*) AS count
		FROM pipeline_links
		GROUP BY entity_id`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var entityID uuid.UUID
		var count int
		if err := rows.Scan(&entityID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan link count: %w", err)
		}
		counts[entityID] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating link counts: %w", err)
	}

	return counts, nil
}
