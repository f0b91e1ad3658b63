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

// EntityRepository provides data access for canonical entities. The business
// data import owns these rows; the linking subsystem only inserts contact
// entities when an approved new_contact suggestion materializes.
type EntityRepository interface {
	// Create inserts a canonical entity.
	Create(ctx context.Context, entity *models.CanonicalEntity) error

	// GetByID returns a single entity, or nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.CanonicalEntity, error)

	// ListAll returns every canonical entity, ordered by code.
	ListAll(ctx context.Context) ([]*models.CanonicalEntity, error)
}

type entityRepository struct{}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository() EntityRepository {
	return &entityRepository{}
}

var _ EntityRepository = (*entityRepository)(nil)

func (r *entityRepository) Create(ctx context.Context, entity *models.CanonicalEntity) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO pipeline_entities (kind, code, display_name, year, email, company, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := scope.Conn.QueryRow(ctx, query,
		entity.Kind,
		entity.Code,
		entity.DisplayName,
		entity.Year,
		entity.Email,
		entity.Company,
		time.Now(),
	).Scan(&entity.ID, &entity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}

	return nil
}

func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CanonicalEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, kind, code, display_name, year, email, company, created_at
		FROM pipeline_entities
		WHERE id = $1`

	var e models.CanonicalEntity
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Kind, &e.Code, &e.DisplayName, &e.Year, &e.Email, &e.Company, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	return &e, nil
}

func (r *entityRepository) ListAll(ctx context.Context) ([]*models.CanonicalEntity, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, kind, code, display_name, year, email, company, created_at
		FROM pipeline_entities
		ORDER BY code`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []*models.CanonicalEntity
	for rows.Next() {
		var e models.CanonicalEntity
		if err := rows.Scan(&e.ID, &e.Kind, &e.Code, &e.DisplayName, &e.Year, &e.Email, &e.Company, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out = append(out, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	return out, nil
}
