package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/models"
)

// AliasRepository provides data access for approved entity aliases. Rows are
// only written by approving a project_alias suggestion.
type AliasRepository interface {
	// Create inserts an alias mapping.
	Create(ctx context.Context, alias *models.EntityAlias) error

	// ListAll returns every alias, ordered by alias string.
	ListAll(ctx context.Context) ([]*models.EntityAlias, error)
}

type aliasRepository struct{}

// NewAliasRepository creates a new AliasRepository.
func NewAliasRepository() AliasRepository {
	return &aliasRepository{}
}

var _ AliasRepository = (*aliasRepository)(nil)

func (r *aliasRepository) Create(ctx context.Context, alias *models.EntityAlias) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO pipeline_entity_aliases (alias, entity_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := scope.Conn.QueryRow(ctx, query, alias.Alias, alias.EntityID, time.Now()).
		Scan(&alias.ID, &alias.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alias: %w", err)
	}

	return nil
}

func (r *aliasRepository) ListAll(ctx context.Context) ([]*models.EntityAlias, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, alias, entity_id, created_at
		FROM pipeline_entity_aliases
		ORDER BY alias`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	var out []*models.EntityAlias
	for rows.Next() {
		var a models.EntityAlias
		if err := rows.Scan(&a.ID, &a.Alias, &a.EntityID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		out = append(out, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aliases: %w", err)
	}

	return out, nil
}
