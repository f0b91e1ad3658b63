package matching

import (
	"strings"

	"github.com/google/uuid"

	"github.com/atelierops/pipeline-engine/pkg/models"
)

// Index is an in-memory view of the canonical set used by the matcher:
// normalized codes, approved aliases, and per-entity link counts. It is
// built once per matching pass from repository reads and is immutable
// afterwards, so reconciliation can share one index across all records.
type Index struct {
	byCode     map[string][]*models.CanonicalEntity
	byAlias    map[string]*models.CanonicalEntity
	codeYears  map[uuid.UUID]int
	linkCounts map[uuid.UUID]int
	entities   []*models.CanonicalEntity
}

// NewIndex builds an index over the given entities, approved aliases, and
// current per-entity link counts. Entities whose code does not parse as a
// project code are still reachable through the text-evidence path.
func NewIndex(entities []*models.CanonicalEntity, aliases []*models.EntityAlias, linkCounts map[uuid.UUID]int) *Index {
	idx := &Index{
		byCode:     make(map[string][]*models.CanonicalEntity),
		byAlias:    make(map[string]*models.CanonicalEntity),
		codeYears:  make(map[uuid.UUID]int),
		linkCounts: linkCounts,
		entities:   entities,
	}
	if idx.linkCounts == nil {
		idx.linkCounts = make(map[uuid.UUID]int)
	}

	byID := make(map[uuid.UUID]*models.CanonicalEntity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
		normalized, year, ok := NormalizeCode(e.Code)
		if !ok {
			continue
		}
		idx.byCode[normalized] = append(idx.byCode[normalized], e)
		if e.Year != 0 {
			year = e.Year
		}
		idx.codeYears[e.ID] = year
	}

	for _, a := range aliases {
		entity, ok := byID[a.EntityID]
		if !ok {
			continue
		}
		idx.byAlias[normalizeAlias(a.Alias)] = entity
	}

	return idx
}

// Entities returns all entities in the index.
func (idx *Index) Entities() []*models.CanonicalEntity {
	return idx.entities
}

// LookupCode returns entities whose normalized canonical code equals the
// normalized candidate code.
func (idx *Index) LookupCode(code string) []*models.CanonicalEntity {
	normalized, _, ok := NormalizeCode(code)
	if !ok {
		return nil
	}
	return idx.byCode[normalized]
}

// LookupAlias resolves a string through the approved alias table.
func (idx *Index) LookupAlias(alias string) (*models.CanonicalEntity, bool) {
	e, ok := idx.byAlias[normalizeAlias(alias)]
	return e, ok
}

// CodeYear returns the two-digit year recorded for an entity's code, or 0.
func (idx *Index) CodeYear(id uuid.UUID) int {
	return idx.codeYears[id]
}

// LinkCount returns the number of existing links targeting an entity.
func (idx *Index) LinkCount(id uuid.UUID) int {
	return idx.linkCounts[id]
}

// normalizeAlias folds an alias string for table lookups: uppercase, all
// whitespace removed. Must agree with Suggestion.ComputeDedupeKey for
// project_alias payloads.
func normalizeAlias(alias string) string {
	return strings.ToUpper(strings.Join(strings.Fields(alias), ""))
}
