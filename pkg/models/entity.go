package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity kind constants.
const (
	EntityKindProject  = "project"
	EntityKindProposal = "proposal"
	EntityKindContact  = "contact"
)

// CanonicalEntity is an authoritative project, proposal, or contact record
// that source records attach to. Rows are owned by the business-data import
// process; the linking subsystem only inserts new ones when an approved
// new_contact suggestion materializes.
type CanonicalEntity struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	// Year is the two-digit year prefix embedded in the canonical code
	// (e.g. 25 for "25 BK-017"). Zero when the code carries no year.
	Year      int        `json:"year,omitempty"`
	Email     string     `json:"email,omitempty"`
	Company   string     `json:"company,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// EntityAlias maps an alternate identifier string to a canonical entity.
// Rows are created only by approving a project_alias suggestion.
type EntityAlias struct {
	ID        uuid.UUID `json:"id"`
	Alias     string    `json:"alias"`
	EntityID  uuid.UUID `json:"entity_id"`
	CreatedAt time.Time `json:"created_at"`
}
