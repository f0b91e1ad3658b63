package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Suggestion kind constants.
const (
	SuggestionKindNewContact   = "new_contact"
	SuggestionKindProjectAlias = "project_alias"
)

// Suggestion status constants. pending is the only non-terminal state; a
// rejected suggestion is never resurrected, a fresh one is created instead.
const (
	SuggestionStatusPending  = "pending"
	SuggestionStatusApproved = "approved"
	SuggestionStatusRejected = "rejected"
)

// Suggestion is a proposed mutation awaiting human disposition: either a new
// contact entity or a new code-to-alias mapping.
type Suggestion struct {
	ID         uuid.UUID         `json:"id"`
	Kind       string            `json:"kind"`
	Payload    SuggestionPayload `json:"payload"`
	DedupeKey  string            `json:"dedupe_key"`
	Confidence float64           `json:"confidence"`
	Evidence   string            `json:"evidence,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy *string           `json:"resolved_by,omitempty"`
}

// SuggestionPayload is the tagged union carried by a suggestion. Exactly one
// variant is populated, selected by the suggestion's Kind.
type SuggestionPayload struct {
	NewContact   *NewContactPayload   `json:"new_contact,omitempty"`
	ProjectAlias *ProjectAliasPayload `json:"project_alias,omitempty"`
}

// NewContactPayload proposes a new contact entity.
type NewContactPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Role    string `json:"role,omitempty"`
}

// ProjectAliasPayload proposes mapping an alias string to an existing entity.
type ProjectAliasPayload struct {
	Alias    string    `json:"alias"`
	EntityID uuid.UUID `json:"entity_id"`
}

// Validate checks that the payload variant matches the kind and that the
// variant's required fields are present.
func (s *Suggestion) Validate() error {
	switch s.Kind {
	case SuggestionKindNewContact:
		p := s.Payload.NewContact
		if p == nil {
			return fmt.Errorf("new_contact suggestion missing payload")
		}
		if p.Name == "" || p.Email == "" {
			return fmt.Errorf("new_contact suggestion requires name and email")
		}
	case SuggestionKindProjectAlias:
		p := s.Payload.ProjectAlias
		if p == nil {
			return fmt.Errorf("project_alias suggestion missing payload")
		}
		if p.Alias == "" || p.EntityID == uuid.Nil {
			return fmt.Errorf("project_alias suggestion requires alias and entity_id")
		}
	default:
		return fmt.Errorf("unknown suggestion kind %q", s.Kind)
	}
	return nil
}

// ComputeDedupeKey derives the normalized key used to suppress duplicate
// pending suggestions: the lower-cased email for new_contact, the normalized
// alias string for project_alias.
func (s *Suggestion) ComputeDedupeKey() string {
	switch s.Kind {
	case SuggestionKindNewContact:
		if s.Payload.NewContact != nil {
			return strings.ToLower(strings.TrimSpace(s.Payload.NewContact.Email))
		}
	case SuggestionKindProjectAlias:
		if s.Payload.ProjectAlias != nil {
			return strings.ToUpper(strings.Join(strings.Fields(s.Payload.ProjectAlias.Alias), ""))
		}
	}
	return ""
}

// IsTerminal reports whether the suggestion has reached a final status.
func (s *Suggestion) IsTerminal() bool {
	return s.Status == SuggestionStatusApproved || s.Status == SuggestionStatusRejected
}

// BulkApproveResult reports the per-item outcome counts of a bulk approval.
// Partial success is expected and reported, never raised as a hard failure.
type BulkApproveResult struct {
	Approved int `json:"approved"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}
