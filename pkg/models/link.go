package models

import (
	"time"

	"github.com/google/uuid"
)

// Link method constants. These represent HOW a link was derived.
const (
	MethodExactCode    = "exact_code"
	MethodAliasMatch   = "alias_match"
	MethodTextEvidence = "text_evidence"
	MethodManual       = "manual"
)

// AutoCommitThreshold is the minimum confidence at which a non-manual match
// may be committed as a link. Matches below it are routed to the suggestion
// queue or left for human attention.
const AutoCommitThreshold = 0.85

// LowConfidenceThreshold marks links that the review UI surfaces for
// human attention.
const LowConfidenceThreshold = 0.70

// Link is the current relationship from a source record to a canonical
// entity. At most one row exists per source record at any time; replacing a
// link is delete-then-insert, so history lives in the feedback log, not here.
type Link struct {
	ID             uuid.UUID `json:"id"`
	SourceRecordID uuid.UUID `json:"source_record_id"`
	EntityID       uuid.UUID `json:"entity_id"`
	Confidence     float64   `json:"confidence"`
	Method         string    `json:"method"`
	Evidence       string    `json:"evidence,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by"`
}

// IsManual reports whether the link was placed or confirmed by a human.
// Manual links can only be superseded by another manual action.
func (l *Link) IsManual() bool {
	return l.Method == MethodManual
}

// ValidMethod reports whether method is one of the known link methods.
func ValidMethod(method string) bool {
	switch method {
	case MethodExactCode, MethodAliasMatch, MethodTextEvidence, MethodManual:
		return true
	default:
		return false
	}
}
