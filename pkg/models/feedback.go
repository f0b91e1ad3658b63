package models

import (
	"time"

	"github.com/google/uuid"
)

// Feature type constants for feedback entries.
const (
	FeedbackFeatureLink       = "link"
	FeedbackFeatureSuggestion = "suggestion"
)

// Issue type constants. Null issue type means the automated output was
// accepted as-is.
const (
	IssueIncorrectEntity = "incorrect_entity"
	IssueWrongEntity     = "wrong_entity"
)

// FeedbackEntry is an append-only audit record of a human accept, reject, or
// correction decision. Entries are never updated or deleted; they are the
// system's memory of correctness over time and the substrate for tuning
// match thresholds. Each entry is written in the same transaction as the
// mutation it describes.
type FeedbackEntry struct {
	ID            uuid.UUID `json:"id"`
	FeatureType   string    `json:"feature_type"`
	FeatureID     uuid.UUID `json:"feature_id"`
	Helpful       bool      `json:"helpful"`
	IssueType     *string   `json:"issue_type,omitempty"`
	ExpectedValue *string   `json:"expected_value,omitempty"`
	CurrentValue  *string   `json:"current_value,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Actor         string    `json:"actor"`
	CreatedAt     time.Time `json:"created_at"`
}
