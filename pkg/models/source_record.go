// Package models contains domain types for pipeline-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Source kind constants. These describe where a source record came from.
const (
	SourceKindInvoice = "invoice"
	SourceKindEmail   = "email"
	SourceKindOther   = "other"
)

// ValidSourceKind reports whether kind is one of the known source kinds.
func ValidSourceKind(kind string) bool {
	switch kind {
	case SourceKindInvoice, SourceKindEmail, SourceKindOther:
		return true
	}
	return false
}

// SourceRecord is an externally-identified business document (invoice, email)
// awaiting linkage to a canonical entity. Records are immutable once ingested;
// the linking subsystem never modifies them.
type SourceRecord struct {
	ID            uuid.UUID `json:"id"`
	Kind          string    `json:"kind"`
	RawIdentifier string    `json:"raw_identifier"`
	Subject       string    `json:"subject,omitempty"`
	Description   string    `json:"description,omitempty"`
	RecordDate    time.Time `json:"record_date"`
	CreatedAt     time.Time `json:"created_at"`
}

// EvidenceFields returns the free-text fields used for text-evidence matching.
func (r *SourceRecord) EvidenceFields() []string {
	return []string{r.Subject, r.Description}
}

// RecordWithLink pairs a source record with its current link, if any.
type RecordWithLink struct {
	Record *SourceRecord `json:"record"`
	Link   *Link         `json:"link,omitempty"`
}

