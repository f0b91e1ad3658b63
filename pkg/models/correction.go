package models

import "github.com/google/uuid"

// ProposedCorrection is one row of a reconciliation report: a linked source
// record whose re-derived best match disagrees with the current link. It is
// strictly a review artifact; nothing in the system applies corrections
// automatically. A human confirms each one via relink.
type ProposedCorrection struct {
	SourceRecordID      uuid.UUID `json:"source_record_id" yaml:"source_record_id"`
	RawIdentifier       string    `json:"raw_identifier" yaml:"raw_identifier"`
	CurrentEntityID     uuid.UUID `json:"current_entity_id" yaml:"current_entity_id"`
	CurrentEntityCode   string    `json:"current_entity_code" yaml:"current_entity_code"`
	CurrentConfidence   float64   `json:"current_confidence" yaml:"current_confidence"`
	SuggestedEntityID   uuid.UUID `json:"suggested_entity_id" yaml:"suggested_entity_id"`
	SuggestedEntityCode string    `json:"suggested_entity_code" yaml:"suggested_entity_code"`
	SuggestedConfidence float64   `json:"suggested_confidence" yaml:"suggested_confidence"`
	SuggestedMethod     string    `json:"suggested_method" yaml:"suggested_method"`
	Evidence            string    `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// ReconciliationReport is the full output of one reconciliation batch run.
// The artifact carries no timestamps so that two runs over identical data
// serialize to identical bytes.
type ReconciliationReport struct {
	RecordsScanned int                  `json:"records_scanned" yaml:"records_scanned"`
	Corrections    []ProposedCorrection `json:"corrections" yaml:"corrections"`
}
