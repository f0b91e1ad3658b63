package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/apperrors"
	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
	"github.com/atelierops/pipeline-engine/pkg/services"
)

// IngestRequest is the body of POST /api/records.
type IngestRequest struct {
	Kind          string `json:"kind"`
	RawIdentifier string `json:"raw_identifier"`
	Subject       string `json:"subject,omitempty"`
	Description   string `json:"description,omitempty"`
	RecordDate    string `json:"record_date,omitempty"` // RFC 3339 or YYYY-MM-DD
}

// RelinkRequest is the body of POST /api/records/{rid}/relink.
type RelinkRequest struct {
	EntityID uuid.UUID `json:"entity_id"`
	Reason   string    `json:"reason"`
}

// UnlinkRequest is the body of POST /api/records/{rid}/unlink.
type UnlinkRequest struct {
	Reason string `json:"reason"`
}

// RecordListResponse for GET /api/records.
type RecordListResponse struct {
	Records    []*models.RecordWithLink `json:"records"`
	TotalCount int                      `json:"total_count"`
}

// RecordHandler handles source record review and correction requests.
type RecordHandler struct {
	linkService   services.LinkService
	ingestService services.IngestService
	logger        *zap.Logger
}

// NewRecordHandler creates a new record handler.
func NewRecordHandler(linkService services.LinkService, ingestService services.IngestService, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{
		linkService:   linkService,
		ingestService: ingestService,
		logger:        logger,
	}
}

// RegisterRoutes registers the record handler's routes on the given mux.
func (h *RecordHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/records", h.List)
	mux.HandleFunc("POST /api/records", h.Ingest)
	mux.HandleFunc("GET /api/records/{rid}", h.Detail)
	mux.HandleFunc("POST /api/records/{rid}/link", h.Link)
	mux.HandleFunc("POST /api/records/{rid}/confirm", h.Confirm)
	mux.HandleFunc("POST /api/records/{rid}/relink", h.Relink)
	mux.HandleFunc("POST /api/records/{rid}/unlink", h.Unlink)
}

// List handles GET /api/records.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = repositories.FilterAll
	}
	limit, offset := parsePagination(r)

	records, err := h.linkService.ListRecords(r.Context(), filter, limit, offset)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if records == nil {
		records = []*models.RecordWithLink{}
	}

	response := ApiResponse{Success: true, Data: RecordListResponse{Records: records, TotalCount: len(records)}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode record list", zap.Error(err))
	}
}

// Detail handles GET /api/records/{rid}.
func (h *RecordHandler) Detail(w http.ResponseWriter, r *http.Request) {
	recordID, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}

	detail, err := h.linkService.GetRecordDetail(r.Context(), recordID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: detail}); err != nil {
		h.logger.Error("Failed to encode record detail", zap.Error(err))
	}
}

// Ingest handles POST /api/records.
func (h *RecordHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_body", "Request body must be valid JSON")
		return
	}
	if req.RawIdentifier == "" && req.Subject == "" && req.Description == "" {
		writeBadRequest(w, h.logger, "empty_record", "Record needs an identifier or text content")
		return
	}

	recordDate, err := parseRecordDate(req.RecordDate)
	if err != nil {
		writeBadRequest(w, h.logger, "invalid_record_date", "record_date must be RFC 3339 or YYYY-MM-DD")
		return
	}

	outcome, err := h.ingestService.IngestRecord(r.Context(), &models.SourceRecord{
		Kind:          req.Kind,
		RawIdentifier: req.RawIdentifier,
		Subject:       req.Subject,
		Description:   req.Description,
		RecordDate:    recordDate,
	})
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := ApiResponse{Success: true, Data: outcome, Message: "record ingested: " + outcome.Outcome}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to encode ingest response", zap.Error(err))
	}
}

// Link handles POST /api/records/{rid}/link, re-running the automated pass.
func (h *RecordHandler) Link(w http.ResponseWriter, r *http.Request) {
	recordID, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}

	outcome, err := h.ingestService.LinkRecord(r.Context(), recordID)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := ApiResponse{Success: true, Data: outcome, Message: "matching pass finished: " + outcome.Outcome}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode link response", zap.Error(err))
	}
}

// Confirm handles POST /api/records/{rid}/confirm.
func (h *RecordHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	recordID, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	link, err := h.linkService.ConfirmLink(r.Context(), recordID, actor)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := MutationResponse{Success: true, Message: "link confirmed", TrainingLogged: true, Data: link}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode confirm response", zap.Error(err))
	}
}

// Relink handles POST /api/records/{rid}/relink.
func (h *RecordHandler) Relink(w http.ResponseWriter, r *http.Request) {
	recordID, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req RelinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_body", "Request body must be valid JSON")
		return
	}
	if req.EntityID == uuid.Nil {
		writeBadRequest(w, h.logger, "missing_entity_id", "entity_id is required")
		return
	}

	link, err := h.linkService.Relink(r.Context(), recordID, req.EntityID, req.Reason, actor)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := MutationResponse{Success: true, Message: "record relinked", TrainingLogged: true, Data: link}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode relink response", zap.Error(err))
	}
}

// Unlink handles POST /api/records/{rid}/unlink.
func (h *RecordHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	recordID, ok := ParseRecordID(w, r, h.logger)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req UnlinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_body", "Request body must be valid JSON")
		return
	}

	if err := h.linkService.Unlink(r.Context(), recordID, req.Reason, actor); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := MutationResponse{Success: true, Message: "record unlinked", TrainingLogged: true}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode unlink response", zap.Error(err))
	}
}

// requireActor resolves the acting identity for a mutation. Mutations without
// an actor are rejected; there is no anonymous training data.
func requireActor(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	actor, ok := models.GetActor(r.Context())
	if !ok {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_actor", apperrors.ErrMissingActor.Error()); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return actor, true
}

func writeBadRequest(w http.ResponseWriter, logger *zap.Logger, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// parseRecordDate accepts RFC 3339 timestamps or bare dates.
func parseRecordDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
