package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/services"
)

// RejectRequest is the body of POST /api/suggestions/{sid}/reject.
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BulkApproveRequest is the body of POST /api/suggestions/bulk-approve.
type BulkApproveRequest struct {
	MinConfidence float64 `json:"min_confidence"`
}

// SuggestionListResponse for GET /api/suggestions.
type SuggestionListResponse struct {
	Suggestions []*models.Suggestion `json:"suggestions"`
	TotalCount  int                  `json:"total_count"`
}

// SuggestionHandler handles suggestion queue review requests.
type SuggestionHandler struct {
	suggestionService services.SuggestionService
	logger            *zap.Logger
}

// NewSuggestionHandler creates a new suggestion handler.
func NewSuggestionHandler(suggestionService services.SuggestionService, logger *zap.Logger) *SuggestionHandler {
	return &SuggestionHandler{
		suggestionService: suggestionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the suggestion handler's routes on the given mux.
func (h *SuggestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/suggestions", h.List)
	mux.HandleFunc("POST /api/suggestions/{sid}/approve", h.Approve)
	mux.HandleFunc("POST /api/suggestions/{sid}/reject", h.Reject)
	mux.HandleFunc("POST /api/suggestions/bulk-approve", h.BulkApprove)
}

// List handles GET /api/suggestions.
func (h *SuggestionHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	minConfidence := 0.0
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeBadRequest(w, h.logger, "invalid_min_confidence", "min_confidence must be a number")
			return
		}
		minConfidence = parsed
	}
	limit, offset := parsePagination(r)

	suggestions, err := h.suggestionService.List(r.Context(), kind, minConfidence, limit, offset)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if suggestions == nil {
		suggestions = []*models.Suggestion{}
	}

	response := ApiResponse{Success: true, Data: SuggestionListResponse{Suggestions: suggestions, TotalCount: len(suggestions)}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode suggestion list", zap.Error(err))
	}
}

// Approve handles POST /api/suggestions/{sid}/approve.
func (h *SuggestionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	suggestionID, ok := ParseSuggestionID(w, r, h.logger)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	suggestion, err := h.suggestionService.Approve(r.Context(), suggestionID, actor)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := MutationResponse{Success: true, Message: "suggestion approved", TrainingLogged: true, Data: suggestion}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode approve response", zap.Error(err))
	}
}

// Reject handles POST /api/suggestions/{sid}/reject.
func (h *SuggestionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	suggestionID, ok := ParseSuggestionID(w, r, h.logger)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req RejectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, h.logger, "invalid_body", "Request body must be valid JSON")
			return
		}
	}

	suggestion, err := h.suggestionService.Reject(r.Context(), suggestionID, req.Reason, actor)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := MutationResponse{Success: true, Message: "suggestion rejected", TrainingLogged: true, Data: suggestion}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode reject response", zap.Error(err))
	}
}

// BulkApprove handles POST /api/suggestions/bulk-approve.
func (h *SuggestionHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.logger)
	if !ok {
		return
	}

	var req BulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "invalid_body", "Request body must be valid JSON")
		return
	}

	result, err := h.suggestionService.BulkApprove(r.Context(), req.MinConfidence, actor)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	response := MutationResponse{Success: true, Message: "bulk approve finished", TrainingLogged: true, Data: result}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode bulk approve response", zap.Error(err))
	}
}
