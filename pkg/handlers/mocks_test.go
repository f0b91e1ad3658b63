package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/services"
)

// mockLinkService lets each test control exactly one code path.
type mockLinkService struct {
	SetLinkFunc         func(ctx context.Context, sourceID, entityID uuid.UUID, confidence float64, method, evidence, actor string) (*models.Link, error)
	ConfirmLinkFunc     func(ctx context.Context, sourceID uuid.UUID, actor string) (*models.Link, error)
	RelinkFunc          func(ctx context.Context, sourceID, newEntityID uuid.UUID, reason, actor string) (*models.Link, error)
	UnlinkFunc          func(ctx context.Context, sourceID uuid.UUID, reason, actor string) error
	ListRecordsFunc     func(ctx context.Context, filter string, limit, offset int) ([]*models.RecordWithLink, error)
	GetRecordDetailFunc func(ctx context.Context, sourceID uuid.UUID) (*services.RecordDetail, error)
}

func (m *mockLinkService) SetLink(ctx context.Context, sourceID, entityID uuid.UUID, confidence float64, method, evidence, actor string) (*models.Link, error) {
	return m.SetLinkFunc(ctx, sourceID, entityID, confidence, method, evidence, actor)
}

func (m *mockLinkService) ConfirmLink(ctx context.Context, sourceID uuid.UUID, actor string) (*models.Link, error) {
	return m.ConfirmLinkFunc(ctx, sourceID, actor)
}

func (m *mockLinkService) Relink(ctx context.Context, sourceID, newEntityID uuid.UUID, reason, actor string) (*models.Link, error) {
	return m.RelinkFunc(ctx, sourceID, newEntityID, reason, actor)
}

func (m *mockLinkService) Unlink(ctx context.Context, sourceID uuid.UUID, reason, actor string) error {
	return m.UnlinkFunc(ctx, sourceID, reason, actor)
}

func (m *mockLinkService) ListRecords(ctx context.Context, filter string, limit, offset int) ([]*models.RecordWithLink, error) {
	return m.ListRecordsFunc(ctx, filter, limit, offset)
}

func (m *mockLinkService) GetRecordDetail(ctx context.Context, sourceID uuid.UUID) (*services.RecordDetail, error) {
	return m.GetRecordDetailFunc(ctx, sourceID)
}

type mockIngestService struct {
	IngestRecordFunc func(ctx context.Context, record *models.SourceRecord) (*services.LinkOutcome, error)
	LinkRecordFunc   func(ctx context.Context, sourceID uuid.UUID) (*services.LinkOutcome, error)
}

func (m *mockIngestService) IngestRecord(ctx context.Context, record *models.SourceRecord) (*services.LinkOutcome, error) {
	return m.IngestRecordFunc(ctx, record)
}

func (m *mockIngestService) LinkRecord(ctx context.Context, sourceID uuid.UUID) (*services.LinkOutcome, error) {
	return m.LinkRecordFunc(ctx, sourceID)
}

type mockSuggestionService struct {
	EnqueueFunc     func(ctx context.Context, suggestion *models.Suggestion) (*models.Suggestion, error)
	ApproveFunc     func(ctx context.Context, id uuid.UUID, actor string) (*models.Suggestion, error)
	RejectFunc      func(ctx context.Context, id uuid.UUID, reason, actor string) (*models.Suggestion, error)
	BulkApproveFunc func(ctx context.Context, minConfidence float64, actor string) (*models.BulkApproveResult, error)
	ListFunc        func(ctx context.Context, kind string, minConfidence float64, limit, offset int) ([]*models.Suggestion, error)
}

func (m *mockSuggestionService) Enqueue(ctx context.Context, suggestion *models.Suggestion) (*models.Suggestion, error) {
	return m.EnqueueFunc(ctx, suggestion)
}

func (m *mockSuggestionService) Approve(ctx context.Context, id uuid.UUID, actor string) (*models.Suggestion, error) {
	return m.ApproveFunc(ctx, id, actor)
}

func (m *mockSuggestionService) Reject(ctx context.Context, id uuid.UUID, reason, actor string) (*models.Suggestion, error) {
	return m.RejectFunc(ctx, id, reason, actor)
}

func (m *mockSuggestionService) BulkApprove(ctx context.Context, minConfidence float64, actor string) (*models.BulkApproveResult, error) {
	return m.BulkApproveFunc(ctx, minConfidence, actor)
}

func (m *mockSuggestionService) List(ctx context.Context, kind string, minConfidence float64, limit, offset int) ([]*models.Suggestion, error) {
	return m.ListFunc(ctx, kind, minConfidence, limit, offset)
}

// doRequest runs a request through the mux and returns the recorder. An
// empty actor leaves the context bare, matching an unauthenticated caller.
func doRequest(t *testing.T, mux *http.ServeMux, method, target, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if actor != "" {
		req = req.WithContext(models.WithActor(req.Context(), actor))
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}
