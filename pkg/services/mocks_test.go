package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
)

// stubRunner satisfies database.Runner without a real pool. The fakes below
// ignore connection scope, so pass-through contexts are enough.
type stubRunner struct{}

func (stubRunner) WithPool(ctx context.Context) context.Context {
	return ctx
}

func (stubRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memSourceRepo struct {
	records map[uuid.UUID]*models.SourceRecord
	links   *memLinkRepo
}

func newMemSourceRepo(links *memLinkRepo) *memSourceRepo {
	return &memSourceRepo{records: make(map[uuid.UUID]*models.SourceRecord), links: links}
}

func (r *memSourceRepo) Create(_ context.Context, record *models.SourceRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()
	r.records[record.ID] = record
	return nil
}

func (r *memSourceRepo) GetByID(_ context.Context, id uuid.UUID) (*models.SourceRecord, error) {
	return r.records[id], nil
}

func (r *memSourceRepo) List(_ context.Context, filter string, limit, offset int) ([]*models.RecordWithLink, error) {
	var out []*models.RecordWithLink
	for _, rec := range r.records {
		link := r.links.bySource[rec.ID]
		switch filter {
		case repositories.FilterUnlinked:
			if link != nil {
				continue
			}
		case repositories.FilterLowConfidence:
			if link == nil || link.Confidence >= models.LowConfidenceThreshold {
				continue
			}
		}
		out = append(out, &models.RecordWithLink{Record: rec, Link: link})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Record.ID.String() < out[j].Record.ID.String()
	})
	return out, nil
}

func (r *memSourceRepo) ListLinked(_ context.Context) ([]*models.RecordWithLink, error) {
	var out []*models.RecordWithLink
	for _, rec := range r.records {
		if link := r.links.bySource[rec.ID]; link != nil {
			out = append(out, &models.RecordWithLink{Record: rec, Link: link})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Record.ID.String() < out[j].Record.ID.String()
	})
	return out, nil
}

type memEntityRepo struct {
	entities map[uuid.UUID]*models.CanonicalEntity
}

func newMemEntityRepo() *memEntityRepo {
	return &memEntityRepo{entities: make(map[uuid.UUID]*models.CanonicalEntity)}
}

func (r *memEntityRepo) Create(_ context.Context, entity *models.CanonicalEntity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	r.entities[entity.ID] = entity
	return nil
}

func (r *memEntityRepo) GetByID(_ context.Context, id uuid.UUID) (*models.CanonicalEntity, error) {
	return r.entities[id], nil
}

func (r *memEntityRepo) ListAll(_ context.Context) ([]*models.CanonicalEntity, error) {
	out := make([]*models.CanonicalEntity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type memAliasRepo struct {
	aliases []*models.EntityAlias
}

func newMemAliasRepo() *memAliasRepo {
	return &memAliasRepo{}
}

func (r *memAliasRepo) Create(_ context.Context, alias *models.EntityAlias) error {
	for _, a := range r.aliases {
		if a.Alias == alias.Alias {
			return fmt.Errorf("duplicate alias %q", alias.Alias)
		}
	}
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	r.aliases = append(r.aliases, alias)
	return nil
}

func (r *memAliasRepo) ListAll(_ context.Context) ([]*models.EntityAlias, error) {
	return r.aliases, nil
}

type memLinkRepo struct {
	bySource map[uuid.UUID]*models.Link
}

func newMemLinkRepo() *memLinkRepo {
	return &memLinkRepo{bySource: make(map[uuid.UUID]*models.Link)}
}

func (r *memLinkRepo) Insert(_ context.Context, link *models.Link) error {
	if _, exists := r.bySource[link.SourceRecordID]; exists {
		return fmt.Errorf("source %s already linked", link.SourceRecordID)
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	link.CreatedAt = time.Now()
	r.bySource[link.SourceRecordID] = link
	return nil
}

func (r *memLinkRepo) GetBySourceID(_ context.Context, sourceID uuid.UUID) (*models.Link, error) {
	return r.bySource[sourceID], nil
}

func (r *memLinkRepo) Delete(_ context.Context, sourceID uuid.UUID) (bool, error) {
	if _, ok := r.bySource[sourceID]; !ok {
		return false, nil
	}
	delete(r.bySource, sourceID)
	return true, nil
}

func (r *memLinkRepo) CountByEntity(_ context.Context) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	for _, link := range r.bySource {
		counts[link.EntityID]++
	}
	return counts, nil
}

type memSuggestionRepo struct {
	suggestions map[uuid.UUID]*models.Suggestion
}

func newMemSuggestionRepo() *memSuggestionRepo {
	return &memSuggestionRepo{suggestions: make(map[uuid.UUID]*models.Suggestion)}
}

func (r *memSuggestionRepo) Create(_ context.Context, suggestion *models.Suggestion) error {
	for _, s := range r.suggestions {
		if s.Status == models.SuggestionStatusPending &&
			s.Kind == suggestion.Kind && s.DedupeKey == suggestion.DedupeKey {
			return fmt.Errorf("pending suggestion with dedupe key %q exists", suggestion.DedupeKey)
		}
	}
	if suggestion.ID == uuid.Nil {
		suggestion.ID = uuid.New()
	}
	suggestion.Status = models.SuggestionStatusPending
	suggestion.CreatedAt = time.Now()
	r.suggestions[suggestion.ID] = suggestion
	return nil
}

func (r *memSuggestionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Suggestion, error) {
	s, ok := r.suggestions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *memSuggestionRepo) FindPendingByDedupeKey(_ context.Context, kind, dedupeKey string) (*models.Suggestion, error) {
	for _, s := range r.suggestions {
		if s.Status == models.SuggestionStatusPending && s.Kind == kind && s.DedupeKey == dedupeKey {
			return s, nil
		}
	}
	return nil, nil
}

func (r *memSuggestionRepo) ListPending(_ context.Context, kind string, minConfidence float64, limit, offset int) ([]*models.Suggestion, error) {
	var out []*models.Suggestion
	for _, s := range r.suggestions {
		if s.Status != models.SuggestionStatusPending {
			continue
		}
		if kind != "" && s.Kind != kind {
			continue
		}
		if s.Confidence < minConfidence {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memSuggestionRepo) Resolve(_ context.Context, id uuid.UUID, status, actor string) (bool, error) {
	s, ok := r.suggestions[id]
	if !ok || s.Status != models.SuggestionStatusPending {
		return false, nil
	}
	now := time.Now()
	s.Status = status
	s.ResolvedAt = &now
	s.ResolvedBy = &actor
	return true, nil
}

type memFeedbackRepo struct {
	entries []*models.FeedbackEntry
}

func newMemFeedbackRepo() *memFeedbackRepo {
	return &memFeedbackRepo{}
}

func (r *memFeedbackRepo) Create(_ context.Context, entry *models.FeedbackEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memFeedbackRepo) ListByFeature(_ context.Context, featureType string, featureID uuid.UUID) ([]*models.FeedbackEntry, error) {
	var out []*models.FeedbackEntry
	for _, e := range r.entries {
		if e.FeatureType == featureType && e.FeatureID == featureID {
			out = append(out, e)
		}
	}
	return out, nil
}
