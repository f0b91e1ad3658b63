//go:build integration

package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
	"github.com/atelierops/pipeline-engine/pkg/testhelpers"
)

func setup(t *testing.T) context.Context {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	testhelpers.TruncateAll(t, testDB.DB)
	return testDB.DB.WithPool(context.Background())
}

func seedEntity(t *testing.T, ctx context.Context, code, name string) *models.CanonicalEntity {
	t.Helper()
	entity := &models.CanonicalEntity{
		Kind:        models.EntityKindProject,
		Code:        code,
		DisplayName: name,
		Year:        25,
	}
	require.NoError(t, repositories.NewEntityRepository().Create(ctx, entity))
	return entity
}

func seedRecord(t *testing.T, ctx context.Context, rawIdentifier string) *models.SourceRecord {
	t.Helper()
	record := &models.SourceRecord{
		Kind:          models.SourceKindInvoice,
		RawIdentifier: rawIdentifier,
		RecordDate:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repositories.NewSourceRecordRepository().Create(ctx, record))
	return record
}

func TestSourceRecordRepository_Integration(t *testing.T) {
	ctx := setup(t)
	repo := repositories.NewSourceRecordRepository()

	record := seedRecord(t, ctx, "I25-017")
	require.NotEqual(t, uuid.Nil, record.ID)

	t.Run("GetByID round trips", func(t *testing.T) {
		got, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "I25-017", got.RawIdentifier)
		assert.Equal(t, models.SourceKindInvoice, got.Kind)
	})

	t.Run("GetByID returns nil for unknown id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unlinked filter excludes linked records", func(t *testing.T) {
		entity := seedEntity(t, ctx, "25 BK-017", "Harbor House")
		linked := seedRecord(t, ctx, "I25-018")
		require.NoError(t, repositories.NewLinkRepository().Insert(ctx, &models.Link{
			SourceRecordID: linked.ID,
			EntityID:       entity.ID,
			Confidence:     1.0,
			Method:         models.MethodExactCode,
			CreatedBy:      models.ActorMatcher,
		}))

		rows, err := repo.List(ctx, repositories.FilterUnlinked, 50, 0)
		require.NoError(t, err)
		for _, row := range rows {
			assert.Nil(t, row.Link)
			assert.NotEqual(t, linked.ID, row.Record.ID)
		}
	})

	t.Run("low confidence filter catches weak automated links", func(t *testing.T) {
		entity := seedEntity(t, ctx, "25 BK-020", "Beach Resort")
		weak := seedRecord(t, ctx, "RE: schedule question")
		require.NoError(t, repositories.NewLinkRepository().Insert(ctx, &models.Link{
			SourceRecordID: weak.ID,
			EntityID:       entity.ID,
			Confidence:     0.45,
			Method:         models.MethodTextEvidence,
			CreatedBy:      models.ActorMatcher,
		}))

		rows, err := repo.List(ctx, repositories.FilterLowConfidence, 50, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, weak.ID, rows[0].Record.ID)
		require.NotNil(t, rows[0].Link)
		assert.InDelta(t, 0.45, rows[0].Link.Confidence, 1e-9)
	})

	t.Run("ListLinked orders by record id", func(t *testing.T) {
		rows, err := repo.ListLinked(ctx)
		require.NoError(t, err)
		for i := 1; i < len(rows); i++ {
			assert.True(t, rows[i-1].Record.ID.String() < rows[i].Record.ID.String())
		}
	})
}

func TestLinkRepository_Integration(t *testing.T) {
	ctx := setup(t)
	repo := repositories.NewLinkRepository()

	entityA := seedEntity(t, ctx, "25 BK-017", "Harbor House")
	entityB := seedEntity(t, ctx, "23 BK-088", "Beach Resort")
	record := seedRecord(t, ctx, "I25-017")

	link := &models.Link{
		SourceRecordID: record.ID,
		EntityID:       entityA.ID,
		Confidence:     1.0,
		Method:         models.MethodExactCode,
		Evidence:       "I25-017",
		CreatedBy:      models.ActorMatcher,
	}
	require.NoError(t, repo.Insert(ctx, link))

	t.Run("second insert for the same record is rejected", func(t *testing.T) {
		err := repo.Insert(ctx, &models.Link{
			SourceRecordID: record.ID,
			EntityID:       entityB.ID,
			Confidence:     0.95,
			Method:         models.MethodAliasMatch,
			CreatedBy:      models.ActorMatcher,
		})
		assert.Error(t, err)
	})

	t.Run("delete then insert replaces the link", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, record.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		require.NoError(t, repo.Insert(ctx, &models.Link{
			SourceRecordID: record.ID,
			EntityID:       entityB.ID,
			Confidence:     1.0,
			Method:         models.MethodManual,
			CreatedBy:      "reviewer@atelier.test",
		}))

		current, err := repo.GetBySourceID(ctx, record.ID)
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, entityB.ID, current.EntityID)
		assert.Equal(t, models.MethodManual, current.Method)
	})

	t.Run("delete of absent link reports false", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("CountByEntity aggregates", func(t *testing.T) {
		counts, err := repo.CountByEntity(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[entityB.ID])
		assert.Zero(t, counts[entityA.ID])
	})
}

func TestSuggestionRepository_Integration(t *testing.T) {
	ctx := setup(t)
	repo := repositories.NewSuggestionRepository()

	newSuggestion := func(email string) *models.Suggestion {
		s := &models.Suggestion{
			Kind:       models.SuggestionKindNewContact,
			Confidence: 0.8,
			Evidence:   "extracted from correspondence",
			Payload: models.SuggestionPayload{
				NewContact: &models.NewContactPayload{Name: "Maria Ruiz", Email: email},
			},
		}
		s.DedupeKey = s.ComputeDedupeKey()
		return s
	}

	first := newSuggestion("maria@example.com")
	require.NoError(t, repo.Create(ctx, first))

	t.Run("pending duplicate violates the partial unique index", func(t *testing.T) {
		err := repo.Create(ctx, newSuggestion("maria@example.com"))
		assert.Error(t, err)
	})

	t.Run("FindPendingByDedupeKey locates the pending row", func(t *testing.T) {
		got, err := repo.FindPendingByDedupeKey(ctx, models.SuggestionKindNewContact, first.DedupeKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("Resolve succeeds once and only once", func(t *testing.T) {
		resolved, err := repo.Resolve(ctx, first.ID, models.SuggestionStatusApproved, "reviewer@atelier.test")
		require.NoError(t, err)
		assert.True(t, resolved)

		again, err := repo.Resolve(ctx, first.ID, models.SuggestionStatusRejected, "other@atelier.test")
		require.NoError(t, err)
		assert.False(t, again)

		got, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SuggestionStatusApproved, got.Status)
		require.NotNil(t, got.ResolvedBy)
		assert.Equal(t, "reviewer@atelier.test", *got.ResolvedBy)
		assert.NotNil(t, got.ResolvedAt)
	})

	t.Run("resolved rows no longer block a fresh equivalent", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newSuggestion("maria@example.com")))
	})

	t.Run("ListPending filters by confidence and sorts descending", func(t *testing.T) {
		low := newSuggestion("low@example.com")
		low.Confidence = 0.3
		require.NoError(t, repo.Create(ctx, low))
		high := newSuggestion("high@example.com")
		high.Confidence = 0.95
		require.NoError(t, repo.Create(ctx, high))

		rows, err := repo.ListPending(ctx, models.SuggestionKindNewContact, 0.5, 50, 0)
		require.NoError(t, err)
		require.NotEmpty(t, rows)
		assert.Equal(t, "high@example.com", rows[0].Payload.NewContact.Email)
		for _, row := range rows {
			assert.GreaterOrEqual(t, row.Confidence, 0.5)
		}
	})
}

func TestFeedbackRepository_Integration(t *testing.T) {
	ctx := setup(t)
	repo := repositories.NewFeedbackRepository()

	entity := seedEntity(t, ctx, "25 BK-017", "Harbor House")
	record := seedRecord(t, ctx, "I25-017")
	link := &models.Link{
		SourceRecordID: record.ID,
		EntityID:       entity.ID,
		Confidence:     1.0,
		Method:         models.MethodManual,
		CreatedBy:      "reviewer@atelier.test",
	}
	require.NoError(t, repositories.NewLinkRepository().Insert(ctx, link))

	issue := "wrong_entity"
	entries := []*models.FeedbackEntry{
		{FeatureType: models.FeedbackFeatureLink, FeatureID: link.ID, Helpful: true, Actor: "reviewer@atelier.test"},
		{FeatureType: models.FeedbackFeatureLink, FeatureID: link.ID, Helpful: false, IssueType: &issue, Reason: "belongs to the other project", Actor: "pm@atelier.test"},
	}
	for _, e := range entries {
		require.NoError(t, repo.Create(ctx, e))
	}

	got, err := repo.ListByFeature(ctx, models.FeedbackFeatureLink, link.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Helpful)
	assert.False(t, got[1].Helpful)
	require.NotNil(t, got[1].IssueType)
	assert.Equal(t, "wrong_entity", *got[1].IssueType)
}
