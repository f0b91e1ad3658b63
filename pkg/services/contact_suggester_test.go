package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/llm"
	"github.com/atelierops/pipeline-engine/pkg/models"
)

type suggesterFixture struct {
	sources     *memSourceRepo
	entities    *memEntityRepo
	suggestions *memSuggestionRepo
	client      *llm.MockClient
}

func newSuggesterFixture(t *testing.T) (*suggesterFixture, ContactSuggester) {
	t.Helper()

	links := newMemLinkRepo()
	f := &suggesterFixture{
		sources:     newMemSourceRepo(links),
		entities:    newMemEntityRepo(),
		suggestions: newMemSuggestionRepo(),
		client:      llm.NewMockClient(),
	}
	logger := zap.NewNop()
	suggestionSvc := NewSuggestionService(stubRunner{}, f.suggestions, f.entities, newMemAliasRepo(), newMemFeedbackRepo(), logger)
	svc := NewContactSuggester(stubRunner{}, f.sources, f.entities, suggestionSvc, f.client, logger)
	return f, svc
}

func (f *suggesterFixture) addEmail(t *testing.T, subject, body string) {
	t.Helper()
	require.NoError(t, f.sources.Create(context.Background(), &models.SourceRecord{
		Kind:        models.SourceKindEmail,
		Subject:     subject,
		Description: body,
	}))
}

func TestSuggestContacts(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueues extracted contacts", func(t *testing.T) {
		f, svc := newSuggesterFixture(t)
		f.addEmail(t, "Intro from the structural engineer", "Hi, I'm Priya Shah at Shah Engineering, priya@shaheng.com")
		f.client.CompleteFunc = func(_ context.Context, _, _ string, _ float64) (string, error) {
			return `{"contacts":[{"name":"Priya Shah","email":"priya@shaheng.com","company":"Shah Engineering","role":"structural engineer","confidence":0.9}]}`, nil
		}

		n, err := svc.SuggestContacts(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, f.client.CompleteCalls)

		pending, err := f.suggestions.ListPending(ctx, models.SuggestionKindNewContact, 0, 0, 0)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		payload := pending[0].Payload.NewContact
		require.NotNil(t, payload)
		assert.Equal(t, "Priya Shah", payload.Name)
		assert.Equal(t, "priya@shaheng.com", payload.Email)
		// Model said 0.9; the cap keeps it below the auto-commit bar.
		assert.Equal(t, models.AutoCommitThreshold, pending[0].Confidence)
	})

	t.Run("skips contacts that are already canonical", func(t *testing.T) {
		f, svc := newSuggesterFixture(t)
		require.NoError(t, f.entities.Create(ctx, &models.CanonicalEntity{
			Kind:  models.EntityKindContact,
			Code:  "CT-PRIYA",
			Email: "priya@shaheng.com",
		}))
		f.addEmail(t, "Re: beam sizing", "Priya again")
		f.client.CompleteFunc = func(_ context.Context, _, _ string, _ float64) (string, error) {
			return `{"contacts":[{"name":"Priya Shah","email":"Priya@ShahEng.com","confidence":0.8}]}`, nil
		}

		n, err := svc.SuggestContacts(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("garbled model output skips the record", func(t *testing.T) {
		f, svc := newSuggesterFixture(t)
		f.addEmail(t, "Weekly digest", "newsletter content")
		f.addEmail(t, "Intro", "I'm Sam, sam@example.com")
		calls := 0
		f.client.CompleteFunc = func(_ context.Context, _, _ string, _ float64) (string, error) {
			calls++
			if calls == 1 {
				return "no structured output today", nil
			}
			return `{"contacts":[{"name":"Sam","email":"sam@example.com","confidence":0.7}]}`, nil
		}

		n, err := svc.SuggestContacts(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("non-email records are ignored", func(t *testing.T) {
		f, svc := newSuggesterFixture(t)
		require.NoError(t, f.sources.Create(ctx, &models.SourceRecord{
			Kind:          models.SourceKindInvoice,
			RawIdentifier: "I25-001",
		}))

		n, err := svc.SuggestContacts(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, f.client.CompleteCalls)
	})

	t.Run("nil client disables the pass", func(t *testing.T) {
		f, _ := newSuggesterFixture(t)
		logger := zap.NewNop()
		suggestionSvc := NewSuggestionService(stubRunner{}, f.suggestions, f.entities, newMemAliasRepo(), newMemFeedbackRepo(), logger)
		svc := NewContactSuggester(stubRunner{}, f.sources, f.entities, suggestionSvc, nil, logger)

		n, err := svc.SuggestContacts(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
