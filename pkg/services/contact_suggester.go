package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/atelierops/pipeline-engine/pkg/database"
	"github.com/atelierops/pipeline-engine/pkg/llm"
	"github.com/atelierops/pipeline-engine/pkg/models"
	"github.com/atelierops/pipeline-engine/pkg/repositories"
	"github.com/atelierops/pipeline-engine/pkg/retry"
)

const contactSystemPrompt = `You extract contact information from business correspondence.
Given the subject and body of an email, identify people who are plausible new
business contacts: clients, consultants, vendors. Ignore mailing lists,
automated senders, and anyone without a personal name.

Respond with ONLY a JSON object of this shape:
{"contacts":[{"name":"...","email":"...","company":"...","role":"...","confidence":0.0}]}

confidence is your 0-1 estimate that this is a real new contact worth saving.
Omit a field you cannot determine rather than guessing. Return
{"contacts":[]} when nothing qualifies.`

// extractedContact mirrors one element of the model's JSON reply.
type extractedContact struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Company    string  `json:"company"`
	Role       string  `json:"role"`
	Confidence float64 `json:"confidence"`
}

type contactReply struct {
	Contacts []extractedContact `json:"contacts"`
}

// ContactSuggester scans unlinked email records and proposes new contact
// entities for human review. It only ever writes through the suggestion
// queue; nothing it produces becomes canonical without approval.
type ContactSuggester interface {
	// SuggestContacts runs one extraction pass over up to limit unlinked
	// email records and returns how many suggestions were enqueued.
	SuggestContacts(ctx context.Context, limit int) (int, error)
}

type contactSuggester struct {
	db          database.Runner
	sourceRepo  repositories.SourceRecordRepository
	entityRepo  repositories.EntityRepository
	suggestions SuggestionService
	client      llm.Client
	logger      *zap.Logger
}

// NewContactSuggester creates a new ContactSuggester. A nil client disables
// the pass; SuggestContacts then returns zero without scanning.
func NewContactSuggester(
	db database.Runner,
	sourceRepo repositories.SourceRecordRepository,
	entityRepo repositories.EntityRepository,
	suggestions SuggestionService,
	client llm.Client,
	logger *zap.Logger,
) ContactSuggester {
	return &contactSuggester{
		db:          db,
		sourceRepo:  sourceRepo,
		entityRepo:  entityRepo,
		suggestions: suggestions,
		client:      client,
		logger:      logger.Named("contact-suggester"),
	}
}

var _ ContactSuggester = (*contactSuggester)(nil)

func (s *contactSuggester) SuggestContacts(ctx context.Context, limit int) (int, error) {
	if s.client == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}

	records, err := s.sourceRepo.List(s.db.WithPool(ctx), repositories.FilterUnlinked, limit, 0)
	if err != nil {
		return 0, err
	}

	knownEmails, err := s.knownContactEmails(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, rl := range records {
		record := rl.Record
		if record.Kind != models.SourceKindEmail {
			continue
		}

		contacts, err := s.extract(ctx, record)
		if err != nil {
			// One bad record or model reply must not abort the pass.
			s.logger.Warn("contact extraction failed",
				zap.String("record_id", record.ID.String()),
				zap.Error(err))
			continue
		}

		for _, c := range contacts {
			email := strings.ToLower(strings.TrimSpace(c.Email))
			if c.Name == "" || email == "" {
				continue
			}
			if knownEmails[email] {
				continue
			}

			suggestion := &models.Suggestion{
				Kind:       models.SuggestionKindNewContact,
				Confidence: clampConfidence(c.Confidence),
				Evidence:   fmt.Sprintf("extracted from %q by %s", record.Subject, s.client.Model()),
				Payload: models.SuggestionPayload{
					NewContact: &models.NewContactPayload{
						Name:    c.Name,
						Email:   email,
						Company: c.Company,
						Role:    c.Role,
					},
				},
			}
			if _, err := s.suggestions.Enqueue(ctx, suggestion); err != nil {
				s.logger.Warn("enqueue contact suggestion failed",
					zap.String("email", email),
					zap.Error(err))
				continue
			}
			enqueued++
		}
	}

	s.logger.Info("contact pass finished",
		zap.Int("records", len(records)),
		zap.Int("enqueued", enqueued))
	return enqueued, nil
}

func (s *contactSuggester) extract(ctx context.Context, record *models.SourceRecord) ([]extractedContact, error) {
	prompt := fmt.Sprintf("Subject: %s\n\n%s", record.Subject, record.Description)

	var raw string
	err := retry.DoIfRetryable(ctx, nil, func() error {
		var completeErr error
		raw, completeErr = s.client.Complete(ctx, prompt, contactSystemPrompt, 0.2)
		return completeErr
	})
	if err != nil {
		return nil, err
	}

	reply, err := llm.ParseJSONResponse[contactReply](raw)
	if err != nil {
		return nil, err
	}
	return reply.Contacts, nil
}

// knownContactEmails snapshots existing contact emails so the pass skips
// people who are already canonical.
func (s *contactSuggester) knownContactEmails(ctx context.Context) (map[string]bool, error) {
	entities, err := s.entityRepo.ListAll(s.db.WithPool(ctx))
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool)
	for _, e := range entities {
		if e.Kind == models.EntityKindContact && e.Email != "" {
			known[strings.ToLower(e.Email)] = true
		}
	}
	return known, nil
}

// clampConfidence bounds a model-reported confidence. The cap keeps LLM
// output below the auto-commit bar; a model's self-assessment never commits
// anything on its own.
func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > models.AutoCommitThreshold:
		return models.AutoCommitThreshold
	}
	return c
}
