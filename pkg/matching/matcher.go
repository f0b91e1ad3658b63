package matching

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"

	"github.com/atelierops/pipeline-engine/pkg/models"
)

// Confidence levels per match method. Text evidence is scaled by specificity
// and capped below the alias level.
const (
	ConfidenceExact    = 1.0
	ConfidenceAlias    = 0.95
	ConfidenceTextCap  = 0.85
	confidenceTextBase = 0.35
	confidenceTextStep = 0.05
)

// Match is one ranked candidate target for a source record.
type Match struct {
	Entity     *models.CanonicalEntity
	Method     string
	Confidence float64
	Evidence   string
}

// Matcher ranks canonical entities against extractor candidates and
// free-text evidence. The ranking pipeline is ordered and deterministic:
// score, then year proximity, then the documented tie-break chain.
type Matcher struct {
	idx *Index
}

// NewMatcher creates a matcher over a prepared index.
func NewMatcher(idx *Index) *Matcher {
	return &Matcher{idx: idx}
}

type scoredMatch struct {
	Match
	// yearDistance is the gap between the candidate's embedded year and the
	// entity's code year; entities with unknown years sort after known ones.
	yearDistance int
	specificity  int
}

const unknownYearDistance = 1 << 20

// Match returns candidate targets sorted descending by confidence. The
// free-text path only runs when no code-based match was found, which is also
// the only path reachable when extraction yields nothing. The caller decides
// the action threshold.
func (m *Matcher) Match(rawIdentifier string, candidates []Candidate, freeText []string, recordDate time.Time) []Match {
	best := make(map[uuid.UUID]scoredMatch)

	keep := func(s scoredMatch) {
		prev, ok := best[s.Entity.ID]
		if !ok || s.Confidence > prev.Confidence ||
			(s.Confidence == prev.Confidence && s.yearDistance < prev.yearDistance) {
			best[s.Entity.ID] = s
		}
	}

	// Approved aliases are keyed on the full identifier string, so the raw
	// identifier is tried against the alias table before any candidate code.
	if e, ok := m.idx.LookupAlias(rawIdentifier); ok {
		keep(scoredMatch{
			Match: Match{
				Entity:     e,
				Method:     models.MethodAliasMatch,
				Confidence: ConfidenceAlias,
				Evidence:   fmt.Sprintf("identifier %q resolves via approved alias to %s", rawIdentifier, e.Code),
			},
			yearDistance: unknownYearDistance,
		})
	}

	for _, c := range candidates {
		for _, e := range m.idx.LookupCode(c.Code) {
			keep(scoredMatch{
				Match: Match{
					Entity:     e,
					Method:     models.MethodExactCode,
					Confidence: ConfidenceExact,
					Evidence:   fmt.Sprintf("candidate %s matches canonical code %s", c.Code, e.Code),
				},
				yearDistance: m.yearDistance(c, e),
				specificity:  c.Specificity,
			})
		}
		if e, ok := m.idx.LookupAlias(c.Code); ok {
			keep(scoredMatch{
				Match: Match{
					Entity:     e,
					Method:     models.MethodAliasMatch,
					Confidence: ConfidenceAlias,
					Evidence:   fmt.Sprintf("candidate %s resolves via approved alias to %s", c.Code, e.Code),
				},
				yearDistance: m.yearDistance(c, e),
				specificity:  c.Specificity,
			})
		}
	}

	if len(best) == 0 {
		for _, s := range m.textMatches(freeText) {
			keep(s)
		}
	}

	ranked := make([]scoredMatch, 0, len(best))
	for _, s := range best {
		ranked = append(ranked, s)
	}
	m.rank(ranked, recordDate)

	out := make([]Match, len(ranked))
	for i, s := range ranked {
		out[i] = s.Match
	}
	return out
}

// yearDistance computes the temporal proximity between the identifier's
// embedded year and the entity's recorded code year.
func (m *Matcher) yearDistance(c Candidate, e *models.CanonicalEntity) int {
	entityYear := m.idx.CodeYear(e.ID)
	if c.Year == 0 || entityYear == 0 {
		return unknownYearDistance
	}
	d := c.Year - entityYear
	if d < 0 {
		d = -d
	}
	return d
}

// textMatches scores entities by token containment of their display name
// (or normalized code) in the record's free-text evidence. Tokens are
// case-folded and singularized so "Resorts" still matches "Resort".
func (m *Matcher) textMatches(freeText []string) []scoredMatch {
	text := strings.ToLower(strings.Join(freeText, " "))
	if strings.TrimSpace(text) == "" {
		return nil
	}
	textTokens := tokenSet(text)

	var out []scoredMatch
	for _, e := range m.idx.Entities() {
		matched := 0
		nameTokens := strings.Fields(strings.ToLower(e.DisplayName))
		if len(nameTokens) > 0 {
			all := true
			for _, tok := range nameTokens {
				if !textTokens[inflection.Singular(tok)] {
					all = false
					break
				}
			}
			if all {
				matched = len(nameTokens)
			}
		}

		evidence := fmt.Sprintf("entity name %q found in record text", e.DisplayName)
		if matched == 0 {
			if normalized, _, ok := NormalizeCode(e.Code); ok &&
				strings.Contains(strings.ToUpper(text), normalized) {
				matched = 2
				evidence = fmt.Sprintf("canonical code %s found in record text", e.Code)
			}
		}
		if matched == 0 {
			continue
		}

		confidence := confidenceTextBase + confidenceTextStep*float64(matched)
		if confidence > ConfidenceTextCap {
			confidence = ConfidenceTextCap
		}
		out = append(out, scoredMatch{
			Match: Match{
				Entity:     e,
				Method:     models.MethodTextEvidence,
				Confidence: confidence,
				Evidence:   evidence,
			},
			yearDistance: unknownYearDistance,
		})
	}
	return out
}

// rank orders matches: confidence descending, then year proximity, then the
// documented tie-break chain. The chain ends on canonical code so the order
// is a total one; an ambiguous rule here is what produced dumping-ground
// entities in the historical data.
func (m *Matcher) rank(matches []scoredMatch, recordDate time.Time) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.yearDistance != b.yearDistance {
			return a.yearDistance < b.yearDistance
		}
		ar, br := dateRank(a.Entity.CreatedAt, recordDate), dateRank(b.Entity.CreatedAt, recordDate)
		if ar != br {
			return ar < br
		}
		ac, bc := m.idx.LinkCount(a.Entity.ID), m.idx.LinkCount(b.Entity.ID)
		if ac != bc {
			return ac > bc
		}
		return a.Entity.Code < b.Entity.Code
	})
}

// dateRank scores an entity creation date against the record date: entities
// created on or before the record rank ahead of later ones, and within each
// group the nearest date wins.
func dateRank(created, record time.Time) int64 {
	if record.IsZero() || created.IsZero() {
		return unknownYearDistance
	}
	delta := record.Sub(created)
	if delta >= 0 {
		return int64(delta / time.Hour)
	}
	// Created after the record: always worse than any not-later entity.
	return int64(unknownYearDistance) + int64(-delta/time.Hour)
}

// tokenSet folds a text into a set of singularized tokens.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ".,;:!?()[]\"'")
		if tok == "" {
			continue
		}
		set[inflection.Singular(tok)] = true
	}
	return set
}
