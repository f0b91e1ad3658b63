// Package matching implements the identifier extraction and candidate
// matching pipeline. Everything in this package is pure: no database access,
// no side effects, so each stage is independently unit-testable.
package matching

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Candidate specificity levels, highest first. Invoice-prefixed identifiers
// are the most specific pattern; a bare 3-digit core the least.
const (
	SpecificityInvoiceYear = 3 // I<YY>-<NNN>
	SpecificityYearCode    = 2 // <YY>-<NNN>
	SpecificityBareCode    = 1 // <NNN>
)

// DefaultCodePrefixes are the code-prefix conventions observed in the
// canonical set. The extractor tries the 3-digit core against each of them.
var DefaultCodePrefixes = []string{"BK"}

// Candidate is one normalized project-code candidate extracted from a raw
// identifier.
type Candidate struct {
	// Code is the normalized candidate code, e.g. "BK-017".
	Code string
	// Core is the extracted 3-digit core, e.g. "017".
	Core string
	// Year is the two-digit year embedded in the identifier, or 0.
	Year int
	// Specificity orders candidates from most to least specific pattern.
	Specificity int
}

var (
	invoiceYearPattern = regexp.MustCompile(`\bI(\d{2})-(\d{3})\b`)
	yearCodePattern    = regexp.MustCompile(`\b(\d{2})-(\d{3})\b`)
	bareCodePattern    = regexp.MustCompile(`\b(\d{3})\b`)
)

// Extract pulls normalized code candidates out of a free-form identifier
// using the default prefix conventions. An empty result is an expected,
// common outcome (roughly 15% of historical records), not an error.
func Extract(raw string) []Candidate {
	return ExtractWithPrefixes(raw, DefaultCodePrefixes)
}

// ExtractWithPrefixes pulls normalized code candidates out of a free-form
// identifier, trying the extracted core against each known prefix
// convention. Candidates are ordered by pattern specificity; duplicates
// (same code and year) are suppressed.
func ExtractWithPrefixes(raw string, prefixes []string) []Candidate {
	if len(prefixes) == 0 {
		prefixes = DefaultCodePrefixes
	}

	var out []Candidate
	seen := make(map[string]bool)

	add := func(yearStr, core string, specificity int) {
		year := 0
		if yearStr != "" {
			year, _ = strconv.Atoi(yearStr)
		}
		for _, prefix := range prefixes {
			c := Candidate{
				Code:        fmt.Sprintf("%s-%s", strings.ToUpper(prefix), core),
				Core:        core,
				Year:        year,
				Specificity: specificity,
			}
			key := fmt.Sprintf("%s|%d", c.Code, c.Year)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}

	for _, m := range invoiceYearPattern.FindAllStringSubmatch(raw, -1) {
		add(m[1], m[2], SpecificityInvoiceYear)
	}

	// Strip invoice matches before looking for bare year-codes so that
	// "I24-017" does not also produce a 24-017 candidate.
	stripped := invoiceYearPattern.ReplaceAllString(raw, " ")
	for _, m := range yearCodePattern.FindAllStringSubmatch(stripped, -1) {
		add(m[1], m[2], SpecificityYearCode)
	}

	stripped = yearCodePattern.ReplaceAllString(stripped, " ")
	for _, m := range bareCodePattern.FindAllStringSubmatch(stripped, -1) {
		add("", m[1], SpecificityBareCode)
	}

	return out
}

// canonicalCodePattern recognizes canonical code shapes like "BK-017",
// "25 BK-017", "25BK-017", "bk 017".
var canonicalCodePattern = regexp.MustCompile(`^(?:(\d{2})\s*)?([A-Za-z]+)[\s-]*(\d{1,4})$`)

// NormalizeCode reduces a canonical code or alias to its comparable form and
// extracts the embedded two-digit year prefix when present. "25 BK-017",
// "25BK-017" and "bk-17" all normalize to "BK-017" (year 25, 25, 0).
// Returns ok=false when the input does not look like a project code.
func NormalizeCode(code string) (normalized string, year int, ok bool) {
	m := canonicalCodePattern.FindStringSubmatch(strings.TrimSpace(code))
	if m == nil {
		return "", 0, false
	}
	if m[1] != "" {
		year, _ = strconv.Atoi(m[1])
	}
	num, err := strconv.Atoi(m[3])
	if err != nil {
		return "", 0, false
	}
	return fmt.Sprintf("%s-%03d", strings.ToUpper(m[2]), num), year, true
}
