// Package normalize turns source-native raw postings into canonical form:
// CHF-annualized salary, canton-coded location, detected language, inferred
// seniority and contract type, and a capped tag set. Every step degrades to
// "field empty" rather than failing the posting; only a missing source key
// or title rejects a record outright.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"jobhunter/aggregator-service/internal/model"
)

// Error reports a raw posting that cannot become canonical. The ingest
// cycle logs it and moves on; one bad record never aborts a batch.
type Error struct {
	SourceKey string
	Field     string
	Reason    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s: field %s: %s", e.SourceKey, e.Field, e.Reason)
}

var (
	htmlTagRE    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Normalizer is stateless; a single instance is shared by all workers.
type Normalizer struct{}

func New() *Normalizer { return &Normalizer{} }

// Normalize produces the canonical posting for one raw record. Only the
// source key and title are mandatory; a missing company or URL degrades
// the dedup key, never the record. Everything else is best-effort
// enrichment.
func (n *Normalizer) Normalize(raw model.RawPosting, now time.Time) (model.CanonicalPosting, error) {
	title := CleanText(raw.Title)

	for field, val := range map[string]string{"source": raw.SourceKey, "title": title} {
		if val == "" {
			return model.CanonicalPosting{}, &Error{SourceKey: raw.SourceKey, Field: field, Reason: "required field empty"}
		}
	}

	// Contract markers like "Praktikum" double as seniority markers, so
	// contract inference sees the title before the marker is stripped.
	description := CleanText(raw.Description)
	contract := InferContract(title, description)
	seniority, title := InferSeniority(title)
	location := CleanLocation(raw.Location)

	post := model.CanonicalPosting{
		Source:      raw.SourceKey,
		Title:       title,
		Company:     CleanText(raw.Company),
		Location:    location,
		Region:      ExtractCanton(raw.Location),
		City:        ExtractCity(raw.Location),
		Description: description,
		Language:    DetectLanguage(title, description),
		Seniority:   seniority,
		Remote:      raw.Remote || IsRemoteLocation(raw.Location),
		Tags:        ExtractTags(title, description, raw.Tags),
		FirstSeenAt: now,
		LastSeenAt:  now,
		Active:      true,
	}

	post.ContractType = contract

	minCHF, maxCHF, currency, period, original := NormalizeSalary(raw)
	post.SalaryMinCHF = minCHF
	post.SalaryMaxCHF = maxCHF
	post.SalaryCurrency = currency
	post.SalaryPeriod = period
	post.SalaryOriginal = original

	return post, nil
}

// CleanText strips HTML tags and collapses whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	cleaned := htmlTagRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(cleaned, " "))
}
