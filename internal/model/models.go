// Package model defines shared data structures for the aggregator service.
package model

import "time"

// RawPosting is a source-native record as returned by one adapter call.
// It lives only inside the ingestion cycle that fetched it and is never
// persisted; the Normalizer turns it into CanonicalFields.
type RawPosting struct {
	SourceKey   string    `json:"sourceKey"`
	ExternalID  string    `json:"externalId"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	SalaryText  string    `json:"salaryText,omitempty"`
	SalaryMin   float64   `json:"salaryMin,omitempty"`
	SalaryMax   float64   `json:"salaryMax,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Period      string    `json:"period,omitempty"` // yearly | monthly | hourly
	URL         string    `json:"url"`
	Tags        []string  `json:"tags,omitempty"`
	Remote      bool      `json:"remote,omitempty"`
	PostedAt    time.Time `json:"postedAt,omitempty"`
}

// CanonicalPosting is the durable unit of truth: exactly one row exists per
// real-world opening regardless of how many sources republish it.
// Hash is derived from normalized identity fields and never changes; only
// Active, LastSeenAt, URLLastCheck and DuplicateOf mutate after creation.
type CanonicalPosting struct {
	Hash        string `json:"hash"`
	Source      string `json:"source"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location,omitempty"`
	Region      string `json:"region,omitempty"` // two-letter canton code, empty when unresolved
	City        string `json:"city,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"` // canonicalized application link

	// CHF-annualized; originals kept alongside.
	SalaryMinCHF   int    `json:"salaryMinChf,omitempty"`
	SalaryMaxCHF   int    `json:"salaryMaxChf,omitempty"`
	SalaryOriginal string `json:"salaryOriginal,omitempty"`
	SalaryCurrency string `json:"salaryCurrency,omitempty"`
	SalaryPeriod   string `json:"salaryPeriod,omitempty"`

	Language     string    `json:"language,omitempty"` // de | fr | en | it
	Seniority    Seniority `json:"seniority,omitempty"`
	ContractType Contract  `json:"contractType,omitempty"`
	Remote       bool      `json:"remote"`
	Tags         []string  `json:"tags"`

	Embedding []float32 `json:"-"`

	FirstSeenAt  time.Time  `json:"firstSeenAt"`
	LastSeenAt   time.Time  `json:"lastSeenAt"`
	Active       bool       `json:"active"`
	URLLastCheck *time.Time `json:"urlLastCheck,omitempty"`

	FuzzyHash   string `json:"fuzzyHash,omitempty"`
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

// Seniority tiers, ordered from most to least senior for pattern matching.
type Seniority string

const (
	SeniorityHead   Seniority = "head"
	SeniorityLead   Seniority = "lead"
	SenioritySenior Seniority = "senior"
	SeniorityMid    Seniority = "mid"
	SeniorityJunior Seniority = "junior"
	SeniorityIntern Seniority = "intern"
	SeniorityAny    Seniority = "any"
)

// Contract categories derived from free-text contract phrasing.
type Contract string

const (
	ContractApprenticeship Contract = "apprenticeship"
	ContractInternship     Contract = "internship"
	ContractTemporary      Contract = "temporary"
	ContractFixedTerm      Contract = "contract"
	ContractPartTime       Contract = "part_time"
	ContractFullTime       Contract = "full_time"
)

// MaxTags caps the tag set on a canonical posting.
const MaxTags = 15

// SourceComplianceRecord is the per-source policy row. It is the single
// authority for "may we contact this source right now"; only the Compliance
// Gate mutates it.
type SourceComplianceRecord struct {
	SourceKey          string     `json:"sourceKey"`
	Method             string     `json:"method"` // api | scraping
	Allowed            bool       `json:"allowed"`
	RobotsOK           bool       `json:"robotsOk"`
	RateLimitSeconds   float64    `json:"rateLimitSeconds"`
	MaxRequestsPerHour int        `json:"maxRequestsPerHour"`
	TOSReviewedAt      *time.Time `json:"tosReviewedAt,omitempty"`
	ConsecutiveBlocks  int        `json:"consecutiveBlocks"`
	LastBlockedAt      *time.Time `json:"lastBlockedAt,omitempty"`
	AutoDisableOnBlock bool       `json:"autoDisableOnBlock"`
}
