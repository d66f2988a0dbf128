package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jobhunter/aggregator-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per query per cycle
	httpTimeout    = 15 * time.Second
)

// AdzunaAdapter fetches postings from the Adzuna public API. If AppID or
// AppKey is empty, Fetch returns (nil, nil) and the cycle simply skips
// this source.
type AdzunaAdapter struct {
	AppID   string
	AppKey  string
	Country string // "ch", "de", "fr", …

	baseURL string
	client  *http.Client
}

// NewAdzunaAdapter constructs an adapter with a shared HTTP client.
func NewAdzunaAdapter(appID, appKey, country string) *AdzunaAdapter {
	return &AdzunaAdapter{
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		baseURL: adzunaBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

func (a *AdzunaAdapter) Name() string { return "adzuna" }
func (a *AdzunaAdapter) Kind() Kind   { return KindAPI }

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// Fetch retrieves postings for the query, iterating pages until a short page
// or the page cap. Partial results are returned alongside a page error.
func (a *AdzunaAdapter) Fetch(ctx context.Context, q Query) ([]model.RawPosting, error) {
	if a.AppID == "" || a.AppKey == "" {
		return nil, nil
	}

	maxPages := q.MaxPages
	if maxPages <= 0 {
		maxPages = adzunaMaxPages
	}

	var results []model.RawPosting
	for page := 1; page <= maxPages; page++ {
		batch, err := a.fetchPage(ctx, q, page)
		if err != nil {
			return results, fmt.Errorf("page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}
		results = append(results, batch...)
		if len(batch) < adzunaPageSize {
			break // last page
		}
	}
	return results, nil
}

func (a *AdzunaAdapter) fetchPage(ctx context.Context, q Query, page int) ([]model.RawPosting, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", a.baseURL, a.Country, page)

	params := url.Values{}
	params.Set("app_id", a.AppID)
	params.Set("app_key", a.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", q.Keywords)
	params.Set("where", q.Location)
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	results := make([]model.RawPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		posted, _ := time.Parse(time.RFC3339, r.Created)
		results = append(results, model.RawPosting{
			SourceKey:   a.Name(),
			ExternalID:  r.ID,
			Title:       r.Title,
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Description: r.Description,
			SalaryMin:   r.SalaryMin,
			SalaryMax:   r.SalaryMax,
			Period:      "yearly",
			URL:         r.RedirectURL,
			PostedAt:    posted,
		})
	}
	return results, nil
}

// classifyStatus maps HTTP status codes onto the adapter sentinel errors so
// callers never branch on raw status codes.
func classifyStatus(code int, body []byte) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w (429)", ErrRateLimited)
	case code == http.StatusForbidden:
		return fmt.Errorf("%w (403)", ErrBlocked)
	case code >= 500:
		return fmt.Errorf("%w (%d)", ErrUnavailable, code)
	default:
		return fmt.Errorf("unexpected status %d: %s", code, truncate(body, 200))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
