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
	jobsChBaseURL  = "https://www.jobs.ch/api/v1/public/search"
	jobsChPageSize = 20
	jobsChMaxPages = 5
)

// JobsChAdapter pulls postings from the jobs.ch public search endpoint.
// It is unofficial, so it runs on the slow scrape cadence and under the
// stricter compliance posture.
type JobsChAdapter struct {
	baseURL string
	client  *http.Client
}

func NewJobsChAdapter() *JobsChAdapter {
	return &JobsChAdapter{
		baseURL: jobsChBaseURL,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

func (j *JobsChAdapter) Name() string { return "jobs_ch" }
func (j *JobsChAdapter) Kind() Kind   { return KindScrape }

type jobsChResponse struct {
	Documents []jobsChDocument `json:"documents"`
	NumPages  int              `json:"num_pages"`
}

type jobsChDocument struct {
	JobID       string   `json:"job_id"`
	Title       string   `json:"title"`
	CompanyName string   `json:"company_name"`
	Place       string   `json:"place"`
	Preview     string   `json:"template_text"`
	Salary      string   `json:"salary"`
	URL         string   `json:"slug"`
	PublishDate string   `json:"publication_date"`
	Skills      []string `json:"skills"`
	IsRemote    bool     `json:"is_remote"`
}

func (j *JobsChAdapter) Fetch(ctx context.Context, q Query) ([]model.RawPosting, error) {
	maxPages := q.MaxPages
	if maxPages <= 0 {
		maxPages = jobsChMaxPages
	}

	var results []model.RawPosting
	for page := 1; page <= maxPages; page++ {
		batch, lastPage, err := j.fetchPage(ctx, q, page)
		if err != nil {
			return results, fmt.Errorf("page %d: %w", page, err)
		}
		results = append(results, batch...)
		if lastPage || len(batch) == 0 {
			break
		}
	}
	return results, nil
}

func (j *JobsChAdapter) fetchPage(ctx context.Context, q Query, page int) ([]model.RawPosting, bool, error) {
	params := url.Values{}
	params.Set("query", q.Keywords)
	params.Set("location", q.Location)
	params.Set("page", strconv.Itoa(page))
	params.Set("rows", strconv.Itoa(jobsChPageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "jobhunter-aggregator/1.0")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, false, err
	}

	var apiResp jobsChResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, false, fmt.Errorf("json unmarshal: %w", err)
	}

	results := make([]model.RawPosting, 0, len(apiResp.Documents))
	for _, d := range apiResp.Documents {
		posted, _ := time.Parse(time.RFC3339, d.PublishDate)
		results = append(results, model.RawPosting{
			SourceKey:   j.Name(),
			ExternalID:  d.JobID,
			Title:       d.Title,
			Company:     d.CompanyName,
			Location:    d.Place,
			Description: d.Preview,
			SalaryText:  d.Salary,
			URL:         "https://www.jobs.ch/en/vacancies/detail/" + d.URL,
			Tags:        d.Skills,
			Remote:      d.IsRemote,
			PostedAt:    posted,
		})
	}
	return results, page >= apiResp.NumPages, nil
}
