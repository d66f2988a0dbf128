// Package rerank is the generative second stage of matching: a language
// model reads the CV and a shortlisted posting and returns a fit score with
// an explanation and skill gaps. Results are cached aggressively because
// the model is the slowest and most expensive component in the system.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ErrQuotaExceeded marks generative-stage exhaustion. The matching engine
// degrades to embedding-only scoring instead of failing the cycle.
var ErrQuotaExceeded = errors.New("generative quota exceeded")

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 2
	retryBaseWait     = 2 * time.Second
)

// Generator wraps the Google GenAI client behind a plain prompt-in,
// text-out call with bounded retries.
type Generator struct {
	client      *genai.Client
	modelName   string
	maxAttempts int
}

// NewGenerator creates a Generator for the Gemini API backend. maxRetries
// bounds retries after the first attempt; values below zero take the
// default.
func NewGenerator(ctx context.Context, apiKey, model string, maxRetries int) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return &Generator{client: client, modelName: model, maxAttempts: maxRetries + 1}, nil
}

// GenerateContent sends the prompt and returns the concatenated text parts
// of the first response. Transient failures retry with backoff; quota
// errors surface as ErrQuotaExceeded immediately.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("generator is not initialized")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), nil)
		if err == nil {
			return collectText(resp)
		}
		if isQuotaError(err) {
			return "", fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		lastErr = err
		if attempt < g.maxAttempts {
			select {
			case <-time.After(retryBaseWait * time.Duration(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("generate content after %d attempts: %w", g.maxAttempts, lastErr)
}

func (g *Generator) Model() string { return g.modelName }

func collectText(resp *genai.GenerateContentResponse) (string, error) {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("model returned empty response")
	}
	return out, nil
}

func isQuotaError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted")
}
