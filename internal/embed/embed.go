// Package embed produces fixed-dimension text embeddings through an HTTP
// inference endpoint and provides the cosine similarity used across
// matching and semantic dedup.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Encoder turns text into unit-space vectors. Implementations must return
// one vector per input, in order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Client calls an embedding inference server speaking the common
// {"inputs": [...]} -> [[...]] batch protocol. A non-empty apiKey is sent
// as a bearer token; self-hosted servers run without one.
type Client struct {
	url       string
	apiKey    string
	dimension int
	client    *http.Client
}

func NewClient(url, apiKey string, dimension int) *Client {
	return &Client{
		url:       url,
		apiKey:    apiKey,
		dimension: dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Dimension() int { return c.dimension }

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// Encode embeds a batch of texts. A count or dimension mismatch from the
// server is an error; silently misaligned vectors would corrupt matching.
func (c *Client) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned %d: %s", resp.StatusCode, respBody)
	}

	var vectors [][]float32
	if err := json.Unmarshal(respBody, &vectors); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != c.dimension {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), c.dimension)
		}
	}
	return vectors, nil
}

// EncodeOne embeds a single text.
func (c *Client) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is a
// zero vector or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// PostingText assembles the text embedded for a job posting.
func PostingText(title, company, description string, tags []string) string {
	text := title + " at " + company + ". " + description
	for _, t := range tags {
		text += " " + t
	}
	return text
}
