// Package dedup computes posting identity and finds duplicates at three
// levels: exact (hash of title+company+canonical URL), fuzzy (same role at
// the same company republished by another board), and semantic (embedding
// cosine similarity). Duplicates are linked, never deleted.
package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"jobhunter/aggregator-service/internal/model"
)

// Legal suffixes stripped from company names before fuzzy hashing.
var companySuffixes = map[string]bool{
	"ag": true, "gmbh": true, "sa": true, "sarl": true, "sàrl": true,
	"ltd": true, "inc": true, "corp": true, "se": true, "plc": true,
	"srl": true, "co": true, "llc": true, "pty": true, "bv": true, "nv": true,
}

// Seniority markers and gender suffixes stripped from titles before fuzzy
// hashing, so "Senior Go Engineer (m/w/d)" and "Go Engineer" collide.
var seniorityStrip = []string{
	"senior", "junior", "lead", "head", "intern", "trainee",
	"sr.", "jr.", "sr", "jr",
	"(m/f/d)", "(m/w/d)", "(f/m/d)", "(w/m/d)", "(m/f/x)", "(w/m/x)",
	"(all genders)", "m/f/d", "m/w/d", "f/m/d", "w/m/d",
}

var (
	punctRE  = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spacesRE = regexp.MustCompile(`\s+`)
)

// Hash is the canonical posting identity: md5 of lowercased title, company
// and the canonicalized URL. It never changes once assigned.
func Hash(title, company, rawURL string) string {
	raw := strings.ToLower(strings.TrimSpace(title)) + "|" +
		strings.ToLower(strings.TrimSpace(company)) + "|" +
		CanonicalURL(rawURL)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SourceHash is the fallback identity for postings without a URL: md5 of
// the source key and its source-native id. Stable across refetches as long
// as the board keeps its own id stable.
func SourceHash(source, externalID string) string {
	raw := strings.ToLower(strings.TrimSpace(source)) + "|" +
		strings.TrimSpace(externalID)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL strips fragments and tracking query parameters so the same
// posting shared through different campaigns hashes identically.
func CanonicalURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		if strings.HasPrefix(lower, "utm_") || lower == "ref" || lower == "source" || lower == "fbclid" || lower == "gclid" {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	return strings.TrimSuffix(u.String(), "?")
}

// FuzzyHash is md5 of the normalized title and company, built to collide
// across boards that republish the same opening with cosmetic differences.
func FuzzyHash(title, company string) string {
	raw := normalizeTitle(title) + "|" + normalizeCompany(company)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func normalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, word := range seniorityStrip {
		t = strings.ReplaceAll(t, word, " ")
	}
	t = punctRE.ReplaceAllString(t, " ")
	return strings.TrimSpace(spacesRE.ReplaceAllString(t, " "))
}

func normalizeCompany(company string) string {
	c := strings.ToLower(strings.TrimSpace(company))
	c = punctRE.ReplaceAllString(c, " ")
	words := strings.Fields(c)
	kept := words[:0]
	for _, w := range words {
		if !companySuffixes[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// DuplicateIndex is the store-side lookup surface the deduplicator needs.
type DuplicateIndex interface {
	// FindByFuzzyHash returns the hash of an active posting with this fuzzy
	// hash from a different source, or "" when none exists.
	FindByFuzzyHash(ctx context.Context, fuzzyHash, excludeSource string) (string, error)
	// FindSemanticDuplicate returns the hash of the oldest active,
	// non-duplicate posting whose embedding similarity to the given one
	// exceeds the threshold, or "" when none exists.
	FindSemanticDuplicate(ctx context.Context, hash string, embedding []float32, threshold float64) (string, error)
	// MarkDuplicate links a posting to its canonical original.
	MarkDuplicate(ctx context.Context, hash, canonicalHash string) error
}

// Deduplicator links duplicates across sources without destroying data:
// the newer posting gets duplicate_of set and drops out of matching, while
// its row stays for audit.
type Deduplicator struct {
	index     DuplicateIndex
	threshold float64
}

func New(index DuplicateIndex, semanticThreshold float64) *Deduplicator {
	return &Deduplicator{index: index, threshold: semanticThreshold}
}

// Stamp fills the identity fields on a freshly normalized posting and pins
// the canonicalized URL. Postings without a URL fall back to the source's
// native id for their exact hash.
func (d *Deduplicator) Stamp(post *model.CanonicalPosting, rawURL, externalID string) {
	if strings.TrimSpace(rawURL) == "" {
		post.Hash = SourceHash(post.Source, externalID)
		post.URL = ""
	} else {
		post.Hash = Hash(post.Title, post.Company, rawURL)
		post.URL = CanonicalURL(rawURL)
	}
	post.FuzzyHash = FuzzyHash(post.Title, post.Company)
}

// LinkFuzzy checks whether another board already carries this opening and,
// if so, records the link. Returns the canonical hash or "".
func (d *Deduplicator) LinkFuzzy(ctx context.Context, post *model.CanonicalPosting) (string, error) {
	canonical, err := d.index.FindByFuzzyHash(ctx, post.FuzzyHash, post.Source)
	if err != nil {
		return "", fmt.Errorf("fuzzy lookup for %s: %w", post.Hash, err)
	}
	if canonical == "" || canonical == post.Hash {
		return "", nil
	}
	if err := d.index.MarkDuplicate(ctx, post.Hash, canonical); err != nil {
		return "", fmt.Errorf("mark duplicate %s -> %s: %w", post.Hash, canonical, err)
	}
	post.DuplicateOf = canonical
	return canonical, nil
}

// LinkSemantic runs the embedding-level check for a posting that already
// has an embedding. Returns the canonical hash or "".
func (d *Deduplicator) LinkSemantic(ctx context.Context, post *model.CanonicalPosting) (string, error) {
	if len(post.Embedding) == 0 || post.DuplicateOf != "" {
		return "", nil
	}
	canonical, err := d.index.FindSemanticDuplicate(ctx, post.Hash, post.Embedding, d.threshold)
	if err != nil {
		return "", fmt.Errorf("semantic lookup for %s: %w", post.Hash, err)
	}
	if canonical == "" || canonical == post.Hash {
		return "", nil
	}
	if err := d.index.MarkDuplicate(ctx, post.Hash, canonical); err != nil {
		return "", fmt.Errorf("mark duplicate %s -> %s: %w", post.Hash, canonical, err)
	}
	post.DuplicateOf = canonical
	return canonical, nil
}
