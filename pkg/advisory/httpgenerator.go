package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nordicgov/citizenship-review/pkg/domain"
)

// HTTPGenerator is a Generator backed by an external advisory HTTP endpoint
// (ADVISORY_BASE_URL). No HTTP client library appears anywhere in the
// examined corpus, so this uses net/http directly rather than introducing
// one for a single call site.
type HTTPGenerator struct {
	baseURL     string
	apiKey      string
	temperature float64
	client      *http.Client
}

// NewHTTPGenerator builds a Generator against baseURL, authenticating with
// apiKey via a bearer Authorization header.
func NewHTTPGenerator(baseURL, apiKey string, temperature float64, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL:     baseURL,
		apiKey:      apiKey,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	CaseID      string             `json:"case_id"`
	Case        domain.Case        `json:"case"`
	RuleResults []domain.RuleResult `json:"rule_results"`
	Temperature float64            `json:"temperature"`
}

func (g *HTTPGenerator) Explain(ctx context.Context, c domain.Case, results []domain.RuleResult) ([]byte, error) {
	return g.call(ctx, "/explain", c, results)
}

func (g *HTTPGenerator) Recommend(ctx context.Context, c domain.Case, results []domain.RuleResult) ([]byte, error) {
	return g.call(ctx, "/recommend", c, results)
}

func (g *HTTPGenerator) call(ctx context.Context, path string, c domain.Case, results []domain.RuleResult) ([]byte, error) {
	body, err := json.Marshal(generateRequest{
		CaseID:      c.ID,
		Case:        c,
		RuleResults: results,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("encode advisory request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build advisory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisory endpoint returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read advisory response: %w", err)
	}
	return respBody, nil
}
