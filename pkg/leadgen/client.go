// Package leadgen is an HTTP client for the lead-generation backend that
// serves company previews and contact enrichment.
package leadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-wizard/internal/resilience"
)

// Client calls the lead-generation backend. Responses are returned raw
// because their shape differs between backend versions; callers normalize
// them.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]byte, error)
	Enrich(ctx context.Context, req EnrichRequest) ([]byte, error)
}

// SearchRequest is the body of POST /leads/search.
type SearchRequest struct {
	Industry    string   `json:"industry,omitempty"`
	Location    string   `json:"location,omitempty"`
	CompanySize string   `json:"company_size,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	MaxResults  int      `json:"max_results"`
}

// Company identifies one company to enrich.
type Company struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Website  string `json:"website,omitempty"`
	Location string `json:"location,omitempty"`
}

// EnrichRequest is the body of POST /leads/enrich.
type EnrichRequest struct {
	CompanyIDs []string  `json:"company_ids"`
	Companies  []Company `json:"companies"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a lead-generation client for baseURL. apiKey may be empty.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 90 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) ([]byte, error) {
	return c.post(ctx, "/leads/search", "leadgen: search", req)
}

func (c *httpClient) Enrich(ctx context.Context, req EnrichRequest) ([]byte, error) {
	if len(req.Companies) == 0 {
		return nil, eris.New("leadgen: enrich requires at least one company")
	}
	return c.post(ctx, "/leads/enrich", "leadgen: enrich", req)
}

func (c *httpClient) post(ctx context.Context, path, op string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, op+": marshal request")
	}

	return resilience.DoVal(ctx, c.retry, op, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, op+": create request")
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, op+": send request")
		}
		defer resp.Body.Close() //nolint:errcheck

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, op+": read response")
		}
		if err := resilience.CheckStatus(op, resp.StatusCode, respBody); err != nil {
			return nil, err
		}
		return respBody, nil
	})
}
