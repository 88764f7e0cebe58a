package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammad-safakhou/mosaic/config"
)

// Client fetches supporting passages from the external retrieval
// service. Callers treat it as optional context; they absorb errors
// rather than failing the turn.
type Client struct {
	endpoint string
	topK     int
	http     *http.Client
}

func New(cfg config.RetrievalConfig) *Client {
	cfg = cfg.Normalize()
	return &Client{
		endpoint: cfg.Endpoint,
		topK:     cfg.TopK,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether an endpoint is configured at all.
func (c *Client) Enabled() bool { return c.endpoint != "" }

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
}

// Passages runs a search and returns the passage texts.
func (c *Client) Passages(ctx context.Context, query string, k int) ([]string, error) {
	if c.endpoint == "" {
		return nil, nil
	}
	if k <= 0 {
		k = c.topK
	}
	body, err := json.Marshal(searchRequest{Query: query, TopK: k})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("retrieval status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode retrieval response: %w", err)
	}
	out := make([]string, 0, len(sr.Results))
	for _, r := range sr.Results {
		if r.Text != "" {
			out = append(out, r.Text)
		}
	}
	return out, nil
}
